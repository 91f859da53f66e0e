package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/fleettune/fleettune/pkg/client"
)

// Set by stave via -ldflags; buildVersion falls back to module build
// info for plain `go install` binaries.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and daemon information",
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Printf("fleettune %s (%s, %s)\n", buildVersion(), commit, date)
	fmt.Printf("  go:      %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)

	if client.IsDaemonRunning(pidPath(cfg)) {
		fmt.Printf("  daemon:  running on %s\n", daemonAddr(cfg))
	} else {
		fmt.Println("  daemon:  not running")
	}
	return nil
}

// buildVersion prefers the ldflags-injected version and otherwise asks
// the module build info, so `go install` binaries still report
// something meaningful.
func buildVersion() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return version
}
