package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleettune/fleettune/pkg/client"
	"github.com/fleettune/fleettune/pkg/daemon/broadcaster"
	"github.com/fleettune/fleettune/pkg/provider"
	"github.com/fleettune/fleettune/pkg/tune/power"
	"github.com/fleettune/fleettune/pkg/tune/types"

	"github.com/fleettune/fleettune/cmd/fleettune/tui"
)

// runWatch launches the interactive monitor. With --json it degrades to a
// one-shot snapshot, for scripting.
func runWatch(cmd *cobra.Command, args []string) error {
	if getJSON() {
		return runStatus(cmd, args)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	// Console logging stays off: the TUI owns the screen.
	bootstrapLogging(cfg, false)

	ctx := cmd.Context()
	prov := provider.NewHTTPProvider(cfg.BackendURL, cfg.RequestTimeout)

	if daemonAvailable(cfg) {
		c := client.New(daemonAddr(cfg))

		streamCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		msgs, err := c.Stream(streamCtx)
		if err == nil {
			printVerbose("following fleettuned at %s", daemonAddr(cfg))
			initial, _ := c.Status(ctx)
			return tui.Run(tui.Options{
				Initial: initial,
				Feed:    msgs,
				Alerts:  daemonAlerts{c: c},
				StopRun: prov.StopRun,
			})
		}
		printVerbose("daemon stream failed, polling backend directly: %v", err)
	}

	bc := broadcaster.New()
	defer bc.Close()

	p, cleanup := newLocalPoller(cfg, bc)
	defer cleanup()

	sub := bc.Subscribe()
	defer bc.Unsubscribe(sub.ID)

	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go p.Run(pollCtx)

	return tui.Run(tui.Options{
		Initial: p.Latest(),
		Feed:    sub.Messages,
		Alerts:  localAlerts{a: p.Alerter()},
		StopRun: prov.StopRun,
	})
}

// localAlerts adapts an in-process alerter to the TUI's alert service.
type localAlerts struct {
	a *power.Alerter
}

func (l localAlerts) Next() (types.WarningEvent, bool) { return l.a.Next() }

func (l localAlerts) Dismiss() error {
	l.a.Dismiss()
	return nil
}

func (l localAlerts) DismissForever() error { return l.a.DismissForever() }

// daemonAlerts drives the warning lifecycle through a running fleettuned.
type daemonAlerts struct {
	c *client.Client
}

func (d daemonAlerts) Next() (types.WarningEvent, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ev, ok, err := d.c.NextWarning(ctx)
	if err != nil {
		return types.WarningEvent{}, false
	}
	return ev, ok
}

func (d daemonAlerts) Dismiss() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.c.DismissWarning(ctx, false)
}

func (d daemonAlerts) DismissForever() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.c.DismissWarning(ctx, true)
}
