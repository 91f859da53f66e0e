// Package provider defines the external data sources the monitor polls:
// the tuning backend's status feed and the fleet's device/PSU endpoints.
// The core consumes these interfaces only; the HTTP implementation lives
// alongside for the common case of a local tuning backend.
package provider

import (
	"context"
	"errors"

	"github.com/fleettune/fleettune/pkg/tune/types"
)

// ErrUnavailable indicates a provider-wide failure (the endpoint itself is
// unreachable), as opposed to a single device failing its status read.
// Provider-wide failures surface to the caller; per-device failures degrade
// to offline devices.
var ErrUnavailable = errors.New("provider unavailable")

// StatusProvider is the tuning backend's status and control surface.
type StatusProvider interface {
	// TuningStatus returns the current run snapshot.
	TuningStatus(ctx context.Context) (types.RunStatus, error)

	// StopRun asks the backend to stop the active run. It is idempotent:
	// stopping when nothing is running is success, not an error.
	StopRun(ctx context.Context) error
}

// FleetProvider is the fleet's device and power supply surface.
type FleetProvider interface {
	// Devices returns the known fleet members.
	Devices(ctx context.Context) ([]types.Device, error)

	// DeviceStatus returns one device's live telemetry. A failure here
	// concerns that device only.
	DeviceStatus(ctx context.Context, name string) (types.Telemetry, error)

	// PSUs returns the known power supply records.
	PSUs(ctx context.Context) ([]types.PSU, error)
}

// Provider is the full external surface the poller needs.
type Provider interface {
	StatusProvider
	FleetProvider
}
