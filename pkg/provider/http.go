package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fleettune/fleettune/pkg/tune/types"
)

// API endpoint paths on the tuning backend.
const (
	pathTuningStatus = "/api/v1/tuning/status"
	pathTuningStop   = "/api/v1/tuning/stop"
	pathDevices      = "/api/v1/devices"
	pathPSUs         = "/api/v1/psus"
)

// maxErrorBodyBytes caps how much of an error response is read for the
// error message.
const maxErrorBodyBytes = 512

// HTTPProvider reads tuning and fleet state from the backend's JSON API.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider creates a provider against the given base URL.
// timeout bounds every request; zero uses a 5 second default.
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// TuningStatus returns the current run snapshot.
func (p *HTTPProvider) TuningStatus(ctx context.Context) (types.RunStatus, error) {
	var payload struct {
		Running             bool               `json:"running"`
		Mode                string             `json:"mode"`
		Phase               string             `json:"phase"`
		Device              string             `json:"device"`
		ReportedProgressPct float64            `json:"progress_pct"`
		ReportedCompleted   int                `json:"completed"`
		ReportedTotal       int                `json:"total"`
		Config              *types.SweepConfig `json:"config"`
	}

	if err := p.getJSON(ctx, pathTuningStatus, &payload); err != nil {
		return types.RunStatus{}, err
	}

	// Unknown mode strings degrade to benchmark rather than failing the
	// whole poll.
	mode, _ := types.ParseMode(payload.Mode)

	return types.RunStatus{
		Running:             payload.Running,
		Mode:                mode,
		Phase:               payload.Phase,
		Device:              payload.Device,
		ReportedProgressPct: payload.ReportedProgressPct,
		ReportedCompleted:   payload.ReportedCompleted,
		ReportedTotal:       payload.ReportedTotal,
		Config:              payload.Config,
	}, nil
}

// StopRun asks the backend to stop the active run. A conflict response
// ("nothing running") is success.
func (p *HTTPProvider) StopRun(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+pathTuningStop, nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent, http.StatusConflict:
		return nil
	default:
		return fmt.Errorf("stop run: %s", responseError(resp))
	}
}

// Devices returns the known fleet members.
func (p *HTTPProvider) Devices(ctx context.Context) ([]types.Device, error) {
	var devices []types.Device
	if err := p.getJSON(ctx, pathDevices, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// DeviceStatus returns one device's live telemetry.
func (p *HTTPProvider) DeviceStatus(ctx context.Context, name string) (types.Telemetry, error) {
	var tel types.Telemetry
	path := pathDevices + "/" + url.PathEscape(name) + "/status"
	if err := p.getJSON(ctx, path, &tel); err != nil {
		return types.Telemetry{}, err
	}
	return tel, nil
}

// PSUs returns the known power supply records.
func (p *HTTPProvider) PSUs(ctx context.Context) ([]types.PSU, error) {
	var psus []types.PSU
	if err := p.getJSON(ctx, pathPSUs, &psus); err != nil {
		return nil, err
	}
	return psus, nil
}

// getJSON performs a GET and decodes the JSON body into out.
func (p *HTTPProvider) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", path, responseError(resp))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// responseError summarizes a non-OK response for error messages.
func responseError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	text := strings.TrimSpace(string(body))
	if text == "" {
		return resp.Status
	}
	return fmt.Sprintf("%s: %s", resp.Status, text)
}
