package power

import (
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/fleettune/fleettune/pkg/tune/types"
)

// Metrics is the usable electrical view of a PSU, derived from whatever the
// record and its assigned devices can tell us. Zero Voltage/Amperage means
// unknown; Hint, when set, is a suggestion from the model table and is never
// silently adopted as a real value.
type Metrics struct {
	Wattage  float64
	Voltage  float64
	Amperage float64
	Hint     string
}

// ModelSpec is a typical electrical spec for a device model, used only to
// hint at likely PSU values when the record carries none.
type ModelSpec struct {
	Volts float64 `yaml:"volts"`
	Amps  float64 `yaml:"amps"`
	Note  string  `yaml:"note"`
}

// modelSpecs maps lower-cased model identifiers to typical PSU specs.
// Overridable from a YAML file via LoadModelSpecs, which may run
// concurrently with metric derivation, so all access goes through
// modelSpecsMu.
var (
	modelSpecsMu sync.RWMutex
	modelSpecs   = builtinModelSpecs()
)

func builtinModelSpecs() map[string]ModelSpec {
	return map[string]ModelSpec{
		"s9":     {Volts: 12.0, Amps: 115, Note: "APW3++ class supply"},
		"s17":    {Volts: 14.5, Amps: 190, Note: "APW9 class supply"},
		"s19":    {Volts: 15.0, Amps: 224, Note: "APW12 class supply"},
		"s19pro": {Volts: 15.0, Amps: 240, Note: "APW12 class supply"},
		"s21":    {Volts: 15.5, Amps: 230, Note: "APW17 class supply"},
		"m30s":   {Volts: 12.0, Amps: 285, Note: "P21 class supply"},
	}
}

// LoadModelSpecs merges model spec overrides from a YAML file into the
// built-in table, replacing the table as a whole. Missing file is not an
// error; the built-ins stand. Safe to call while DeriveMetrics runs.
func LoadModelSpecs(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading model specs: %w", err)
	}

	var overrides map[string]ModelSpec
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("parsing model specs: %w", err)
	}

	merged := builtinModelSpecs()
	for model, spec := range overrides {
		merged[strings.ToLower(model)] = spec
	}

	modelSpecsMu.Lock()
	modelSpecs = merged
	modelSpecsMu.Unlock()
	return nil
}

// lookupModelSpec reads the table under the shared lock.
func lookupModelSpec(model string) (ModelSpec, bool) {
	modelSpecsMu.RLock()
	defer modelSpecsMu.RUnlock()
	spec, ok := modelSpecs[strings.ToLower(strings.TrimSpace(model))]
	return spec, ok
}

// DeriveMetrics computes a usable wattage for psu even when the user
// entered nothing, falling through declared wattage, volts*amps, and the
// sum of assigned device draw, in that order. When one of voltage/amperage
// is missing but the other and the wattage are known, the missing one is
// derived by division. When both are unknown, the first assigned device's
// model is looked up in the spec table and presented as a hint only.
func DeriveMetrics(psu types.PSU, assigned []types.Device) Metrics {
	m := Metrics{Voltage: psu.Voltage, Amperage: psu.Amperage}

	switch {
	case psu.Wattage > 0:
		m.Wattage = psu.Wattage
	case m.Voltage > 0 && m.Amperage > 0:
		m.Wattage = round1(m.Voltage * m.Amperage)
	default:
		m.Wattage = sumPower(assigned)
	}

	if m.Wattage > 0 {
		if m.Voltage <= 0 && m.Amperage > 0 {
			m.Voltage = round1(m.Wattage / m.Amperage)
		} else if m.Amperage <= 0 && m.Voltage > 0 {
			m.Amperage = round1(m.Wattage / m.Voltage)
		}
	}

	if m.Voltage <= 0 && m.Amperage <= 0 {
		m.Hint = modelHint(assigned)
	}

	return m
}

// sumPower totals the reported draw of the assigned devices.
func sumPower(devices []types.Device) float64 {
	var total float64
	for _, d := range devices {
		if d.Power > 0 {
			total += d.Power
		}
	}
	return total
}

// modelHint returns a spec suggestion for the first assigned device whose
// model appears in the table, or empty.
func modelHint(devices []types.Device) string {
	for _, d := range devices {
		spec, ok := lookupModelSpec(d.Model)
		if !ok {
			continue
		}
		return fmt.Sprintf("%s units typically run %.1fV @ %.0fA (%s)",
			strings.ToUpper(d.Model), spec.Volts, spec.Amps, spec.Note)
	}
	return ""
}

// LoadPercent returns the summed device draw as a percentage of capacity,
// or 0 when the capacity is unknown.
func LoadPercent(wattage float64, assigned []types.Device) float64 {
	if wattage <= 0 {
		return 0
	}
	return sumPower(assigned) / wattage * 100
}

// round1 rounds to one decimal place.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
