// Package badge turns environmental metrics into traffic-light badge colours.
package badge

import (
	"math"

	"github.com/jamesruggles/carbonara/internal/fieldpath"
)

type Color string

const (
	Green  Color = "green"
	Yellow Color = "yellow"
	Orange Color = "orange"
	Red    Color = "red"
	None   Color = "none"
)

// Rank orders colours by severity; None ranks lowest.
func (c Color) Rank() int {
	switch c {
	case Green:
		return 1
	case Yellow:
		return 2
	case Orange:
		return 3
	case Red:
		return 4
	default:
		return 0
	}
}

// Mark returns the emoji for c, or "" for None.
func (c Color) Mark() string {
	switch c {
	case Green:
		return "🟢"
	case Yellow:
		return "🟡"
	case Orange:
		return "🟠"
	case Red:
		return "🔴"
	default:
		return ""
	}
}

func (c Color) escalate() Color {
	switch c {
	case Yellow:
		return Orange
	case Orange, Red:
		return Red
	default:
		return c
	}
}

// Metric names.
const (
	CarbonIntensity = "carbonIntensity"
	CO2Emissions    = "co2Emissions"
	Energy          = "energy"
	DataTransfer    = "dataTransfer"
	LoadTime        = "loadTime"
)

// relativeFactor is how far above the sibling average a value must be
// before its colour is escalated.
const relativeFactor = 1.5

// Band is an optional lower and upper bound.
type Band struct {
	Min *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty" json:"max,omitempty"`
}

type Thresholds struct {
	Green  *Band `yaml:"green,omitempty" json:"green,omitempty"`
	Yellow *Band `yaml:"yellow,omitempty" json:"yellow,omitempty"`
	Orange *Band `yaml:"orange,omitempty" json:"orange,omitempty"`
	Red    *Band `yaml:"red,omitempty" json:"red,omitempty"`
}

func f(v float64) *float64 { return &v }

func ladder(green, orange, red float64) Thresholds {
	return Thresholds{
		Green:  &Band{Max: f(green)},
		Yellow: &Band{Min: f(green), Max: f(orange)},
		Orange: &Band{Min: f(orange), Max: f(red)},
		Red:    &Band{Min: f(red)},
	}
}

// DefaultThresholds returns a fresh copy of the built-in bands.
func DefaultThresholds() map[string]Thresholds {
	return map[string]Thresholds{
		CarbonIntensity: ladder(100, 300, 500),
		CO2Emissions:    ladder(0.1, 0.5, 1.0),
		Energy:          ladder(0.0001, 0.0005, 0.001),
		DataTransfer:    ladder(100, 500, 2000),
		LoadTime:        ladder(1000, 3000, 5000),
	}
}

// Service evaluates metrics against a fixed threshold table.
type Service struct {
	thresholds map[string]Thresholds
}

// NewService returns a Service over the default thresholds with any
// per-metric overrides applied.
func NewService(overrides map[string]Thresholds) *Service {
	t := DefaultThresholds()
	for metric, th := range overrides {
		t[metric] = th
	}
	return &Service{thresholds: t}
}

// Color evaluates red, orange, yellow, green in that order. NaN and
// unknown metrics give None; a value no band claims is Green.
func (s *Service) Color(metric string, value float64) Color {
	th, ok := s.thresholds[metric]
	if !ok || math.IsNaN(value) {
		return None
	}
	if b := th.Red; b != nil && ((b.Min != nil && value >= *b.Min) || (b.Max != nil && value > *b.Max)) {
		return Red
	}
	if inHalfOpen(th.Orange, value) {
		return Orange
	}
	if inHalfOpen(th.Yellow, value) {
		return Yellow
	}
	// Values inside the green band and values no band claims are both green.
	return Green
}

func inHalfOpen(b *Band, v float64) bool {
	if b == nil || (b.Min == nil && b.Max == nil) {
		return false
	}
	if b.Min != nil && v < *b.Min {
		return false
	}
	if b.Max != nil && v >= *b.Max {
		return false
	}
	return true
}

// ColorOf accepts any decoded value; nil and non-numeric values give None.
func (s *Service) ColorOf(metric string, v any) Color {
	n, ok := fieldpath.ToFloat(v)
	if !ok {
		return None
	}
	return s.Color(metric, n)
}

// RelativeColor escalates a non-green colour by one step when value is
// strictly above 1.5x the sibling average. A nil average never escalates.
func (s *Service) RelativeColor(metric string, value float64, average *float64) Color {
	c := s.Color(metric, value)
	if c == Green || c == None || average == nil {
		return c
	}
	if value > relativeFactor * *average {
		return c.escalate()
	}
	return c
}

// Average is the arithmetic mean of values, ignoring NaN. It returns nil
// when nothing is left to average.
func Average(values []float64) *float64 {
	var sum float64
	var n int
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}
