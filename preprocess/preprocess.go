// CLAUDE:SUMMARY Preset-driven image preprocessing pipeline (grayscale, resize, denoise, normalize, sharpen, deskew, threshold) with per-step timings.
// Package preprocess prepares raster images for text recognition.
//
// A Pipeline runs the fixed step sequence of its Preset over a raster.Buffer
// and reports how long each step took. Steps are pure functions and a
// Pipeline holds no mutable state, so one Pipeline may serve many
// goroutines.
//
// Usage:
//
//	pipe := preprocess.New(preprocess.PresetDefault)
//	res, err := pipe.Process(buf)
//	fmt.Println(res.TotalTimeMs, len(res.Steps))
package preprocess

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/docsight/raster"
)

// Preset selects a step sequence. Presets are ordered by processing cost.
type Preset int

const (
	PresetNone Preset = iota
	PresetMinimal
	PresetDefault
	PresetAggressive
)

var presetNames = [...]string{"none", "minimal", "default", "aggressive"}

func (p Preset) String() string {
	if p < PresetNone || p > PresetAggressive {
		return fmt.Sprintf("preset(%d)", int(p))
	}
	return presetNames[p]
}

// MarshalText encodes the preset name, so presets read naturally in JSON
// and YAML.
func (p Preset) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText accepts any name ParsePreset accepts.
func (p *Preset) UnmarshalText(b []byte) error {
	v, err := ParsePreset(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParsePreset parses a preset name case-insensitively.
func ParsePreset(s string) (Preset, error) {
	for i, n := range presetNames {
		if strings.EqualFold(strings.TrimSpace(s), n) {
			return Preset(i), nil
		}
	}
	return PresetDefault, fmt.Errorf("preprocess: unknown preset %q (want none, minimal, default or aggressive)", s)
}

// Presets lists every preset in cost order.
func Presets() []Preset {
	return []Preset{PresetNone, PresetMinimal, PresetDefault, PresetAggressive}
}

type namedStep struct {
	name string
	fn   StepFunc
}

var sequences = map[Preset][]namedStep{
	PresetNone:    nil,
	PresetMinimal: {{StepGrayscale, Grayscale}},
	PresetDefault: {
		{StepGrayscale, Grayscale},
		{StepResize, Resize},
		{StepNormalize, Normalize},
		{StepSharpen, Sharpen},
	},
	PresetAggressive: {
		{StepGrayscale, Grayscale},
		{StepResize, Resize},
		{StepDenoise, Denoise},
		{StepNormalize, Normalize},
		{StepSharpen, Sharpen},
		{StepDeskew, Deskew},
		{StepThreshold, Threshold},
	},
}

// Steps returns the ordered step names of a preset.
func (p Preset) Steps() []string {
	seq := sequences[p]
	names := make([]string, len(seq))
	for i, s := range seq {
		names[i] = s.name
	}
	return names
}

// StepTiming records one executed step.
type StepTiming struct {
	Name string `json:"name"`
	Ms   int64  `json:"time_ms"`
}

// Result is the output of one Process call.
type Result struct {
	Image       *raster.Buffer `json:"-"`
	Preset      string         `json:"preset"`
	TotalTimeMs int64          `json:"total_time_ms"`
	Steps       []StepTiming   `json:"steps"`
}

// Observer receives the duration of every executed step.
type Observer func(step string, d time.Duration)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for per-step debug output.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithObserver registers a callback invoked after each step.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// Pipeline runs the steps of one preset.
type Pipeline struct {
	preset   Preset
	steps    []namedStep
	logger   *slog.Logger
	observer Observer
}

// New creates a Pipeline for preset. Unknown presets behave like PresetNone.
func New(preset Preset, opts ...Option) *Pipeline {
	p := &Pipeline{
		preset: preset,
		steps:  sequences[preset],
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Preset returns the pipeline's preset.
func (p *Pipeline) Preset() Preset { return p.preset }

// Process runs every step in order. The first failing step aborts the run
// and no image is returned.
func (p *Pipeline) Process(img *raster.Buffer) (*Result, error) {
	if err := img.Validate(); err != nil {
		return nil, &Error{Kind: DecodeFailure, Err: err}
	}
	res := &Result{
		Preset: p.preset.String(),
		Steps:  make([]StepTiming, 0, len(p.steps)),
	}
	if len(p.steps) == 0 {
		res.Image = img
		return res, nil
	}

	start := time.Now()
	cur := img
	for _, s := range p.steps {
		t0 := time.Now()
		next, err := s.fn(cur)
		if err != nil {
			return nil, &Error{Kind: StepFailure, Step: s.name, Err: err}
		}
		d := time.Since(t0)
		res.Steps = append(res.Steps, StepTiming{Name: s.name, Ms: d.Milliseconds()})
		p.logger.Debug("preprocess step", "step", s.name, "ms", d.Milliseconds(), "preset", res.Preset)
		if p.observer != nil {
			p.observer(s.name, d)
		}
		cur = next
	}
	res.Image = cur
	res.TotalTimeMs = time.Since(start).Milliseconds()
	return res, nil
}

// ProcessBytes decodes an encoded raster and processes it.
func (p *Pipeline) ProcessBytes(data []byte) (*Result, error) {
	img, _, err := raster.Decode(data)
	if err != nil {
		return nil, &Error{Kind: DecodeFailure, Err: err}
	}
	return p.Process(img)
}
