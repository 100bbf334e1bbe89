package pipeline

import (
	"time"

	"github.com/zhe.chen/manifest-compiler/internal/assemble"
	"github.com/zhe.chen/manifest-compiler/internal/timeline"
	"github.com/zhe.chen/manifest-compiler/internal/validate"
	"github.com/zhe.chen/manifest-compiler/pkg/types"
)

// Options tune a Compiler.
type Options struct {
	Defaults             assemble.Defaults
	Validation           validate.Options
	MinNormalizedSeconds float64
	// MaxRepairRounds bounds the deterministic repair passes; zero disables them.
	MaxRepairRounds      int
	AdvisoryTimeout      time.Duration
	// AdvisoryRetries is the number of extra attempts after a failed or
	// timed-out advisory call.
	AdvisoryRetries      int
}

// DefaultOptions returns the built-in compiler options.
func DefaultOptions() Options {
	return Options{
		Defaults:             assemble.DefaultDefaults(),
		Validation:           validate.DefaultOptions(),
		MinNormalizedSeconds: timeline.DefaultMinDuration,
		MaxRepairRounds:      types.DefaultMaxRepairRounds,
		AdvisoryTimeout:      types.DefaultAdvisoryTimeout,
		AdvisoryRetries:      types.DefaultAdvisoryRetries,
	}
}

// OptionsFromConfig maps a defaulted compiler configuration to Options.
func OptionsFromConfig(cfg types.CompilerConfig) Options {
	d := cfg.Defaults
	opts := Options{
		Defaults: assemble.Defaults{
			Title:           d.Title,
			DurationSeconds: d.DurationSeconds,
			AspectRatio:     d.AspectRatio,
			Language:        d.Language,
			Profile:         d.Profile,
			CinematicLevel:  d.CinematicLevel,
			Priority:        d.Priority,
			MinSceneSeconds: cfg.MinSceneSeconds,
			FPS:             d.FPS,
			TTSProvider:     d.TTSProvider,
			TTSVoice:        d.TTSVoice,
			TTSFormat:       d.TTSFormat,
			MusicProvider:   d.MusicProvider,
		}.WithFallbacks(),
		Validation: validate.Options{
			Tolerance:                 cfg.Tolerance,
			RequireGeneratedAssetJobs: cfg.GeneratedAssetJobsRequired(),
		},
		MinNormalizedSeconds: cfg.MinNormalizedSeconds,
		MaxRepairRounds:      cfg.MaxRepairRounds,
		AdvisoryTimeout:      cfg.AdvisoryTimeout,
		AdvisoryRetries:      cfg.AdvisoryRetries,
	}
	return opts.withFallbacks()
}

func (o Options) withFallbacks() Options {
	base := DefaultOptions()
	o.Defaults = o.Defaults.WithFallbacks()
	if o.Validation.Tolerance <= 0 {
		o.Validation.Tolerance = base.Validation.Tolerance
	}
	if o.MinNormalizedSeconds <= 0 {
		o.MinNormalizedSeconds = base.MinNormalizedSeconds
	}
	if o.MaxRepairRounds < 0 {
		o.MaxRepairRounds = 0
	}
	if o.AdvisoryTimeout <= 0 {
		o.AdvisoryTimeout = base.AdvisoryTimeout
	}
	if o.AdvisoryRetries < 0 {
		o.AdvisoryRetries = 0
	}
	return o
}
