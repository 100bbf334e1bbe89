package validate

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/zhe.chen/manifest-compiler/internal/effects"
	"github.com/zhe.chen/manifest-compiler/internal/jobs"
	"github.com/zhe.chen/manifest-compiler/internal/manifest"
)

// DefaultTolerance is the allowed drift between summed scene durations and
// the target duration, in seconds.
const DefaultTolerance = 0.01

// Scope selects which business rules apply.
type Scope int

const (
	// ScopePlan checks a manifest before job decomposition.
	ScopePlan Scope = iota
	// ScopeFinal additionally checks the job DAG and the generated-asset job rule.
	ScopeFinal
)

// Options tune the business validator.
type Options struct {
	Tolerance float64
	// RequireGeneratedAssetJobs demands a job producing every pending
	// generated asset. Only checked in ScopeFinal.
	RequireGeneratedAssetJobs bool
}

// DefaultOptions returns the default validator options.
func DefaultOptions() Options {
	return Options{Tolerance: DefaultTolerance, RequireGeneratedAssetJobs: true}
}

// Validator runs the schema and business checks.
type Validator struct {
	opts   Options
	tables *effects.Tables
}

// New creates a validator. A nil tables value uses the built-in taxonomy.
func New(opts Options, tables *effects.Tables) *Validator {
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	if tables == nil {
		tables = effects.DefaultTables()
	}
	return &Validator{opts: opts, tables: tables}
}

// Options returns the effective options.
func (v *Validator) Options() Options {
	return v.opts
}

// Validate runs the schema check and, when it passes, the business rules.
func (v *Validator) Validate(m *manifest.ProductionManifest, scope Scope) (bool, []Violation) {
	ok, vs := Schema(m)
	if !ok {
		return false, vs
	}
	vs = v.Business(m, scope)
	return OK(vs), vs
}

// Business checks the cross-field rules the schema cannot express. The result
// is ordered deterministically and the manifest is not modified.
func (v *Validator) Business(m *manifest.ProductionManifest, scope Scope) []Violation {
	c := &collector{}
	v.checkTimeline(m, c)
	v.checkAssets(m, c)
	v.checkAudio(m, c)
	v.checkEffects(m, c)
	v.checkConstraints(m, c)
	if scope == ScopeFinal {
		v.checkJobs(m, c)
	}
	return c.vs
}

type collector struct {
	vs []Violation
}

func (c *collector) add(rule, path, format string, args ...any) {
	c.addSeverity(SeverityError, rule, path, format, args...)
}

func (c *collector) addSeverity(sev Severity, rule, path, format string, args ...any) {
	c.vs = append(c.vs, Violation{
		Kind:     KindBusiness,
		Rule:     rule,
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
		Severity: sev,
	})
}

func (v *Validator) checkTimeline(m *manifest.ProductionManifest, c *collector) {
	total := m.Metadata.DurationSeconds
	tol := v.opts.Tolerance

	if total <= 0 {
		c.add("duration.positive", "metadata.durationSeconds", "duration must be positive, got %.2f", total)
	}
	if len(m.Scenes) == 0 {
		c.add("scenes.present", "scenes", "manifest has no scenes")
		return
	}

	seen := map[string]bool{}
	for i, s := range m.Scenes {
		path := fmt.Sprintf("scenes[%d]", i)
		if s.ID == "" {
			c.add("scene.id", path+".id", "scene id is empty")
		} else if seen[s.ID] {
			c.add("scene.id", path+".id", "duplicate scene id %q", s.ID)
		}
		seen[s.ID] = true
		if s.StartAtSec < 0 {
			c.add("scene.start", path+".startAtSec", "start is unset or negative (%.2f)", s.StartAtSec)
		}
		if s.DurationSeconds <= 0 {
			c.add("scene.duration", path+".durationSeconds", "duration must be positive, got %.2f", s.DurationSeconds)
		}
	}

	if sum := m.TotalSceneDuration(); math.Abs(sum-total) > tol {
		c.add("duration.sum", "scenes", "scene durations sum to %.2f, expected %.2f", sum, total)
	}

	order := make([]int, len(m.Scenes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return m.Scenes[order[a]].StartAtSec < m.Scenes[order[b]].StartAtSec
	})
	for k, i := range order {
		s := m.Scenes[i]
		path := fmt.Sprintf("scenes[%d]", i)
		if k > 0 {
			prev := m.Scenes[order[k-1]]
			if s.StartAtSec < prev.EndSec()-tol {
				c.add("scene.overlap", path, "scene %q overlaps %q", s.ID, prev.ID)
			}
		}
		if s.EndSec() > total+tol {
			c.add("scene.bounds", path, "scene %q ends at %.2f past duration %.2f", s.ID, s.EndSec(), total)
		}
	}
}

func (v *Validator) checkAssets(m *manifest.ProductionManifest, c *collector) {
	for i, s := range m.Scenes {
		for j, visual := range s.Visuals {
			if _, ok := m.Assets[visual.AssetID]; !ok {
				c.add("asset.reference", fmt.Sprintf("scenes[%d].visuals[%d].assetId", i, j),
					"asset %q does not exist", visual.AssetID)
			}
		}
	}
	for _, id := range m.SortedAssetIDs() {
		a := m.Assets[id]
		path := "assets." + id
		if a.ID != id {
			c.add("asset.id", path+".id", "asset id %q does not match key %q", a.ID, id)
		}
		if a.Source != manifest.SourceUser && a.Source != manifest.SourceGenerated {
			c.add("asset.source", path+".source", "source %q is not user or generated", a.Source)
		}
	}
}

func (v *Validator) checkAudio(m *manifest.ProductionManifest, c *collector) {
	if m.Audio.TTS == nil || m.Audio.TTS.Provider == "" {
		c.add("audio.tts", "audio.tts", "a TTS provider configuration is required")
	}

	total := m.Metadata.DurationSeconds
	for _, id := range m.SortedCueIDs() {
		cue := m.Audio.Music[id]
		if cue.StartSec < 0 || cue.StartSec > total+v.opts.Tolerance {
			c.add("music.start", "audio.music."+id+".startSec", "cue starts at %.2f outside [0, %.2f]", cue.StartSec, total)
		}
	}

	scenes := map[string]bool{}
	for _, s := range m.Scenes {
		scenes[s.ID] = true
	}
	for i, sfx := range m.Audio.SoundEffects {
		path := fmt.Sprintf("audio.soundEffects[%d]", i)
		if !scenes[sfx.SceneID] {
			c.add("sfx.scene", path+".sceneId", "scene %q does not exist", sfx.SceneID)
		}
		if sfx.AtSec < 0 {
			c.add("sfx.offset", path+".atSec", "offset must not be negative")
		}
	}
}

func (v *Validator) checkEffects(m *manifest.ProductionManifest, c *collector) {
	for i, s := range m.Scenes {
		for _, id := range s.Effects.EffectIDs() {
			path := fmt.Sprintf("scenes[%d].effects", i)
			if _, known := v.tables.Lookup(id); !known {
				c.add("effects.known", path, "effect %q is not in the taxonomy", id)
				continue
			}
			if len(m.Effects.Allowed) > 0 && !m.Effects.IsAllowed(id) {
				c.add("effects.allowed", path, "effect %q is not in the allowed vocabulary", id)
			}
		}
	}
}

// checkConstraints applies profile hard constraints according to the
// enforcement mode: strict is an error, balanced a warning, creative skips.
func (v *Validator) checkConstraints(m *manifest.ProductionManifest, c *collector) {
	var sev Severity
	switch m.Consistency.EnforcementMode {
	case manifest.EnforcementStrict:
		sev = SeverityError
	case manifest.EnforcementBalanced:
		sev = SeverityWarning
	default:
		return
	}
	hc := m.Consistency.HardConstraints
	for i, s := range m.Scenes {
		path := fmt.Sprintf("scenes[%d].effects", i)
		for _, id := range s.Effects.EffectIDs() {
			if hc.Forbids(id) {
				c.addSeverity(sev, "constraints.forbidden", path, "effect %q is forbidden by profile %q", id, m.Consistency.Profile)
			}
		}
		if s.Effects != nil && hc.MaxEffectsPerScene > 0 && len(s.Effects.Layers) > hc.MaxEffectsPerScene {
			c.addSeverity(sev, "constraints.max_effects", path, "%d layers exceed the profile limit of %d",
				len(s.Effects.Layers), hc.MaxEffectsPerScene)
		}
	}
}

func (v *Validator) checkJobs(m *manifest.ProductionManifest, c *collector) {
	if len(m.Jobs) == 0 {
		c.add("job.render", "jobs", "job list is empty")
	} else {
		if _, err := jobs.Waves(m.Jobs); err != nil {
			rule := "job.graph"
			switch {
			case errors.Is(err, jobs.ErrCycle):
				rule = "job.cycle"
			case errors.Is(err, jobs.ErrUnknownDependency):
				rule = "job.dependency"
			case errors.Is(err, jobs.ErrDuplicateID):
				rule = "job.id"
			}
			c.add(rule, "jobs", "%v", err)
		}
		v.checkRender(m, c)
	}

	if !v.opts.RequireGeneratedAssetJobs {
		return
	}
	produced := map[string]bool{}
	for _, job := range m.Jobs {
		if id := job.ResultAssetID(); id != "" {
			produced[id] = true
		}
	}
	for _, id := range m.SortedAssetIDs() {
		a := m.Assets[id]
		if a.Source == manifest.SourceGenerated && a.Status == manifest.StatusPending && !produced[id] {
			c.add("asset.job", "assets."+id, "generated asset %q has no job producing it", id)
		}
	}
}

func (v *Validator) checkRender(m *manifest.ProductionManifest, c *collector) {
	var renders []int
	for i, job := range m.Jobs {
		if job.Type == manifest.JobRender {
			renders = append(renders, i)
		}
	}
	if len(renders) != 1 {
		c.add("job.render", "jobs", "expected exactly one render job, found %d", len(renders))
		return
	}
	render := m.Jobs[renders[0]]
	deps := map[string]bool{}
	for _, d := range render.DependsOn {
		deps[d] = true
	}
	for _, job := range m.Jobs {
		if job.ID != render.ID && !deps[job.ID] {
			c.add("job.render_deps", fmt.Sprintf("jobs[%d].dependsOn", renders[0]),
				"render job does not depend on %q", job.ID)
		}
	}
}
