package effects

import (
	"strings"

	"go.uber.org/zap"

	"github.com/zhe.chen/manifest-compiler/internal/manifest"
)

const (
	basicIntensity = 0.5
	proIntensity   = 0.75
)

// Enricher assigns ordering hints and default effect stacks to scenes.
type Enricher struct {
	tables *Tables
	logger *zap.Logger
}

// NewEnricher creates an enricher over the given tables.
func NewEnricher(tables *Tables, logger *zap.Logger) *Enricher {
	if tables == nil {
		tables = DefaultTables()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{tables: tables, logger: logger}
}

// Enrich sets ordering hints on every scene and fills effects for scenes that
// have none. Explicit effects are never modified.
func (e *Enricher) Enrich(m *manifest.ProductionManifest) {
	var filled, kept, overridden int
	for i := range m.Scenes {
		scene := &m.Scenes[i]
		scene.OrderingHint = i + 1

		if scene.Effects != nil {
			kept++
			continue
		}
		if override, ok := m.Effects.Overrides[scene.ID]; ok {
			scene.Effects = override.Clone()
			overridden++
			continue
		}
		scene.Effects = e.Defaults(SceneContext{
			Index:       i,
			Purpose:     scene.Purpose,
			Platform:    m.Metadata.Platform,
			Level:       m.Metadata.CinematicLevel,
			Plan:        m.Effects,
			Constraints: m.Consistency.HardConstraints,
		})
		filled++
	}

	e.logger.Debug("effects enriched",
		zap.String("stage", "enrich"),
		zap.Int("filled", filled),
		zap.Int("explicit", kept),
		zap.Int("overrides", overridden))
}

// SceneContext is everything the default lookup depends on.
type SceneContext struct {
	Index       int
	Purpose     string
	Platform    manifest.Platform
	Level       string
	Plan        manifest.EffectsPlan
	Constraints manifest.HardConstraints
}

// Defaults computes the deterministic effect stack for one scene.
func (e *Enricher) Defaults(sc SceneContext) *manifest.SceneEffects {
	purpose := strings.ToLower(strings.TrimSpace(sc.Purpose))
	preset, ok := e.tables.Purposes[purpose]
	if !ok {
		preset = e.tables.Purposes[""]
		purpose = ""
	}
	prefs := e.tables.Platforms[sc.Platform]

	candidates := preset.Layers
	intensity := basicIntensity
	if sc.Level == manifest.CinematicPro {
		candidates = e.tables.ProCombos[purpose]
		intensity = proIntensity
	}
	candidates = append(append([]string(nil), candidates...), prefs.ExtraLayers[purpose]...)

	limit := sc.Constraints.MaxEffectsPerScene
	layers := make([]manifest.EffectLayer, 0, len(candidates))
	seen := map[string]bool{}
	for _, id := range candidates {
		if seen[id] || !e.usable(id, sc) {
			continue
		}
		if limit > 0 && len(layers) >= limit {
			break
		}
		seen[id] = true
		layers = append(layers, manifest.EffectLayer{
			Effect:    id,
			Order:     len(layers) + 1,
			Intensity: intensity,
		})
	}

	out := &manifest.SceneEffects{
		Layers:      layers,
		Transitions: []string{},
		ColorGrade:  preset.ColorGrade,
	}
	if prefs.ColorGrade != "" {
		out.ColorGrade = prefs.ColorGrade
	}
	if sc.Level == manifest.CinematicPro && purpose == manifest.PurposeHook && prefs.ColorGrade == "" {
		out.ColorGrade = "teal_orange"
	}
	if transition := e.transition(sc, prefs); transition != "" {
		out.Transitions = append(out.Transitions, transition)
	}
	return out
}

// transition picks rotation[index mod len], skipping entries the plan or
// profile does not allow.
func (e *Enricher) transition(sc SceneContext, prefs PlatformPrefs) string {
	rotation := prefs.Transitions
	if len(rotation) == 0 {
		rotation = e.tables.Rotation
	}
	for step := 0; step < len(rotation); step++ {
		candidate := rotation[(sc.Index+step)%len(rotation)]
		if e.usable(candidate, sc) {
			return candidate
		}
	}
	if sc.Plan.DefaultTransition != "" && e.usable(sc.Plan.DefaultTransition, sc) {
		return sc.Plan.DefaultTransition
	}
	return ""
}

func (e *Enricher) usable(id string, sc SceneContext) bool {
	if sc.Constraints.Forbids(id) {
		return false
	}
	if len(sc.Plan.Allowed) > 0 && !sc.Plan.IsAllowed(id) {
		return false
	}
	_, known := e.tables.Lookup(id)
	return known
}
