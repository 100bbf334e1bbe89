package effects

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhe.chen/manifest-compiler/internal/manifest"
)

func sceneManifest(platform manifest.Platform, level string, purposes ...string) *manifest.ProductionManifest {
	m := manifest.New()
	m.Metadata.Platform = platform
	m.Metadata.CinematicLevel = level
	m.Effects.Allowed = DefaultTables().EffectIDs()
	for i, p := range purposes {
		m.Scenes = append(m.Scenes, manifest.Scene{
			ID:              "scene_" + string(rune('a'+i)),
			DurationSeconds: 1,
			Purpose:         p,
		})
	}
	return m
}

func TestEnrichSetsOrderingHints(t *testing.T) {
	m := sceneManifest(manifest.PlatformYouTube, manifest.CinematicBasic, "hook", "body", "cta")
	NewEnricher(nil, nil).Enrich(m)

	for i, s := range m.Scenes {
		assert.Equal(t, i+1, s.OrderingHint)
		require.NotNil(t, s.Effects, s.ID)
	}
}

func TestEnrichKeepsExplicitEffects(t *testing.T) {
	m := sceneManifest(manifest.PlatformYouTube, manifest.CinematicBasic, "hook", "body")
	explicit := &manifest.SceneEffects{
		Layers:      []manifest.EffectLayer{{Effect: "glitch", Order: 1, Intensity: 0.2}},
		Transitions: []string{"cut"},
	}
	m.Scenes[0].Effects = explicit
	want := explicit.Clone()

	NewEnricher(nil, nil).Enrich(m)
	NewEnricher(nil, nil).Enrich(m)

	if diff := cmp.Diff(want, m.Scenes[0].Effects); diff != "" {
		t.Errorf("explicit effects changed (-want +got):\n%s", diff)
	}
}

func TestEnrichCopiesOverrides(t *testing.T) {
	m := sceneManifest(manifest.PlatformYouTube, manifest.CinematicBasic, "body")
	m.Effects.Overrides = map[string]manifest.SceneEffects{
		"scene_a": {Transitions: []string{"wipe"}},
	}
	NewEnricher(nil, nil).Enrich(m)

	assert.Equal(t, []string{"wipe"}, m.Scenes[0].Effects.Transitions)
	m.Scenes[0].Effects.Transitions[0] = "cut"
	assert.Equal(t, "wipe", m.Effects.Overrides["scene_a"].Transitions[0], "override must be copied, not aliased")
}

func TestTransitionRotation(t *testing.T) {
	m := sceneManifest(manifest.PlatformYouTube, manifest.CinematicBasic, "body", "body", "body", "body")
	NewEnricher(nil, nil).Enrich(m)

	var got []string
	for _, s := range m.Scenes {
		got = append(got, s.Effects.Transitions...)
	}
	assert.Equal(t, []string{"fade", "slide", "bokeh", "fade"}, got)
}

func TestDefaults(t *testing.T) {
	e := NewEnricher(nil, nil)
	allowed := DefaultTables().EffectIDs()
	corporate := DefaultTables().Profile("corporate").Constraints

	tests := []struct {
		name       string
		sc         SceneContext
		wantLayers []string
		wantGrade  string
		intensity  float64
	}{
		{
			name:       "basic hook",
			sc:         SceneContext{Purpose: "hook", Platform: manifest.PlatformYouTube, Level: manifest.CinematicBasic},
			wantLayers: []string{"zoom_in", "light_leak"},
			wantGrade:  "vibrant",
			intensity:  basicIntensity,
		},
		{
			name:       "pro hook",
			sc:         SceneContext{Purpose: "hook", Platform: manifest.PlatformYouTube, Level: manifest.CinematicPro},
			wantLayers: []string{"zoom_in", "light_leak", "film_grain"},
			wantGrade:  "teal_orange",
			intensity:  proIntensity,
		},
		{
			name:       "short form hook",
			sc:         SceneContext{Purpose: "hook", Platform: manifest.PlatformTikTok, Level: manifest.CinematicBasic},
			wantLayers: []string{"zoom_in", "light_leak", "text_pop"},
			wantGrade:  "punchy",
			intensity:  basicIntensity,
		},
		{
			name:       "corporate hook",
			sc:         SceneContext{Purpose: "hook", Platform: manifest.PlatformTikTok, Level: manifest.CinematicPro, Constraints: corporate},
			wantLayers: []string{"zoom_in", "film_grain"},
			wantGrade:  "punchy",
			intensity:  proIntensity,
		},
		{
			name:       "unknown purpose",
			sc:         SceneContext{Purpose: "montage", Level: manifest.CinematicBasic},
			wantLayers: []string{"ken_burns"},
			wantGrade:  "natural",
			intensity:  basicIntensity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.sc.Plan.Allowed = allowed
			got := e.Defaults(tt.sc)

			var ids []string
			for i, l := range got.Layers {
				ids = append(ids, l.Effect)
				assert.Equal(t, i+1, l.Order)
				assert.Equal(t, tt.intensity, l.Intensity)
			}
			assert.Equal(t, tt.wantLayers, ids)
			assert.Equal(t, tt.wantGrade, got.ColorGrade)
			for _, id := range got.EffectIDs() {
				assert.False(t, tt.sc.Constraints.Forbids(id), "%s is forbidden", id)
			}
		})
	}
}

func TestDefaultsRespectsAllowedVocabulary(t *testing.T) {
	e := NewEnricher(nil, nil)
	got := e.Defaults(SceneContext{
		Purpose:  "hook",
		Platform: manifest.PlatformYouTube,
		Plan:     manifest.EffectsPlan{Allowed: []string{"light_leak", "bokeh"}},
	})

	assert.Equal(t, []manifest.EffectLayer{{Effect: "light_leak", Order: 1, Intensity: basicIntensity}}, got.Layers)
	assert.Equal(t, []string{"bokeh"}, got.Transitions)
}

func TestMatchEffects(t *testing.T) {
	tables := DefaultTables()

	assert.Equal(t, []string{"ken_burns", "film_grain", "whip_pan"},
		tables.MatchEffects("Open with a whip-pan, then a slow Ken Burns move with grain"))
	assert.Equal(t, []string{"zoom_in"}, tables.MatchEffects("zoom_in"))
	assert.Empty(t, tables.MatchEffects("nothing special here"))
	assert.Empty(t, tables.MatchEffects(""))
}

func TestProfiles(t *testing.T) {
	tables := DefaultTables()

	assert.Equal(t, "default", tables.Profile("does-not-exist").Name)
	assert.Equal(t, "corporate", tables.Profile(" Corporate ").Name)

	allowed := tables.AllowedFor(tables.Profile("corporate").Constraints)
	assert.NotContains(t, allowed, "glitch")
	assert.Contains(t, allowed, "zoom_in")
	assert.Len(t, tables.AllowedFor(manifest.HardConstraints{}), len(tables.Effects))
}
