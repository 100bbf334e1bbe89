package validate

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhe.chen/manifest-compiler/internal/manifest"
)

func validManifest() *manifest.ProductionManifest {
	m := manifest.New()
	m.Metadata = manifest.Metadata{
		ManifestID:      "m-1",
		Title:           "Demo",
		Intent:          manifest.IntentVideo,
		DurationSeconds: 10,
		AspectRatio:     "16:9",
		Platform:        manifest.PlatformYouTube,
		Language:        "en",
		Profile:         "default",
		CinematicLevel:  manifest.CinematicBasic,
		EnforcementMode: manifest.EnforcementBalanced,
	}
	m.Scenes = []manifest.Scene{
		{ID: "scene_001", StartAtSec: 0, DurationSeconds: 4, Purpose: "hook", Narration: "Hi.",
			Visuals: []manifest.Visual{{AssetID: "a1"}},
			Effects: &manifest.SceneEffects{Layers: []manifest.EffectLayer{{Effect: "zoom_in", Order: 1}}, Transitions: []string{"fade"}}},
		{ID: "scene_002", StartAtSec: 4, DurationSeconds: 6, Purpose: "body",
			Visuals: []manifest.Visual{{AssetID: "a2"}}},
	}
	m.Assets = map[string]manifest.Asset{
		"a1": {ID: "a1", Kind: manifest.KindImage, Source: manifest.SourceGenerated, Status: manifest.StatusPending},
		"a2": {ID: "a2", Kind: manifest.KindImage, Source: manifest.SourceUser, Status: manifest.StatusReady},
	}
	m.Audio.TTS = &manifest.TTSConfig{Provider: "default"}
	m.Effects.Allowed = []string{"zoom_in", "fade", "ken_burns"}
	m.Consistency = manifest.ConsistencyRules{Profile: "default", EnforcementMode: manifest.EnforcementBalanced}
	return m
}

func withJobs(m *manifest.ProductionManifest) *manifest.ProductionManifest {
	m.Jobs = []manifest.Job{
		{ID: "tts_scene_001", Type: manifest.JobTTS, Payload: map[string]any{}, DependsOn: []string{}},
		{ID: "gen_a1", Type: manifest.JobImageGeneration, Payload: map[string]any{"resultAssetId": "a1"}, DependsOn: []string{}},
		{ID: "render_final", Type: manifest.JobRender, Payload: map[string]any{}, DependsOn: []string{"tts_scene_001", "gen_a1"}},
	}
	return m
}

func TestValidManifestPasses(t *testing.T) {
	v := New(DefaultOptions(), nil)

	ok, vs := v.Validate(validManifest(), ScopePlan)
	assert.True(t, ok, "%v", vs)

	ok, vs = v.Validate(withJobs(validManifest()), ScopeFinal)
	assert.True(t, ok, "%v", vs)
}

func TestBusinessRules(t *testing.T) {
	tests := []struct {
		name   string
		scope  Scope
		mutate func(m *manifest.ProductionManifest)
		rules  []string
	}{
		{
			name:   "duration mismatch",
			mutate: func(m *manifest.ProductionManifest) { m.Metadata.DurationSeconds = 12 },
			rules:  []string{"duration.sum"},
		},
		{
			name:   "within tolerance",
			mutate: func(m *manifest.ProductionManifest) { m.Metadata.DurationSeconds = 10.005 },
			rules:  nil,
		},
		{
			name: "overlap",
			mutate: func(m *manifest.ProductionManifest) {
				m.Scenes[1].StartAtSec = 3
				m.Metadata.DurationSeconds = 10
			},
			rules: []string{"scene.overlap"},
		},
		{
			name:   "past the end",
			mutate: func(m *manifest.ProductionManifest) { m.Scenes[1].StartAtSec = 5 },
			rules:  []string{"scene.bounds"},
		},
		{
			name:   "dangling asset",
			mutate: func(m *manifest.ProductionManifest) { m.Scenes[1].Visuals[0].AssetID = "ghost" },
			rules:  []string{"asset.reference"},
		},
		{
			name: "bad source",
			mutate: func(m *manifest.ProductionManifest) {
				a := m.Assets["a2"]
				a.Source = "stock"
				m.Assets["a2"] = a
			},
			rules: []string{"asset.source"},
		},
		{
			name:   "missing tts",
			mutate: func(m *manifest.ProductionManifest) { m.Audio.TTS = nil },
			rules:  []string{"audio.tts"},
		},
		{
			name:   "effect outside vocabulary",
			mutate: func(m *manifest.ProductionManifest) { m.Scenes[0].Effects.Transitions = []string{"wipe"} },
			rules:  []string{"effects.allowed"},
		},
		{
			name: "music cue out of range",
			mutate: func(m *manifest.ProductionManifest) {
				m.Audio.Music["cue_01"] = manifest.MusicCue{ID: "cue_01", StartSec: 11}
			},
			rules: []string{"music.start"},
		},
		{
			name:   "generated asset without job",
			scope:  ScopeFinal,
			mutate: func(m *manifest.ProductionManifest) { withJobs(m).Jobs[1].Payload = map[string]any{} },
			rules:  []string{"asset.job"},
		},
		{
			name:  "render missing dependency",
			scope: ScopeFinal,
			mutate: func(m *manifest.ProductionManifest) {
				withJobs(m).Jobs[2].DependsOn = []string{"gen_a1"}
			},
			rules: []string{"job.render_deps"},
		},
		{
			name:  "cycle",
			scope: ScopeFinal,
			mutate: func(m *manifest.ProductionManifest) {
				withJobs(m).Jobs[0].DependsOn = []string{"render_final"}
			},
			rules: []string{"job.cycle"},
		},
	}

	v := New(DefaultOptions(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validManifest()
			tt.mutate(m)
			got := Rules(Errors(v.Business(m, tt.scope)))
			if diff := cmp.Diff(tt.rules, got); diff != "" {
				t.Errorf("rules mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGeneratedAssetJobRuleIsOptional(t *testing.T) {
	m := withJobs(validManifest())
	m.Jobs[1].Payload = map[string]any{}

	strict := New(DefaultOptions(), nil)
	lenient := New(Options{RequireGeneratedAssetJobs: false}, nil)

	assert.Contains(t, Rules(strict.Business(m, ScopeFinal)), "asset.job")
	assert.NotContains(t, Rules(lenient.Business(m, ScopeFinal)), "asset.job")
}

func TestEnforcementModes(t *testing.T) {
	tests := []struct {
		mode string
		want []Severity
	}{
		{manifest.EnforcementStrict, []Severity{SeverityError, SeverityError}},
		{manifest.EnforcementBalanced, []Severity{SeverityWarning, SeverityWarning}},
		{manifest.EnforcementCreative, nil},
	}

	v := New(DefaultOptions(), nil)
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			m := validManifest()
			m.Effects.Allowed = append(m.Effects.Allowed, "glitch", "shake")
			m.Consistency.EnforcementMode = tt.mode
			m.Consistency.HardConstraints = manifest.HardConstraints{ForbiddenEffects: []string{"glitch"}, MaxEffectsPerScene: 1}
			m.Scenes[0].Effects.Layers = []manifest.EffectLayer{{Effect: "glitch", Order: 1}, {Effect: "zoom_in", Order: 2}}

			var got []Severity
			for _, vi := range v.Business(m, ScopePlan) {
				got = append(got, vi.Severity)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBusinessIsIdempotent(t *testing.T) {
	m := validManifest()
	m.Metadata.DurationSeconds = 30
	m.Scenes[1].Visuals[0].AssetID = "ghost"
	m.Audio.TTS = nil
	before, err := m.Clone()
	require.NoError(t, err)

	v := New(DefaultOptions(), nil)
	first := v.Business(m, ScopeFinal)
	second := v.Business(m, ScopeFinal)

	assert.Equal(t, first, second)
	assert.Empty(t, cmp.Diff(before, m), "validation must not mutate the manifest")
}

func TestSchemaJSON(t *testing.T) {
	good, err := json.Marshal(validManifest())
	require.NoError(t, err)
	ok, vs := SchemaJSON(good)
	require.True(t, ok, "%v", vs)

	tests := []struct {
		name string
		doc  string
		rule string
		path string
	}{
		{name: "not json", doc: `{`, rule: "schema.json", path: "$"},
		{name: "array root", doc: `[]`, rule: "schema.type", path: "$"},
		{name: "missing scenes", doc: `{"schemaVersion":"1","metadata":{}}`, rule: "schema.required", path: "scenes"},
		{name: "bad platform", doc: `{"metadata":{"platform":"myspace"}}`, rule: "schema.enum", path: "metadata.platform"},
		{name: "bad job type", doc: `{"jobs":[{"id":"x","type":"teleport","payload":{},"dependsOn":[]}]}`, rule: "schema.enum", path: "jobs[0].type"},
		{name: "bad source", doc: `{"assets":{"a":{"id":"a","kind":"image","source":"stock","status":"ready"}}}`, rule: "schema.enum", path: "assets.a.source"},
		{name: "string duration", doc: `{"metadata":{"durationSeconds":"30"}}`, rule: "schema.type", path: "metadata.durationSeconds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, vs := SchemaJSON([]byte(tt.doc))
			require.False(t, ok)
			found := false
			for _, v := range vs {
				if v.Rule == tt.rule && v.Path == tt.path {
					found = true
				}
			}
			assert.True(t, found, "want %s at %s, got %v", tt.rule, tt.path, vs)
		})
	}
}
