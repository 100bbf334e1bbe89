package repair

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhe.chen/manifest-compiler/internal/assemble"
	"github.com/zhe.chen/manifest-compiler/internal/jobs"
	"github.com/zhe.chen/manifest-compiler/internal/manifest"
	"github.com/zhe.chen/manifest-compiler/internal/validate"
)

func newRepairer() *Repairer {
	return New(nil, assemble.DefaultDefaults(), nil)
}

func brokenManifest() *manifest.ProductionManifest {
	return &manifest.ProductionManifest{
		Metadata: manifest.Metadata{Profile: "corporate"},
		Scenes: []manifest.Scene{
			{
				StartAtSec: manifest.UnsetStart,
				Visuals:    []manifest.Visual{{AssetID: "ghost"}},
				Effects: &manifest.SceneEffects{
					Layers:      []manifest.EffectLayer{{Effect: "glitch", Order: 1}, {Effect: "zoom_in", Order: 2}, {Effect: "sparkles", Order: 3}},
					Transitions: []string{"fade"},
				},
			},
			{ID: "x", StartAtSec: 7, DurationSeconds: 10, Purpose: "cta"},
		},
		Audio: manifest.AudioPlan{
			Music:        map[string]manifest.MusicCue{"c": {StartSec: 100}},
			SoundEffects: []manifest.SoundEffect{{ID: "s1", SceneID: "nowhere"}},
		},
		Jobs: []manifest.Job{{ID: "stale", Type: manifest.JobRender}},
	}
}

func TestRepairMakesManifestValid(t *testing.T) {
	m := brokenManifest()
	v := validate.New(validate.DefaultOptions(), nil)

	ok, _ := v.Validate(m, validate.ScopePlan)
	require.False(t, ok)

	fixes := newRepairer().Repair(m)
	assert.NotEmpty(t, fixes)

	ok, vs := v.Validate(m, validate.ScopePlan)
	require.True(t, ok, "%v", vs)

	assert.Equal(t, 60.0, m.Metadata.DurationSeconds)
	assert.Equal(t, manifest.EnforcementStrict, m.Metadata.EnforcementMode)
	assert.Equal(t, "scene_001", m.Scenes[0].ID)
	assert.Equal(t, []float64{30, 30}, []float64{m.Scenes[0].DurationSeconds, m.Scenes[1].DurationSeconds})
	assert.Equal(t, []float64{0, 30}, []float64{m.Scenes[0].StartAtSec, m.Scenes[1].StartAtSec})
	assert.Contains(t, m.Assets, "ghost")
	assert.Equal(t, []manifest.EffectLayer{{Effect: "zoom_in", Order: 1}}, m.Scenes[0].Effects.Layers)
	assert.Empty(t, m.Audio.SoundEffects)
	assert.Equal(t, manifest.CueBuild, m.Audio.Music["c"].Role)
	assert.Empty(t, m.Jobs)
	require.NotNil(t, m.Audio.TTS)

	m.Jobs = jobs.NewDecomposer(nil).Decompose(m)
	ok, vs = v.Validate(m, validate.ScopeFinal)
	assert.True(t, ok, "%v", vs)
}

func TestRepairIsStableOnValidManifest(t *testing.T) {
	r := newRepairer()
	m := brokenManifest()
	r.Repair(m)

	before, err := m.Clone()
	require.NoError(t, err)
	fixes := r.Repair(m)

	assert.Empty(t, fixes)
	if diff := cmp.Diff(before, m, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("second repair changed the manifest (-before +after):\n%s", diff)
	}
}

func TestDecodeManifest(t *testing.T) {
	raw := []byte(`{
		"metadata": {"title": "T", "durationSeconds": "12s", "priority": "high"},
		"scenes": [{"id": "a", "durationSeconds": 5, "purpose": "hook", "visuals": []}],
		"jobs": null
	}`)

	m, fixes, err := DecodeManifest(raw)
	require.NoError(t, err)
	assert.Contains(t, fixes, "created missing assets")
	assert.Contains(t, fixes, "created missing jobs")
	assert.Contains(t, fixes, "coerced metadata.durationSeconds")
	assert.Contains(t, fixes, "coerced metadata.priority")
	assert.Equal(t, 12.0, m.Metadata.DurationSeconds)
	assert.Equal(t, 0, m.Metadata.Priority)
	assert.Equal(t, manifest.SchemaVersion, m.SchemaVersion)
	require.Len(t, m.Scenes, 1)
	assert.Equal(t, manifest.UnsetStart, m.Scenes[0].StartAtSec)

	newRepairer().Repair(m)
	ok, vs := validate.New(validate.DefaultOptions(), nil).Validate(m, validate.ScopePlan)
	require.True(t, ok, "%v", vs)
	assert.Equal(t, 12.0, m.Scenes[0].DurationSeconds)
	assert.Equal(t, 0.0, m.Scenes[0].StartAtSec)
}

func TestDecodeManifestRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{`[]`, `"text"`, `{broken`, ``} {
		_, _, err := DecodeManifest([]byte(raw))
		assert.ErrorIs(t, err, ErrNotObject, raw)
	}
}

func TestIsCandidate(t *testing.T) {
	tests := map[string]bool{
		`{"scenes": []}`:        true,
		`{"scenes": [{"id":1}]}`: true,
		`{"scenes": {}}`:        false,
		`{"metadata": {}}`:      false,
		`[{"scenes": []}]`:      false,
		`not json`:              false,
	}
	for raw, want := range tests {
		assert.Equal(t, want, IsCandidate([]byte(raw)), raw)
	}
}

func TestFallbackIsValidForEveryProfile(t *testing.T) {
	r := newRepairer()
	a := assemble.New(nil, assemble.DefaultDefaults(), nil)
	v := validate.New(validate.DefaultOptions(), nil)

	for _, profile := range []string{"default", "corporate", "cinematic", "playful", "minimal"} {
		t.Run(profile, func(t *testing.T) {
			meta := a.ResolveMetadata("", nil, nil, assemble.Overrides{Profile: profile})
			m := r.Fallback(meta)

			ok, vs := v.Validate(m, validate.ScopePlan)
			require.True(t, ok, "%v", vs)

			m.Jobs = jobs.NewDecomposer(nil).Decompose(m)
			ok, vs = v.Validate(m, validate.ScopeFinal)
			require.True(t, ok, "%v", vs)

			var ids []string
			for _, j := range m.Jobs {
				ids = append(ids, j.ID)
			}
			assert.Equal(t, []string{"tts_scene_001", "gen_asset_scene_001", jobs.RenderJobID}, ids)
			assert.Equal(t, manifest.JobImageGeneration, m.Jobs[1].Type)
		})
	}
}

func TestFallbackFromEmptyMetadata(t *testing.T) {
	m := newRepairer().Fallback(manifest.Metadata{})

	require.Len(t, m.Scenes, 1)
	s := m.Scenes[0]
	assert.Equal(t, 0.0, s.StartAtSec)
	assert.Equal(t, 60.0, s.DurationSeconds)
	assert.Equal(t, "Stay tuned for more.", s.Narration)
	assert.Empty(t, m.Audio.Music)
	assert.NotEmpty(t, m.Metadata.ManifestID)
}

func TestFallbackNarratesCustomTitle(t *testing.T) {
	m := newRepairer().Fallback(manifest.Metadata{Title: "Quarterly results", DurationSeconds: 15})
	assert.Equal(t, "Quarterly results", m.Scenes[0].Narration)
	assert.Equal(t, 15.0, m.Scenes[0].DurationSeconds)
}
