package assemble

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhe.chen/manifest-compiler/internal/extract"
	"github.com/zhe.chen/manifest-compiler/internal/manifest"
)

func threeScenes() *extract.Intermediate {
	return &extract.Intermediate{
		Title: "Launch",
		Scenes: []extract.IntermediateScene{
			{Purpose: "hook", DurationWeight: 0.8, Narration: "Step one.", VisualAnchor: "laptop on a desk"},
			{Purpose: "body", DurationWeight: 1.2, Narration: "Step two.", VisualAnchor: "revenue chart"},
			{Purpose: "cta", DurationWeight: 0.8, Narration: "Step three.", VisualAnchor: "drone footage of the city"},
		},
	}
}

func TestResolveMetadataPrecedence(t *testing.T) {
	a := New(nil, DefaultDefaults(), nil)
	hints := []json.RawMessage{
		json.RawMessage(`not json`),
		json.RawMessage(`{"duration": 45, "aspect_ratio": "9x16", "language": "pt_br"}`),
		json.RawMessage(`{"durationSeconds": 99, "profile": "corporate"}`),
	}
	in := &extract.Intermediate{TotalDurationSeconds: 30, Profile: "playful"}

	tests := []struct {
		name         string
		overrides    Overrides
		wantDuration float64
		wantAspect   string
		wantPlatform manifest.Platform
		wantProfile  string
	}{
		{
			name:         "hints beat intermediate",
			wantDuration: 45,
			wantAspect:   "9:16",
			wantPlatform: manifest.PlatformTikTok,
			wantProfile:  "corporate",
		},
		{
			name:         "overrides beat hints",
			overrides:    Overrides{DurationSeconds: 12, Platform: "linkedin", Profile: "minimal"},
			wantDuration: 12,
			wantAspect:   "9:16",
			wantPlatform: manifest.PlatformLinkedIn,
			wantProfile:  "minimal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := a.ResolveMetadata("text", in, hints, tt.overrides)
			assert.Equal(t, tt.wantDuration, meta.DurationSeconds)
			assert.Equal(t, tt.wantAspect, meta.AspectRatio)
			assert.Equal(t, tt.wantPlatform, meta.Platform)
			assert.Equal(t, tt.wantProfile, meta.Profile)
			assert.Equal(t, "pt-BR", meta.Language)
		})
	}
}

func TestResolveMetadataDefaults(t *testing.T) {
	a := New(nil, DefaultDefaults(), nil)
	meta := a.ResolveMetadata("", nil, nil, Overrides{Profile: "no-such-profile", Language: "???"})

	assert.Equal(t, 60.0, meta.DurationSeconds)
	assert.Equal(t, "16:9", meta.AspectRatio)
	assert.Equal(t, manifest.PlatformYouTube, meta.Platform)
	assert.Equal(t, "en", meta.Language)
	assert.Equal(t, "default", meta.Profile)
	assert.Equal(t, manifest.EnforcementBalanced, meta.EnforcementMode)
	assert.Equal(t, manifest.IntentVideo, meta.Intent)
	assert.NotEmpty(t, meta.ManifestID)
}

func TestProfileDefaultPlatform(t *testing.T) {
	a := New(nil, DefaultDefaults(), nil)
	meta := a.ResolveMetadata("", nil, nil, Overrides{Profile: "playful"})
	assert.Equal(t, manifest.PlatformTikTok, meta.Platform)
	assert.Equal(t, "9:16", meta.AspectRatio)
}

func TestResolveMetadataTreatmentGlobals(t *testing.T) {
	a := New(nil, DefaultDefaults(), nil)
	in := &extract.Intermediate{Platform: "Instagram Reels", AspectRatio: "9:16", Language: "es"}

	meta := a.ResolveMetadata("text", in, nil, Overrides{})
	assert.Equal(t, manifest.PlatformInstagramReels, meta.Platform)
	assert.Equal(t, "9:16", meta.AspectRatio)
	assert.Equal(t, "es", meta.Language)

	hints := []json.RawMessage{json.RawMessage(`{"platform": "linkedin", "language": "fr"}`)}
	meta = a.ResolveMetadata("text", in, hints, Overrides{})
	assert.Equal(t, manifest.PlatformLinkedIn, meta.Platform, "hints beat treatment globals")
	assert.Equal(t, "fr", meta.Language)
}

func TestResolveMetadataTinyDurationOverride(t *testing.T) {
	a := New(nil, DefaultDefaults(), nil)
	meta := a.ResolveMetadata("text", nil, nil, Overrides{DurationSeconds: 0.001})
	assert.Equal(t, DefaultDefaults().MinSceneSeconds, meta.DurationSeconds)
}

func TestManifestIDDeterministic(t *testing.T) {
	a := New(nil, DefaultDefaults(), nil)
	first := a.ResolveMetadata("same text", nil, nil, Overrides{})
	second := a.ResolveMetadata("same text", nil, nil, Overrides{})
	other := a.ResolveMetadata("other text", nil, nil, Overrides{})
	assert.Equal(t, first.ManifestID, second.ManifestID)
	assert.NotEqual(t, first.ManifestID, other.ManifestID)
}

func TestAssembleAllocatesDurations(t *testing.T) {
	a := New(nil, DefaultDefaults(), nil)
	m := a.Assemble(Input{Intermediate: threeScenes(), Overrides: Overrides{DurationSeconds: 5}})

	require.Len(t, m.Scenes, 3)
	assert.Equal(t, []float64{1.43, 2.14, 1.43}, []float64{
		m.Scenes[0].DurationSeconds, m.Scenes[1].DurationSeconds, m.Scenes[2].DurationSeconds,
	})
	for _, s := range m.Scenes {
		assert.Equal(t, manifest.UnsetStart, s.StartAtSec, "scene %s start must be left for the timeline", s.ID)
	}
	assert.Empty(t, m.Jobs)
	require.NotNil(t, m.Audio.TTS)
}

func TestAssembleFloorsTinyScenes(t *testing.T) {
	a := New(nil, DefaultDefaults(), nil)
	in := &extract.Intermediate{Scenes: []extract.IntermediateScene{
		{DurationWeight: 1000, Narration: "long"},
		{DurationWeight: 0.001, Narration: "tiny"},
	}}
	m := a.Assemble(Input{Intermediate: in, Overrides: Overrides{DurationSeconds: 1}})
	assert.Equal(t, 0.05, m.Scenes[1].DurationSeconds)
}

func TestAssembleBindsCatalogAssets(t *testing.T) {
	a := New(nil, DefaultDefaults(), nil)
	catalog := []CatalogAsset{
		{ID: "team_photo", Description: "Our team in the office", URL: "file:///team.jpg"},
		{ID: "laptop_closeup", Description: "Close-up of a laptop keyboard"},
	}
	m := a.Assemble(Input{Intermediate: threeScenes(), Catalog: catalog})

	first := m.Scenes[0].Visuals[0]
	assert.Equal(t, "laptop_closeup", first.AssetID)
	assert.Equal(t, manifest.SourceUser, m.Assets["laptop_closeup"].Source)
	assert.Equal(t, manifest.StatusReady, m.Assets["laptop_closeup"].Status)
	assert.NotContains(t, m.Assets, "team_photo", "unreferenced catalog entries are not minted")

	chart := m.Assets[m.Scenes[1].Visuals[0].AssetID]
	assert.Equal(t, manifest.SourceGenerated, chart.Source)
	assert.Equal(t, manifest.StatusPending, chart.Status)
	assert.Equal(t, manifest.KindChart, chart.Kind)

	footage := m.Assets[m.Scenes[2].Visuals[0].AssetID]
	assert.Equal(t, manifest.KindVideo, footage.Kind)

	for _, s := range m.Scenes {
		for _, v := range s.Visuals {
			assert.Contains(t, m.Assets, v.AssetID)
		}
	}
}

func TestAssembleMusicPlan(t *testing.T) {
	a := New(nil, DefaultDefaults(), nil)
	m := a.Assemble(Input{Intermediate: threeScenes(), Overrides: Overrides{DurationSeconds: 10}})

	ids := m.SortedCueIDs()
	require.Len(t, ids, 3)
	assert.Equal(t, manifest.CueIntro, m.Audio.Music[ids[0]].Role)
	assert.Equal(t, manifest.CueBuild, m.Audio.Music[ids[1]].Role)
	assert.Equal(t, manifest.CueOutro, m.Audio.Music[ids[2]].Role)
	assert.Equal(t, "scene_003", m.Audio.Music[ids[2]].SceneID)
}

func TestAssembleExplicitEffectsBecomeOverrides(t *testing.T) {
	a := New(nil, DefaultDefaults(), nil)
	in := threeScenes()
	in.Scenes[0].Effects = []string{"glitch", "whip_pan", "not_an_effect"}

	m := a.Assemble(Input{Intermediate: in})
	override, ok := m.Effects.Overrides["scene_001"]
	require.True(t, ok)
	assert.Equal(t, []manifest.EffectLayer{{Effect: "glitch", Order: 1, Intensity: 0.5}}, override.Layers)
	assert.Equal(t, []string{"whip_pan"}, override.Transitions)

	corporate := a.Assemble(Input{Intermediate: in, Overrides: Overrides{Profile: "corporate"}})
	assert.NotContains(t, corporate.Effects.Allowed, "glitch")
	assert.Equal(t, []string{"whip_pan"}, corporate.Effects.Overrides["scene_001"].Transitions)
	assert.Empty(t, corporate.Effects.Overrides["scene_001"].Layers)
}

func TestResolutionFor(t *testing.T) {
	tests := map[string]string{
		"16:9": "1920x1080",
		"9:16": "1080x1920",
		"1:1":  "1080x1080",
		"4:5":  "1080x1350",
		"bad":  "1920x1080",
	}
	for aspect, want := range tests {
		assert.Equal(t, want, ResolutionFor(aspect), aspect)
	}
}
