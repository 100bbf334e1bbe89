package extract

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristicSceneHeaders(t *testing.T) {
	text := `Scene 1: Step one: pick footage.
Scene 2: Step two: add data.
Scene 3: Step three: publish confidently.`

	out, err := NewHeuristic(nil).Extract(context.Background(), text, nil)
	require.NoError(t, err)
	require.Len(t, out.Scenes, 3)

	want := []struct {
		narration string
		purpose   string
		weight    float64
	}{
		{"Step one: pick footage.", "hook", hookWeight},
		{"Step two: add data.", "body", bodyWeight},
		{"Step three: publish confidently.", "cta", hookWeight},
	}
	for i, w := range want {
		assert.Equal(t, w.narration, out.Scenes[i].Narration, "scene %d", i+1)
		assert.Equal(t, w.purpose, out.Scenes[i].Purpose, "scene %d", i+1)
		assert.Equal(t, w.weight, out.Scenes[i].DurationWeight, "scene %d", i+1)
	}
	assert.False(t, out.IsEmpty())
}

func TestHeuristicDirectives(t *testing.T) {
	text := `# Product Launch
Duration: 45s
Voice: warm female
Style: corporate

## Scene 1 - Hook
VO: "Meet the fastest dashboard you've ever used."
Visual: close-up of a laptop screen
Effects: slow zoom in with light leak
Music: upbeat electronic intro
SFX: whoosh, click

## Scene 2
Narration: Here is how it works.
[sfx: typing]

## Scene 3: Call to action
Narration: Sign up today.`

	out := NewHeuristic(nil).Parse(text)

	assert.Equal(t, "Product Launch", out.Title)
	assert.Equal(t, 45.0, out.TotalDurationSeconds)
	assert.Equal(t, "warm female", out.Voice)
	assert.Equal(t, "corporate", out.Profile)

	require.Len(t, out.Scenes, 3)
	hook := out.Scenes[0]
	assert.Equal(t, "hook", hook.Purpose)
	assert.Equal(t, "Meet the fastest dashboard you've ever used.", hook.Narration)
	assert.Equal(t, "close-up of a laptop screen", hook.VisualAnchor)
	assert.Equal(t, []string{"zoom_in", "light_leak"}, hook.Effects)
	assert.Equal(t, "upbeat electronic intro", hook.MusicCue)
	assert.Equal(t, []string{"whoosh", "click"}, hook.SoundEffects)

	assert.Equal(t, "body", out.Scenes[1].Purpose)
	assert.Equal(t, []string{"typing"}, out.Scenes[1].SoundEffects)
	assert.Equal(t, "cta", out.Scenes[2].Purpose)
	assert.Equal(t, "Sign up today.", out.Scenes[2].Narration)
}

func TestHeuristicParagraphGrouping(t *testing.T) {
	text := strings.Join([]string{
		"Open on a sunset over the city.",
		"Show the team at work.",
		"Cut to the product in use.",
		"Close with the logo and a call to subscribe.",
	}, "\n\n")

	out := NewHeuristic(nil).Parse(text)
	require.Len(t, out.Scenes, 3)
	assert.Equal(t, "hook", out.Scenes[0].Purpose)
	assert.Equal(t, "body", out.Scenes[1].Purpose)
	assert.Equal(t, "cta", out.Scenes[2].Purpose)
	assert.Contains(t, out.Scenes[1].Narration, "Show the team at work.")
	assert.Contains(t, out.Scenes[1].Narration, "Cut to the product in use.")
	assert.Equal(t, "city sunset", out.Scenes[0].VisualAnchor)
}

func TestHeuristicInlineDuration(t *testing.T) {
	out := NewHeuristic(nil).Parse("A 2 minute explainer about solar panels.")
	assert.Equal(t, 120.0, out.TotalDurationSeconds)
	require.Len(t, out.Scenes, 1)
	assert.Equal(t, "body", out.Scenes[0].Purpose)
}

func TestHeuristicNeverFails(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		empty bool
	}{
		{name: "empty", text: "", empty: true},
		{name: "whitespace", text: "   \n\n\t", empty: true},
		{name: "punctuation", text: "!!! ??? ... ---", empty: true},
		{name: "single word", text: "hello", empty: true},
		{name: "letter noise", text: "asdf qwer zxcv", empty: true},
		{name: "lorem", text: "lorem", empty: true},
		{name: "invalid utf-8", text: "\xff\xfe garbage \xc3", empty: true},
		{name: "globals only", text: "Title: Launch\nDuration: 30s", empty: true},
		{name: "headers only", text: "Scene 1:\nScene 2:", empty: true},
		{name: "word soup", text: strings.Repeat("word ", 200000), empty: true},
		{name: "short prose", text: "Go outside. Touch grass.", empty: false},
		{name: "keyword", text: "coffee", empty: false},
		{name: "huge input", text: strings.Repeat("Show the city at dawn. ", 20000), empty: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewHeuristic(nil).Extract(context.Background(), tt.text, nil)
			require.NoError(t, err)
			require.NotNil(t, out)
			require.NotEmpty(t, out.Scenes)
			assert.Equal(t, tt.empty, out.IsEmpty())
			for _, s := range out.Scenes {
				assert.LessOrEqual(t, len([]rune(s.Narration)), maxNarrationRunes)
				assert.True(t, utf8.ValidString(s.Narration))
			}
		})
	}
}

func TestClipKeepsRuneBoundary(t *testing.T) {
	text := strings.Repeat("a", maxInputBytes-1) + "éé"
	got := clip(text)
	assert.Len(t, got, maxInputBytes-1)
	assert.True(t, utf8.ValidString(got))

	assert.Equal(t, " garbage ", clip("\xffgarbage\xfe"))
}

func TestHeuristicDeliveryGlobals(t *testing.T) {
	text := `Title: Launch
Platform: Instagram Reels
Aspect ratio: 9:16
Language: es

Open on the product in a studio.`

	out := NewHeuristic(nil).Parse(text)
	assert.Equal(t, "Instagram Reels", out.Platform)
	assert.Equal(t, "9:16", out.AspectRatio)
	assert.Equal(t, "es", out.Language)
	require.Len(t, out.Scenes, 1)
	assert.NotContains(t, out.Scenes[0].Narration, "Platform")
}

func TestMerge(t *testing.T) {
	heuristic := &Intermediate{Title: "From text", TotalDurationSeconds: 30, Voice: "calm", Language: "de", Scenes: []IntermediateScene{{Narration: "a"}}}
	model := &Intermediate{Profile: "cinematic", Scenes: []IntermediateScene{
		{Purpose: "hook", Narration: "x"},
		{Purpose: "body", Narration: "y", DurationWeight: 2},
	}}

	merged := Merge(heuristic, model)
	assert.Equal(t, "From text", merged.Title)
	assert.Equal(t, 30.0, merged.TotalDurationSeconds)
	assert.Equal(t, "calm", merged.Voice)
	assert.Equal(t, "cinematic", merged.Profile)
	assert.Equal(t, "de", merged.Language)
	require.Len(t, merged.Scenes, 2)
	assert.Equal(t, hookWeight, merged.Scenes[0].DurationWeight)
	assert.Equal(t, 2.0, merged.Scenes[1].DurationWeight)
	assert.Equal(t, 0.0, model.Scenes[0].DurationWeight, "merge must not mutate its inputs")

	assert.Same(t, heuristic, Merge(heuristic, &Intermediate{}))
}
