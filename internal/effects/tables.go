package effects

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/zhe.chen/manifest-compiler/internal/manifest"
)

// EffectKind separates layer effects from transitions.
type EffectKind string

const (
	KindLayer      EffectKind = "layer"
	KindTransition EffectKind = "transition"
)

// EffectDef is one entry of the fixed effect taxonomy.
type EffectDef struct {
	ID      string
	Kind    EffectKind
	Aliases []string
}

// Preset is the default look for a scene purpose.
type Preset struct {
	Layers     []string
	ColorGrade string
}

// PlatformPrefs adjusts defaults for a distribution platform.
type PlatformPrefs struct {
	Transitions []string
	ColorGrade  string
	ExtraLayers map[string][]string
}

// Profile is a creative profile with its hard constraints and audio/visual defaults.
type Profile struct {
	Name            string
	Enforcement     string
	Constraints     manifest.HardConstraints
	VisualStyle     string
	VoiceStyle      string
	MusicMood       string
	DefaultPlatform manifest.Platform
}

// Tables is the static lookup configuration for enrichment. Callers must treat
// it as read-only; DefaultTables returns a shared instance.
type Tables struct {
	Effects     []EffectDef
	Purposes    map[string]Preset
	ProCombos   map[string][]string
	Platforms   map[manifest.Platform]PlatformPrefs
	Rotation    []string
	ColorGrades []string
	Profiles    map[string]Profile

	aliasPatterns []aliasPattern
}

type aliasPattern struct {
	id      string
	pattern *regexp.Regexp
}

// DefaultTables returns the built-in tables, constructed once per process.
var DefaultTables = sync.OnceValue(buildDefaultTables)

func buildDefaultTables() *Tables {
	t := &Tables{
		Effects: []EffectDef{
			{ID: "ken_burns", Kind: KindLayer, Aliases: []string{"ken burns", "ken-burns"}},
			{ID: "zoom_in", Kind: KindLayer, Aliases: []string{"zoom in", "zoom-in", "push in", "push-in"}},
			{ID: "zoom_out", Kind: KindLayer, Aliases: []string{"zoom out", "zoom-out", "pull back"}},
			{ID: "parallax", Kind: KindLayer, Aliases: []string{"parallax"}},
			{ID: "film_grain", Kind: KindLayer, Aliases: []string{"film grain", "grain"}},
			{ID: "light_leak", Kind: KindLayer, Aliases: []string{"light leak", "light leaks"}},
			{ID: "vignette", Kind: KindLayer, Aliases: []string{"vignette"}},
			{ID: "glitch", Kind: KindLayer, Aliases: []string{"glitch", "glitchy"}},
			{ID: "slow_motion", Kind: KindLayer, Aliases: []string{"slow motion", "slow-motion", "slow-mo", "slowmo"}},
			{ID: "color_pop", Kind: KindLayer, Aliases: []string{"color pop", "colour pop"}},
			{ID: "lens_flare", Kind: KindLayer, Aliases: []string{"lens flare", "flare"}},
			{ID: "shake", Kind: KindLayer, Aliases: []string{"camera shake", "shake"}},
			{ID: "split_screen", Kind: KindLayer, Aliases: []string{"split screen", "split-screen"}},
			{ID: "text_pop", Kind: KindLayer, Aliases: []string{"text pop", "kinetic text", "kinetic typography"}},
			{ID: "motion_blur", Kind: KindLayer, Aliases: []string{"motion blur"}},
			{ID: "fade", Kind: KindTransition, Aliases: []string{"fade", "fade in", "fade out", "crossfade"}},
			{ID: "slide", Kind: KindTransition, Aliases: []string{"slide"}},
			{ID: "bokeh", Kind: KindTransition, Aliases: []string{"bokeh"}},
			{ID: "cut", Kind: KindTransition, Aliases: []string{"hard cut", "jump cut"}},
			{ID: "whip_pan", Kind: KindTransition, Aliases: []string{"whip pan", "whip-pan"}},
			{ID: "zoom_transition", Kind: KindTransition, Aliases: []string{"zoom transition"}},
			{ID: "dissolve", Kind: KindTransition, Aliases: []string{"dissolve"}},
			{ID: "wipe", Kind: KindTransition, Aliases: []string{"wipe"}},
		},
		Purposes: map[string]Preset{
			manifest.PurposeHook: {Layers: []string{"zoom_in", "light_leak"}, ColorGrade: "vibrant"},
			manifest.PurposeBody: {Layers: []string{"ken_burns"}, ColorGrade: "natural"},
			manifest.PurposeCTA:  {Layers: []string{"text_pop", "vignette"}, ColorGrade: "warm"},
			"":                   {Layers: []string{"ken_burns"}, ColorGrade: "natural"},
		},
		ProCombos: map[string][]string{
			manifest.PurposeHook: {"zoom_in", "light_leak", "film_grain"},
			manifest.PurposeBody: {"parallax", "film_grain", "vignette"},
			manifest.PurposeCTA:  {"zoom_out", "lens_flare", "vignette"},
			"":                   {"ken_burns", "film_grain", "vignette"},
		},
		Platforms: map[manifest.Platform]PlatformPrefs{
			manifest.PlatformTikTok:         shortFormPrefs(),
			manifest.PlatformYouTubeShorts:  shortFormPrefs(),
			manifest.PlatformInstagramReels: shortFormPrefs(),
			manifest.PlatformInstagram: {
				Transitions: []string{"fade", "slide", "dissolve"},
			},
			manifest.PlatformYouTube:  longFormPrefs(),
			manifest.PlatformLinkedIn: longFormPrefs(),
		},
		Rotation:    []string{"fade", "slide", "bokeh"},
		ColorGrades: []string{"natural", "vibrant", "warm", "cool", "punchy", "teal_orange", "mono"},
		Profiles: map[string]Profile{
			"default": {
				Name:        "default",
				Enforcement: manifest.EnforcementBalanced,
				Constraints: manifest.HardConstraints{Pacing: "medium", AudioStyle: "neutral"},
				VisualStyle: "clean",
				VoiceStyle:  "conversational",
				MusicMood:   "uplifting",
			},
			"corporate": {
				Name:        "corporate",
				Enforcement: manifest.EnforcementStrict,
				Constraints: manifest.HardConstraints{
					Palette:            []string{"#0B3D91", "#FFFFFF", "#8A8D91"},
					ForbiddenEffects:   []string{"glitch", "shake", "light_leak"},
					MaxEffectsPerScene: 2,
					Pacing:             "measured",
					AudioStyle:         "corporate",
				},
				VisualStyle:     "professional",
				VoiceStyle:      "professional",
				MusicMood:       "confident",
				DefaultPlatform: manifest.PlatformLinkedIn,
			},
			"cinematic": {
				Name:        "cinematic",
				Enforcement: manifest.EnforcementBalanced,
				Constraints: manifest.HardConstraints{
					Palette:            []string{"#1B1B1B", "#C9A227", "#2E4057"},
					ForbiddenEffects:   []string{"text_pop"},
					MaxEffectsPerScene: 3,
					Pacing:             "slow",
					AudioStyle:         "orchestral",
				},
				VisualStyle: "dramatic",
				VoiceStyle:  "narrative",
				MusicMood:   "epic",
			},
			"playful": {
				Name:        "playful",
				Enforcement: manifest.EnforcementCreative,
				Constraints: manifest.HardConstraints{
					Palette:            []string{"#FF6F61", "#FFD166", "#06D6A0"},
					ForbiddenEffects:   []string{"vignette", "film_grain"},
					MaxEffectsPerScene: 3,
					Pacing:             "fast",
					AudioStyle:         "upbeat",
				},
				VisualStyle:     "energetic",
				VoiceStyle:      "energetic",
				MusicMood:       "playful",
				DefaultPlatform: manifest.PlatformTikTok,
			},
			"minimal": {
				Name:        "minimal",
				Enforcement: manifest.EnforcementStrict,
				Constraints: manifest.HardConstraints{
					ForbiddenEffects:   []string{"glitch", "light_leak", "lens_flare", "shake", "film_grain"},
					MaxEffectsPerScene: 1,
					Pacing:             "calm",
					AudioStyle:         "ambient",
				},
				VisualStyle: "calm",
				VoiceStyle:  "calm",
				MusicMood:   "calm",
			},
		},
	}

	for _, def := range t.Effects {
		for _, alias := range def.Aliases {
			t.aliasPatterns = append(t.aliasPatterns, aliasPattern{
				id:      def.ID,
				pattern: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(alias) + `\b`),
			})
		}
	}
	return t
}

func shortFormPrefs() PlatformPrefs {
	return PlatformPrefs{
		Transitions: []string{"cut", "whip_pan", "zoom_transition"},
		ColorGrade:  "punchy",
		ExtraLayers: map[string][]string{
			manifest.PurposeHook: {"text_pop"},
		},
	}
}

func longFormPrefs() PlatformPrefs {
	return PlatformPrefs{
		Transitions: []string{"fade", "slide", "bokeh"},
	}
}

// EffectIDs returns every effect id in the taxonomy, sorted.
func (t *Tables) EffectIDs() []string {
	ids := make([]string, 0, len(t.Effects))
	for _, def := range t.Effects {
		ids = append(ids, def.ID)
	}
	sort.Strings(ids)
	return ids
}

// Lookup returns the taxonomy entry for id.
func (t *Tables) Lookup(id string) (EffectDef, bool) {
	for _, def := range t.Effects {
		if def.ID == id {
			return def, true
		}
	}
	return EffectDef{}, false
}

// MatchEffects returns the effect ids whose aliases or ids occur in text, in
// taxonomy order without duplicates.
func (t *Tables) MatchEffects(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	normalized := strings.ReplaceAll(text, "_", " ")
	found := map[string]bool{}
	for _, alias := range t.aliasPatterns {
		if !found[alias.id] && alias.pattern.MatchString(normalized) {
			found[alias.id] = true
		}
	}
	var out []string
	for _, def := range t.Effects {
		if found[def.ID] {
			out = append(out, def.ID)
		}
	}
	return out
}

// Profile returns the named profile, falling back to "default".
func (t *Tables) Profile(name string) Profile {
	if p, ok := t.Profiles[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return t.Profiles["default"]
}

// AllowedFor returns the taxonomy minus the profile's forbidden effects.
func (t *Tables) AllowedFor(constraints manifest.HardConstraints) []string {
	var allowed []string
	for _, id := range t.EffectIDs() {
		if !constraints.Forbids(id) {
			allowed = append(allowed, id)
		}
	}
	return allowed
}

// IsColorGrade reports whether grade is a known preset.
func (t *Tables) IsColorGrade(grade string) bool {
	for _, g := range t.ColorGrades {
		if g == grade {
			return true
		}
	}
	return false
}
