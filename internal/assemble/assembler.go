// Package assemble builds a ProductionManifest from an extracted intermediate
// structure, resolved metadata and a user asset catalog.
package assemble

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/zhe.chen/manifest-compiler/internal/effects"
	"github.com/zhe.chen/manifest-compiler/internal/extract"
	"github.com/zhe.chen/manifest-compiler/internal/manifest"
)

var (
	chartRe   = regexp.MustCompile(`(?i)\b(chart|graph|infographic|statistics|stats|diagram|dashboard|metrics|bar ?chart|pie ?chart|kpi)s?\b`)
	footageRe = regexp.MustCompile(`(?i)\b(footage|video|clip|drone|timelapse|time-lapse|b-?roll|slow[ -]?motion|tracking shot|aerial)s?\b`)
	moodRe    = regexp.MustCompile(`(?i)\b(upbeat|calm|epic|dramatic|uplifting|playful|confident|ambient|tense|energetic|chill|inspiring|corporate|orchestral|lo-?fi)\b`)
	climaxRe  = regexp.MustCompile(`(?i)\b(climax|drop|peak|crescendo)\b`)
)

// Input is everything the assembler consumes.
type Input struct {
	Text         string
	Intermediate *extract.Intermediate
	Hints        []json.RawMessage
	Overrides    Overrides
	Catalog      []CatalogAsset
}

// Assembler turns an intermediate structure into an unnormalized manifest.
type Assembler struct {
	tables   *effects.Tables
	defaults Defaults
	logger   *zap.Logger
}

// New creates an assembler. Nil tables and logger fall back to the built-ins.
func New(tables *effects.Tables, defaults Defaults, logger *zap.Logger) *Assembler {
	if tables == nil {
		tables = effects.DefaultTables()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{tables: tables, defaults: defaults.WithFallbacks(), logger: logger}
}

// Defaults returns the effective defaults.
func (a *Assembler) Defaults() Defaults {
	return a.defaults
}

// Assemble builds the manifest. Scene starts are left unset for the timeline
// stage; the asset map is populated only here.
func (a *Assembler) Assemble(in Input) *manifest.ProductionManifest {
	inter := in.Intermediate
	if inter == nil {
		inter = &extract.Intermediate{}
	}

	m := manifest.New()
	m.Metadata = a.ResolveMetadata(in.Text, inter, in.Hints, in.Overrides)
	profile := a.tables.Profile(m.Metadata.Profile)

	m.Consistency = Consistency(profile)
	m.Effects = manifest.EffectsPlan{
		Allowed:           a.tables.AllowedFor(profile.Constraints),
		DefaultTransition: a.defaultTransition(profile.Constraints),
	}
	m.Visual = manifest.VisualPlan{
		Style:      profile.VisualStyle,
		Resolution: ResolutionFor(m.Metadata.AspectRatio),
		FPS:        a.defaults.FPS,
		Palette:    append([]string(nil), profile.Constraints.Palette...),
	}
	m.Audio.TTS = DefaultTTS(a.defaults, profile, inter.Voice)
	m.Audio.MusicDefaults = manifest.MusicDefaults{Provider: a.defaults.MusicProvider, Mood: profile.MusicMood}

	durations := a.allocate(inter.Scenes, m.Metadata.DurationSeconds)
	catalog := newCatalogIndex(in.Catalog)

	for i, is := range inter.Scenes {
		scene := manifest.Scene{
			ID:              SceneID(i),
			StartAtSec:      manifest.UnsetStart,
			DurationSeconds: durations[i],
			Purpose:         firstString(strings.ToLower(is.Purpose), manifest.PurposeBody),
			Narration:       strings.TrimSpace(is.Narration),
			VisualHint:      strings.TrimSpace(is.VisualAnchor),
		}
		scene.Visuals = []manifest.Visual{a.bindVisual(m, catalog, scene, m.Metadata.Title)}

		if stack := a.explicitEffects(is.Effects, scene.Purpose, m.Effects); stack != nil {
			if m.Effects.Overrides == nil {
				m.Effects.Overrides = map[string]manifest.SceneEffects{}
			}
			m.Effects.Overrides[scene.ID] = *stack
		}
		m.Scenes = append(m.Scenes, scene)
	}

	a.planMusic(m, inter.Scenes, durations, profile)
	a.planSoundEffects(m, inter.Scenes)

	a.logger.Info("manifest assembled",
		zap.String("stage", "assemble"),
		zap.String("manifestId", m.Metadata.ManifestID),
		zap.Int("scenes", len(m.Scenes)),
		zap.Int("assets", len(m.Assets)),
		zap.Float64("duration", m.Metadata.DurationSeconds))
	return m
}

// SceneID is the stable id of the i-th scene.
func SceneID(i int) string {
	return fmt.Sprintf("scene_%03d", i+1)
}

// allocate splits total by normalized weight, rounded to 2 decimals with a floor.
func (a *Assembler) allocate(scenes []extract.IntermediateScene, total float64) []float64 {
	out := make([]float64, len(scenes))
	sum := 0.0
	weights := make([]float64, len(scenes))
	for i, s := range scenes {
		w := s.DurationWeight
		if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			w = extract.DefaultWeight(s.Purpose)
		}
		weights[i] = w
		sum += w
	}
	for i, w := range weights {
		d := math.Round(w/sum*total*100) / 100
		out[i] = math.Max(d, a.defaults.MinSceneSeconds)
	}
	return out
}

func (a *Assembler) bindVisual(m *manifest.ProductionManifest, catalog *catalogIndex, scene manifest.Scene, title string) manifest.Visual {
	if entry, ok := catalog.match(scene.VisualHint); ok {
		id := entry.ID
		if _, exists := m.Assets[id]; !exists {
			m.Assets[id] = entry.asset()
		}
		return manifest.Visual{AssetID: id, Role: "primary"}
	}

	prompt := firstString(scene.VisualHint, scene.Narration, title)
	if m.Visual.Style != "" {
		prompt = prompt + ", " + m.Visual.Style + " style"
	}
	id := "asset_" + scene.ID
	m.Assets[id] = manifest.Asset{
		ID:          id,
		Kind:        KindForAnchor(scene.VisualHint),
		Source:      manifest.SourceGenerated,
		Status:      manifest.StatusPending,
		Description: scene.VisualHint,
		Prompt:      prompt,
	}
	return manifest.Visual{AssetID: id, Role: "primary", Prompt: prompt}
}

// KindForAnchor classifies a visual anchor as chart, video or image.
func KindForAnchor(anchor string) manifest.AssetKind {
	switch {
	case IsChartAnchor(anchor):
		return manifest.KindChart
	case footageRe.MatchString(anchor):
		return manifest.KindVideo
	default:
		return manifest.KindImage
	}
}

// IsChartAnchor reports whether the anchor asks for a chart.
func IsChartAnchor(anchor string) bool {
	return chartRe.MatchString(anchor)
}

// explicitEffects turns extracted effect keywords into a scene override.
func (a *Assembler) explicitEffects(ids []string, purpose string, plan manifest.EffectsPlan) *manifest.SceneEffects {
	if len(ids) == 0 {
		return nil
	}
	stack := &manifest.SceneEffects{Layers: []manifest.EffectLayer{}, Transitions: []string{}}
	for _, id := range ids {
		def, ok := a.tables.Lookup(id)
		if !ok || !plan.IsAllowed(id) {
			continue
		}
		if def.Kind == effects.KindTransition {
			stack.Transitions = append(stack.Transitions, id)
			continue
		}
		stack.Layers = append(stack.Layers, manifest.EffectLayer{Effect: id, Order: len(stack.Layers) + 1, Intensity: 0.5})
	}
	if len(stack.Layers) == 0 && len(stack.Transitions) == 0 {
		return nil
	}
	preset, ok := a.tables.Purposes[purpose]
	if !ok {
		preset = a.tables.Purposes[""]
	}
	stack.ColorGrade = preset.ColorGrade
	return stack
}

func (a *Assembler) defaultTransition(c manifest.HardConstraints) string {
	for _, id := range append([]string{"fade"}, a.tables.Rotation...) {
		if !c.Forbids(id) {
			return id
		}
	}
	return ""
}

// planMusic creates cues from scene music lines, or a structural
// intro/build/outro plan when the treatment names none.
func (a *Assembler) planMusic(m *manifest.ProductionManifest, scenes []extract.IntermediateScene, durations []float64, profile effects.Profile) {
	n := len(m.Scenes)
	if n == 0 {
		return
	}

	type anchor struct {
		index int
		text  string
	}
	var anchors []anchor
	for i, s := range scenes {
		if text := strings.TrimSpace(s.MusicCue); text != "" {
			anchors = append(anchors, anchor{index: i, text: text})
		}
	}
	if len(anchors) == 0 {
		anchors = append(anchors, anchor{index: 0})
		if n >= 3 {
			anchors = append(anchors, anchor{index: 1})
		}
		if n >= 2 {
			anchors = append(anchors, anchor{index: n - 1})
		}
	} else if anchors[0].index != 0 {
		anchors = append([]anchor{{index: 0}}, anchors...)
	}

	starts := make([]float64, n)
	cursor := 0.0
	for i, d := range durations {
		starts[i] = math.Round(cursor*100) / 100
		cursor += d
	}

	for k, an := range anchors {
		role := manifest.CueBuild
		switch {
		case an.index == 0:
			role = manifest.CueIntro
		case climaxRe.MatchString(an.text):
			role = manifest.CueClimax
		case an.index == n-1 && n > 1:
			role = manifest.CueOutro
		}
		mood := profile.MusicMood
		if found := moodRe.FindString(an.text); found != "" {
			mood = strings.ToLower(found)
		}
		id := fmt.Sprintf("cue_%02d", k+1)
		m.Audio.Music[id] = manifest.MusicCue{
			ID:          id,
			StartSec:    math.Min(starts[an.index], m.Metadata.DurationSeconds),
			Mood:        mood,
			Role:        role,
			SceneID:     m.Scenes[an.index].ID,
			Description: an.text,
		}
		m.Scenes[an.index].MusicCue = id
	}
}

func (a *Assembler) planSoundEffects(m *manifest.ProductionManifest, scenes []extract.IntermediateScene) {
	for i, s := range scenes {
		for _, desc := range s.SoundEffects {
			if desc = strings.TrimSpace(desc); desc == "" {
				continue
			}
			id := fmt.Sprintf("sound_%03d", len(m.Audio.SoundEffects)+1)
			m.Audio.SoundEffects = append(m.Audio.SoundEffects, manifest.SoundEffect{
				ID:          id,
				SceneID:     m.Scenes[i].ID,
				Description: desc,
			})
		}
	}
}

// Consistency builds the consistency rules for a profile.
func Consistency(p effects.Profile) manifest.ConsistencyRules {
	c := p.Constraints
	c.Palette = append([]string(nil), c.Palette...)
	c.ForbiddenEffects = append([]string(nil), c.ForbiddenEffects...)
	return manifest.ConsistencyRules{
		Profile:         p.Name,
		EnforcementMode: p.Enforcement,
		HardConstraints: c,
	}
}

// DefaultTTS builds the TTS block from defaults, the profile voice style and
// an optional voice named in the treatment.
func DefaultTTS(d Defaults, p effects.Profile, voice string) *manifest.TTSConfig {
	return &manifest.TTSConfig{
		Provider: d.TTSProvider,
		Voice:    firstString(voice, d.TTSVoice),
		Style:    firstString(p.VoiceStyle, "conversational"),
		Format:   d.TTSFormat,
	}
}
