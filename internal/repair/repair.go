// Package repair applies deterministic, local fixups to manifests that failed
// validation and builds the minimal fallback manifest.
package repair

import (
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/zhe.chen/manifest-compiler/internal/assemble"
	"github.com/zhe.chen/manifest-compiler/internal/effects"
	"github.com/zhe.chen/manifest-compiler/internal/manifest"
	"github.com/zhe.chen/manifest-compiler/internal/timeline"
)

// Repairer fixes manifests without external input. It never fails; whether
// the result is valid is decided by re-running the validators.
type Repairer struct {
	tables   *effects.Tables
	defaults assemble.Defaults
	logger   *zap.Logger
}

// New creates a repairer.
func New(tables *effects.Tables, defaults assemble.Defaults, logger *zap.Logger) *Repairer {
	if tables == nil {
		tables = effects.DefaultTables()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repairer{tables: tables, defaults: defaults.WithFallbacks(), logger: logger}
}

// Repair mutates m in place and returns a description of every fix applied.
func (r *Repairer) Repair(m *manifest.ProductionManifest) []string {
	var fixes []string
	fix := func(format string, args ...any) {
		fixes = append(fixes, fmt.Sprintf(format, args...))
	}

	r.fixContainers(m, fix)
	r.fixMetadata(m, fix)
	r.fixScenes(m, fix)
	r.fixTimeline(m, fix)
	r.fixAssets(m, fix)
	r.fixAudio(m, fix)
	r.fixEffects(m, fix)

	if len(m.Jobs) > 0 {
		fix("cleared %d stale jobs", len(m.Jobs))
		m.Jobs = []manifest.Job{}
	}

	r.logger.Info("manifest repaired",
		zap.String("stage", "repair"),
		zap.Int("fixes", len(fixes)))
	return fixes
}

type fixFunc func(format string, args ...any)

func (r *Repairer) fixContainers(m *manifest.ProductionManifest, fix fixFunc) {
	if m.SchemaVersion == "" {
		m.SchemaVersion = manifest.SchemaVersion
		fix("set schema version")
	}
	if m.Scenes == nil {
		m.Scenes = []manifest.Scene{}
		fix("created empty scenes list")
	}
	if m.Assets == nil {
		m.Assets = map[string]manifest.Asset{}
		fix("created empty asset map")
	}
	if m.Jobs == nil {
		m.Jobs = []manifest.Job{}
		fix("created empty jobs list")
	}
	if m.Audio.Music == nil {
		m.Audio.Music = map[string]manifest.MusicCue{}
	}
}

func (r *Repairer) fixMetadata(m *manifest.ProductionManifest, fix fixFunc) {
	md := &m.Metadata
	d := r.defaults

	if md.DurationSeconds <= 0 || math.IsNaN(md.DurationSeconds) || math.IsInf(md.DurationSeconds, 0) {
		md.DurationSeconds = d.DurationSeconds
		fix("set duration to %.2fs", md.DurationSeconds)
	}
	if strings.TrimSpace(md.Title) == "" {
		md.Title = d.Title
		fix("set default title")
	}
	if md.Intent != manifest.IntentVideo && md.Intent != manifest.IntentImage && md.Intent != manifest.IntentAudio {
		md.Intent = manifest.IntentVideo
		fix("set intent to video")
	}

	platform, platformOK := assemble.ParsePlatform(string(md.Platform))
	aspect := assemble.ParseAspect(md.AspectRatio)
	if aspect == "" {
		if platformOK {
			aspect = assemble.AspectForPlatform(platform, d.AspectRatio)
		} else {
			aspect = d.AspectRatio
		}
	}
	if aspect != md.AspectRatio {
		md.AspectRatio = aspect
		fix("set aspect ratio to %s", aspect)
	}
	if !platformOK {
		platform = assemble.PlatformForAspect(md.AspectRatio)
	}
	if platform != md.Platform {
		md.Platform = platform
		fix("set platform to %s", platform)
	}

	lang := assemble.CanonicalLanguage(md.Language)
	if lang == "" {
		lang = firstNonEmpty(assemble.CanonicalLanguage(d.Language), "en")
	}
	if lang != md.Language {
		md.Language = lang
		fix("set language to %s", lang)
	}

	if _, known := r.tables.Profiles[md.Profile]; !known {
		md.Profile = r.tables.Profile(d.Profile).Name
		fix("set profile to %s", md.Profile)
	}
	profile := r.tables.Profile(md.Profile)
	if !validEnforcement(md.EnforcementMode) {
		md.EnforcementMode = profile.Enforcement
		fix("set enforcement mode to %s", md.EnforcementMode)
	}
	if md.CinematicLevel != manifest.CinematicBasic && md.CinematicLevel != manifest.CinematicPro {
		md.CinematicLevel = d.CinematicLevel
		fix("set cinematic level to %s", md.CinematicLevel)
	}
	if m.Consistency.Profile == "" || !validEnforcement(m.Consistency.EnforcementMode) {
		m.Consistency = assemble.Consistency(profile)
		m.Consistency.EnforcementMode = md.EnforcementMode
		fix("rebuilt consistency rules from profile %s", profile.Name)
	}
	if m.Visual.Resolution == "" {
		m.Visual.Resolution = assemble.ResolutionFor(md.AspectRatio)
	}
	if m.Visual.FPS <= 0 {
		m.Visual.FPS = d.FPS
	}
	if md.ManifestID == "" {
		md.ManifestID = assemble.ManifestID("", *md)
		fix("derived manifest id")
	}
}

func (r *Repairer) fixScenes(m *manifest.ProductionManifest, fix fixFunc) {
	seen := map[string]bool{}
	for i := range m.Scenes {
		s := &m.Scenes[i]
		if s.ID == "" || seen[s.ID] {
			old := s.ID
			s.ID = uniqueSceneID(i, seen)
			fix("renamed scene %q to %s", old, s.ID)
		}
		seen[s.ID] = true
		if strings.TrimSpace(s.Purpose) == "" {
			s.Purpose = manifest.PurposeBody
			fix("set purpose of %s to body", s.ID)
		}
		if s.Visuals == nil {
			s.Visuals = []manifest.Visual{}
		}
		if math.IsNaN(s.DurationSeconds) || math.IsInf(s.DurationSeconds, 0) {
			s.DurationSeconds = 0
		}
	}
}

func uniqueSceneID(i int, seen map[string]bool) string {
	id := assemble.SceneID(i)
	for n := 2; seen[id]; n++ {
		id = fmt.Sprintf("%s_%d", assemble.SceneID(i), n)
	}
	return id
}

// fixTimeline re-runs the rescaling pass when the scenes do not tile.
func (r *Repairer) fixTimeline(m *manifest.ProductionManifest, fix fixFunc) {
	if len(m.Scenes) == 0 {
		return
	}
	if !timeline.Tiles(m, m.Metadata.DurationSeconds, 0.005) {
		timeline.Rescale(m, m.Metadata.DurationSeconds)
		fix("rescaled %d scenes to %.2fs", len(m.Scenes), m.Metadata.DurationSeconds)
	}
	timeline.AlignCues(m)
	timeline.DeriveSubtitles(m)
}

func (r *Repairer) fixAssets(m *manifest.ProductionManifest, fix fixFunc) {
	for i := range m.Scenes {
		s := &m.Scenes[i]
		for j := range s.Visuals {
			v := &s.Visuals[j]
			if v.AssetID == "" {
				v.AssetID = "asset_" + s.ID
			}
			if _, ok := m.Assets[v.AssetID]; ok {
				continue
			}
			prompt := firstNonEmpty(v.Prompt, s.VisualHint, s.Narration, m.Metadata.Title)
			m.Assets[v.AssetID] = manifest.Asset{
				ID:          v.AssetID,
				Kind:        assemble.KindForAnchor(s.VisualHint),
				Source:      manifest.SourceGenerated,
				Status:      manifest.StatusPending,
				Description: s.VisualHint,
				Prompt:      prompt,
			}
			fix("created placeholder asset %s", v.AssetID)
		}
	}

	for _, id := range m.SortedAssetIDs() {
		a := m.Assets[id]
		changed := false
		if a.ID != id {
			a.ID = id
			changed = true
		}
		if a.Source != manifest.SourceUser && a.Source != manifest.SourceGenerated {
			a.Source = manifest.SourceGenerated
			if a.URL != "" {
				a.Source = manifest.SourceUser
			}
			changed = true
		}
		switch a.Status {
		case manifest.StatusPending, manifest.StatusProcessing, manifest.StatusReady, manifest.StatusFailed:
		default:
			a.Status = manifest.StatusPending
			if a.Source == manifest.SourceUser {
				a.Status = manifest.StatusReady
			}
			changed = true
		}
		switch a.Kind {
		case manifest.KindImage, manifest.KindVideo, manifest.KindChart, manifest.KindAudio:
		default:
			a.Kind = manifest.KindImage
			changed = true
		}
		if changed {
			m.Assets[id] = a
			fix("coerced asset %s", id)
		}
	}
}

func (r *Repairer) fixAudio(m *manifest.ProductionManifest, fix fixFunc) {
	profile := r.tables.Profile(m.Metadata.Profile)
	if m.Audio.TTS == nil || m.Audio.TTS.Provider == "" {
		voice := ""
		if m.Audio.TTS != nil {
			voice = m.Audio.TTS.Voice
		}
		m.Audio.TTS = assemble.DefaultTTS(r.defaults, profile, voice)
		fix("added default TTS provider")
	}
	if m.Audio.MusicDefaults.Provider == "" {
		m.Audio.MusicDefaults = manifest.MusicDefaults{Provider: r.defaults.MusicProvider, Mood: profile.MusicMood}
	}

	total := m.Metadata.DurationSeconds
	for _, id := range m.SortedCueIDs() {
		cue := m.Audio.Music[id]
		changed := false
		if cue.ID != id {
			cue.ID = id
			changed = true
		}
		if cue.StartSec < 0 || cue.StartSec > total {
			cue.StartSec = math.Max(0, math.Min(cue.StartSec, total))
			changed = true
		}
		switch cue.Role {
		case manifest.CueIntro, manifest.CueBuild, manifest.CueClimax, manifest.CueOutro:
		default:
			cue.Role = manifest.CueBuild
			changed = true
		}
		if changed {
			m.Audio.Music[id] = cue
			fix("clamped music cue %s", id)
		}
	}

	scenes := map[string]bool{}
	for _, s := range m.Scenes {
		scenes[s.ID] = true
	}
	kept := m.Audio.SoundEffects[:0]
	for _, sfx := range m.Audio.SoundEffects {
		if !scenes[sfx.SceneID] {
			fix("dropped sound effect %s for missing scene %q", sfx.ID, sfx.SceneID)
			continue
		}
		if sfx.AtSec < 0 {
			sfx.AtSec = 0
		}
		kept = append(kept, sfx)
	}
	m.Audio.SoundEffects = kept
}

func (r *Repairer) fixEffects(m *manifest.ProductionManifest, fix fixFunc) {
	hc := m.Consistency.HardConstraints
	if len(m.Effects.Allowed) == 0 {
		m.Effects.Allowed = r.tables.AllowedFor(hc)
		fix("set allowed effects from profile")
	}
	strict := m.Consistency.EnforcementMode == manifest.EnforcementStrict

	usable := func(id string) bool {
		if _, known := r.tables.Lookup(id); !known || !m.Effects.IsAllowed(id) {
			return false
		}
		return !(strict && hc.Forbids(id))
	}

	for i := range m.Scenes {
		s := &m.Scenes[i]
		if s.Effects == nil {
			continue
		}
		before := len(s.Effects.Layers) + len(s.Effects.Transitions)

		layers := make([]manifest.EffectLayer, 0, len(s.Effects.Layers))
		for _, l := range s.Effects.Layers {
			if usable(l.Effect) {
				l.Order = len(layers) + 1
				layers = append(layers, l)
			}
		}
		if strict && hc.MaxEffectsPerScene > 0 && len(layers) > hc.MaxEffectsPerScene {
			layers = layers[:hc.MaxEffectsPerScene]
		}
		transitions := make([]string, 0, len(s.Effects.Transitions))
		for _, t := range s.Effects.Transitions {
			if usable(t) {
				transitions = append(transitions, t)
			}
		}
		s.Effects.Layers = layers
		s.Effects.Transitions = transitions
		if removed := before - len(layers) - len(transitions); removed > 0 {
			fix("stripped %d effects from %s", removed, s.ID)
		}
	}
}

func validEnforcement(mode string) bool {
	switch mode {
	case manifest.EnforcementStrict, manifest.EnforcementBalanced, manifest.EnforcementCreative:
		return true
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
