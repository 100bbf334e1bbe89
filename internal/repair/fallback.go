package repair

import (
	"strings"

	"go.uber.org/zap"

	"github.com/zhe.chen/manifest-compiler/internal/assemble"
	"github.com/zhe.chen/manifest-compiler/internal/effects"
	"github.com/zhe.chen/manifest-compiler/internal/manifest"
	"github.com/zhe.chen/manifest-compiler/internal/timeline"
)

const fallbackNarration = "Stay tuned for more."

// Fallback builds the single-scene manifest used when nothing else validates.
// It depends only on the resolved metadata and is valid by construction.
func (r *Repairer) Fallback(meta manifest.Metadata) *manifest.ProductionManifest {
	m := manifest.New()
	m.Metadata = meta
	var discard fixFunc = func(string, ...any) {}
	r.fixMetadata(m, discard)

	profile := r.tables.Profile(m.Metadata.Profile)
	m.Consistency = assemble.Consistency(profile)
	m.Consistency.EnforcementMode = m.Metadata.EnforcementMode
	m.Visual = manifest.VisualPlan{
		Style:      profile.VisualStyle,
		Resolution: assemble.ResolutionFor(m.Metadata.AspectRatio),
		FPS:        r.defaults.FPS,
		Palette:    append([]string(nil), profile.Constraints.Palette...),
	}
	m.Effects = manifest.EffectsPlan{
		Allowed:           r.tables.AllowedFor(profile.Constraints),
		DefaultTransition: "fade",
	}
	if profile.Constraints.Forbids("fade") {
		m.Effects.DefaultTransition = ""
	}
	m.Audio.TTS = assemble.DefaultTTS(r.defaults, profile, "")
	m.Audio.MusicDefaults = manifest.MusicDefaults{Provider: r.defaults.MusicProvider, Mood: profile.MusicMood}

	narration := fallbackNarration
	if title := strings.TrimSpace(m.Metadata.Title); title != "" && title != r.defaults.Title {
		narration = title
	}

	sceneID := assemble.SceneID(0)
	assetID := "asset_" + sceneID
	prompt := m.Metadata.Title
	if m.Visual.Style != "" {
		prompt += ", " + m.Visual.Style + " style"
	}
	m.Assets[assetID] = manifest.Asset{
		ID:          assetID,
		Kind:        manifest.KindImage,
		Source:      manifest.SourceGenerated,
		Status:      manifest.StatusPending,
		Description: m.Metadata.Title,
		Prompt:      prompt,
	}
	m.Scenes = []manifest.Scene{{
		ID:              sceneID,
		StartAtSec:      0,
		DurationSeconds: m.Metadata.DurationSeconds,
		Purpose:         manifest.PurposeBody,
		Narration:       narration,
		VisualHint:      m.Metadata.Title,
		Visuals:         []manifest.Visual{{AssetID: assetID, Role: "primary", Prompt: prompt}},
	}}

	effects.NewEnricher(r.tables, r.logger).Enrich(m)
	timeline.DeriveSubtitles(m)

	r.logger.Warn("fallback manifest built",
		zap.String("stage", "fallback"),
		zap.String("manifestId", m.Metadata.ManifestID),
		zap.Float64("duration", m.Metadata.DurationSeconds))
	return m
}
