// Package jobs turns a validated manifest into the job DAG consumed by the
// external worker pool.
package jobs

import (
	"math"

	"go.uber.org/zap"

	"github.com/zhe.chen/manifest-compiler/internal/assemble"
	"github.com/zhe.chen/manifest-compiler/internal/manifest"
)

// RenderJobID is the id of the single terminal render job.
const RenderJobID = "render_final"

type class struct {
	priority int
	retry    manifest.RetryPolicy
}

// classes holds the scheduling hints per job type. Dependency edges, not
// priorities, decide execution order.
var classes = map[manifest.JobType]class{
	manifest.JobTTS:             {priority: 10, retry: retry(3, 2, 5, 10)},
	manifest.JobRender:          {priority: 10, retry: retry(1, 30)},
	manifest.JobLipSync:         {priority: 8, retry: retry(2, 5, 15)},
	manifest.JobVideoGeneration: {priority: 7, retry: retry(2, 10, 30)},
	manifest.JobImageGeneration: {priority: 6, retry: retry(3, 5, 10, 20)},
	manifest.JobChartGeneration: {priority: 6, retry: retry(2, 2, 5)},
	manifest.JobSFXGeneration:   {priority: 3, retry: retry(2, 2, 5)},
	manifest.JobMusicGeneration: {priority: 1, retry: retry(2, 5, 15)},
}

func retry(max int, backoff ...int) manifest.RetryPolicy {
	return manifest.RetryPolicy{MaxRetries: max, BackoffSeconds: backoff}
}

// Priority returns the scheduling priority for a job type.
func Priority(t manifest.JobType) int {
	return classes[t].priority
}

// Decomposer emits the job list for a manifest.
type Decomposer struct {
	logger *zap.Logger
}

// NewDecomposer creates a decomposer.
func NewDecomposer(logger *zap.Logger) *Decomposer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decomposer{logger: logger}
}

// Decompose deterministically builds the job DAG. The manifest is not modified.
func (d *Decomposer) Decompose(m *manifest.ProductionManifest) []manifest.Job {
	var out []manifest.Job
	add := func(id string, t manifest.JobType, payload map[string]any, deps ...string) {
		c := classes[t]
		if deps == nil {
			deps = []string{}
		}
		out = append(out, manifest.Job{
			ID:        id,
			Type:      t,
			Payload:   payload,
			DependsOn: deps,
			Priority:  c.priority,
			Retry: manifest.RetryPolicy{
				MaxRetries:     c.retry.MaxRetries,
				BackoffSeconds: append([]int(nil), c.retry.BackoffSeconds...),
			},
		})
	}

	tts := m.Audio.TTS
	if tts == nil {
		tts = &manifest.TTSConfig{}
	}
	ttsIDs := map[string]string{}
	for _, scene := range m.Scenes {
		if !scene.HasNarration() {
			continue
		}
		id := "tts_" + scene.ID
		ttsIDs[scene.ID] = id
		add(id, manifest.JobTTS, map[string]any{
			"sceneId":     scene.ID,
			"text":        scene.Narration,
			"provider":    tts.Provider,
			"voice":       tts.Voice,
			"style":       tts.Style,
			"format":      tts.Format,
			"startSec":    scene.StartAtSec,
			"durationSec": scene.DurationSeconds,
		})
	}

	usage := assetUsage(m)
	chartAssets := map[string]bool{}
	for _, assetID := range m.SortedAssetIDs() {
		asset := m.Assets[assetID]
		if asset.Source != manifest.SourceGenerated || asset.Status != manifest.StatusPending {
			continue
		}
		jobType := GenerationType(asset.Kind)
		if jobType == manifest.JobChartGeneration {
			chartAssets[assetID] = true
		}
		add("gen_"+assetID, jobType, map[string]any{
			"resultAssetId": assetID,
			"kind":          string(asset.Kind),
			"prompt":        firstNonEmpty(asset.Prompt, asset.Description, m.Metadata.Title),
			"resolution":    m.Visual.Resolution,
			"style":         m.Visual.Style,
			"sceneIds":      usage[assetID].scenes,
			"durationSec":   usage[assetID].seconds,
		})
	}

	for _, scene := range m.Scenes {
		if !assemble.IsChartAnchor(scene.VisualHint) || coveredByChart(scene, chartAssets) {
			continue
		}
		add("chart_"+scene.ID, manifest.JobChartGeneration, map[string]any{
			"sceneId":     scene.ID,
			"description": scene.VisualHint,
			"overlay":     true,
			"resolution":  m.Visual.Resolution,
		})
	}

	for _, scene := range m.Scenes {
		ttsID, narrated := ttsIDs[scene.ID]
		if !narrated {
			continue
		}
		if assetID := userVisual(m, scene); assetID != "" {
			add("lipsync_"+scene.ID, manifest.JobLipSync, map[string]any{
				"sceneId": scene.ID,
				"assetId": assetID,
				"audioOf": ttsID,
			}, ttsID)
		}
	}

	cueIDs := m.SortedCueIDs()
	for i, cueID := range cueIDs {
		cue := m.Audio.Music[cueID]
		start := cue.StartSec
		if i == 0 {
			start = 0
		}
		end := m.Metadata.DurationSeconds
		if i+1 < len(cueIDs) {
			end = m.Audio.Music[cueIDs[i+1]].StartSec
		}
		add("music_"+cueID, manifest.JobMusicGeneration, map[string]any{
			"cueId":       cueID,
			"startSec":    start,
			"durationSec": math.Round(math.Max(0, end-start)*100) / 100,
			"mood":        firstNonEmpty(cue.Mood, m.Audio.MusicDefaults.Mood),
			"role":        cue.Role,
			"provider":    m.Audio.MusicDefaults.Provider,
			"description": cue.Description,
		})
	}

	starts := map[string]float64{}
	for _, scene := range m.Scenes {
		starts[scene.ID] = scene.StartAtSec
	}
	for _, sfx := range m.Audio.SoundEffects {
		add("sfx_"+sfx.ID, manifest.JobSFXGeneration, map[string]any{
			"soundId":     sfx.ID,
			"sceneId":     sfx.SceneID,
			"description": sfx.Description,
			"atSec":       math.Round((starts[sfx.SceneID]+sfx.AtSec)*100) / 100,
		})
	}

	deps := make([]string, 0, len(out))
	for _, job := range out {
		deps = append(deps, job.ID)
	}
	add(RenderJobID, manifest.JobRender, map[string]any{
		"manifestId":      m.Metadata.ManifestID,
		"aspectRatio":     m.Metadata.AspectRatio,
		"resolution":      m.Visual.Resolution,
		"fps":             m.Visual.FPS,
		"durationSeconds": m.Metadata.DurationSeconds,
		"sceneCount":      len(m.Scenes),
	}, deps...)

	d.logger.Info("jobs decomposed",
		zap.String("stage", "decompose"),
		zap.Int("jobs", len(out)),
		zap.Int("renderDeps", len(deps)))
	return out
}

// GenerationType maps an asset kind to the job that produces it.
func GenerationType(kind manifest.AssetKind) manifest.JobType {
	switch kind {
	case manifest.KindVideo:
		return manifest.JobVideoGeneration
	case manifest.KindChart:
		return manifest.JobChartGeneration
	case manifest.KindAudio:
		return manifest.JobSFXGeneration
	default:
		return manifest.JobImageGeneration
	}
}

type usageInfo struct {
	scenes  []string
	seconds float64
}

func assetUsage(m *manifest.ProductionManifest) map[string]usageInfo {
	out := map[string]usageInfo{}
	for _, scene := range m.Scenes {
		for _, v := range scene.Visuals {
			u := out[v.AssetID]
			u.scenes = append(u.scenes, scene.ID)
			u.seconds = math.Round((u.seconds+scene.DurationSeconds)*100) / 100
			out[v.AssetID] = u
		}
	}
	return out
}

// coveredByChart reports whether a chart-anchored scene already shows a
// pending generated chart asset, whose generation job draws the chart.
func coveredByChart(scene manifest.Scene, chartAssets map[string]bool) bool {
	for _, v := range scene.Visuals {
		if chartAssets[v.AssetID] {
			return true
		}
	}
	return false
}

func userVisual(m *manifest.ProductionManifest, scene manifest.Scene) string {
	for _, v := range scene.Visuals {
		if asset, ok := m.Assets[v.AssetID]; ok && asset.Source == manifest.SourceUser {
			return v.AssetID
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
