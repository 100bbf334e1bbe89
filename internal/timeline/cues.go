package timeline

import (
	"math"

	"github.com/zhe.chen/manifest-compiler/internal/manifest"
)

// AlignCues moves scene-anchored music cues to their scene's start, clamps
// free cues into the timeline and stretches each cue to the next one so the
// cues cover the timeline from the first cue to the end.
func AlignCues(m *manifest.ProductionManifest) {
	if len(m.Audio.Music) == 0 {
		return
	}
	total := m.Metadata.DurationSeconds
	starts := make(map[string]float64, len(m.Scenes))
	for _, scene := range m.Scenes {
		starts[scene.ID] = scene.StartAtSec
	}

	for id, cue := range m.Audio.Music {
		if start, ok := starts[cue.SceneID]; ok && start >= 0 {
			cue.StartSec = start
		}
		cue.StartSec = Round2(math.Max(0, math.Min(cue.StartSec, total)))
		m.Audio.Music[id] = cue
	}

	ids := m.SortedCueIDs()
	for i, id := range ids {
		cue := m.Audio.Music[id]
		end := total
		if i+1 < len(ids) {
			end = m.Audio.Music[ids[i+1]].StartSec
		}
		cue.DurationSec = Round2(math.Max(0, end-cue.StartSec))
		m.Audio.Music[id] = cue
	}
}
