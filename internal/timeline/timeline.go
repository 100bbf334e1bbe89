// Package timeline assigns scene start offsets and durations so that scenes
// tile the production timeline.
package timeline

import (
	"math"

	"github.com/zhe.chen/manifest-compiler/internal/manifest"
)

// DefaultMinDuration is the clamp applied to non-positive scene durations.
const DefaultMinDuration = 1.0

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Normalize walks scenes in array order with a running cursor. A missing or
// negative start is set to the cursor; an explicit start is preserved even
// when it leaves a gap. Non-positive durations are clamped to minDuration.
func Normalize(m *manifest.ProductionManifest, minDuration float64) {
	if minDuration <= 0 {
		minDuration = DefaultMinDuration
	}
	cursor := 0.0
	for i := range m.Scenes {
		scene := &m.Scenes[i]
		if scene.StartAtSec < 0 {
			scene.StartAtSec = Round2(cursor)
		}
		if scene.DurationSeconds <= 0 {
			scene.DurationSeconds = minDuration
		}
		cursor = scene.StartAtSec + scene.DurationSeconds
	}
}

// Rescale scales scene durations so they sum to total, assigns sequential
// starts and folds rounding drift into the final scene. A zero sum yields an
// equal split.
func Rescale(m *manifest.ProductionManifest, total float64) {
	n := len(m.Scenes)
	if n == 0 || total <= 0 {
		return
	}

	weights := make([]float64, n)
	positive, sum := 0, 0.0
	for i, scene := range m.Scenes {
		if scene.DurationSeconds > 0 {
			weights[i] = scene.DurationSeconds
			sum += scene.DurationSeconds
			positive++
		}
	}
	// Scenes without a usable duration get the mean of the others, or an
	// equal share when none has one.
	fill := 1.0
	if positive > 0 {
		fill = sum / float64(positive)
	}
	for i := range weights {
		if weights[i] == 0 {
			weights[i] = fill
			sum += fill
		}
	}

	cursor := 0.0
	for i := range m.Scenes {
		scene := &m.Scenes[i]
		d := Round2(weights[i] * total / sum)
		if i == n-1 {
			d = Round2(total - cursor)
		}
		scene.StartAtSec = Round2(cursor)
		scene.DurationSeconds = d
		cursor = scene.StartAtSec + d
	}

	// Drift can leave the final scene non-positive when earlier scenes were
	// rounded up; give everything an equal split instead.
	if m.Scenes[n-1].DurationSeconds <= 0 {
		equalSplit(m, total)
	}
}

func equalSplit(m *manifest.ProductionManifest, total float64) {
	n := len(m.Scenes)
	share := Round2(total / float64(n))
	cursor := 0.0
	for i := range m.Scenes {
		d := share
		if i == n-1 {
			d = Round2(total - cursor)
		}
		m.Scenes[i].StartAtSec = Round2(cursor)
		m.Scenes[i].DurationSeconds = d
		cursor += d
	}
}

// Tiles reports whether scenes start at 0, do not overlap and end at total
// within tol.
func Tiles(m *manifest.ProductionManifest, total, tol float64) bool {
	if len(m.Scenes) == 0 {
		return false
	}
	cursor := 0.0
	for _, scene := range m.Scenes {
		if math.Abs(scene.StartAtSec-cursor) > tol || scene.DurationSeconds <= 0 {
			return false
		}
		cursor = scene.EndSec()
	}
	return math.Abs(cursor-total) <= tol
}
