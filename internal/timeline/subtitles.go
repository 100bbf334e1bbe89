package timeline

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/zhe.chen/manifest-compiler/internal/manifest"
)

var sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]*`)

// DeriveSubtitles recomputes subtitle spans for every narrated scene. Each
// sentence gets a share of the scene window proportional to its length.
func DeriveSubtitles(m *manifest.ProductionManifest) {
	for i := range m.Scenes {
		scene := &m.Scenes[i]
		scene.Subtitles = nil
		if !scene.HasNarration() || scene.DurationSeconds <= 0 {
			continue
		}

		sentences := splitSentences(scene.Narration)
		total := 0
		for _, s := range sentences {
			total += utf8.RuneCountInString(s)
		}
		if total == 0 {
			continue
		}

		start := scene.StartAtSec
		end := scene.EndSec()
		cursor := start
		spans := make([]manifest.SubtitleSpan, 0, len(sentences))
		for j, s := range sentences {
			spanEnd := cursor + scene.DurationSeconds*float64(utf8.RuneCountInString(s))/float64(total)
			if j == len(sentences)-1 {
				spanEnd = end
			}
			spans = append(spans, manifest.SubtitleSpan{
				StartSec: Round2(cursor),
				EndSec:   Round2(spanEnd),
				Text:     s,
			})
			cursor = spanEnd
		}
		scene.Subtitles = spans
	}
}

func splitSentences(text string) []string {
	var out []string
	for _, s := range sentenceRe.FindAllString(text, -1) {
		if s = strings.TrimSpace(s); s != "" && strings.Trim(s, ".!? ") != "" {
			out = append(out, s)
		}
	}
	return out
}
