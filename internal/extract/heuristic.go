package extract

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zhe.chen/manifest-compiler/internal/effects"
)

const (
	hookWeight = 0.8
	bodyWeight = 1.2

	maxBlocks         = 3
	maxInputBytes     = 256 << 10
	maxNarrationRunes = 600
	maxAnchorWords    = 8
)

var (
	sceneHeaderRe = regexp.MustCompile(`(?im)^[ \t]*(?:#{1,6}[ \t]*)?(?:\*\*)?scene[ \t]+(\d+)(?:\*\*)?[ \t]*(?:[:.)\-–—]+[ \t]*)?([^\n]*)$`)
	headingRe     = regexp.MustCompile(`(?m)^[ \t]*(#{1,6})[ \t]+(\S[^\n]*)$`)
	paragraphRe   = regexp.MustCompile(`\n[ \t]*\n`)
	directiveRe   = regexp.MustCompile(`(?i)^[ \t]*[-*>]?[ \t]*(?:\*\*)?(narration|voice[ -]?over|vo|script|visuals?|shot|image|b-roll|broll|footage|music|soundtrack|score|sfx|sound effects?|sound|effects?|fx|transition|purpose|type)(?:\*\*)?[ \t]*[:–—][ \t]*(.*)$`)
	globalLineRe  = regexp.MustCompile(`(?i)^[ \t]*[-*]?[ \t]*(?:\*\*)?(title|duration|length|voice|narrator|profile|style|tone|platform|aspect ratio|language)(?:\*\*)?[ \t]*[:–—][ \t]*(.*)$`)
	quotedRe      = regexp.MustCompile(`["“]([^"”\n]{3,})["”]`)
	bracketSFXRe  = regexp.MustCompile(`(?i)\[(?:sfx|sound)[ \t]*:[ \t]*([^\]\n]{2,40})\]`)
	durationRe    = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)[ \t]*(s|secs?|seconds?|m|mins?|minutes?)?\b`)
	clauseRe      = regexp.MustCompile(`[^.!?\n]+[.!?]`)
	inlineDurRe   = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)[ \t-]*(seconds?|secs?|minutes?|mins?)[ \t-]+(?:video|spot|ad|clip|reel|short|promo|explainer|piece)\b`)
)

// visualKeywords are scanned in order when a block has no explicit visual line.
var visualKeywords = []string{
	"laptop", "chart", "graph", "dashboard", "cinematic", "city", "skyline", "office",
	"product", "phone", "smartphone", "team", "logo", "drone", "sunset", "beach",
	"mountain", "kitchen", "screen", "desk", "coffee", "crowd", "studio", "footage",
	"timelapse", "data",
}

var visualKeywordRes = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(visualKeywords))
	for i, kw := range visualKeywords {
		out[i] = regexp.MustCompile(`(?i)\b` + kw + `s?\b`)
	}
	return out
}()

// Heuristic is the pattern-matching extractor. It never fails.
type Heuristic struct {
	tables *effects.Tables
}

// NewHeuristic creates a heuristic extractor using the effect taxonomy for
// keyword matching.
func NewHeuristic(tables *effects.Tables) *Heuristic {
	if tables == nil {
		tables = effects.DefaultTables()
	}
	return &Heuristic{tables: tables}
}

// Extract implements Extractor.
func (h *Heuristic) Extract(_ context.Context, text string, _ []json.RawMessage) (*Intermediate, error) {
	return h.Parse(text), nil
}

// Parse segments the treatment and extracts per-block fields.
func (h *Heuristic) Parse(text string) *Intermediate {
	text = strings.ReplaceAll(clip(text), "\r\n", "\n")

	out := &Intermediate{}
	h.parseGlobals(text, out)

	if !usable(text) {
		out.Scenes = []IntermediateScene{{Purpose: "body", DurationWeight: bodyWeight}}
		return out
	}

	blocks := segment(text)
	if len(blocks) == 0 {
		blocks = []block{{body: text}}
	}

	for i, b := range blocks {
		out.Scenes = append(out.Scenes, h.parseBlock(b, i, len(blocks)))
	}
	return out
}

// clip bounds the input to maxInputBytes on a rune boundary and replaces
// invalid UTF-8 with spaces.
func clip(text string) string {
	if n := maxInputBytes; len(text) > n {
		for n > 0 && !utf8.RuneStart(text[n]) {
			n--
		}
		text = text[:n]
	}
	return strings.ToValidUTF8(text, " ")
}

// usable reports whether text has enough structure to extract scenes from.
// Anything else is noise and yields an empty intermediate.
func usable(text string) bool {
	if !hasWordContent(text) {
		return false
	}
	if sceneHeaderRe.MatchString(text) || headingRe.MatchString(text) {
		return true
	}
	body := stripGlobalLines(text)
	for _, line := range strings.Split(body, "\n") {
		if directiveRe.MatchString(line) {
			return true
		}
	}
	for _, re := range visualKeywordRes {
		if re.MatchString(body) {
			return true
		}
	}
	clauses := 0
	for _, c := range clauseRe.FindAllString(body, -1) {
		switch n := wordCount(c); {
		case n >= 4:
			return true
		case n >= 2:
			clauses++
		}
	}
	return clauses >= 2
}

func wordCount(s string) int {
	n := 0
	for _, f := range strings.Fields(s) {
		if hasWordContent(f) {
			n++
		}
	}
	return n
}

type block struct {
	label string
	body  string
}

func segment(text string) []block {
	if locs := sceneHeaderRe.FindAllStringSubmatchIndex(text, -1); len(locs) > 0 {
		blocks := make([]block, 0, len(locs))
		for i, loc := range locs {
			end := len(text)
			if i+1 < len(locs) {
				end = locs[i+1][0]
			}
			rest := strings.TrimSpace(text[loc[4]:loc[5]])
			body := text[loc[1]:end]
			label := ""
			if purposeLabel(rest) != "" {
				label = rest
			} else if rest != "" {
				body = rest + "\n" + body
			}
			blocks = append(blocks, block{label: label, body: body})
		}
		return blocks
	}

	if locs := sectionHeadings(text); len(locs) > 0 {
		blocks := make([]block, 0, len(locs))
		for i, loc := range locs {
			end := len(text)
			if i+1 < len(locs) {
				end = locs[i+1][0]
			}
			label := strings.TrimSpace(text[loc[4]:loc[5]])
			blocks = append(blocks, block{label: label, body: text[loc[1]:end]})
		}
		return blocks
	}

	var paragraphs []string
	for _, p := range paragraphRe.Split(text, -1) {
		if content := stripGlobalLines(p); hasWordContent(content) {
			paragraphs = append(paragraphs, content)
		}
	}
	return groupParagraphs(paragraphs)
}

// sectionHeadings returns markdown heading matches, skipping a leading
// level-1 heading that acts as the document title.
func sectionHeadings(text string) [][]int {
	locs := headingRe.FindAllStringSubmatchIndex(text, -1)
	if len(locs) > 0 && locs[0][3]-locs[0][2] == 1 && strings.TrimSpace(text[:locs[0][0]]) == "" {
		locs = locs[1:]
	}
	return locs
}

func groupParagraphs(paragraphs []string) []block {
	if len(paragraphs) <= maxBlocks {
		blocks := make([]block, len(paragraphs))
		for i, p := range paragraphs {
			blocks[i] = block{body: p}
		}
		return blocks
	}
	last := len(paragraphs) - 1
	return []block{
		{body: paragraphs[0]},
		{body: strings.Join(paragraphs[1:last], "\n\n")},
		{body: paragraphs[last]},
	}
}

func (h *Heuristic) parseBlock(b block, index, total int) IntermediateScene {
	var (
		narration []string
		visuals   []string
		music     []string
		sfx       []string
		effectTxt []string
		prose     []string
		purpose   = purposeLabel(b.label)
	)

	for _, line := range strings.Split(b.body, "\n") {
		if globalLineRe.MatchString(line) {
			continue
		}
		m := directiveRe.FindStringSubmatch(line)
		if m == nil {
			if trimmed := cleanLine(line); trimmed != "" {
				prose = append(prose, trimmed)
			}
			continue
		}
		value := cleanLine(m[2])
		switch key := strings.ToLower(m[1]); {
		case key == "narration" || key == "vo" || key == "script" || strings.HasPrefix(key, "voice"):
			narration = append(narration, unquote(value))
		case strings.HasPrefix(key, "visual") || key == "shot" || key == "image" || key == "b-roll" || key == "broll" || key == "footage":
			visuals = append(visuals, value)
		case key == "music" || key == "soundtrack" || key == "score":
			music = append(music, value)
		case key == "sfx" || strings.HasPrefix(key, "sound"):
			sfx = append(sfx, splitList(value)...)
		case strings.HasPrefix(key, "effect") || key == "fx" || key == "transition":
			effectTxt = append(effectTxt, value)
		case key == "purpose" || key == "type":
			if p := purposeLabel(value); p != "" {
				purpose = p
			}
		}
	}

	for _, m := range bracketSFXRe.FindAllStringSubmatch(b.body, -1) {
		sfx = append(sfx, strings.TrimSpace(m[1]))
	}

	scene := IntermediateScene{
		Narration: narrationFrom(narration, prose),
		MusicCue:  strings.Join(music, "; "),
	}
	if len(sfx) > 0 {
		scene.SoundEffects = sfx
	}

	effectSource := strings.Join(append(effectTxt, b.body), "\n")
	scene.Effects = h.tables.MatchEffects(effectSource)

	if len(visuals) > 0 {
		scene.VisualAnchor = strings.Join(visuals, "; ")
	} else {
		scene.VisualAnchor = keywordAnchor(b.body)
		if scene.VisualAnchor == "" {
			scene.VisualAnchor = firstWords(scene.Narration, maxAnchorWords)
		}
	}

	if purpose == "" {
		purpose = positionalPurpose(index, total)
	}
	scene.Purpose = purpose
	scene.DurationWeight = DefaultWeight(purpose)
	return scene
}

func (h *Heuristic) parseGlobals(text string, out *Intermediate) {
	for _, line := range strings.Split(text, "\n") {
		m := globalLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		value := cleanLine(m[2])
		switch strings.ToLower(m[1]) {
		case "title":
			if out.Title == "" {
				out.Title = value
			}
		case "duration", "length":
			if out.TotalDurationSeconds == 0 {
				out.TotalDurationSeconds = parseDuration(value)
			}
		case "voice", "narrator":
			if out.Voice == "" {
				out.Voice = value
			}
		case "profile", "style", "tone":
			if out.Profile == "" {
				if fields := strings.Fields(strings.ToLower(value)); len(fields) > 0 {
					out.Profile = strings.Trim(fields[0], ".,;")
				}
			}
		case "platform":
			if out.Platform == "" {
				out.Platform = value
			}
		case "aspect ratio":
			if out.AspectRatio == "" {
				out.AspectRatio = value
			}
		case "language":
			if out.Language == "" {
				out.Language = value
			}
		}
	}

	if out.Title == "" {
		if m := headingRe.FindStringSubmatch(text); m != nil && len(m[1]) == 1 && !sceneHeaderRe.MatchString(m[0]) {
			out.Title = cleanLine(m[2])
		}
	}
	if out.TotalDurationSeconds == 0 {
		if m := inlineDurRe.FindStringSubmatch(text); m != nil {
			out.TotalDurationSeconds = parseDuration(m[1] + " " + m[2])
		}
	}
}

func parseDuration(value string) float64 {
	m := durationRe.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return 0
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil || n <= 0 {
		return 0
	}
	if unit := strings.ToLower(m[2]); unit != "" && unit[0] == 'm' {
		n *= 60
	}
	return n
}

func purposeLabel(label string) string {
	l := strings.ToLower(strings.Trim(strings.TrimSpace(label), "*#:.-()[] "))
	switch l {
	case "hook", "intro", "opening", "opener":
		return "hook"
	case "cta", "call to action", "call-to-action", "outro", "closing", "close", "ending":
		return "cta"
	case "body", "main", "middle", "content", "demo":
		return "body"
	}
	return ""
}

func positionalPurpose(index, total int) string {
	switch {
	case total > 1 && index == 0:
		return "hook"
	case total > 2 && index == total-1:
		return "cta"
	default:
		return "body"
	}
}

func narrationFrom(explicit, prose []string) string {
	var text string
	switch {
	case len(explicit) > 0:
		text = strings.Join(explicit, " ")
	default:
		joined := strings.Join(prose, " ")
		if quotes := quotedRe.FindAllStringSubmatch(joined, -1); len(quotes) > 0 {
			parts := make([]string, 0, len(quotes))
			for _, q := range quotes {
				parts = append(parts, strings.TrimSpace(q[1]))
			}
			text = strings.Join(parts, " ")
		} else {
			text = joined
		}
	}
	text = strings.Join(strings.Fields(text), " ")
	if !hasWordContent(text) {
		return ""
	}
	if runes := []rune(text); len(runes) > maxNarrationRunes {
		text = strings.TrimSpace(string(runes[:maxNarrationRunes]))
	}
	return text
}

func keywordAnchor(text string) string {
	var found []string
	for i, re := range visualKeywordRes {
		if re.MatchString(text) {
			found = append(found, visualKeywords[i])
		}
	}
	return strings.Join(found, " ")
}

func stripGlobalLines(paragraph string) string {
	var kept []string
	for _, line := range strings.Split(paragraph, "\n") {
		if globalLineRe.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func cleanLine(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "-*>• \t")
	line = strings.ReplaceAll(line, "**", "")
	return strings.TrimSpace(line)
}

func unquote(s string) string {
	return strings.Trim(s, `"“”'`)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Trim(strings.Join(words, " "), ".,;:!?")
}

func hasWordContent(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
