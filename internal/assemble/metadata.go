package assemble

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/text/language"

	"github.com/zhe.chen/manifest-compiler/internal/extract"
	"github.com/zhe.chen/manifest-compiler/internal/manifest"
)

// Defaults are the last-resort values used when neither the caller, the
// upstream hints nor the treatment provide a field.
type Defaults struct {
	Title           string
	DurationSeconds float64
	AspectRatio     string
	Language        string
	Profile         string
	CinematicLevel  string
	Priority        int
	MinSceneSeconds float64
	FPS             int
	TTSProvider     string
	TTSVoice        string
	TTSFormat       string
	MusicProvider   string
}

// DefaultDefaults returns the built-in defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		Title:           "Untitled production",
		DurationSeconds: 60,
		AspectRatio:     "16:9",
		Language:        "en",
		Profile:         "default",
		CinematicLevel:  manifest.CinematicBasic,
		Priority:        5,
		MinSceneSeconds: 0.05,
		FPS:             30,
		TTSProvider:     "default",
		TTSVoice:        "neutral",
		TTSFormat:       "mp3",
		MusicProvider:   "default",
	}
}

// WithFallbacks fills every unset field from DefaultDefaults.
func (d Defaults) WithFallbacks() Defaults {
	base := DefaultDefaults()
	if strings.TrimSpace(d.Title) == "" {
		d.Title = base.Title
	}
	if d.DurationSeconds <= 0 {
		d.DurationSeconds = base.DurationSeconds
	}
	if !aspectRe.MatchString(d.AspectRatio) {
		d.AspectRatio = base.AspectRatio
	}
	if d.Language == "" {
		d.Language = base.Language
	}
	if d.Profile == "" {
		d.Profile = base.Profile
	}
	if d.CinematicLevel != manifest.CinematicPro {
		d.CinematicLevel = manifest.CinematicBasic
	}
	if d.MinSceneSeconds <= 0 {
		d.MinSceneSeconds = base.MinSceneSeconds
	}
	if d.FPS <= 0 {
		d.FPS = base.FPS
	}
	if d.TTSProvider == "" {
		d.TTSProvider = base.TTSProvider
	}
	if d.TTSVoice == "" {
		d.TTSVoice = base.TTSVoice
	}
	if d.TTSFormat == "" {
		d.TTSFormat = base.TTSFormat
	}
	if d.MusicProvider == "" {
		d.MusicProvider = base.MusicProvider
	}
	return d
}

// Overrides are explicit caller inputs. Zero values mean "not provided".
type Overrides struct {
	Title           string            `json:"title,omitempty" yaml:"title"`
	DurationSeconds float64           `json:"durationSeconds,omitempty" yaml:"durationSeconds"`
	AspectRatio     string            `json:"aspectRatio,omitempty" yaml:"aspectRatio"`
	Platform        manifest.Platform `json:"platform,omitempty" yaml:"platform"`
	Language        string            `json:"language,omitempty" yaml:"language"`
	Profile         string            `json:"profile,omitempty" yaml:"profile"`
	CinematicLevel  string            `json:"cinematicLevel,omitempty" yaml:"cinematicLevel"`
}

var aspectRe = regexp.MustCompile(`^\s*(\d{1,2})\s*[:x/]\s*(\d{1,2})\s*$`)

// hintPaths lists the gjson paths probed in each hint object, in order.
var hintPaths = map[string][]string{
	"title":          {"title", "metadata.title"},
	"duration":       {"durationSeconds", "duration", "totalDurationSeconds", "metadata.durationSeconds"},
	"aspectRatio":    {"aspectRatio", "aspect_ratio", "aspect", "metadata.aspectRatio"},
	"platform":       {"platform", "targetPlatform", "metadata.platform"},
	"language":       {"language", "lang", "locale", "metadata.language"},
	"profile":        {"profile", "style", "metadata.profile"},
	"cinematicLevel": {"cinematicLevel", "cinematic_level", "metadata.cinematicLevel"},
	"priority":       {"priority", "metadata.priority"},
}

// hint returns the first non-empty value for key across all valid hints.
func hint(hints []json.RawMessage, key string) gjson.Result {
	for _, raw := range hints {
		if !gjson.ValidBytes(raw) {
			continue
		}
		for _, r := range gjson.GetManyBytes(raw, hintPaths[key]...) {
			if r.Exists() && r.Type != gjson.Null && strings.TrimSpace(r.String()) != "" {
				return r
			}
		}
	}
	return gjson.Result{}
}

// ResolveMetadata resolves every metadata field by preferring the caller
// override, then the upstream hints, then the intermediate, then defaults.
func (a *Assembler) ResolveMetadata(text string, in *extract.Intermediate, hints []json.RawMessage, ov Overrides) manifest.Metadata {
	if in == nil {
		in = &extract.Intermediate{}
	}
	d := a.defaults

	meta := manifest.Metadata{
		Intent:   manifest.IntentVideo,
		Priority: d.Priority,
	}

	meta.Title = firstString(ov.Title, hint(hints, "title").String(), in.Title, d.Title)

	meta.DurationSeconds = d.DurationSeconds
	switch {
	case ov.DurationSeconds > 0:
		meta.DurationSeconds = ov.DurationSeconds
	case positive(hint(hints, "duration")):
		meta.DurationSeconds = hint(hints, "duration").Float()
	case in.TotalDurationSeconds > 0:
		meta.DurationSeconds = in.TotalDurationSeconds
	}
	// A positive duration never rounds away to zero.
	meta.DurationSeconds = math.Max(math.Round(meta.DurationSeconds*100)/100, d.MinSceneSeconds)

	profileName := firstString(ov.Profile, hint(hints, "profile").String(), in.Profile)
	if _, known := a.tables.Profiles[strings.ToLower(profileName)]; !known {
		profileName = d.Profile
	}
	profile := a.tables.Profile(profileName)
	meta.Profile = profile.Name
	meta.EnforcementMode = profile.Enforcement

	aspect := firstValid(ParseAspect, ov.AspectRatio, hint(hints, "aspectRatio").String(), in.AspectRatio)
	var platform manifest.Platform
	for _, name := range []string{string(ov.Platform), hint(hints, "platform").String(), in.Platform} {
		if platform, _ = ParsePlatform(name); platform != "" {
			break
		}
	}
	switch {
	case platform != "":
	case aspect != "":
		platform = PlatformForAspect(aspect)
	case profile.DefaultPlatform != "":
		platform = profile.DefaultPlatform
	default:
		platform = PlatformForAspect(d.AspectRatio)
	}
	if aspect == "" {
		aspect = AspectForPlatform(platform, d.AspectRatio)
	}
	meta.AspectRatio = aspect
	meta.Platform = platform

	meta.Language = firstValid(CanonicalLanguage, ov.Language, hint(hints, "language").String(), in.Language, d.Language)
	if meta.Language == "" {
		meta.Language = "en"
	}

	meta.CinematicLevel = d.CinematicLevel
	for _, level := range []string{ov.CinematicLevel, hint(hints, "cinematicLevel").String()} {
		if level = strings.ToLower(strings.TrimSpace(level)); level == manifest.CinematicBasic || level == manifest.CinematicPro {
			meta.CinematicLevel = level
			break
		}
	}

	if p := hint(hints, "priority"); p.Exists() && p.Int() > 0 {
		meta.Priority = int(p.Int())
	}

	meta.ManifestID = ManifestID(text, meta)
	return meta
}

// ManifestID derives a name-based UUID from the treatment and the resolved
// metadata so identical input yields the same id.
func ManifestID(text string, meta manifest.Metadata) string {
	key := fmt.Sprintf("%s|%s|%.2f|%s|%s|%s|%s|%s",
		text, meta.Title, meta.DurationSeconds, meta.AspectRatio, meta.Platform,
		meta.Language, meta.Profile, meta.CinematicLevel)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

// ParseAspect normalises "9x16", "9/16" and "9:16" to "9:16".
func ParseAspect(s string) string {
	m := aspectRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	if w == 0 || h == 0 {
		return ""
	}
	return fmt.Sprintf("%d:%d", w, h)
}

// ParsePlatform maps a free-form platform name to a known platform.
func ParsePlatform(s string) (manifest.Platform, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	switch key {
	case "":
		return "", false
	case "shorts", "yt_shorts":
		return manifest.PlatformYouTubeShorts, true
	case "reels", "ig_reels":
		return manifest.PlatformInstagramReels, true
	case "ig", "insta":
		return manifest.PlatformInstagram, true
	case "yt":
		return manifest.PlatformYouTube, true
	case "tik_tok":
		return manifest.PlatformTikTok, true
	}
	for _, p := range manifest.Platforms() {
		if string(p) == key {
			return p, true
		}
	}
	return "", false
}

// PlatformForAspect picks the default platform for an aspect ratio.
func PlatformForAspect(aspect string) manifest.Platform {
	switch ParseAspect(aspect) {
	case "9:16":
		return manifest.PlatformTikTok
	case "1:1", "4:5":
		return manifest.PlatformInstagram
	default:
		return manifest.PlatformYouTube
	}
}

// AspectForPlatform picks the default aspect ratio for a platform.
func AspectForPlatform(p manifest.Platform, fallback string) string {
	switch {
	case p.ShortForm():
		return "9:16"
	case p == manifest.PlatformInstagram:
		return "1:1"
	case p == manifest.PlatformYouTube || p == manifest.PlatformLinkedIn:
		return "16:9"
	}
	if a := ParseAspect(fallback); a != "" {
		return a
	}
	return "16:9"
}

// ResolutionFor returns the render resolution for an aspect ratio with a
// 1080 pixel short edge.
func ResolutionFor(aspect string) string {
	m := aspectRe.FindStringSubmatch(aspect)
	if m == nil {
		return "1920x1080"
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	if w <= 0 || h <= 0 {
		return "1920x1080"
	}
	if w >= h {
		return fmt.Sprintf("%dx1080", even(1080*w/h))
	}
	return fmt.Sprintf("1080x%d", even(1080*h/w))
}

func even(n int) int {
	return n &^ 1
}

// CanonicalLanguage returns the BCP 47 form of tag, or "" when it does not parse.
func CanonicalLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	t, err := language.Parse(strings.ReplaceAll(tag, "_", "-"))
	if err != nil || t == language.Und {
		return ""
	}
	return t.String()
}

func firstString(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstValid(parse func(string) string, values ...string) string {
	for _, v := range values {
		if out := parse(v); out != "" {
			return out
		}
	}
	return ""
}

func positive(r gjson.Result) bool {
	return r.Exists() && r.Float() > 0
}
