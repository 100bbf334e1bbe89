package manifest

import (
	"encoding/json"
	"sort"
)

// SchemaVersion is the version of the manifest contract emitted by this compiler.
const SchemaVersion = "1.0.0"

// UnsetStart marks a scene whose start offset has not been assigned yet.
// Any negative start is treated the same way by the timeline normalizer.
const UnsetStart = -1.0

// Intent is the kind of media the manifest produces.
type Intent string

const (
	IntentVideo Intent = "video"
	IntentImage Intent = "image"
	IntentAudio Intent = "audio"
)

// Platform identifies the distribution target.
type Platform string

const (
	PlatformYouTube        Platform = "youtube"
	PlatformYouTubeShorts  Platform = "youtube_shorts"
	PlatformTikTok         Platform = "tiktok"
	PlatformInstagram      Platform = "instagram"
	PlatformInstagramReels Platform = "instagram_reels"
	PlatformLinkedIn       Platform = "linkedin"
	PlatformGeneric        Platform = "generic"
)

// Platforms lists every known platform.
func Platforms() []Platform {
	return []Platform{
		PlatformYouTube, PlatformYouTubeShorts, PlatformTikTok, PlatformInstagram,
		PlatformInstagramReels, PlatformLinkedIn, PlatformGeneric,
	}
}

// ShortForm reports whether the platform favours short vertical content.
func (p Platform) ShortForm() bool {
	switch p {
	case PlatformYouTubeShorts, PlatformTikTok, PlatformInstagramReels:
		return true
	default:
		return false
	}
}

// Scene purposes recognised by the enricher tables. Free-form purposes are allowed.
const (
	PurposeHook = "hook"
	PurposeBody = "body"
	PurposeCTA  = "cta"
)

// AssetSource is where an asset comes from.
type AssetSource string

const (
	SourceUser      AssetSource = "user"
	SourceGenerated AssetSource = "generated"
)

// AssetStatus tracks the production state of an asset.
type AssetStatus string

const (
	StatusPending    AssetStatus = "pending"
	StatusProcessing AssetStatus = "processing"
	StatusReady      AssetStatus = "ready"
	StatusFailed     AssetStatus = "failed"
)

// AssetKind describes the media type of an asset.
type AssetKind string

const (
	KindImage AssetKind = "image"
	KindVideo AssetKind = "video"
	KindChart AssetKind = "chart"
	KindAudio AssetKind = "audio"
)

// JobType is the fixed vocabulary of deferred work units.
type JobType string

const (
	JobTTS             JobType = "tts"
	JobImageGeneration JobType = "image_generation"
	JobVideoGeneration JobType = "video_generation"
	JobChartGeneration JobType = "chart_generation"
	JobLipSync         JobType = "lip_sync"
	JobMusicGeneration JobType = "music_generation"
	JobSFXGeneration   JobType = "sfx_generation"
	JobRender          JobType = "render"
)

// JobTypes lists every valid job type in a stable order.
func JobTypes() []JobType {
	return []JobType{
		JobTTS, JobImageGeneration, JobVideoGeneration, JobChartGeneration,
		JobLipSync, JobMusicGeneration, JobSFXGeneration, JobRender,
	}
}

// Music cue structural roles.
const (
	CueIntro  = "intro"
	CueBuild  = "build"
	CueClimax = "climax"
	CueOutro  = "outro"
)

// Enforcement modes for profile hard constraints.
const (
	EnforcementStrict   = "strict"
	EnforcementBalanced = "balanced"
	EnforcementCreative = "creative"
)

// Cinematic levels for effect enrichment.
const (
	CinematicBasic = "basic"
	CinematicPro   = "pro"
)

// ProductionManifest is the compiled production plan handed to downstream workers.
type ProductionManifest struct {
	SchemaVersion string           `json:"schemaVersion"`
	Metadata      Metadata         `json:"metadata"`
	Scenes        []Scene          `json:"scenes"`
	Assets        map[string]Asset `json:"assets"`
	Audio         AudioPlan        `json:"audio"`
	Visual        VisualPlan       `json:"visual"`
	Effects       EffectsPlan      `json:"effects"`
	Consistency   ConsistencyRules `json:"consistency"`
	Jobs          []Job            `json:"jobs"`
}

// Metadata holds the global production parameters.
type Metadata struct {
	ManifestID      string   `json:"manifestId"`
	Title           string   `json:"title"`
	Intent          Intent   `json:"intent" jsonschema:"enum=video,enum=image,enum=audio"`
	DurationSeconds float64  `json:"durationSeconds"`
	AspectRatio     string   `json:"aspectRatio"`
	Platform        Platform `json:"platform" jsonschema:"enum=youtube,enum=youtube_shorts,enum=tiktok,enum=instagram,enum=instagram_reels,enum=linkedin,enum=generic"`
	Language        string   `json:"language"`
	Profile         string   `json:"profile"`
	Priority        int      `json:"priority"`
	CinematicLevel  string   `json:"cinematicLevel" jsonschema:"enum=basic,enum=pro"`
	EnforcementMode string   `json:"enforcementMode" jsonschema:"enum=strict,enum=balanced,enum=creative"`
}

// Scene is a time-boxed segment of the production.
type Scene struct {
	ID              string         `json:"id"`
	StartAtSec      float64        `json:"startAtSec"`
	DurationSeconds float64        `json:"durationSeconds"`
	Purpose         string         `json:"purpose"`
	Narration       string         `json:"narration,omitempty"`
	VisualHint      string         `json:"visualHint,omitempty"`
	Visuals         []Visual       `json:"visuals"`
	Effects         *SceneEffects  `json:"effects,omitempty"`
	OrderingHint    int            `json:"orderingHint"`
	MusicCue        string         `json:"musicCue,omitempty"`
	Subtitles       []SubtitleSpan `json:"subtitles,omitempty"`
}

// UnmarshalJSON decodes a scene, leaving the start unset when the key is absent.
func (s *Scene) UnmarshalJSON(data []byte) error {
	type sceneAlias Scene
	decoded := sceneAlias{StartAtSec: UnsetStart}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*s = Scene(decoded)
	return nil
}

// EndSec returns the exclusive end of the scene on the timeline.
func (s Scene) EndSec() float64 {
	return s.StartAtSec + s.DurationSeconds
}

// HasNarration reports whether the scene has spoken text.
func (s Scene) HasNarration() bool {
	for _, r := range s.Narration {
		if r != ' ' && r != '\t' && r != '\n' {
			return true
		}
	}
	return false
}

// Visual binds a scene to an asset.
type Visual struct {
	AssetID string `json:"assetId"`
	Role    string `json:"role"`
	Prompt  string `json:"prompt,omitempty"`
}

// SceneEffects is the layered effect stack of a scene. A non-nil value on a
// scene is treated as explicitly set.
type SceneEffects struct {
	Layers      []EffectLayer `json:"layers"`
	Transitions []string      `json:"transitions"`
	ColorGrade  string        `json:"colorGrade,omitempty"`
}

// EffectIDs returns every effect identifier referenced by the stack.
func (e *SceneEffects) EffectIDs() []string {
	if e == nil {
		return nil
	}
	ids := make([]string, 0, len(e.Layers)+len(e.Transitions))
	for _, layer := range e.Layers {
		ids = append(ids, layer.Effect)
	}
	ids = append(ids, e.Transitions...)
	return ids
}

// Clone returns a deep copy of the effect stack.
func (e *SceneEffects) Clone() *SceneEffects {
	if e == nil {
		return nil
	}
	out := &SceneEffects{ColorGrade: e.ColorGrade}
	if e.Layers != nil {
		out.Layers = append([]EffectLayer(nil), e.Layers...)
	}
	if e.Transitions != nil {
		out.Transitions = append([]string(nil), e.Transitions...)
	}
	return out
}

// EffectLayer is one effect in a scene's layer stack, applied in Order.
type EffectLayer struct {
	Effect    string  `json:"effect"`
	Order     int     `json:"order"`
	Intensity float64 `json:"intensity"`
}

// SubtitleSpan is a caption window in absolute timeline seconds.
type SubtitleSpan struct {
	StartSec float64 `json:"startSec"`
	EndSec   float64 `json:"endSec"`
	Text     string  `json:"text"`
}

// Asset is a referenced or to-be-generated media unit.
type Asset struct {
	ID          string      `json:"id"`
	Kind        AssetKind   `json:"kind" jsonschema:"enum=image,enum=video,enum=chart,enum=audio"`
	Source      AssetSource `json:"source" jsonschema:"enum=user,enum=generated"`
	Status      AssetStatus `json:"status" jsonschema:"enum=pending,enum=processing,enum=ready,enum=failed"`
	URL         string      `json:"url,omitempty"`
	Description string      `json:"description,omitempty"`
	Prompt      string      `json:"prompt,omitempty"`
}

// AudioPlan holds narration and music settings.
type AudioPlan struct {
	TTS           *TTSConfig          `json:"tts,omitempty"`
	Music         map[string]MusicCue `json:"music"`
	MusicDefaults MusicDefaults       `json:"musicDefaults"`
	SoundEffects  []SoundEffect       `json:"soundEffects,omitempty"`
}

// TTSConfig is the text-to-speech provider block.
type TTSConfig struct {
	Provider string `json:"provider"`
	Voice    string `json:"voice"`
	Style    string `json:"style"`
	Format   string `json:"format"`
}

// MusicCue places a music segment on the timeline.
type MusicCue struct {
	ID          string  `json:"id"`
	StartSec    float64 `json:"startSec"`
	DurationSec float64 `json:"durationSec,omitempty"`
	Mood        string  `json:"mood"`
	Role        string  `json:"role" jsonschema:"enum=intro,enum=build,enum=climax,enum=outro"`
	SceneID     string  `json:"sceneId,omitempty"`
	Description string  `json:"description,omitempty"`
}

// MusicDefaults configures generated music when no cue overrides it.
type MusicDefaults struct {
	Provider string `json:"provider"`
	Mood     string `json:"mood"`
}

// SoundEffect is a one-shot sound placed in a scene. AtSec is the offset from
// the scene start.
type SoundEffect struct {
	ID          string  `json:"id"`
	SceneID     string  `json:"sceneId"`
	AtSec       float64 `json:"atSec"`
	Description string  `json:"description"`
}

// VisualPlan holds global look settings.
type VisualPlan struct {
	Style      string   `json:"style"`
	Resolution string   `json:"resolution"`
	FPS        int      `json:"fps"`
	Palette    []string `json:"palette,omitempty"`
}

// EffectsPlan is the effect vocabulary for this manifest.
type EffectsPlan struct {
	Allowed           []string                `json:"allowed"`
	DefaultTransition string                  `json:"defaultTransition"`
	Overrides         map[string]SceneEffects `json:"overrides,omitempty"`
}

// IsAllowed reports whether id is part of the allowed vocabulary.
func (e EffectsPlan) IsAllowed(id string) bool {
	for _, allowed := range e.Allowed {
		if allowed == id {
			return true
		}
	}
	return false
}

// ConsistencyRules carries the creative profile and its hard constraints.
type ConsistencyRules struct {
	Profile         string          `json:"profile"`
	EnforcementMode string          `json:"enforcementMode"`
	HardConstraints HardConstraints `json:"hardConstraints"`
}

// HardConstraints are a profile's non-overridable limits.
type HardConstraints struct {
	Palette            []string `json:"palette,omitempty"`
	ForbiddenEffects   []string `json:"forbiddenEffects,omitempty"`
	MaxEffectsPerScene int      `json:"maxEffectsPerScene,omitempty"`
	Pacing             string   `json:"pacing,omitempty"`
	AudioStyle         string   `json:"audioStyle,omitempty"`
}

// Forbids reports whether the effect is banned by the constraints.
func (h HardConstraints) Forbids(effect string) bool {
	for _, f := range h.ForbiddenEffects {
		if f == effect {
			return true
		}
	}
	return false
}

// Job is a unit of deferred execution for the worker pool.
type Job struct {
	ID        string         `json:"id"`
	Type      JobType        `json:"type" jsonschema:"enum=tts,enum=image_generation,enum=video_generation,enum=chart_generation,enum=lip_sync,enum=music_generation,enum=sfx_generation,enum=render"`
	Payload   map[string]any `json:"payload"`
	DependsOn []string       `json:"dependsOn"`
	Priority  int            `json:"priority"`
	Retry     RetryPolicy    `json:"retry"`
}

// ResultAssetID returns the asset a job declares as its output, if any.
func (j Job) ResultAssetID() string {
	if j.Payload == nil {
		return ""
	}
	id, _ := j.Payload["resultAssetId"].(string)
	return id
}

// RetryPolicy bounds job retries for the external executor.
type RetryPolicy struct {
	MaxRetries     int   `json:"maxRetries"`
	BackoffSeconds []int `json:"backoffSeconds"`
}

// New returns an empty manifest with every container initialised.
func New() *ProductionManifest {
	return &ProductionManifest{
		SchemaVersion: SchemaVersion,
		Scenes:        []Scene{},
		Assets:        map[string]Asset{},
		Audio:         AudioPlan{Music: map[string]MusicCue{}},
		Jobs:          []Job{},
	}
}

// TotalSceneDuration sums the durations of all scenes.
func (m *ProductionManifest) TotalSceneDuration() float64 {
	var total float64
	for _, scene := range m.Scenes {
		total += scene.DurationSeconds
	}
	return total
}

// SortedAssetIDs returns the asset ids in lexical order.
func (m *ProductionManifest) SortedAssetIDs() []string {
	ids := make([]string, 0, len(m.Assets))
	for id := range m.Assets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SortedCueIDs returns music cue ids ordered by start offset, then id.
func (m *ProductionManifest) SortedCueIDs() []string {
	ids := make([]string, 0, len(m.Audio.Music))
	for id := range m.Audio.Music {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := m.Audio.Music[ids[i]], m.Audio.Music[ids[j]]
		if a.StartSec != b.StartSec {
			return a.StartSec < b.StartSec
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Clone returns a deep copy of the manifest through its JSON form.
func (m *ProductionManifest) Clone() (*ProductionManifest, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var out ProductionManifest
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
