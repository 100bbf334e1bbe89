package extract

import (
	"context"
	"encoding/json"
	"strings"
)

// Intermediate is the unvalidated scene structure produced by an extractor.
type Intermediate struct {
	Title                string              `json:"title"`
	TotalDurationSeconds float64             `json:"totalDurationSeconds"`
	Scenes               []IntermediateScene `json:"scenes"`
	Voice                string              `json:"voice"`
	Profile              string              `json:"profile"`
	Platform             string              `json:"platform,omitempty"`
	AspectRatio          string              `json:"aspectRatio,omitempty"`
	Language             string              `json:"language,omitempty"`
}

// IntermediateScene is one scene block with a relative duration weight.
type IntermediateScene struct {
	Purpose        string   `json:"purpose"`
	DurationWeight float64  `json:"durationWeight"`
	Narration      string   `json:"narration"`
	VisualAnchor   string   `json:"visualAnchor"`
	Effects        []string `json:"effects"`
	MusicCue       string   `json:"musicCue"`
	SoundEffects   []string `json:"soundEffects"`
}

// IsEmpty reports whether the intermediate carries no usable scene content.
func (in *Intermediate) IsEmpty() bool {
	if in == nil {
		return true
	}
	for _, scene := range in.Scenes {
		if strings.TrimSpace(scene.Narration) != "" || strings.TrimSpace(scene.VisualAnchor) != "" {
			return false
		}
	}
	return true
}

// Extractor turns a treatment into an intermediate structure. Implementations
// must be free of shared state; a nil result means "no answer".
type Extractor interface {
	Extract(ctx context.Context, text string, hints []json.RawMessage) (*Intermediate, error)
}

// Merge overlays a model-produced intermediate on the heuristic one: model
// scenes win, blank globals are taken from the heuristic result.
func Merge(heuristic, model *Intermediate) *Intermediate {
	if model == nil || len(model.Scenes) == 0 {
		return heuristic
	}
	if heuristic == nil {
		return model
	}
	out := *model
	out.Scenes = append([]IntermediateScene(nil), model.Scenes...)
	if strings.TrimSpace(out.Title) == "" {
		out.Title = heuristic.Title
	}
	if out.TotalDurationSeconds <= 0 {
		out.TotalDurationSeconds = heuristic.TotalDurationSeconds
	}
	if strings.TrimSpace(out.Voice) == "" {
		out.Voice = heuristic.Voice
	}
	if strings.TrimSpace(out.Profile) == "" {
		out.Profile = heuristic.Profile
	}
	if strings.TrimSpace(out.Platform) == "" {
		out.Platform = heuristic.Platform
	}
	if strings.TrimSpace(out.AspectRatio) == "" {
		out.AspectRatio = heuristic.AspectRatio
	}
	if strings.TrimSpace(out.Language) == "" {
		out.Language = heuristic.Language
	}
	for i := range out.Scenes {
		if out.Scenes[i].DurationWeight <= 0 {
			out.Scenes[i].DurationWeight = DefaultWeight(out.Scenes[i].Purpose)
		}
	}
	return &out
}

// DefaultWeight is the relative duration weight for a scene purpose.
func DefaultWeight(purpose string) float64 {
	switch strings.ToLower(strings.TrimSpace(purpose)) {
	case "hook", "cta", "outro", "intro":
		return hookWeight
	default:
		return bodyWeight
	}
}
