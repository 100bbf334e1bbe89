package llm

import (
	"encoding/json"

	"github.com/zhe.chen/manifest-compiler/internal/validate"
)

// extractionSystemPrompt asks the model for the scene structure only. Timing,
// assets and effects are decided deterministically afterwards.
const extractionSystemPrompt = `You turn a short video treatment into a scene outline.
Answer with one JSON object and nothing else:
{
  "title": string,
  "totalDurationSeconds": number (0 when the treatment does not say),
  "voice": string,
  "profile": string (one of default, corporate, cinematic, playful, minimal, or empty),
  "scenes": [{
    "purpose": "hook" | "body" | "cta",
    "durationWeight": number (relative length, hook and cta 0.8, body 1.2),
    "narration": string (spoken text, verbatim when quoted),
    "visualAnchor": string (what is on screen),
    "effects": [string],
    "musicCue": string,
    "soundEffects": [string]
  }]
}
Keep scenes in treatment order. Do not invent content the treatment does not imply.`

// repairSystemPrompt asks the model for a corrected manifest.
const repairSystemPrompt = `You repair production manifests that failed validation.
You receive the manifest JSON, its JSON Schema and the list of violations.
Answer with the complete corrected manifest as one JSON object and nothing else.
Keep every scene id, asset id and narration unless a violation requires a change.
Scene durations must sum to metadata.durationSeconds and scenes must tile the
timeline from 0 without gaps or overlaps. Every visual must reference an asset key.
Leave "jobs" as an empty array.`

// RepairRequest is the input of an advisory repair.
type RepairRequest struct {
	Manifest   json.RawMessage      `json:"manifest"`
	Violations []validate.Violation `json:"violations"`
	// Treatment is the original text, included for context.
	Treatment string `json:"treatment,omitempty"`
}

// extractionRequest is the user message sent for extraction.
type extractionRequest struct {
	Treatment string            `json:"treatment"`
	Hints     []json.RawMessage `json:"hints,omitempty"`
}
