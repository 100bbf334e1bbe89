package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhe.chen/manifest-compiler/internal/extract"
)

// ErrNoScenes marks an extraction answer without scenes, which counts as no answer.
var ErrNoScenes = errors.New("model answer has no scenes")

// ModelExtractor implements extract.Extractor on top of a Completer.
type ModelExtractor struct {
	completer Completer
	logger    *zap.Logger
}

var _ extract.Extractor = (*ModelExtractor)(nil)

// NewModelExtractor creates an extractor that asks the model for a scene outline.
func NewModelExtractor(completer Completer, logger *zap.Logger) *ModelExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelExtractor{completer: completer, logger: logger}
}

// Extract asks the model for an intermediate structure. Errors are for the
// caller to log; the heuristic result is used in that case.
func (e *ModelExtractor) Extract(ctx context.Context, text string, hints []json.RawMessage) (*extract.Intermediate, error) {
	user, err := json.Marshal(extractionRequest{Treatment: text, Hints: hints})
	if err != nil {
		return nil, fmt.Errorf("failed to encode extraction request: %w", err)
	}

	answer, err := e.completer.Complete(ctx, extractionSystemPrompt, string(user))
	if err != nil {
		return nil, fmt.Errorf("extraction call failed: %w", err)
	}

	var out extract.Intermediate
	if err := DecodeJSON(answer, &out); err != nil {
		return nil, fmt.Errorf("failed to decode extraction answer: %w", err)
	}
	if len(out.Scenes) == 0 {
		return nil, ErrNoScenes
	}

	e.logger.Debug("model extraction",
		zap.String("stage", "extract"),
		zap.Int("scenes", len(out.Scenes)))
	return &out, nil
}
