package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zhe.chen/manifest-compiler/internal/manifest"
	"github.com/zhe.chen/manifest-compiler/internal/repair"
)

// ErrRejectedCandidate is returned when the model answer is not a manifest-shaped object.
var ErrRejectedCandidate = errors.New("repair candidate is not a manifest object")

// ModelRepairer asks a model to fix a manifest that failed validation.
type ModelRepairer struct {
	completer Completer
	logger    *zap.Logger
}

// NewModelRepairer creates an advisory repairer.
func NewModelRepairer(completer Completer, logger *zap.Logger) *ModelRepairer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelRepairer{completer: completer, logger: logger}
}

// Repair returns the raw candidate manifest. The candidate still has to pass
// both validators before the caller may use it.
func (r *ModelRepairer) Repair(ctx context.Context, req RepairRequest) ([]byte, error) {
	schema, err := manifest.JSONSchemaBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest schema: %w", err)
	}

	var user strings.Builder
	user.WriteString("Manifest:\n")
	user.Write(req.Manifest)
	user.WriteString("\n\nJSON Schema:\n")
	user.Write(schema)
	user.WriteString("\n\nViolations:\n")
	for _, v := range req.Violations {
		user.WriteString("- ")
		user.WriteString(v.String())
		user.WriteByte('\n')
	}
	if req.Treatment != "" {
		user.WriteString("\nOriginal treatment:\n")
		user.WriteString(req.Treatment)
	}

	answer, err := r.completer.Complete(ctx, repairSystemPrompt, user.String())
	if err != nil {
		return nil, fmt.Errorf("repair call failed: %w", err)
	}

	candidate := []byte(strings.TrimSpace(answer))
	if !json.Valid(candidate) {
		candidate = []byte(ExtractObject(answer))
	}
	if !repair.IsCandidate(candidate) {
		return nil, fmt.Errorf("%w (payload snippet: %s)", ErrRejectedCandidate, snippet(answer))
	}

	r.logger.Debug("model repair candidate",
		zap.String("stage", "repair"),
		zap.Int("bytes", len(candidate)),
		zap.Int("violations", len(req.Violations)))
	return candidate, nil
}
