package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zhe.chen/manifest-compiler/internal/assemble"
	"github.com/zhe.chen/manifest-compiler/internal/extract"
	"github.com/zhe.chen/manifest-compiler/internal/llm"
	"github.com/zhe.chen/manifest-compiler/internal/manifest"
	"github.com/zhe.chen/manifest-compiler/internal/repair"
	"github.com/zhe.chen/manifest-compiler/internal/timeline"
	"github.com/zhe.chen/manifest-compiler/internal/validate"
)

// State is a state of the compilation state machine.
type State string

const (
	StateStart           State = "start"
	StateAssembled       State = "assembled"
	StateSchemaChecked   State = "schema_checked"
	StateBusinessChecked State = "business_checked"
	StateRepaired        State = "repaired"
	StateFallbackBuilt   State = "fallback_built"
	StateDone            State = "done"
)

// StepFunc performs the transition out of one state. A returned error is
// fatal for the compilation.
type StepFunc func(ctx context.Context, c *Compiler, r *run) (State, error)

// GetStepForState returns the step that leaves state, or nil for StateDone.
func GetStepForState(state State) StepFunc {
	switch state {
	case StateStart:
		return stepAssemble
	case StateAssembled, StateRepaired, StateFallbackBuilt:
		return stepCheckSchema
	case StateSchemaChecked:
		return stepCheckBusiness
	case StateBusinessChecked:
		return stepDecompose
	default:
		return nil
	}
}

// stepAssemble extracts scene structure, assembles the manifest and runs the
// timeline and effects stages. An empty treatment goes straight to fallback.
func stepAssemble(ctx context.Context, c *Compiler, r *run) (State, error) {
	inter := c.extract(ctx, r)
	in := assemble.Input{
		Text:         r.req.Treatment,
		Intermediate: inter,
		Hints:        r.req.Hints,
		Overrides:    r.req.Overrides,
		Catalog:      r.req.Catalog,
	}

	if inter.IsEmpty() {
		r.meta = c.assembler.ResolveMetadata(in.Text, inter, in.Hints, in.Overrides)
		c.buildFallback(r, "treatment produced no usable scenes")
		r.trace.Complete(StateStart, StateFallbackBuilt, "no usable scenes")
		return StateFallbackBuilt, nil
	}

	m := c.assembler.Assemble(in)
	r.meta = m.Metadata
	timeline.Rescale(m, m.Metadata.DurationSeconds)
	timeline.Normalize(m, c.opts.MinNormalizedSeconds)
	timeline.AlignCues(m)
	timeline.DeriveSubtitles(m)
	c.enricher.Enrich(m)
	r.m = m

	r.trace.Complete(StateStart, StateAssembled, fmt.Sprintf("%d scenes", len(m.Scenes)))
	return StateAssembled, nil
}

func stepCheckSchema(ctx context.Context, c *Compiler, r *run) (State, error) {
	from := r.state
	if ok, vs := validate.Schema(r.m); !ok {
		return c.escalate(ctx, r, from, vs)
	}
	r.trace.Complete(from, StateSchemaChecked, "")
	return StateSchemaChecked, nil
}

func stepCheckBusiness(ctx context.Context, c *Compiler, r *run) (State, error) {
	vs := c.validator.Business(r.m, validate.ScopePlan)
	if !validate.OK(vs) {
		return c.escalate(ctx, r, StateSchemaChecked, vs)
	}
	r.noteWarnings(vs)
	r.trace.Complete(StateSchemaChecked, StateBusinessChecked, "")
	return StateBusinessChecked, nil
}

// stepDecompose builds the job DAG and runs the final validation over the
// manifest together with its jobs.
func stepDecompose(ctx context.Context, c *Compiler, r *run) (State, error) {
	r.m.Jobs = c.decomposer.Decompose(r.m)
	ok, vs := c.validator.Validate(r.m, validate.ScopeFinal)
	if !ok {
		r.m.Jobs = []manifest.Job{}
		return c.escalate(ctx, r, StateBusinessChecked, vs)
	}
	r.noteWarnings(vs)
	r.trace.Complete(StateBusinessChecked, StateDone, fmt.Sprintf("%d jobs", len(r.m.Jobs)))
	return StateDone, nil
}

// escalate picks the next recovery after a failed check: a deterministic
// repair round, then one advisory repair, then the fallback manifest. A
// failing fallback is fatal.
func (c *Compiler) escalate(ctx context.Context, r *run, from State, vs []validate.Violation) (State, error) {
	r.violations = vs
	failure := errors.New(summarize(vs))

	if r.fallback {
		r.trace.Fail(from, "", failure)
		return "", fmt.Errorf("%w: %v", ErrFallbackInvalid, failure)
	}

	if r.rounds < c.opts.MaxRepairRounds {
		r.rounds++
		fixes := c.repairer.Repair(r.m)
		if len(fixes) > 0 {
			r.fixes = append(r.fixes, fixes...)
			r.warn(fmt.Sprintf("manifest repaired by rule-based pass (round %d, %d fixes)", r.rounds, len(fixes)))
			r.trace.Fail(from, StateRepaired, failure)
			return StateRepaired, nil
		}
		// Another round would not change anything.
		r.rounds = c.opts.MaxRepairRounds
	}

	if c.adviseRepair(ctx, r, vs) {
		r.trace.Fail(from, StateRepaired, failure)
		return StateRepaired, nil
	}

	c.buildFallback(r, "manifest still invalid after repair")
	r.trace.Fail(from, StateFallbackBuilt, failure)
	return StateFallbackBuilt, nil
}

// extract runs the deterministic parser and, when configured, merges in the
// advisory model's answer.
func (c *Compiler) extract(ctx context.Context, r *run) *extract.Intermediate {
	text := r.req.Treatment
	parsed := c.heuristic.Parse(text)

	if c.extractor == nil || strings.TrimSpace(text) == "" {
		r.warn("used deterministic parser")
		return parsed
	}

	hints := append([]json.RawMessage(nil), r.req.Hints...)
	model, err := advise(ctx, c.opts.AdvisoryTimeout, c.opts.AdvisoryRetries,
		func(ctx context.Context) (*extract.Intermediate, error) {
			return c.extractor.Extract(ctx, text, hints)
		})
	if err != nil || model == nil || len(model.Scenes) == 0 {
		c.logger.Warn("model extraction unavailable",
			zap.String("stage", "extract"),
			zap.Error(err))
		r.warn(fmt.Sprintf("model extraction unavailable (%s); used deterministic parser", errText(err)))
		return parsed
	}

	c.logger.Info("model extraction merged",
		zap.String("stage", "extract"),
		zap.Int("scenes", len(model.Scenes)))
	return extract.Merge(parsed, model)
}

// adviseRepair asks the advisory repairer once per compilation. The model
// sees a serialized copy of the manifest; its answer replaces the manifest
// only when it has the minimal manifest shape.
func (c *Compiler) adviseRepair(ctx context.Context, r *run, vs []validate.Violation) bool {
	if c.advisor == nil || r.advisoryTried {
		return false
	}
	r.advisoryTried = true

	payload, err := json.Marshal(r.m)
	if err != nil {
		r.warn(fmt.Sprintf("advisory repair skipped: %v", err))
		return false
	}
	req := llm.RepairRequest{
		Manifest:   payload,
		Violations: append([]validate.Violation(nil), vs...),
		Treatment:  r.req.Treatment,
	}

	raw, err := advise(ctx, c.opts.AdvisoryTimeout, c.opts.AdvisoryRetries,
		func(ctx context.Context) ([]byte, error) {
			return c.advisor.Repair(ctx, req)
		})
	if err != nil {
		c.logger.Warn("advisory repair unavailable",
			zap.String("stage", "advisory_repair"),
			zap.Error(err))
		r.warn(fmt.Sprintf("advisory repair unavailable (%s)", errText(err)))
		return false
	}
	if !repair.IsCandidate(raw) {
		r.warn("advisory repair candidate rejected: not a manifest object")
		return false
	}

	candidate, fixes, err := repair.DecodeManifest(raw)
	if err != nil {
		r.warn(fmt.Sprintf("advisory repair candidate rejected: %v", err))
		return false
	}
	r.fixes = append(r.fixes, fixes...)
	r.m = candidate
	r.warn("manifest repaired by advisory model")
	return true
}

func (c *Compiler) buildFallback(r *run, reason string) {
	r.fallback = true
	r.m = c.repairer.Fallback(r.meta)
	r.warn(reason + "; built fallback manifest")
}

// summarize lists the distinct failing rules of vs.
func summarize(vs []validate.Violation) string {
	errs := validate.Errors(vs)
	return fmt.Sprintf("%d violations: %s", len(errs), strings.Join(validate.Rules(errs), ", "))
}

func errText(err error) string {
	if err == nil {
		return "no scenes"
	}
	return err.Error()
}
