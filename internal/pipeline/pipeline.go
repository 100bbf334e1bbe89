// Package pipeline compiles a free-text treatment into a validated
// production manifest and its job DAG. Compilation is a small state machine:
// assemble, check, repair, fall back, decompose. Model calls are advisory and
// never decide whether compilation succeeds.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhe.chen/manifest-compiler/internal/assemble"
	"github.com/zhe.chen/manifest-compiler/internal/effects"
	"github.com/zhe.chen/manifest-compiler/internal/extract"
	"github.com/zhe.chen/manifest-compiler/internal/jobs"
	"github.com/zhe.chen/manifest-compiler/internal/llm"
	"github.com/zhe.chen/manifest-compiler/internal/manifest"
	"github.com/zhe.chen/manifest-compiler/internal/repair"
	"github.com/zhe.chen/manifest-compiler/internal/validate"
)

// ErrFallbackInvalid is returned when even the fallback manifest fails
// validation. It is the only error Compile returns for bad input.
var ErrFallbackInvalid = errors.New("fallback manifest failed validation")

// AdvisoryRepairer proposes a repaired manifest document for a failing one.
type AdvisoryRepairer interface {
	Repair(ctx context.Context, req llm.RepairRequest) ([]byte, error)
}

// Request is one compilation input.
type Request struct {
	Treatment string                  `json:"treatment"`
	Hints     []json.RawMessage       `json:"hints,omitempty"`
	Overrides assemble.Overrides      `json:"overrides"`
	Catalog   []assemble.CatalogAsset `json:"catalog,omitempty"`
}

// Result is the compiler output.
type Result struct {
	Manifest *manifest.ProductionManifest `json:"manifest"`
	Jobs     []manifest.Job               `json:"jobs"`
	Warnings []string                     `json:"warnings"`
	// Fixes lists every change made by the repair passes.
	Fixes []string `json:"fixes,omitempty"`
	// Violations holds the findings of the last failed check.
	Violations []validate.Violation `json:"violations,omitempty"`
	Fallback   bool                 `json:"fallback"`
	Success    bool                 `json:"success"`
	Trace      []TraceEntry         `json:"trace"`
}

// Compiler runs the compilation state machine. It holds no per-call state
// and is safe for concurrent use.
type Compiler struct {
	opts       Options
	tables     *effects.Tables
	heuristic  *extract.Heuristic
	assembler  *assemble.Assembler
	enricher   *effects.Enricher
	validator  *validate.Validator
	repairer   *repair.Repairer
	decomposer *jobs.Decomposer
	extractor  extract.Extractor
	advisor    AdvisoryRepairer
	logger     *zap.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithExtractor adds an advisory model extractor.
func WithExtractor(e extract.Extractor) Option {
	return func(c *Compiler) { c.extractor = e }
}

// WithRepairer adds an advisory model repairer.
func WithRepairer(a AdvisoryRepairer) Option {
	return func(c *Compiler) { c.advisor = a }
}

// WithTables replaces the built-in effect and profile tables.
func WithTables(t *effects.Tables) Option {
	return func(c *Compiler) { c.tables = t }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Compiler) { c.logger = l }
}

// New creates a compiler.
func New(opts Options, options ...Option) *Compiler {
	c := &Compiler{opts: opts.withFallbacks()}
	for _, o := range options {
		o(c)
	}
	if c.tables == nil {
		c.tables = effects.DefaultTables()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}

	d := c.opts.Defaults
	c.heuristic = extract.NewHeuristic(c.tables)
	c.assembler = assemble.New(c.tables, d, c.logger)
	c.enricher = effects.NewEnricher(c.tables, c.logger)
	c.validator = validate.New(c.opts.Validation, c.tables)
	c.repairer = repair.New(c.tables, d, c.logger)
	c.decomposer = jobs.NewDecomposer(c.logger)
	return c
}

// Validator exposes the compiler's validator for standalone checks.
func (c *Compiler) Validator() *validate.Validator {
	return c.validator
}

// Repairer exposes the compiler's deterministic repairer.
func (c *Compiler) Repairer() *repair.Repairer {
	return c.repairer
}

// Decomposer exposes the compiler's job decomposer.
func (c *Compiler) Decomposer() *jobs.Decomposer {
	return c.decomposer
}

// run is the mutable state of one compilation.
type run struct {
	req   Request
	state State
	meta  manifest.Metadata
	m     *manifest.ProductionManifest

	warnings      []string
	seenWarnings  map[string]bool
	fixes         []string
	violations    []validate.Violation
	rounds        int
	advisoryTried bool
	fallback      bool
	trace         *Trace
}

func newRun(req Request) *run {
	return &run{
		req:          req,
		state:        StateStart,
		seenWarnings: map[string]bool{},
		trace:        newTrace(),
	}
}

func (r *run) warn(msg string) {
	if r.seenWarnings[msg] {
		return
	}
	r.seenWarnings[msg] = true
	r.warnings = append(r.warnings, msg)
}

// noteWarnings surfaces warning-severity findings of a passing check.
func (r *run) noteWarnings(vs []validate.Violation) {
	for _, v := range vs {
		if v.Severity == validate.SeverityWarning {
			r.warn(fmt.Sprintf("%s at %s: %s", v.Rule, v.Path, v.Message))
		}
	}
}

func (r *run) result(success bool) *Result {
	res := &Result{
		Manifest: r.m,
		Jobs:     []manifest.Job{},
		Warnings: append([]string{}, r.warnings...),
		Fixes:    r.fixes,
		Fallback: r.fallback,
		Success:  success,
		Trace:    r.trace.Entries,
	}
	if r.m != nil && r.m.Jobs != nil {
		res.Jobs = r.m.Jobs
	}
	if !success {
		res.Violations = r.violations
	}
	return res
}

// Compile turns a treatment into a manifest and job DAG. It fails only with
// ErrFallbackInvalid; model failures and invalid intermediate manifests are
// reported as warnings.
func (c *Compiler) Compile(ctx context.Context, req Request) (*Result, error) {
	r := newRun(req)
	if err := c.drive(ctx, r); err != nil {
		return r.result(false), err
	}

	c.logger.Info("compilation finished",
		zap.String("stage", "compile"),
		zap.String("manifestId", r.m.Metadata.ManifestID),
		zap.Int("scenes", len(r.m.Scenes)),
		zap.Int("jobs", len(r.m.Jobs)),
		zap.Int("warnings", len(r.warnings)),
		zap.Bool("fallback", r.fallback))
	return r.result(true), nil
}

// drive steps the state machine from r.state until StateDone.
// maxStateVisits bounds the state machine independently of the repair
// budget so a faulty transition cannot loop forever.
const maxStateVisits = 16

func (c *Compiler) drive(ctx context.Context, r *run) error {
	for r.state != StateDone {
		if n := r.trace.Visits(r.state); n >= maxStateVisits {
			return fmt.Errorf("state %q left %d times without finishing", r.state, n)
		}
		step := GetStepForState(r.state)
		if step == nil {
			return fmt.Errorf("no step for state %q", r.state)
		}
		next, err := step(ctx, c, r)
		if err != nil {
			c.logger.Error("compilation failed",
				zap.String("stage", string(r.state)),
				zap.Error(err))
			return err
		}
		c.logger.Debug("state transition",
			zap.String("stage", "compile"),
			zap.String("from", string(r.state)),
			zap.String("to", string(next)))
		r.state = next
	}
	return nil
}
