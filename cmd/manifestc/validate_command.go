package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zhe.chen/manifest-compiler/internal/repair"
	"github.com/zhe.chen/manifest-compiler/internal/validate"
)

var errInvalidManifest = errors.New("manifest is invalid")

// validateReport is the JSON form of a validate run.
type validateReport struct {
	Valid      bool                 `json:"valid"`
	Fixes      []string             `json:"fixes,omitempty"`
	Violations []validate.Violation `json:"violations"`
}

func newValidateCommand(ctx *commandContext) *cobra.Command {
	var (
		final    bool
		doRepair bool
		outPath  string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "validate <manifest-file>",
		Short: "Check a manifest against the schema and business rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read manifest: %w", err)
			}
			compiler, err := ctx.compiler()
			if err != nil {
				return err
			}

			scope := validate.ScopePlan
			if final {
				scope = validate.ScopeFinal
			}

			report := validateReport{}
			if !doRepair {
				// Without repair the raw document is checked as written.
				if ok, vs := validate.SchemaJSON(data); !ok {
					report.Violations = vs
					return finishValidate(cmd, report, asJSON)
				}
			}
			m, fixes, err := repair.DecodeManifest(data)
			if err != nil {
				return err
			}
			if doRepair {
				// Repair drops stale jobs; a repaired manifest gets a fresh graph.
				report.Fixes = append(fixes, compiler.Repairer().Repair(m)...)
				m.Jobs = compiler.Decomposer().Decompose(m)
			}

			ok, vs := compiler.Validator().Validate(m, scope)
			report.Valid, report.Violations = ok, vs

			if doRepair && outPath != "" {
				if err := m.Save(outPath); err != nil {
					return err
				}
			}
			return finishValidate(cmd, report, asJSON)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&final, "final", false, "Also check the job graph and generated-asset jobs")
	flags.BoolVar(&doRepair, "repair", false, "Run the rule-based repair pass before checking")
	flags.StringVarP(&outPath, "out", "o", "", "Write the repaired manifest to this file (with --repair)")
	flags.BoolVar(&asJSON, "json", false, "Print the report as JSON")

	return cmd
}

func finishValidate(cmd *cobra.Command, report validateReport, asJSON bool) error {
	if report.Violations == nil {
		report.Violations = []validate.Violation{}
	}
	if asJSON {
		if err := writeJSON(cmd, report); err != nil {
			return err
		}
	} else {
		out := cmd.OutOrStdout()
		for _, fix := range report.Fixes {
			fmt.Fprintf(out, "fixed: %s\n", fix)
		}
		if len(report.Violations) > 0 {
			fmt.Fprintln(out, violationsTable(report.Violations))
		}
		if report.Valid {
			fmt.Fprintln(out, "manifest is valid")
		}
	}
	if !report.Valid {
		return errInvalidManifest
	}
	return nil
}
