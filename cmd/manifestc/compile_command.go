package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zhe.chen/manifest-compiler/internal/assemble"
	"github.com/zhe.chen/manifest-compiler/internal/jobs"
	"github.com/zhe.chen/manifest-compiler/internal/manifest"
	"github.com/zhe.chen/manifest-compiler/internal/pipeline"
)

func newCompileCommand(ctx *commandContext) *cobra.Command {
	var (
		hints       []string
		catalogPath string
		overrides   assemble.Overrides
		platform    string
		outPath     string
		summary     bool
	)

	cmd := &cobra.Command{
		Use:   "compile [treatment-file]",
		Short: "Compile a treatment into a production manifest and job graph",
		Long:  "Compile reads a free-text treatment from a file, or from stdin when the file is omitted or \"-\".",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			text, err := readTreatment(cmd.InOrStdin(), path)
			if err != nil {
				return err
			}

			req := pipeline.Request{Treatment: text, Overrides: overrides}
			if platform != "" {
				p, ok := assemble.ParsePlatform(platform)
				if !ok {
					return fmt.Errorf("unknown platform %q", platform)
				}
				req.Overrides.Platform = p
			}
			for _, h := range hints {
				if !json.Valid([]byte(h)) {
					return fmt.Errorf("hint is not valid JSON: %s", h)
				}
				req.Hints = append(req.Hints, json.RawMessage(h))
			}
			if catalogPath != "" {
				if req.Catalog, err = loadCatalog(catalogPath); err != nil {
					return err
				}
			}

			compiler, err := ctx.compiler()
			if err != nil {
				return err
			}
			result, err := compiler.Compile(cmd.Context(), req)
			if err != nil {
				return err
			}

			if outPath != "" {
				if err := result.Manifest.Save(outPath); err != nil {
					return err
				}
			}
			if summary {
				printSummary(cmd.OutOrStdout(), result)
				return nil
			}
			return writeJSON(cmd, result)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVar(&hints, "hint", nil, "Structured hint as a JSON object (repeatable)")
	flags.StringVar(&catalogPath, "catalog", "", "YAML or JSON file listing user-supplied assets")
	flags.StringVar(&overrides.Title, "title", "", "Override the production title")
	flags.Float64Var(&overrides.DurationSeconds, "duration", 0, "Override the target duration in seconds")
	flags.StringVar(&overrides.AspectRatio, "aspect", "", "Override the aspect ratio (e.g. 9:16)")
	flags.StringVar(&platform, "platform", "", "Override the target platform")
	flags.StringVar(&overrides.Language, "language", "", "Override the narration language (BCP 47)")
	flags.StringVar(&overrides.Profile, "profile", "", "Override the creative profile")
	flags.StringVar(&overrides.CinematicLevel, "cinematic", "", "Override the cinematic level (basic or pro)")
	flags.StringVarP(&outPath, "out", "o", "", "Also write the manifest to this file")
	flags.BoolVar(&summary, "summary", false, "Print tables instead of the JSON result")

	return cmd
}

func readTreatment(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read treatment: %w", err)
	}
	return string(data), nil
}

// loadCatalog reads the asset catalog. YAML is a superset of JSON, so one
// decoder serves both.
func loadCatalog(path string) ([]assemble.CatalogAsset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	var catalog []assemble.CatalogAsset
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return catalog, nil
}

func printSummary(w io.Writer, result *pipeline.Result) {
	m := result.Manifest
	status := "ok"
	switch {
	case !result.Success:
		status = "failed"
	case result.Fallback:
		status = "fallback"
	}
	fmt.Fprintf(w, "%s  %s  %s %s  %.2fs  [%s]\n",
		m.Metadata.ManifestID, m.Metadata.Title, m.Metadata.Platform, m.Metadata.AspectRatio,
		m.Metadata.DurationSeconds, status)
	fmt.Fprintln(w, scenesTable(m))
	fmt.Fprintln(w, jobsTable(executionOrder(result.Jobs)))
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	if len(result.Fixes) > 0 {
		fmt.Fprintf(w, "fixes: %s\n", strings.Join(result.Fixes, "; "))
	}
	fmt.Fprintf(w, "path: %s\n", pathOf(result.Trace))
}

// executionOrder sorts jobs by dependency level, leaving them as given when
// the graph is invalid.
func executionOrder(js []manifest.Job) []manifest.Job {
	order, err := jobs.TopoOrder(js)
	if err != nil {
		return js
	}
	byID := make(map[string]manifest.Job, len(js))
	for _, j := range js {
		byID[j.ID] = j
	}
	out := make([]manifest.Job, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

func pathOf(entries []pipeline.TraceEntry) string {
	states := make([]string, 0, len(entries))
	for _, e := range entries {
		states = append(states, string(e.State))
	}
	return strings.Join(states, " -> ")
}
