package repair

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/zhe.chen/manifest-compiler/internal/manifest"
)

// ErrNotObject is returned when a candidate is not a JSON object.
var ErrNotObject = errors.New("document is not a JSON object")

// containerDefaults are the raw JSON values set for absent or null containers.
var containerDefaults = []struct {
	path string
	raw  string
}{
	{"metadata", `{}`},
	{"scenes", `[]`},
	{"assets", `{}`},
	{"audio", `{}`},
	{"audio.music", `{}`},
	{"effects", `{}`},
	{"jobs", `[]`},
}

// numericPaths are fields that upstream producers sometimes emit as strings.
var numericPaths = []string{"metadata.durationSeconds", "metadata.priority"}

// NormalizeJSON coerces missing containers and stringly-typed numbers at the
// JSON level so the document can be decoded. It returns the fixes applied.
func NormalizeJSON(raw []byte) ([]byte, []string, error) {
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		return nil, nil, ErrNotObject
	}

	var fixes []string
	out := raw
	var err error
	for _, c := range containerDefaults {
		if v := gjson.GetBytes(out, c.path); v.Exists() && v.Type != gjson.Null {
			continue
		}
		if out, err = sjson.SetRawBytes(out, c.path, []byte(c.raw)); err != nil {
			return nil, fixes, fmt.Errorf("failed to set %s: %w", c.path, err)
		}
		fixes = append(fixes, "created missing "+c.path)
	}

	if v := gjson.GetBytes(out, "schemaVersion"); v.Type != gjson.String {
		if out, err = sjson.SetBytes(out, "schemaVersion", manifest.SchemaVersion); err != nil {
			return nil, fixes, fmt.Errorf("failed to set schemaVersion: %w", err)
		}
		fixes = append(fixes, "set schemaVersion")
	}

	for _, path := range numericPaths {
		v := gjson.GetBytes(out, path)
		if v.Type != gjson.String {
			continue
		}
		n, perr := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(v.String()), "s"), 64)
		if perr != nil {
			out, err = sjson.DeleteBytes(out, path)
		} else {
			out, err = sjson.SetBytes(out, path, n)
		}
		if err != nil {
			return nil, fixes, fmt.Errorf("failed to coerce %s: %w", path, err)
		}
		fixes = append(fixes, "coerced "+path)
	}

	return out, fixes, nil
}

// DecodeManifest normalizes raw JSON and decodes it into a manifest.
func DecodeManifest(raw []byte) (*manifest.ProductionManifest, []string, error) {
	normalized, fixes, err := NormalizeJSON(raw)
	if err != nil {
		return nil, fixes, err
	}
	var m manifest.ProductionManifest
	if err := json.Unmarshal(normalized, &m); err != nil {
		return nil, fixes, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &m, fixes, nil
}

// IsCandidate reports whether raw is a JSON object with a scenes array, the
// minimum shape accepted from an advisory repairer.
func IsCandidate(raw []byte) bool {
	if !gjson.ValidBytes(raw) {
		return false
	}
	root := gjson.ParseBytes(raw)
	return root.IsObject() && root.Get("scenes").IsArray()
}
