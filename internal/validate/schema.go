package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/zhe.chen/manifest-compiler/internal/manifest"
)

// FieldType is the expected JSON type of a schema field.
type FieldType string

const (
	FieldTypeString FieldType = "string"
	FieldTypeNumber FieldType = "number"
	FieldTypeInt    FieldType = "int"
	FieldTypeBool   FieldType = "bool"
	FieldTypeArray  FieldType = "array"
	FieldTypeObject FieldType = "object"
	// FieldTypeMap is an object with arbitrary keys whose values follow Children.
	FieldTypeMap FieldType = "map"
)

// SchemaField defines one field of the manifest schema. For arrays and maps,
// Children describe each element; Items gives the type of scalar elements.
type SchemaField struct {
	Name     string
	Type     FieldType
	Required bool
	Enum     []string
	Items    FieldType
	Children []SchemaField
}

func jobTypeEnum() []string {
	out := make([]string, 0, 8)
	for _, t := range manifest.JobTypes() {
		out = append(out, string(t))
	}
	return out
}

func platformEnum() []string {
	out := make([]string, 0, 8)
	for _, p := range manifest.Platforms() {
		out = append(out, string(p))
	}
	return out
}

var effectStackFields = []SchemaField{
	{Name: "layers", Type: FieldTypeArray, Children: []SchemaField{
		{Name: "effect", Type: FieldTypeString, Required: true},
		{Name: "order", Type: FieldTypeInt, Required: true},
		{Name: "intensity", Type: FieldTypeNumber},
	}},
	{Name: "transitions", Type: FieldTypeArray, Items: FieldTypeString},
	{Name: "colorGrade", Type: FieldTypeString},
}

// ManifestSchema is the structural contract of a ProductionManifest.
var ManifestSchema = []SchemaField{
	{Name: "schemaVersion", Type: FieldTypeString, Required: true},
	{Name: "metadata", Type: FieldTypeObject, Required: true, Children: []SchemaField{
		{Name: "manifestId", Type: FieldTypeString, Required: true},
		{Name: "title", Type: FieldTypeString, Required: true},
		{Name: "intent", Type: FieldTypeString, Required: true, Enum: []string{"video", "image", "audio"}},
		{Name: "durationSeconds", Type: FieldTypeNumber, Required: true},
		{Name: "aspectRatio", Type: FieldTypeString, Required: true},
		{Name: "platform", Type: FieldTypeString, Required: true, Enum: platformEnum()},
		{Name: "language", Type: FieldTypeString, Required: true},
		{Name: "profile", Type: FieldTypeString},
		{Name: "priority", Type: FieldTypeInt},
		{Name: "cinematicLevel", Type: FieldTypeString, Enum: []string{manifest.CinematicBasic, manifest.CinematicPro}},
		{Name: "enforcementMode", Type: FieldTypeString, Enum: enforcementEnum},
	}},
	{Name: "scenes", Type: FieldTypeArray, Required: true, Children: []SchemaField{
		{Name: "id", Type: FieldTypeString, Required: true},
		{Name: "startAtSec", Type: FieldTypeNumber, Required: true},
		{Name: "durationSeconds", Type: FieldTypeNumber, Required: true},
		{Name: "purpose", Type: FieldTypeString, Required: true},
		{Name: "narration", Type: FieldTypeString},
		{Name: "visualHint", Type: FieldTypeString},
		{Name: "visuals", Type: FieldTypeArray, Required: true, Children: []SchemaField{
			{Name: "assetId", Type: FieldTypeString, Required: true},
			{Name: "role", Type: FieldTypeString},
			{Name: "prompt", Type: FieldTypeString},
		}},
		{Name: "effects", Type: FieldTypeObject, Children: effectStackFields},
		{Name: "orderingHint", Type: FieldTypeInt},
		{Name: "musicCue", Type: FieldTypeString},
		{Name: "subtitles", Type: FieldTypeArray, Children: []SchemaField{
			{Name: "startSec", Type: FieldTypeNumber, Required: true},
			{Name: "endSec", Type: FieldTypeNumber, Required: true},
			{Name: "text", Type: FieldTypeString, Required: true},
		}},
	}},
	{Name: "assets", Type: FieldTypeMap, Required: true, Children: []SchemaField{
		{Name: "id", Type: FieldTypeString, Required: true},
		{Name: "kind", Type: FieldTypeString, Required: true, Enum: []string{"image", "video", "chart", "audio"}},
		{Name: "source", Type: FieldTypeString, Required: true, Enum: []string{"user", "generated"}},
		{Name: "status", Type: FieldTypeString, Required: true, Enum: []string{"pending", "processing", "ready", "failed"}},
		{Name: "url", Type: FieldTypeString},
		{Name: "description", Type: FieldTypeString},
		{Name: "prompt", Type: FieldTypeString},
	}},
	{Name: "audio", Type: FieldTypeObject, Required: true, Children: []SchemaField{
		{Name: "tts", Type: FieldTypeObject, Children: []SchemaField{
			{Name: "provider", Type: FieldTypeString, Required: true},
			{Name: "voice", Type: FieldTypeString},
			{Name: "style", Type: FieldTypeString},
			{Name: "format", Type: FieldTypeString},
		}},
		{Name: "music", Type: FieldTypeMap, Children: []SchemaField{
			{Name: "id", Type: FieldTypeString, Required: true},
			{Name: "startSec", Type: FieldTypeNumber, Required: true},
			{Name: "durationSec", Type: FieldTypeNumber},
			{Name: "mood", Type: FieldTypeString},
			{Name: "role", Type: FieldTypeString, Enum: []string{manifest.CueIntro, manifest.CueBuild, manifest.CueClimax, manifest.CueOutro}},
			{Name: "sceneId", Type: FieldTypeString},
			{Name: "description", Type: FieldTypeString},
		}},
		{Name: "musicDefaults", Type: FieldTypeObject, Children: []SchemaField{
			{Name: "provider", Type: FieldTypeString},
			{Name: "mood", Type: FieldTypeString},
		}},
		{Name: "soundEffects", Type: FieldTypeArray, Children: []SchemaField{
			{Name: "id", Type: FieldTypeString, Required: true},
			{Name: "sceneId", Type: FieldTypeString, Required: true},
			{Name: "atSec", Type: FieldTypeNumber, Required: true},
			{Name: "description", Type: FieldTypeString},
		}},
	}},
	{Name: "visual", Type: FieldTypeObject, Children: []SchemaField{
		{Name: "style", Type: FieldTypeString},
		{Name: "resolution", Type: FieldTypeString},
		{Name: "fps", Type: FieldTypeInt},
		{Name: "palette", Type: FieldTypeArray, Items: FieldTypeString},
	}},
	{Name: "effects", Type: FieldTypeObject, Required: true, Children: []SchemaField{
		{Name: "allowed", Type: FieldTypeArray, Required: true, Items: FieldTypeString},
		{Name: "defaultTransition", Type: FieldTypeString},
		{Name: "overrides", Type: FieldTypeMap, Children: effectStackFields},
	}},
	{Name: "consistency", Type: FieldTypeObject, Children: []SchemaField{
		{Name: "profile", Type: FieldTypeString},
		{Name: "enforcementMode", Type: FieldTypeString, Enum: enforcementEnum},
		{Name: "hardConstraints", Type: FieldTypeObject, Children: []SchemaField{
			{Name: "palette", Type: FieldTypeArray, Items: FieldTypeString},
			{Name: "forbiddenEffects", Type: FieldTypeArray, Items: FieldTypeString},
			{Name: "maxEffectsPerScene", Type: FieldTypeInt},
			{Name: "pacing", Type: FieldTypeString},
			{Name: "audioStyle", Type: FieldTypeString},
		}},
	}},
	{Name: "jobs", Type: FieldTypeArray, Required: true, Children: []SchemaField{
		{Name: "id", Type: FieldTypeString, Required: true},
		{Name: "type", Type: FieldTypeString, Required: true, Enum: jobTypeEnum()},
		{Name: "payload", Type: FieldTypeObject, Required: true},
		{Name: "dependsOn", Type: FieldTypeArray, Required: true, Items: FieldTypeString},
		{Name: "priority", Type: FieldTypeInt},
		{Name: "retry", Type: FieldTypeObject, Children: []SchemaField{
			{Name: "maxRetries", Type: FieldTypeInt},
			{Name: "backoffSeconds", Type: FieldTypeArray, Items: FieldTypeInt},
		}},
	}},
}

var enforcementEnum = []string{manifest.EnforcementStrict, manifest.EnforcementBalanced, manifest.EnforcementCreative}

// Schema validates a typed manifest by checking its JSON form.
func Schema(m *manifest.ProductionManifest) (bool, []Violation) {
	data, err := json.Marshal(m)
	if err != nil {
		return false, []Violation{schemaViolation("encode", "$", fmt.Sprintf("manifest cannot be encoded: %v", err))}
	}
	return SchemaJSON(data)
}

// SchemaJSON validates raw manifest JSON against ManifestSchema.
func SchemaJSON(data []byte) (bool, []Violation) {
	if !gjson.ValidBytes(data) {
		return false, []Violation{schemaViolation("json", "$", "document is not valid JSON")}
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return false, []Violation{schemaViolation("type", "$", "document must be an object")}
	}
	var vs []Violation
	checkFields(root, "", ManifestSchema, &vs)
	return len(vs) == 0, vs
}

func checkFields(obj gjson.Result, prefix string, fields []SchemaField, vs *[]Violation) {
	for _, f := range fields {
		path := joinPath(prefix, f.Name)
		value := obj.Get(gjson.Escape(f.Name))
		if !value.Exists() || value.Type == gjson.Null {
			if f.Required {
				*vs = append(*vs, schemaViolation("required", path, "field is required"))
			}
			continue
		}
		checkValue(value, path, f, vs)
	}
}

func checkValue(value gjson.Result, path string, f SchemaField, vs *[]Violation) {
	if !hasType(value, f.Type) {
		*vs = append(*vs, schemaViolation("type", path, fmt.Sprintf("expected %s, got %s", f.Type, describe(value))))
		return
	}

	switch f.Type {
	case FieldTypeString:
		s := value.String()
		if f.Required && strings.TrimSpace(s) == "" {
			*vs = append(*vs, schemaViolation("required", path, "field must not be empty"))
			return
		}
		if len(f.Enum) > 0 && s != "" && !contains(f.Enum, s) {
			*vs = append(*vs, schemaViolation("enum", path, fmt.Sprintf("%q is not one of %s", s, strings.Join(f.Enum, ", "))))
		}
	case FieldTypeObject:
		checkFields(value, path, f.Children, vs)
	case FieldTypeArray:
		for i, elem := range value.Array() {
			elemPath := fmt.Sprintf("%s[%d]", path, i)
			checkElement(elem, elemPath, f, vs)
		}
	case FieldTypeMap:
		value.ForEach(func(key, elem gjson.Result) bool {
			checkElement(elem, joinPath(path, key.String()), f, vs)
			return true
		})
	}
}

func checkElement(elem gjson.Result, path string, f SchemaField, vs *[]Violation) {
	switch {
	case len(f.Children) > 0:
		if !elem.IsObject() {
			*vs = append(*vs, schemaViolation("type", path, fmt.Sprintf("expected object, got %s", describe(elem))))
			return
		}
		checkFields(elem, path, f.Children, vs)
	case f.Items != "":
		if !hasType(elem, f.Items) {
			*vs = append(*vs, schemaViolation("type", path, fmt.Sprintf("expected %s, got %s", f.Items, describe(elem))))
		}
	}
}

func hasType(v gjson.Result, t FieldType) bool {
	switch t {
	case FieldTypeString:
		return v.Type == gjson.String
	case FieldTypeNumber:
		return v.Type == gjson.Number
	case FieldTypeInt:
		return v.Type == gjson.Number && v.Float() == math.Trunc(v.Float())
	case FieldTypeBool:
		return v.IsBool()
	case FieldTypeArray:
		return v.IsArray()
	case FieldTypeObject, FieldTypeMap:
		return v.IsObject()
	}
	return true
}

func describe(v gjson.Result) string {
	switch {
	case v.IsArray():
		return "array"
	case v.IsObject():
		return "object"
	case v.IsBool():
		return "bool"
	}
	switch v.Type {
	case gjson.String:
		return "string"
	case gjson.Number:
		return "number"
	case gjson.Null:
		return "null"
	}
	return "unknown"
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func schemaViolation(rule, path, msg string) Violation {
	return Violation{Kind: KindSchema, Rule: "schema." + rule, Path: path, Message: msg, Severity: SeverityError}
}
