package manifest

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

// SchemaID is the canonical identifier of the published manifest schema.
const SchemaID = "https://github.com/zhe.chen/manifest-compiler/schema/production-manifest-" + SchemaVersion + ".json"

var reflectSchema = sync.OnceValue(func() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	s := r.Reflect(&ProductionManifest{})
	s.ID = jsonschema.ID(SchemaID)
	s.Title = "ProductionManifest"
	s.Description = "Validated production plan compiled from a video treatment (schema " + SchemaVersion + ")"
	return s
})

// JSONSchema returns the versioned JSON Schema describing ProductionManifest.
func JSONSchema() *jsonschema.Schema {
	return reflectSchema()
}

// JSONSchemaBytes returns the indented JSON encoding of the manifest schema.
func JSONSchemaBytes() ([]byte, error) {
	return json.MarshalIndent(JSONSchema(), "", "  ")
}
