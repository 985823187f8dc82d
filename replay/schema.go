package replay

import (
	"github.com/invopop/jsonschema"
)

// SampleSchema describes one input line accepted by ParseSample. Unknown properties are
// rejected, matching the decoder.
func SampleSchema() *jsonschema.Schema {
	return reflectSchema(&Sample{})
}

// RecordSchema describes one output line written by Runner.Run.
func RecordSchema() *jsonschema.Schema {
	return reflectSchema(&Record{})
}

func reflectSchema(v interface{}) *jsonschema.Schema {
	r := &jsonschema.Reflector{ExpandedStruct: true, Anonymous: true}
	return r.Reflect(v)
}
