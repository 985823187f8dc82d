package utils

import (
	"encoding/json"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// AttributeMap is a convenience wrapper for pulling out typed information from a map.
type AttributeMap map[string]interface{}

// Has returns whether or not the given name is in the attributes.
func (am AttributeMap) Has(name string) bool {
	_, has := am[name]
	return has
}

// Decode converts the attributes into the struct pointed to by target, matching on json tags.
// Unknown attributes are an error. String attributes are decoded into fields implementing
// encoding.TextUnmarshaler through UnmarshalText.
func (am AttributeMap) Decode(target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           target,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Squash:           true,
		DecodeHook:       mapstructure.TextUnmarshallerHookFunc(),
	})
	if err != nil {
		return errors.Wrap(err, "error creating attribute decoder")
	}
	return errors.Wrap(decoder.Decode(map[string]interface{}(am)), "error decoding attributes")
}

// ReadAttributeMapFile reads a JSON object from the named file after expanding environment
// variable references such as ${NOISE}.
func ReadAttributeMapFile(path string) (AttributeMap, error) {
	data, err := envsubst.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading %q", path)
	}
	var am AttributeMap
	if err := json.Unmarshal(data, &am); err != nil {
		return nil, errors.Wrapf(err, "error parsing %q", path)
	}
	return am, nil
}
