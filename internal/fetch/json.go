package fetch

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// ParseJSON decodes a JSON feed payload. Arrays of objects come back as
// []map[string]any so detectors get a uniform shape; anything else is
// returned as decoded.
func ParseJSON(r io.Reader) (any, error) {
	var v any
	if err := json.NewDecoder(io.LimitReader(r, maxFeedBytes)).Decode(&v); err != nil {
		return nil, eris.Wrap(err, "fetch: decode json")
	}

	arr, ok := v.([]any)
	if !ok {
		return v, nil
	}
	objs := make([]map[string]any, 0, len(arr))
	for _, el := range arr {
		obj, ok := el.(map[string]any)
		if !ok {
			return v, nil
		}
		objs = append(objs, obj)
	}
	return objs, nil
}
