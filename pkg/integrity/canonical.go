package integrity

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// canonicalJSON serializes a value deterministically: objects are
// recursively key-sorted so field ordering never affects the bytes.
// Numbers pass through as json.Number to avoid float round-tripping.
func canonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("failed to decode for canonicalization: %v", err)
	}

	// encoding/json marshals map keys in sorted order, which combined
	// with the generic form yields a canonical byte sequence.
	return json.Marshal(generic)
}
