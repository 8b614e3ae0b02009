package codec

import "encoding/json"

// JSON is the default Codec. Decoded values use encoding/json's dynamic
// shapes: objects become map[string]any, arrays []any, numbers float64.
// The zero value is ready to use.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
