// Package codec (de)serializes cache values for persistence.
//
// Granular backends store one serialized record per top-level cache key and
// run every value through a Codec[any]; blob backends serialize the whole
// snapshot as one document. JSON is the default everywhere because persisted
// records are expected to stay inspectable with standard tooling (peeking at
// sqlite rows, redis-cli GET). Msgpack and CBOR trade that for compactness.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
