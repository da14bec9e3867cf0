package cache

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Values are stored as msgpack so both backends hold the same bytes and a
// report cached through one backend decodes through the other.

// encodeValue serializes a value for storage.
func encodeValue(value any) ([]byte, error) {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("cache: encode value: %w", err)
	}
	return data, nil
}

// decodeValue deserializes stored bytes into dest.
func decodeValue(data []byte, dest any) error {
	if err := msgpack.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache: decode value: %w", err)
	}
	return nil
}
