package eventbus

import "errors"

// Common serialization errors
var (
	// ErrInvalidData is returned when the data cannot be serialized or deserialized
	ErrInvalidData = errors.New("invalid data for serialization")
)

// Serializer converts message payloads to bytes and back.
type Serializer interface {
	Serialize(v interface{}) ([]byte, error)

	// Deserialize decodes data into target, which must be a pointer.
	Deserialize(data []byte, target interface{}) error

	// ContentType returns the MIME type for this serializer.
	ContentType() string
}
