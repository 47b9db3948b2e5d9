package connectutil

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// jsonCodec lets connect handlers speak plain JSON structs. It takes the
// "json" name so it replaces connect's protobuf-only JSON codec.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}

// WithJSON returns the option that installs the JSON codec.
func WithJSON() connect.Option {
	return connect.WithCodec(jsonCodec{})
}
