package bot

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodecName is the content-subtype negotiated with the runtime.
const jsonCodecName = "json"

// jsonCodec lets the gRPC channel carry JSON payloads. The runtime does
// not publish protobuf descriptors, so no generated code is committed;
// method stubs in client.go invoke the channel directly with this codec.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return jsonCodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
