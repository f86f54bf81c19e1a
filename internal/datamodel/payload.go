package datamodel

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/robindai518/libiec61850/internal/eventlog"
)

// Change is the decoded payload of a data-change entry.
type Change struct {
	Ref   string      `json:"ref"`
	Type  Type        `json:"type"`
	Value interface{} `json:"value"`
}

// EncodePayload serializes a data change as a protobuf Struct
// {"ref","type","value"}. Timestamps are encoded as milliseconds.
func EncodePayload(ref string, t Type, v interface{}) ([]byte, error) {
	if ts, ok := v.(eventlog.Timestamp); ok {
		v = ts.UnixMilli()
	}
	s, err := structpb.NewStruct(map[string]interface{}{
		"ref":   ref,
		"type":  string(t),
		"value": v,
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// DecodePayload parses a payload written by EncodePayload.
func DecodePayload(b []byte) (Change, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return Change{}, fmt.Errorf("decode payload: %w", err)
	}
	m := s.AsMap()
	ref, _ := m["ref"].(string)
	typ, _ := m["type"].(string)
	if ref == "" || !Type(typ).valid() {
		return Change{}, fmt.Errorf("decode payload: missing ref or type")
	}
	c := Change{Ref: ref, Type: Type(typ), Value: m["value"]}
	if f, ok := c.Value.(float64); ok && (c.Type == TypeInt || c.Type == TypeTimestamp) {
		c.Value = int64(f)
	}
	return c, nil
}
