// Package cursor encodes and decodes opaque connection cursors. Cursors are
// base64-encoded JSON carrying the connection identity (type and relation)
// plus the absolute position of the edge, so a cursor from one connection
// cannot be replayed against another.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

type payload struct {
	Version  int    `json:"v"`
	TypeName string `json:"t"`
	Relation string `json:"r"`
	Offset   int    `json:"o"`
}

const version = 1

// Encode builds an opaque cursor for the edge at the given absolute offset
// within the named connection.
func Encode(typeName, relation string, offset int) string {
	data, err := json.Marshal(payload{
		Version:  version,
		TypeName: typeName,
		Relation: relation,
		Offset:   offset,
	})
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// Decode parses an opaque cursor and validates it against the expected
// connection identity.
func Decode(raw, expectedType, expectedRelation string) (int, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor: %w", err)
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return 0, fmt.Errorf("invalid cursor format")
	}
	if p.Version != version {
		return 0, fmt.Errorf("invalid cursor format: unsupported version %d", p.Version)
	}
	if p.TypeName != expectedType {
		return 0, fmt.Errorf("cursor type mismatch: expected %s, got %s", expectedType, p.TypeName)
	}
	if p.Relation != expectedRelation {
		return 0, fmt.Errorf("cursor relation mismatch: expected %s, got %s", expectedRelation, p.Relation)
	}
	if p.Offset < 0 {
		return 0, fmt.Errorf("invalid cursor: negative offset")
	}
	return p.Offset, nil
}
