package service

import "github.com/goccy/go-json"

// Codec carries messages as plain JSON. It takes over connect's "json"
// codec name, so both unary (application/json) and streaming
// (application/connect+json) calls use it.
type Codec struct{}

func (Codec) Name() string { return "json" }

func (Codec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (Codec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
