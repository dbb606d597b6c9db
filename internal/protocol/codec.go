package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// LineKind classifies a single line of worker stdout.
type LineKind int

const (
	// KindBlank is an empty (or whitespace-only) line; ignored.
	KindBlank LineKind = iota
	// KindDiagnostic is free-form log text; forwarded to the log sink, never
	// parsed for control meaning.
	KindDiagnostic
	// KindJSON looks like a JSON value and is a candidate Result.
	KindJSON
)

// Classify decides how a stdout line is handled. Anything whose first
// non-space byte is not '{' or '[' is diagnostic output.
func Classify(line []byte) LineKind {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return KindBlank
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return KindJSON
	}
	return KindDiagnostic
}

// EncodeEnvelope serializes an Envelope and writes it as exactly one
// newline-terminated line.
func EncodeEnvelope(w io.Writer, env *Envelope) error {
	if env.Rid == "" {
		return fmt.Errorf("envelope rid is empty")
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	data = append(data, '\n')

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write envelope: %w", err)
	}
	return nil
}

// ParseResult decodes a JSON-looking line into a Result. Any value that
// parses is a Result: status, error and __t are all optional, and every other
// field is retained in Fields untouched. A value without a string status
// (including non-object JSON such as arrays) yields an empty Status, which
// can never signal success. Only a line that fails to parse is an error.
func ParseResult(line []byte) (*Result, error) {
	var value any
	if err := json.Unmarshal(line, &value); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}

	res := &Result{}

	fields, ok := value.(map[string]any)
	if !ok {
		return res, nil
	}
	res.Fields = fields

	if status, ok := fields["status"].(string); ok {
		res.Status = status
	}
	if msg, ok := fields["error"].(string); ok {
		res.Error = msg
	}
	if t, ok := fields["__t"].(float64); ok {
		res.TimeMs = &t
	}

	return res, nil
}
