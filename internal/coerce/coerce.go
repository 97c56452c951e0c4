// Package coerce normalizes loosely-typed agent output into validated
// structured records. The language model's output format is not
// guaranteed: it may be a native object, a JSON string, a markdown-fenced
// JSON string, or a single-key wrapper around the expected shape. Each
// step here is a fallback for the previous one failing, and nothing
// malformed is silently accepted.
package coerce

import (
	"encoding/json"
	"fmt"
	"strings"
)

// previewLimit bounds how much offending text an Error carries.
const previewLimit = 200

// payloadKeys are the envelope fields some agent runtimes wrap their
// structured result in.
var payloadKeys = []string{"data", "output"}

// Error is a typed coercion failure carrying the underlying parse or
// validation error and a truncated preview of the offending input.
type Error struct {
	Err     error
	Preview string
}

func (e *Error) Error() string {
	return fmt.Sprintf("coerce: %v (input: %q)", e.Err, e.Preview)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(err error, input string) *Error {
	if len(input) > previewLimit {
		input = input[:previewLimit]
	}
	return &Error{Err: err, Preview: input}
}

// Validatable is implemented by targets that can check their own shape
// after decoding. Validation failure is treated identically to a parse
// failure.
type Validatable interface {
	Validate() error
}

// Into coerces a raw agent result into out. The raw value may be a
// decoded object (map), a JSON string, or a fenced JSON string; wrapperKey
// optionally names a single-key envelope to unwrap one level (e.g.
// "prep_report"). If out implements Validatable it is validated after
// decoding. Any failure returns an *Error; Into never panics or lets a
// parse error escape untyped.
func Into(raw any, wrapperKey string, out any) error {
	text, err := normalize(raw)
	if err != nil {
		return err
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return newError(err, text)
	}

	// Single-key wrapper around the expected shape: unwrap one level.
	if wrapperKey != "" {
		if inner, ok := decoded[wrapperKey]; ok && len(decoded) == 1 {
			text = string(inner)
		}
	}

	if err := json.Unmarshal([]byte(text), out); err != nil {
		return newError(err, text)
	}

	if v, ok := out.(Validatable); ok {
		if err := v.Validate(); err != nil {
			return newError(err, text)
		}
	}
	return nil
}

// normalize turns the raw result into JSON text: unwrap a structured
// payload field if present, stringify anything non-textual, and strip a
// markdown code fence.
func normalize(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return StripFence(v), nil
	case []byte:
		return StripFence(string(v)), nil
	case json.RawMessage:
		return StripFence(string(v)), nil
	case map[string]any:
		for _, key := range payloadKeys {
			if inner, ok := v[key]; ok {
				return normalize(inner)
			}
		}
		buf, err := json.Marshal(v)
		if err != nil {
			return "", newError(err, fmt.Sprintf("%v", v))
		}
		return string(buf), nil
	default:
		buf, err := json.Marshal(v)
		if err != nil {
			return "", newError(err, fmt.Sprintf("%v", v))
		}
		return string(buf), nil
	}
}

// StripFence removes a leading/trailing triple-backtick fence, optionally
// tagged ("```json"), from s. Text without a fence is returned trimmed.
func StripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	body := s[3:]
	// Drop the optional language tag on the opening fence line.
	if idx := strings.IndexByte(body, '\n'); idx >= 0 {
		tag := strings.TrimSpace(body[:idx])
		if tag == "" || isFenceTag(tag) {
			body = body[idx+1:]
		}
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}

func isFenceTag(tag string) bool {
	for _, r := range tag {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
