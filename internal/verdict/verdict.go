// Package verdict turns free-form vision model output into a structured
// {object, comment} verdict.
package verdict

import (
	"strings"

	"github.com/segmentio/encoding/json"
)

// UnknownObject is reported whenever nothing usable could be extracted.
const UnknownObject = "unknown"

const (
	commentParsingError = "Parsing error occurred"
	commentAPIError     = "API Error occurred"
	apiErrorPrefix      = "API Error: "
	rawCommentLimit     = 100
)

// Verdict is the model's identification of one drawing.
type Verdict struct {
	Object  string `json:"object"`
	Comment string `json:"comment"`
}

// Unknown builds a verdict that never matches a target.
func Unknown(comment string) Verdict {
	return Verdict{Object: UnknownObject, Comment: comment}
}

// JSON renders the canonical wire form {"object":"...","comment":"..."}.
func (v Verdict) JSON() string {
	b, err := json.Marshal(v)
	if err != nil {
		// both fields are plain strings; Marshal can't fail here in practice
		return `{"object":"unknown","comment":"Parsing error occurred"}`
	}
	return string(b)
}

// Matches reports whether the identified object equals target after normalization.
func (v Verdict) Matches(target string) bool {
	t := Normalize(target)
	return t != "" && Normalize(v.Object) == t
}

// Normalize trims and lowercases an object name for comparison.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Parse extracts a verdict from raw model output. The steps run in priority
// order and the first that produces a verdict wins:
//
//  1. upstream error payload ({"error":{"message":...}}, or a bare error body)
//  2. a balanced {...} object carrying both "object" and "comment"
//  3. tolerant scraping of the first quoted value after each key
//  4. the first 100 characters of the text as the comment
//
// Parse never panics; internal failures degrade to an unknown verdict.
func Parse(raw string) (v Verdict) {
	defer func() {
		if r := recover(); r != nil {
			v = Unknown(commentParsingError)
		}
	}()

	spans := objectSpans(raw)

	if out, ok := fromErrorPayload(raw, spans); ok {
		return out
	}
	if out, ok := fromSpans(spans); ok {
		return out
	}
	if out, ok := scrape(raw); ok {
		return out
	}
	return Unknown(truncateRunes(strings.TrimSpace(raw), rawCommentLimit))
}

// fromErrorPayload reports an upstream error. Any candidate whose "error"
// carries a non-empty message qualifies. A message-less error only counts
// when the whole body is a bare error envelope.
func fromErrorPayload(raw string, spans []string) (Verdict, bool) {
	trimmed := strings.TrimSpace(raw)
	candidates := spans
	if strings.HasPrefix(trimmed, "{") {
		candidates = append([]string{trimmed}, spans...)
	}
	for _, c := range candidates {
		payload, ok := decodeObject(c)
		if !ok {
			continue
		}
		if msg := errorMessage(payload["error"]); msg != "" {
			return Unknown(apiErrorPrefix + msg), true
		}
	}

	if body, ok := decodeObject(trimmed); ok && isErrorEnvelope(body) {
		return Unknown(commentAPIError), true
	}
	return Verdict{}, false
}

func decodeObject(s string) (map[string]json.RawMessage, bool) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &payload); err != nil || payload == nil {
		return nil, false
	}
	return payload, true
}

// isErrorEnvelope: an "error" that is present and not null/false, with no
// verdict fields beside it.
func isErrorEnvelope(body map[string]json.RawMessage) bool {
	errRaw, ok := body["error"]
	if !ok {
		return false
	}
	if _, has := body["object"]; has {
		return false
	}
	if _, has := body["comment"]; has {
		return false
	}
	switch strings.TrimSpace(string(errRaw)) {
	case "", "null", "false", `""`:
		return false
	}
	return true
}

func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && strings.TrimSpace(nested.Message) != "" {
		return nested.Message
	}
	var flat string
	if err := json.Unmarshal(raw, &flat); err == nil {
		return strings.TrimSpace(flat)
	}
	return ""
}

func fromSpans(spans []string) (Verdict, bool) {
	for _, span := range spans {
		var obj map[string]any
		if err := json.Unmarshal([]byte(span), &obj); err != nil {
			continue
		}
		if v, ok := findVerdict(obj, 0); ok {
			return v, true
		}
	}
	return Verdict{}, false
}

// findVerdict looks for an object/comment pair at this level, then in nested objects.
func findVerdict(obj map[string]any, depth int) (Verdict, bool) {
	objVal, hasObj := obj["object"]
	commentVal, hasComment := obj["comment"]
	if hasObj && hasComment {
		return Verdict{Object: stringify(objVal), Comment: stringify(commentVal)}, true
	}
	if depth >= 4 {
		return Verdict{}, false
	}
	for _, child := range obj {
		if nested, ok := child.(map[string]any); ok {
			if v, ok := findVerdict(nested, depth+1); ok {
				return v, true
			}
		}
	}
	return Verdict{}, false
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// objectSpans returns every balanced top-level {...} span in s. Braces inside
// JSON strings are ignored. An unterminated trailing object is dropped.
func objectSpans(s string) []string {
	var (
		spans    []string
		depth    int
		start    = -1
		inString bool
		escaped  bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				spans = append(spans, s[start:i+1])
				start = -1
			}
		}
	}
	return spans
}
