package verdict

import (
	"strings"
	"unicode/utf8"

	"github.com/segmentio/encoding/json"
)

// scrape is the last structured attempt: when the text mentions both keys but
// holds no decodable object, take the first quoted value after each key.
func scrape(text string) (Verdict, bool) {
	if !strings.Contains(text, "object") || !strings.Contains(text, "comment") {
		return Verdict{}, false
	}
	v := Unknown(truncateRunes(strings.TrimSpace(text), rawCommentLimit))
	if obj, ok := valueAfterKey(text, "object"); ok {
		v.Object = obj
	}
	if comment, ok := valueAfterKey(text, "comment"); ok {
		v.Comment = comment
	}
	return v, true
}

// valueAfterKey finds key (quoted form preferred) and returns the next quoted
// string after it, unescaped when it is valid JSON string content.
func valueAfterKey(text, key string) (string, bool) {
	from := -1
	if idx := strings.Index(text, `"`+key+`"`); idx >= 0 {
		from = idx + len(key) + 2
	} else if idx := strings.Index(text, key); idx >= 0 {
		from = idx + len(key)
	}
	if from < 0 || from >= len(text) {
		return "", false
	}

	open := strings.IndexByte(text[from:], '"')
	if open < 0 {
		return "", false
	}
	start := from + open + 1

	end := -1
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		if c == '"' {
			end = i
			break
		}
	}
	if end < 0 {
		return "", false
	}

	raw := text[start:end]
	var decoded string
	if err := json.Unmarshal([]byte(`"`+raw+`"`), &decoded); err == nil {
		return decoded, true
	}
	return raw, true
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
