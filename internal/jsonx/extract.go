// Package jsonx extracts JSON objects from free-form model output.
// Judging and planning models are asked for bare JSON but routinely wrap
// it in prose or markdown code fences; callers use ExtractObject to find
// the first well-formed object regardless of wrapping.
package jsonx

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrNoObject = errors.New("no JSON object found")

// ExtractObject returns the first balanced {...} span in text that
// parses as a JSON object. Braces inside string literals are ignored.
func ExtractObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	for start >= 0 {
		if end := matchBrace(text, start); end > start {
			candidate := text[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, nil
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start = start + 1 + next
	}
	return "", ErrNoObject
}

// Unmarshal extracts the first JSON object from text and decodes it into v.
func Unmarshal(text string, v any) error {
	obj, err := ExtractObject(text)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(obj), v)
}

// matchBrace returns the index of the brace closing the object opened at
// start, or -1 if the object never closes.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
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
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
