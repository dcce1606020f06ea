package formatting

import (
	"errors"
	"regexp"
)

// ErrNoObject is returned when content holds no '{' ... '}' span.
var ErrNoObject = errors.New("no JSON object found")

var jsonObjectRegex = regexp.MustCompile(`(?s)\{.*\}`)

// ExtractObject returns the greedy span from the first '{' to the last '}' in
// content. Prose before or after the object is discarded; nothing inside the
// span is altered.
func ExtractObject(content string) (string, error) {
	span := jsonObjectRegex.FindString(content)
	if span == "" {
		return "", ErrNoObject
	}
	return span, nil
}
