package openai

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxSectionRunes bounds a single generated section.
const MaxSectionRunes = 20000

// NormalizeSectionText cleans model output into the text stored for a section.
func NormalizeSectionText(raw string) (string, error) {
	text := strings.TrimSpace(strings.ReplaceAll(raw, "\r\n", "\n"))
	text = stripCodeFence(text)
	if text == "" {
		return "", fmt.Errorf("empty model output")
	}
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("model output is not valid utf-8")
	}
	if n := utf8.RuneCountInString(text); n > MaxSectionRunes {
		return "", fmt.Errorf("model output too long: %d runes", n)
	}
	return text, nil
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") || len(text) < 6 {
		return text
	}
	inner := strings.TrimSuffix(text, "```")
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 {
		inner = inner[nl+1:]
	} else {
		inner = strings.TrimPrefix(inner, "```")
	}
	return strings.TrimSpace(inner)
}
