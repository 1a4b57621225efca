package services

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// DefaultPrompt is used when neither a prompt nor a known theme is supplied.
const DefaultPrompt = "A photo of a person"

// Prompt limits count characters, not bytes.
const (
	minPromptLength = 3
	maxPromptLength = 200
)

// Themes maps theme names to their base prompts.
var Themes = map[string]string{
	"futuristic": "A hyper-realistic portrait of the person in futuristic cyberpunk attire with neon lights and a sci-fi background",
	"retro 80s":  "A photo-realistic portrait of the person in vibrant retro 80s clothing with neon colors and a vintage background",
	"baseball":   "A photo-realistic portrait of the person transformed into a professional baseball player with a stadium and sports gear",
}

var forbiddenTerms = []string{
	"explicit",
	"nsfw",
	"offensive",
	"inappropriate",
	"hate",
	"violence",
	"gore",
}

var (
	unsafeChars = regexp.MustCompile(`[<>{}]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// ThemeNames returns the known themes in sorted order.
func ThemeNames() []string {
	names := make([]string, 0, len(Themes))
	for name := range Themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SanitizePrompt strips markup characters and collapses whitespace.
func SanitizePrompt(prompt string) string {
	prompt = unsafeChars.ReplaceAllString(prompt, "")
	prompt = whitespace.ReplaceAllString(prompt, " ")
	return strings.TrimSpace(prompt)
}

// ValidatePrompt checks an already sanitized custom prompt.
func ValidatePrompt(prompt string) error {
	if utf8.RuneCountInString(prompt) > maxPromptLength {
		return inputError("prompt", "Prompt exceeds maximum length of %d characters", maxPromptLength)
	}
	lower := strings.ToLower(prompt)
	for _, term := range forbiddenTerms {
		if strings.Contains(lower, term) {
			return inputError("prompt", "Prompt contains inappropriate content")
		}
	}
	if utf8.RuneCountInString(prompt) < minPromptLength {
		return inputError("prompt", "Prompt is too short")
	}
	return nil
}

// ResolvePrompt builds the model prompt from an optional theme and an
// optional custom prompt. Unknown themes are ignored.
func ResolvePrompt(custom, theme string) (string, error) {
	base, known := Themes[strings.ToLower(strings.TrimSpace(theme))]

	custom = SanitizePrompt(custom)
	if custom == "" {
		if known {
			return base, nil
		}
		return DefaultPrompt, nil
	}
	if err := ValidatePrompt(custom); err != nil {
		return "", err
	}
	if known {
		return base + ", " + custom, nil
	}
	return custom, nil
}
