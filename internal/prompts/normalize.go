package prompts

import (
	"strings"
)

// MaxPromptLength is the longest prompt forwarded upstream, in bytes.
const MaxPromptLength = 1000

// Normalize trims the prompt, collapses runs of whitespace and truncates it
// to MaxPromptLength at a word boundary when possible.
func Normalize(prompt string) string {
	prompt = strings.Join(strings.Fields(prompt), " ")
	return truncatePrompt(prompt, MaxPromptLength)
}

// truncatePrompt intelligently truncates a prompt at word boundaries
func truncatePrompt(prompt string, maxLen int) string {
	if len(prompt) <= maxLen {
		return prompt
	}

	truncated := prompt[:maxLen]
	// Step back off a split multi-byte rune.
	for len(truncated) > 0 && !isRuneStart(prompt[len(truncated)]) {
		truncated = truncated[:len(truncated)-1]
	}

	lastSpace := strings.LastIndex(truncated, " ")
	if lastSpace > maxLen*2/3 { // Only truncate at word if we're not losing too much
		truncated = truncated[:lastSpace]
	}

	return strings.TrimRight(truncated, " ,.")
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
