package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"outfitter/internal/models"
)

const systemPrompt = `You are a professional outfit stylist. Given current weather
conditions and the user's preferences, suggest what to wear today.
Respond with a single JSON object and nothing else. Use these keys:
"outfit" (an object with "top", "bottom", "outerwear", "shoes" and
"accessories" entries) and "tips" (a short free-text string with
weather-specific advice). Keep every value concise and practical.`

// buildUserPrompt renders the weather snapshot and suggestion options into
// the user message. The weather data is forwarded verbatim as JSON; options
// are appended as labelled lines so empty fields cost nothing.
func buildUserPrompt(weather map[string]any, opts models.SuggestOptions) (string, error) {
	weatherJSON, err := json.Marshal(weather)
	if err != nil {
		return "", fmt.Errorf("encode weather data: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Current weather conditions:\n%s\n", weatherJSON)
	fmt.Fprintf(&b, "\nStyle preference: %s\n", opts.Gender)

	if opts.Scene != "" {
		fmt.Fprintf(&b, "Occasion: %s\n", opts.Scene)
	}

	if opts.Mode == models.ModeDetailed {
		b.WriteString("\nThis is a detailed request.\n")
		if opts.Preference != "" {
			fmt.Fprintf(&b, "The user would like to wear: %s\n", opts.Preference)
		}
		if opts.Wardrobe != "" {
			fmt.Fprintf(&b, "The user owns these garments, prefer them: %s\n", opts.Wardrobe)
		}
		b.WriteString("Explain briefly why each piece suits the conditions.\n")
	} else {
		b.WriteString("\nKeep the suggestion short and direct.\n")
	}

	return b.String(), nil
}
