package stickers

import (
	"fmt"
	"strings"
)

// Defaults applied when the caller leaves style or body type empty.
const (
	DefaultStyle    = "cute_cartoon"
	DefaultBodyType = "half_body"
)

const fallbackEmotionPhrase = "with neutral expression"

// emotionPrompts maps preset emotion ids to the expression wording fed to
// the image model. Unknown emotions fall back to a neutral expression; the
// label itself is never validated, so custom emotions simply render neutral
// unless they happen to match a key.
var emotionPrompts = map[string]string{
	"happy":     "smiling happily with a big joyful smile",
	"sad":       "looking sad with tears in eyes",
	"angry":     "looking angry with furrowed brows",
	"surprised": "looking surprised with wide open eyes and mouth",
	"love":      "showing love with heart eyes and blushing cheeks",
	"cool":      "looking cool with sunglasses and confident expression",
	"excited":   "looking excited with sparkling eyes and energetic pose",
	"tired":     "looking tired with sleepy eyes and yawning",
}

var stylePrompts = map[string]string{
	"cute_cartoon":      "fun, colorful, kawaii anime style with big expressive eyes, simple shapes, and vibrant colors. The character should be chibi-style (small body, big head)",
	"realistic_cartoon": "semi-realistic cartoon style with detailed features, natural proportions, and realistic shading while maintaining a stylized cartoon look",
	"anime":             "anime/manga style with large expressive eyes, detailed hair, and typical anime art characteristics",
	"chibi":             "super deformed chibi style with oversized head (about 1:2 head-to-body ratio), tiny body, and extremely cute simplified features",
}

var bodyTypePrompts = map[string]string{
	"half_body": "Show the character from waist up (half body portrait)",
	"full_body": "Show the full body of the character from head to toe in a standing or dynamic pose",
	"mixed":     "Vary between half body and full body poses",
}

// BuildPrompt assembles the natural-language generation instruction for one
// sticker. Unknown keys silently resolve to the documented defaults.
func BuildPrompt(emotion, style, bodyType string) string {
	emotionPrompt, ok := emotionPrompts[emotion]
	if !ok {
		emotionPrompt = fallbackEmotionPhrase
	}
	stylePrompt, ok := stylePrompts[style]
	if !ok {
		stylePrompt = stylePrompts[DefaultStyle]
	}
	bodyTypePrompt, ok := bodyTypePrompts[bodyType]
	if !ok {
		bodyTypePrompt = bodyTypePrompts[DefaultBodyType]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Create a cartoon sticker of a person %s. \n", emotionPrompt)
	fmt.Fprintf(&b, "Art style: %s. \n", stylePrompt)
	fmt.Fprintf(&b, "%s. \n", bodyTypePrompt)
	b.WriteString("Make it suitable for messaging apps. \n")
	b.WriteString("The background should be transparent or white. \n")
	b.WriteString("Keep the facial features recognizable but stylized in the chosen art style.")
	return b.String()
}

func normalizeStyle(style string) string {
	if strings.TrimSpace(style) == "" {
		return DefaultStyle
	}
	return style
}

func normalizeBodyType(bodyType string) string {
	if strings.TrimSpace(bodyType) == "" {
		return DefaultBodyType
	}
	return bodyType
}
