package stickers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPromptKnownPresets(t *testing.T) {
	prompt := BuildPrompt("happy", "anime", "full_body")

	assert.True(t, strings.HasPrefix(prompt, "Create a cartoon sticker of a person smiling happily with a big joyful smile."))
	assert.Contains(t, prompt, "anime/manga style with large expressive eyes")
	assert.Contains(t, prompt, "Show the full body of the character from head to toe")
	assert.Contains(t, prompt, "Make it suitable for messaging apps.")
	assert.Contains(t, prompt, "The background should be transparent or white.")
	assert.True(t, strings.HasSuffix(prompt, "Keep the facial features recognizable but stylized in the chosen art style."))
}

func TestBuildPromptUnknownEmotionFallsBackToNeutral(t *testing.T) {
	prompt := BuildPrompt("contemplative", DefaultStyle, DefaultBodyType)

	assert.Contains(t, prompt, "with neutral expression")
	assert.NotContains(t, prompt, "contemplative")
}

func TestBuildPromptUnknownStyleAndBodyTypeUseDefaults(t *testing.T) {
	prompt := BuildPrompt("sad", "vaporwave", "floating_head")

	assert.Contains(t, prompt, "looking sad with tears in eyes")
	assert.Contains(t, prompt, stylePrompts[DefaultStyle])
	assert.Contains(t, prompt, bodyTypePrompts[DefaultBodyType])
}

func TestBuildPromptCoversEveryPresetEmotion(t *testing.T) {
	for emotion, phrase := range emotionPrompts {
		prompt := BuildPrompt(emotion, "", "")
		assert.Contains(t, prompt, phrase, "emotion %q should use its preset phrase", emotion)
	}
}

func TestNormalizeStyleAndBodyType(t *testing.T) {
	assert.Equal(t, DefaultStyle, normalizeStyle(""))
	assert.Equal(t, DefaultStyle, normalizeStyle("   "))
	assert.Equal(t, "chibi", normalizeStyle("chibi"))

	assert.Equal(t, DefaultBodyType, normalizeBodyType(""))
	assert.Equal(t, "mixed", normalizeBodyType("mixed"))
}
