package summarizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrequencySummarizer(t *testing.T) {
	s := NewFrequencySummarizer()
	text := "The brake pedal feels soft. Brake fluid leaks near the brake caliper.\nThe radio works. Replace brake fluid and bleed the brake lines!"

	out, err := s.Summarize(text, 2)
	require.NoError(t, err)
	assert.Equal(t, "Brake fluid leaks near the brake caliper. Replace brake fluid and bleed the brake lines!", out,
		"Expected the two brake fluid sentences in document order")

	all, err := s.Summarize(text, 10)
	require.NoError(t, err)
	assert.Contains(t, all, "The radio works.")

	def, err := s.Summarize(text, 0)
	require.NoError(t, err)
	assert.Equal(t, all, def, "Expected the default to cover all four sentences")

	plain, err := s.Summarize("  no terminal\npunctuation ", 3)
	require.NoError(t, err)
	assert.Equal(t, "no terminal punctuation", plain)
}

func TestNew(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)
	assert.IsType(t, &FrequencySummarizer{}, s)
	_, err = New("abstractive")
	assert.Error(t, err)
}
