package normalization

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type style string

const (
	styleCompressed style = "compressed"
	styleExpanded   style = "expanded"
)

func newStyleNormalizer() *Normalizer[style] {
	return NewNormalizer(map[string]style{
		"compressed": styleCompressed,
		"expanded":   styleExpanded,
	}, styleCompressed)
}

func TestNormalizer_Basic(t *testing.T) {
	n := newStyleNormalizer()

	tests := []struct {
		name     string
		input    string
		expected style
	}{
		{"exact match", "expanded", styleExpanded},
		{"case insensitive", "EXPANDED", styleExpanded},
		{"with spaces", "  compressed  ", styleCompressed},
		{"invalid input", "nested", styleCompressed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, n.Normalize(tt.input))
		})
	}
}

func TestNormalizer_WithError(t *testing.T) {
	n := newStyleNormalizer()

	v, err := n.NormalizeWithError("Expanded")
	require.NoError(t, err)
	require.Equal(t, styleExpanded, v)

	v, err = n.NormalizeWithError("")
	require.NoError(t, err)
	require.Equal(t, styleCompressed, v)

	_, err = n.NormalizeWithError("nested")
	require.ErrorContains(t, err, "valid options: [compressed expanded]")
}

func TestNormalizer_ValidKeysIsCopy(t *testing.T) {
	n := newStyleNormalizer()
	keys := n.ValidKeys()
	keys[0] = "mutated"
	require.Equal(t, []string{"compressed", "expanded"}, n.ValidKeys())
}
