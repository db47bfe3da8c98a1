package service

import (
	"bytes"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomCodeGeneratorFormat(t *testing.T) {
	g := NewRandomCodeGenerator()

	for i := 0; i < 1000; i++ {
		code, err := g.Generate()
		require.NoError(t, err)
		require.Len(t, code, 6)

		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, otpMin)
		assert.LessOrEqual(t, n, otpMax)
	}
}

func TestRandomCodeGeneratorLeadingDigitSpread(t *testing.T) {
	g := NewRandomCodeGenerator()
	counts := make(map[byte]int)

	const draws = 9000
	for i := 0; i < draws; i++ {
		code, err := g.Generate()
		require.NoError(t, err)
		counts[code[0]]++
	}

	assert.Zero(t, counts['0'])
	for d := byte('1'); d <= '9'; d++ {
		// Expected 1000 each; a uniform draw stays well inside this band.
		assert.InDelta(t, draws/9, counts[d], 250, "leading digit %c", d)
	}
}

func TestRandomCodeGeneratorSourceError(t *testing.T) {
	g := &RandomCodeGenerator{source: bytes.NewReader(nil)}

	_, err := g.Generate()
	require.Error(t, err)
}
