package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePattern(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"What can you do?", "what can you do"},
		{"  WHAT   can you\tdo!!", "what can you do"},
		{"What's up", "whats up"},
		{"Hello, Jarvis", "hello jarvis"},
		{"Привет, Джарвис!", "привет джарвис"},
		{"abc\xff def", "abc def"},
		{"!!!", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePattern(tt.input))
		})
	}
}

func TestValidateSessionID(t *testing.T) {
	require.NoError(t, validateSessionID("s1"))
	require.NoError(t, validateSessionID("user-42:device_1.main"))

	for _, id := range []string{"", "has space", "semi;colon", string(make([]byte, maxSessionIDLength+1))} {
		assert.ErrorIs(t, validateSessionID(id), ErrInvalidInput, "id %q", id)
	}
}

func TestEMA_StaysInUnitInterval(t *testing.T) {
	for _, start := range []float64{0, 0.15, 0.5, 0.875, 1} {
		score := start
		for i := 0; i < 50; i++ {
			for rating := 1; rating <= 5; rating++ {
				score = ema(score, float64(rating-1)/4, 0.2)
				require.GreaterOrEqual(t, score, 0.0)
				require.LessOrEqual(t, score, 1.0)
			}
		}
	}

	assert.InDelta(t, 0.6, ema(0.5, 1, 0.2), 1e-9)
	assert.InDelta(t, 0.4, ema(0.5, 0, 0.2), 1e-9)
	assert.Equal(t, 1.0, ema(1.2, 1, 0.2))
}
