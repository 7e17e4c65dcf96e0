package wristband

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyCounter(t *testing.T) {
	tests := []struct {
		name      string
		stored    uint32
		presented uint32
		want      CounterResult
	}{
		{"equal", 9, 9, CounterOK},
		{"equal zero", 0, 0, CounterOK},
		{"behind by one", 9, 8, CounterReplay},
		{"behind by many", 1000, 1, CounterReplay},
		{"ahead by one", 9, 10, CounterForwardJump},
		{"ahead by many", 9, 14, CounterForwardJump},
		{"max value equal", 0xFFFFFFFF, 0xFFFFFFFF, CounterOK},
		{"max value replay", 0xFFFFFFFF, 0, CounterReplay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyCounter(tt.stored, tt.presented))
		})
	}
}

func TestCounterResultString(t *testing.T) {
	assert.Equal(t, "ok", CounterOK.String())
	assert.Equal(t, "replay", CounterReplay.String())
	assert.Equal(t, "forward_jump", CounterForwardJump.String())
}
