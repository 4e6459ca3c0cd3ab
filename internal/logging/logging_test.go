package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevelRecognizesAllNames(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("Error"))
	assert.Equal(t, LevelInfo, ParseLevel("anything-else"))
}

func TestSetLevelGatesDebugOutput(t *testing.T) {
	defer SetLevel(LevelInfo)

	SetLevel(LevelDebug)
	assert.True(t, current <= LevelDebug)

	SetLevel(LevelError)
	assert.True(t, current > LevelDebug)
}
