package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetPrefersPrefixedName(t *testing.T) {
	t.Setenv("ASSURED_LOG_FORMAT", "console")
	t.Setenv("LOG_FORMAT", "json")
	assert.Equal(t, "console", Get("LOG_FORMAT", "x"))
	assert.Equal(t, "console", Get("ASSURED_LOG_FORMAT", "x"))
}

func TestGetFallsBackToBareName(t *testing.T) {
	t.Setenv("ASSURED_LOG_FORMAT", "  ")
	t.Setenv("LOG_FORMAT", "json")
	assert.Equal(t, "json", Get("LOG_FORMAT", "x"))

	t.Setenv("LOG_FORMAT", "")
	assert.Equal(t, "x", Get("LOG_FORMAT", "x"))
	_, ok := Lookup("LOG_FORMAT")
	assert.False(t, ok)
}
