package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseString(t *testing.T) {
	t.Setenv("ENROLLD_TEST_STR", "value")
	assert.Equal(t, "value", ParseString("ENROLLD_TEST_STR", "fallback"))
	assert.Equal(t, "fallback", ParseString("ENROLLD_TEST_STR_MISSING", "fallback"))

	t.Setenv("ENROLLD_TEST_EMPTY", "")
	assert.Equal(t, "fallback", ParseString("ENROLLD_TEST_EMPTY", "fallback"))
}

func TestParseInt(t *testing.T) {
	t.Setenv("ENROLLD_TEST_INT", "42")
	assert.Equal(t, 42, ParseInt("ENROLLD_TEST_INT", 7))

	t.Setenv("ENROLLD_TEST_INT", "not-a-number")
	assert.Equal(t, 7, ParseInt("ENROLLD_TEST_INT", 7))

	assert.Equal(t, 7, ParseInt("ENROLLD_TEST_INT_MISSING", 7))
}

func TestParseBool(t *testing.T) {
	t.Setenv("ENROLLD_TEST_BOOL", "true")
	assert.True(t, ParseBool("ENROLLD_TEST_BOOL", false))

	t.Setenv("ENROLLD_TEST_BOOL", "0")
	assert.False(t, ParseBool("ENROLLD_TEST_BOOL", true))

	t.Setenv("ENROLLD_TEST_BOOL", "maybe")
	assert.True(t, ParseBool("ENROLLD_TEST_BOOL", true))
}

func TestParseDuration(t *testing.T) {
	t.Setenv("ENROLLD_TEST_DUR", "250ms")
	assert.Equal(t, 250*time.Millisecond, ParseDuration("ENROLLD_TEST_DUR", time.Second))

	t.Setenv("ENROLLD_TEST_DUR", "soon")
	assert.Equal(t, time.Second, ParseDuration("ENROLLD_TEST_DUR", time.Second))
}
