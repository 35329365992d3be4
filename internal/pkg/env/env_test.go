package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypedGetters(t *testing.T) {
	Env = map[string]string{
		"INT_OK":       "42",
		"INT_BAD":      "forty-two",
		"BOOL_YES":     "yes",
		"DURATION_OK":  "90s",
		"DURATION_BAD": "-5s",
	}
	t.Cleanup(func() { Env = nil })

	assert.Equal(t, 42, GetEnvInt("INT_OK", 1))
	assert.Equal(t, 1, GetEnvInt("INT_BAD", 1))
	assert.Equal(t, 7, GetEnvInt("INT_MISSING", 7))
	assert.True(t, GetEnvBool("BOOL_YES", false))
	assert.False(t, GetEnvBool("BOOL_MISSING", false))
	assert.Equal(t, 90*time.Second, GetEnvDuration("DURATION_OK", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("DURATION_BAD", time.Second))
}

func TestGetEnvFallsBackToProcessEnv(t *testing.T) {
	Env = map[string]string{}
	t.Cleanup(func() { Env = nil })
	t.Setenv("DOCUPAY_TEST_VALUE", "from-os")

	assert.Equal(t, "from-os", GetEnv("DOCUPAY_TEST_VALUE", "def"))
	assert.Equal(t, "def", GetEnv("DOCUPAY_TEST_UNSET", "def"))
}
