package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeForLog(t *testing.T) {
	assert.Equal(t, "a b c", SanitizeForLog("a\r\nb\nc"))
	assert.Equal(t, "clean", SanitizeForLog("clean"))
	assert.Equal(t, "x y", SanitizeForLog("x\x00\x1by"))
	assert.Equal(t, "", SanitizeForLog(""))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
	assert.Equal(t, "", Truncate("", 5))
}
