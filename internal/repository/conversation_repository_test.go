package repository

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "short question", deriveTitle("short question"))

	long := strings.Repeat("很", 60)
	title := deriveTitle(long)
	assert.Equal(t, titleRuneLimit+1, len([]rune(title)))
	assert.True(t, strings.HasSuffix(title, "…"))
}

func TestHistoryCacheKey(t *testing.T) {
	assert.Equal(t, "conversation:abc-123:recent", historyCacheKey("abc-123"))
}
