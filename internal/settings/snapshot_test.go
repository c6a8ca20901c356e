package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseInt64(t *testing.T) {
	assert.Equal(t, int64(2200), parseInt64("", 2200))
	assert.Equal(t, int64(1500), parseInt64("1500", 2200))
	assert.Equal(t, int64(2200), parseInt64("not-a-number", 2200))
}

func TestParseBool(t *testing.T) {
	assert.True(t, parseBool("", true))
	assert.False(t, parseBool("false", true))
	assert.True(t, parseBool("true", false))
	assert.True(t, parseBool("garbage", true))
}
