package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("json logger", func(t *testing.T) {
		logger, err := New("info", "json")
		require.NoError(t, err)
		require.NotNil(t, logger)
		assert.False(t, logger.Core().Enabled(-1)) // debug disabled
	})

	t.Run("console logger at debug", func(t *testing.T) {
		logger, err := New("debug", "console")
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(-1))
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := New("loud", "json")
		assert.Error(t, err)
	})

	t.Run("invalid format", func(t *testing.T) {
		_, err := New("info", "xml")
		assert.Error(t, err)
	})
}
