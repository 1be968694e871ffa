package observability

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_TextFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger, err := NewLogger(&buf, "info", "text")
	require.NoError(t, err)

	logger.Info("started", "docs", 3)
	assert.Contains(t, buf.String(), "msg=started")
	assert.Contains(t, buf.String(), "docs=3")
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger, err := NewLogger(&buf, "warn", "json")
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("visible")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
}

func TestNewLogger_RejectsUnknowns(t *testing.T) {
	t.Parallel()

	_, err := NewLogger(nil, "verbose", "text")
	assert.Error(t, err)

	_, err = NewLogger(nil, "info", "xml")
	assert.Error(t, err)
}
