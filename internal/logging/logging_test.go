package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_JSONFormatEncodesFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "info", "json")
	require.NoError(t, err)

	log.Info("hello", zap.String("k", "v"))
	require.NoError(t, log.Sync())

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "hello", decoded["msg"])
	assert.Equal(t, "v", decoded["k"])
}

func TestNew_LevelFiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "warn", "json")
	require.NoError(t, err)

	log.Info("should be filtered")
	require.NoError(t, log.Sync())
	assert.Empty(t, buf.String())

	log.Warn("should appear")
	require.NoError(t, log.Sync())
	assert.Contains(t, buf.String(), "should appear")
}

func TestNew_UnknownLevelErrors(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "verbose", "json")
	assert.Error(t, err)
}
