package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureJSON(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	Configure(l, "debug", "JSON", &buf)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	l.WithField("channel", "#dice").Debug("hello")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "#dice", entry["channel"])
}

func TestConfigureBadLevelFallsBackToInfo(t *testing.T) {
	l := logrus.New()
	Configure(l, "loud", "text", &bytes.Buffer{})
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
	_, ok := l.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok)
}
