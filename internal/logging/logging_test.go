package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLoggerJSONInProduction(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	SetupLogger(logger, &buf, "debug", "", true)

	logger.WithField("component", "test").Debug("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "test", entry["component"])
}

func TestSetupLoggerUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	SetupLogger(logger, &buf, "loud", "text", true)

	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.Contains(t, buf.String(), "unknown log level")
}
