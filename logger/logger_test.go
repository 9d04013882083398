package logger_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentovic/jack1/logger"
)

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	l := logger.New(logger.WarnLevel, &buf)
	l.Info("should not appear")
	l.Warn("should appear")

	out := buf.String()
	require.NotContains(t, out, "should not appear")
	require.Contains(t, out, "should appear")
}

func TestLogger_WithFieldsCarriesContext(t *testing.T) {
	var buf bytes.Buffer

	l := logger.New(logger.DebugLevel, &buf).WithField("client_id", 7)
	l.Info("registered port")

	require.True(t, strings.Contains(buf.String(), "client_id=7"))
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, logger.DebugLevel, logger.ParseLevel("debug"))
	require.Equal(t, logger.InfoLevel, logger.ParseLevel("garbage"))
}
