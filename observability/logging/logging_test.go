package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestSensitiveAttributesAreRedacted(t *testing.T) {
	require.True(t, IsSensitive("hmacSecret"))
	require.True(t, IsSensitive("Auth_Token"))
	require.False(t, IsSensitive("caller"))
	require.False(t, IsSensitive("token"))

	var buf bytes.Buffer
	logger := SetupWithOptions("wagerd", "test", Options{Output: &buf})
	logger.Info("gateway configured", "hmacSecret", "hunter2", "passphrase", "", "caller", "wgr1alice")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, RedactedValue, line["hmacSecret"])
	require.Equal(t, "", line["passphrase"])
	require.Equal(t, "wgr1alice", line["caller"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "gateway configured", line["message"])
	require.Equal(t, "wagerd", line["service"])
}

func TestSetupWithRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wagerd.log")
	var buf bytes.Buffer
	logger := SetupWithOptions("wagerd", "test", Options{
		Level:  "debug",
		File:   &FileOptions{Path: path, MaxSizeMB: 1},
		Output: &buf,
	})
	require.NotNil(t, logger)
	logger.Info("started")
	require.FileExists(t, path)
	require.Contains(t, buf.String(), `"message":"started"`)
}
