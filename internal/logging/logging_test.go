package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtlforge/internal/config"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]logrus.Level{
		"trace": logrus.TraceLevel,
		"DEBUG": logrus.DebugLevel,
		"info":  logrus.InfoLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"bogus": logrus.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestSetupWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rtlforge.log")
	closer := Setup(&config.Settings{LogLevel: "debug", LogFile: path, LogMaxSizeMB: 1})
	defer func() {
		closer.Close()
		logrus.SetOutput(os.Stderr)
		logrus.SetLevel(logrus.InfoLevel)
	}()

	logrus.WithField("job", "synthesis").Debug("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "job=synthesis")
}
