package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"":        INFO,
		"warning": WARN,
		"warn":    WARN,
		"error":   ERROR,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestConsoleOutputRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitWriter("", &buf))
	t.Cleanup(Close)

	SetLevel(WARN)
	Infof("hidden %d", 1)
	Warnf("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "shown 2")
	assert.Equal(t, WARN, Level())
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mediaconv.log")
	require.NoError(t, Init(path, false))
	SetLevel(DEBUG)

	Named("engine").Info("engine ready", "version", "6.1")
	Debug("staged input")
	Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "engine ready")
	assert.Contains(t, string(data), "version=6.1")
	assert.Contains(t, string(data), "staged input")
}

func TestInitWithoutOutputsFails(t *testing.T) {
	assert.Error(t, Init("", false))
}
