package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Stderr(t *testing.T) {
	logger, closer, err := New("debug", "")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.NoError(t, closer.Close())
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chunkd.log")
	logger, closer, err := New("info", path)
	require.NoError(t, err)

	logger.WithField("chunk", "abc").Info("stored")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "chunk=abc")
}

func TestNew_BadLevel(t *testing.T) {
	_, _, err := New("loud", "")
	assert.Error(t, err)
}

func TestOrDiscard(t *testing.T) {
	assert.NotNil(t, OrDiscard(nil))
	l := logrus.New()
	assert.Same(t, l, OrDiscard(l))
}
