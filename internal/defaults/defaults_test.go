package defaults

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataDirOverride(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOTWORD_DATA_DIR", tmp)

	dir, err := DataDir()
	require.NoError(t, err)
	assert.Equal(t, tmp, dir)
}

func TestEnsureDataDir(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "nested")
	t.Setenv("HOTWORD_DATA_DIR", tmp)

	dir, err := EnsureDataDir()
	require.NoError(t, err)

	for _, sub := range []string{"data", "models"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, filepath.Join(tmp, "models"), ModelsDir(dir))
}
