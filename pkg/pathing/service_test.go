package pathing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoriesHonorEnvironment(t *testing.T) {
	root := t.TempDir()
	t.Setenv("INVERTER_ANALYZER_DATA_DIR", filepath.Join(root, "data"))
	t.Setenv("INVERTER_ANALYZER_CONFIG_DIR", filepath.Join(root, "etc"))

	require.NoError(t, EnsureDirectories())

	for _, dir := range []string{GetDataDir(), GetConfigDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, filepath.Join(root, "data", "inverters.db"), GetReadingDbPath())
}

func TestDefaultDirectories(t *testing.T) {
	t.Setenv("INVERTER_ANALYZER_DATA_DIR", "")
	t.Setenv("INVERTER_ANALYZER_CONFIG_DIR", "")

	assert.Equal(t, defaultDataDir, GetDataDir())
	assert.Equal(t, defaultConfigDir, GetConfigDir())
}
