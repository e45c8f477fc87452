package config

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hollowmesh/overlay/constants"
)

func TestFromFileAppliesDefaults(t *testing.T) {
	require := require.New(t)

	f, err := ioutil.TempFile("", "overlay-config-*.toml")
	require.NoError(err)
	defer os.Remove(f.Name())

	_, err = f.WriteString("FetchWorkers = 4\n")
	require.NoError(err)
	require.NoError(f.Close())

	cfg, err := FromFile(f.Name())
	require.NoError(err)
	require.Equal(4, cfg.FetchWorkers)
	require.Equal(constants.WindowSize, cfg.WindowSize)
	require.Equal(constants.ResendBackoff, cfg.ResendBackoff())
}

func TestFromFileMissing(t *testing.T) {
	require := require.New(t)
	_, err := FromFile("/nonexistent/overlay-config.toml")
	require.Error(err)
}
