package fstest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brineflow/fat32vfs/bpb"
)

func TestBuildSmallConfigProducesValidBPB(t *testing.T) {
	dev := Build(SmallConfig())

	sector := make([]byte, dev.BlockSize())
	require.NoError(t, dev.ReadBlock(0, sector))

	parsed, err := bpb.Load(sector)
	require.NoError(t, err)
	require.EqualValues(t, 0xDEADBEEF, parsed.VolumeID)
	require.EqualValues(t, 2, parsed.RootDirCluster)
}

func TestBuildFromPresetProducesValidBPB(t *testing.T) {
	cfg, err := FromPreset("floppy-image-144m", 0xCAFEBABE)
	require.NoError(t, err)

	dev := Build(cfg)
	sector := make([]byte, dev.BlockSize())
	require.NoError(t, dev.ReadBlock(0, sector))

	parsed, err := bpb.Load(sector)
	require.NoError(t, err)
	require.EqualValues(t, 0xCAFEBABE, parsed.VolumeID)
	require.EqualValues(t, cfg.TotalClusters, parsed.TotalClusters)
}

func TestFromPresetUnknownSlugErrors(t *testing.T) {
	_, err := FromPreset("not-a-real-preset", 0)
	require.Error(t, err)
}
