package fs

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brineflow/fat32vfs/dirent"
	"github.com/brineflow/fat32vfs/fstest"
)

func mustMount(t *testing.T) *FileSystem {
	t.Helper()
	dev := fstest.Build(fstest.SmallConfig())
	fsys, err := Mount(dev, DefaultOptions())
	require.NoError(t, err)
	return fsys
}

func TestMountAndEmptyRoot(t *testing.T) {
	fsys := mustMount(t)
	require.EqualValues(t, 0xDEADBEEF, fsys.VolumeID())

	entries, err := fsys.Root().List()
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCreateShortNameFile(t *testing.T) {
	fsys := mustMount(t)
	root := fsys.Root()

	vf, err := root.Create("A.TXT", dirent.AttrArchive)
	require.NoError(t, err)
	require.Equal(t, "A.TXT", vf.Name())
	require.True(t, vf.IsFile())

	entries, err := root.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "A.TXT", entries[0].Name)
}

func TestCreateLongNameFile(t *testing.T) {
	fsys := mustMount(t)
	root := fsys.Root()

	longName := "a rather long filename that needs lfn entries.txt"
	vf, err := root.Create(longName, dirent.AttrArchive)
	require.NoError(t, err)
	require.Equal(t, longName, vf.Name())

	found, ok, err := root.FindByName(longName)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, longName, found.Name())
}

func TestReadWritePastOneCluster(t *testing.T) {
	fsys := mustMount(t)
	root := fsys.Root()

	vf, err := root.Create("BIG.BIN", dirent.AttrArchive)
	require.NoError(t, err)

	src := bytes.Repeat([]byte{0xAB}, 5000)
	n, err := vf.WriteAt(0, src)
	require.NoError(t, err)
	require.Equal(t, 5000, n)

	st, err := vf.Stat()
	require.NoError(t, err)
	require.EqualValues(t, 5000, st.Size)

	dst := make([]byte, 5000)
	n, err = vf.ReadAt(0, dst)
	require.NoError(t, err)
	require.Equal(t, 5000, n)
	require.Equal(t, src, dst)
}

func TestDeleteAndRecreateReusesClusters(t *testing.T) {
	fsys := mustMount(t)
	root := fsys.Root()

	freeBefore, err := fsys.CountFreeClusters()
	require.NoError(t, err)

	vf, err := root.Create("X.BIN", dirent.AttrArchive)
	require.NoError(t, err)
	_, err = vf.WriteAt(0, bytes.Repeat([]byte{1}, 3000))
	require.NoError(t, err)

	require.NoError(t, vf.Delete())

	freeAfter, err := fsys.CountFreeClusters()
	require.NoError(t, err)
	require.Equal(t, freeBefore, freeAfter)

	_, ok, err := root.FindByName("X.BIN")
	require.NoError(t, err)
	require.False(t, ok)

	vf2, err := root.Create("X.BIN", dirent.AttrArchive)
	require.NoError(t, err)
	require.Equal(t, "X.BIN", vf2.Name())
}

func TestPathResolutionAcrossDirectories(t *testing.T) {
	fsys := mustMount(t)
	root := fsys.Root()

	sub, err := root.Create("SUB", dirent.AttrDirectory)
	require.NoError(t, err)

	file, err := sub.Create("INNER.TXT", dirent.AttrArchive)
	require.NoError(t, err)
	_, err = file.WriteAt(0, []byte("hello"))
	require.NoError(t, err)

	found, ok, err := root.FindByPath("/SUB/INNER.TXT")
	require.NoError(t, err)
	require.True(t, ok)

	buf := make([]byte, 5)
	_, err = found.ReadAt(0, buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))

	dotdot, ok, err := sub.FindByName("..")
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 0, dotdot.FirstCluster())
}

func TestCloseFlushesAndRewritesFSInfo(t *testing.T) {
	fsys := mustMount(t)
	_, err := fsys.Root().Create("A.TXT", dirent.AttrArchive)
	require.NoError(t, err)
	require.NoError(t, fsys.Close())
}
