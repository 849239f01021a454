package dirent

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShortEntryRoundTrip(t *testing.T) {
	name11, lossy := SynthesizeShortName("README.TXT")
	require.False(t, lossy)
	require.Equal(t, "README  TXT", string(name11[:]))

	src := &ShortEntry{
		Attr:         AttrArchive,
		FirstCluster: 0x0ABCDEF1,
		Size:         1234,
		CrtTimeTenth: 50,
	}
	slot := make([]byte, Size)
	EncodeShortEntry(slot, name11, src)

	got := DecodeShortEntry(slot)
	require.Equal(t, "README.TXT", got.Name)
	require.Equal(t, src.FirstCluster, got.FirstCluster)
	require.Equal(t, src.Size, got.Size)
	require.True(t, got.IsFile())
}

func TestShortEntryNoExtension(t *testing.T) {
	name11, _ := SynthesizeShortName("DIRNAME")
	slot := make([]byte, Size)
	EncodeShortEntry(slot, name11, &ShortEntry{Attr: AttrDirectory})
	got := DecodeShortEntry(slot)
	require.Equal(t, "DIRNAME", got.Name)
	require.True(t, got.IsDir())
}

func TestSynthesizeShortNameLossyAndIllegalChars(t *testing.T) {
	name11, lossy := SynthesizeShortName("my file?.txt")
	require.True(t, lossy)
	require.Equal(t, "MYFILE_ TXT", string(name11[:])) // space dropped, '?' replaced with '_'
}

func TestLongNameSplitJoinRoundTrip(t *testing.T) {
	names := []string{
		"short.txt",
		"exactly-thirteen-units-ish.dat",
		"a-much-longer-filename-that-spans-more-than-one-long-entry-slot.ext",
		"",
	}
	for _, n := range names {
		groups := SplitLongName(n)
		require.NotEmpty(t, groups)
		require.Equal(t, n, JoinLongName(groups))
	}
}

func TestLongEntryGroupChecksumMatchesShort(t *testing.T) {
	name11, _ := SynthesizeShortName("LONGFILENAME.TXT")
	sum := Checksum(name11)

	groups := SplitLongName("LongFileName.txt")
	n := len(groups)
	for i, g := range groups {
		// reverse order on disk: logical group i is written at physical
		// position n-1-i, with order counting down from n.
		order := byte(i + 1)
		if i == n-1 {
			order |= LastLongEntryBit
		}
		le := &LongEntry{Order: order, Checksum: sum, Name: g}
		slot := make([]byte, Size)
		EncodeLongEntry(slot, le)

		got := DecodeLongEntry(slot)
		require.Equal(t, sum, got.Checksum)
		require.Equal(t, g, got.Name)
	}
}

func TestChecksumIsPureFunctionOfBytes(t *testing.T) {
	var a, b [11]byte
	for i := range a {
		a[i] = byte(rand.Intn(256))
		b[i] = a[i]
	}
	require.Equal(t, Checksum(a), Checksum(b))

	b[3] ^= 0xFF
	require.NotEqual(t, Checksum(a), Checksum(b))
}

func TestIsFreeClassification(t *testing.T) {
	deleted := make([]byte, Size)
	deleted[0] = DeletedMarker
	require.True(t, IsFree(deleted))

	empty := make([]byte, Size)
	require.True(t, IsFree(empty))

	used := make([]byte, Size)
	used[0] = 'A'
	require.False(t, IsFree(used))
}
