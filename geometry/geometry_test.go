package geometry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetKnownPreset(t *testing.T) {
	p, err := Get("usb-64m")
	require.NoError(t, err)
	require.Equal(t, uint16(512), p.BytesPerSector)
	require.Equal(t, uint8(1), p.SectorsPerCluster)
	require.Equal(t, uint8(2), p.NumFATs)
}

func TestGetUnknownPresetErrors(t *testing.T) {
	_, err := Get("does-not-exist")
	require.Error(t, err)
}

func TestSlugsNonEmptyAndUnique(t *testing.T) {
	slugs := Slugs()
	require.NotEmpty(t, slugs)

	seen := make(map[string]bool)
	for _, s := range slugs {
		require.False(t, seen[s], "duplicate slug %q", s)
		seen[s] = true
	}
}
