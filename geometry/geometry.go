// Package geometry carries a small catalog of named FAT32 volume layouts,
// loaded from an embedded CSV at init time. It mirrors the teacher's
// disks package, narrowed from a broad historical-media catalog down to
// the handful of fields this module's BPB actually cares about.
package geometry

import (
	"fmt"
	"io"
	_ "embed"
	"strings"

	"github.com/gocarina/gocsv"
)

//go:embed fat32-presets.csv
var presetsRawCSV string

// Preset is one named FAT32 volume layout: enough to synthesize a valid
// boot sector and FSInfo sector without hardcoding geometry inline at
// every call site.
type Preset struct {
	Slug              string `csv:"slug"`
	Name              string `csv:"name"`
	BytesPerSector    uint16 `csv:"bytes_per_sector"`
	SectorsPerCluster uint8  `csv:"sectors_per_cluster"`
	ReservedSectors   uint16 `csv:"reserved_sectors"`
	NumFATs           uint8  `csv:"num_fats"`
	TotalClusters     uint32 `csv:"total_clusters"`
}

var presets map[string]Preset

func init() {
	presets = make(map[string]Preset)
	reader := strings.NewReader(presetsRawCSV)
	err := gocsv.UnmarshalToCallback(reader, func(row Preset) error {
		if _, exists := presets[row.Slug]; exists {
			return fmt.Errorf("duplicate preset slug %q", row.Slug)
		}
		presets[row.Slug] = row
		return nil
	})
	if err != nil && err != io.EOF {
		panic(err)
	}
}

// Get returns the named preset, or an error if no preset with that slug
// exists.
func Get(slug string) (Preset, error) {
	p, ok := presets[slug]
	if !ok {
		return Preset{}, fmt.Errorf("no predefined FAT32 geometry with slug %q", slug)
	}
	return p, nil
}

// Slugs returns every preset's slug, in catalog order.
func Slugs() []string {
	out := make([]string, 0, len(presets))
	for _, row := range orderedRows() {
		out = append(out, row.Slug)
	}
	return out
}

// orderedRows re-parses the embedded CSV to recover row order; presets is
// a map and doesn't preserve it.
func orderedRows() []Preset {
	var out []Preset
	_ = gocsv.UnmarshalToCallback(strings.NewReader(presetsRawCSV), func(row Preset) error {
		out = append(out, row)
		return nil
	})
	return out
}
