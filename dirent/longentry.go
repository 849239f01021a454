package dirent

import (
	"encoding/binary"

	"github.com/noxer/bytewriter"
)

// codeUnitOffsets lists the byte offset of each of the 13 UTF-16 code units
// packed into a long entry slot, in logical order. Grounded on the
// lfnOffsets table used by production FAT32 long-filename implementations:
// 5 units at bytes 1-10, 6 units at bytes 14-25, 2 units at bytes 28-31.
var codeUnitOffsets = [13]int{1, 3, 5, 7, 9, 14, 16, 18, 20, 22, 24, 28, 30}

// padUnit is the filler code unit for slots past the name's terminator.
const padUnit = 0xFFFF

// LongEntry is the decoded form of a 32-byte long-name continuation entry.
type LongEntry struct {
	// Order is N for the first (logically last) entry in a group, counting
	// down to 1, with LastLongEntryBit set on the first one written.
	Order    byte
	Checksum byte
	Name     [13]uint16
}

// DecodeLongEntry parses a 32-byte slot as a long entry.
func DecodeLongEntry(slot []byte) *LongEntry {
	e := &LongEntry{
		Order:    slot[offOrder],
		Checksum: slot[offLdirChksum],
	}
	for i, off := range codeUnitOffsets {
		e.Name[i] = binary.LittleEndian.Uint16(slot[off:])
	}
	return e
}

// EncodeLongEntry writes e into slot, which must be Size bytes. The 13
// name units straddle two reserved fields (attr/type/checksum at bytes
// 11-13, the always-zero fstClusLO at 26-27), so unlike the short entry
// this can't be a single cursor pass; it's written in the three
// contiguous spans a cursor writer naturally falls into.
func EncodeLongEntry(slot []byte, e *LongEntry) {
	for i := range slot[:Size] {
		slot[i] = 0
	}

	w := bytewriter.New(slot)
	binary.Write(w, binary.LittleEndian, e.Order)
	for _, u := range e.Name[0:5] {
		binary.Write(w, binary.LittleEndian, u)
	}
	binary.Write(w, binary.LittleEndian, byte(AttrLongName))
	binary.Write(w, binary.LittleEndian, byte(0)) // type
	binary.Write(w, binary.LittleEndian, e.Checksum)
	for _, u := range e.Name[5:11] {
		binary.Write(w, binary.LittleEndian, u)
	}
	binary.Write(w, binary.LittleEndian, uint16(0)) // fstClusLO, always zero
	for _, u := range e.Name[11:13] {
		binary.Write(w, binary.LittleEndian, u)
	}
}

// SplitLongName encodes name as UTF-16 and chunks it into groups of 13 code
// units. A final group the name does not fill is padded with a 0x0000
// terminator followed by 0xFFFF filler; a name whose length is a nonzero
// multiple of 13 gets no terminator. The returned slice is in logical (first-chunk-first)
// order; callers write it to disk in reverse per spec.md section 4.H.
func SplitLongName(name string) [][13]uint16 {
	units := encodeUTF16(name)

	n := len(units) / 13
	if len(units)%13 != 0 || n == 0 {
		n++
	}
	groups := make([][13]uint16, n)
	for i := 0; i < n; i++ {
		for j := 0; j < 13; j++ {
			idx := i*13 + j
			switch {
			case idx < len(units):
				groups[i][j] = units[idx]
			case idx == len(units):
				groups[i][j] = 0
			default:
				groups[i][j] = padUnit
			}
		}
	}
	return groups
}

// JoinLongName reassembles groups (in logical, first-chunk-first order)
// into the original filename, stopping at the first 0x0000 terminator.
func JoinLongName(groups [][13]uint16) string {
	var units []uint16
	for _, g := range groups {
		for _, u := range g {
			if u == 0 || u == padUnit {
				return decodeUTF16(units)
			}
			units = append(units, u)
		}
	}
	return decodeUTF16(units)
}

func encodeUTF16(s string) []uint16 {
	var out []uint16
	for _, r := range s {
		if r <= 0xFFFF {
			out = append(out, uint16(r))
			continue
		}
		r -= 0x10000
		out = append(out, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
	}
	return out
}

func decodeUTF16(units []uint16) string {
	out := make([]rune, 0, len(units))
	for i := 0; i < len(units); i++ {
		u := units[i]
		if u >= 0xD800 && u <= 0xDBFF && i+1 < len(units) && units[i+1] >= 0xDC00 && units[i+1] <= 0xDFFF {
			r := (rune(u)-0xD800)<<10 | (rune(units[i+1]) - 0xDC00) + 0x10000
			out = append(out, r)
			i++
			continue
		}
		out = append(out, rune(u))
	}
	return string(out)
}
