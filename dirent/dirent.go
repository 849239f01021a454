// Package dirent implements the FAT32 directory entry engine from spec.md
// sections 3 and 4.H: 32-byte short entries, their long-filename extension,
// the checksum binding the two together, and short-name synthesis.
//
// Entries are read and written directly against the raw 32-byte slice a
// cache handle hands back, the same hand-rolled-offset style used in bpb
// and fsinfo: a Go struct can't be laid out to match the packed on-disk
// format without unsafe pointer punning, which spec.md's design notes
// explicitly steer away from.
package dirent

import (
	"encoding/binary"

	"github.com/noxer/bytewriter"
)

// Size is the length, in bytes, of one directory entry slot.
const Size = 32

// Attribute bits, per spec.md section 3.
const (
	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolumeID  = 0x08
	AttrDirectory = 0x10
	AttrArchive   = 0x20

	// AttrLongName is the attribute byte value reserved for long-name
	// continuation entries.
	AttrLongName = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID
)

// Sentinel values for the first byte of an entry slot.
const (
	DeletedMarker = 0xE5
	EndOfDirMarker = 0x00
)

// LastLongEntryBit marks the logically-last (physically-first) long entry
// in a group.
const LastLongEntryBit = 0x40

// Short entry field offsets within its 32-byte slot.
const (
	offName           = 0
	offExt            = 8
	offAttr           = 11
	offReserved       = 12
	offCrtTimeTenth   = 13
	offCrtTime        = 14
	offCrtDate        = 16
	offLastAccessDate = 18
	offFstClusHI      = 20
	offWrtTime        = 22
	offWrtDate        = 24
	offFstClusLO      = 26
	offFileSize       = 28
)

// Long entry field offsets used directly by the decoder; the remaining
// fields (attr, type, the 13 name units, the always-zero fstClusLO) are
// walked sequentially by codeUnitOffsets and EncodeLongEntry instead of
// being named individually.
const (
	offOrder      = 0
	offLdirChksum = 13
)

// FirstByte returns the first byte of a raw 32-byte entry slot, used to
// classify it as free, deleted, or end-of-directory.
func FirstByte(slot []byte) byte { return slot[0] }

// IsDeleted reports whether slot has been deleted (first byte 0xE5).
func IsDeleted(slot []byte) bool { return slot[0] == DeletedMarker }

// IsEmpty reports whether slot marks the end of directory content (first
// byte 0x00); everything from this slot onward, within the allocated
// chain, is unused.
func IsEmpty(slot []byte) bool { return slot[0] == EndOfDirMarker }

// IsFree reports whether slot is available for reuse: either deleted or
// marking (or past) the end of content.
func IsFree(slot []byte) bool { return IsDeleted(slot) || IsEmpty(slot) }

// IsLongEntry reports whether slot's attribute byte identifies it as a
// long-name continuation entry.
func IsLongEntry(slot []byte) bool { return slot[offAttr] == AttrLongName }

// MarkDeleted sets slot's first byte to the deleted marker, in place.
func MarkDeleted(slot []byte) { slot[0] = DeletedMarker }

// ShortEntry is the decoded form of a 32-byte short directory entry.
type ShortEntry struct {
	Name         string // concatenated "NAME.EXT", trailing spaces stripped
	Attr         byte
	FirstCluster uint32
	Size         uint32

	CrtTimeTenth byte
	CrtTime      uint16
	CrtDate      uint16
	LastAccDate  uint16
	WrtTime      uint16
	WrtDate      uint16
}

func (e *ShortEntry) IsDir() bool     { return e.Attr&AttrDirectory != 0 }
func (e *ShortEntry) IsFile() bool    { return e.Attr&AttrDirectory == 0 && e.Attr&AttrVolumeID == 0 }
func (e *ShortEntry) IsVolume() bool  { return e.Attr&AttrVolumeID != 0 }
func (e *ShortEntry) IsShort() bool   { return e.Attr&AttrLongName != AttrLongName }

// DecodeShortEntry parses a 32-byte slot as a short entry. It does not
// check IsFree/IsLongEntry first; callers are expected to have already
// classified the slot.
func DecodeShortEntry(slot []byte) *ShortEntry {
	name := trimName(slot[offName:offName+8]) + "." + trimName(slot[offExt:offExt+3])
	name = trimDotSuffix(name)

	hi := binary.LittleEndian.Uint16(slot[offFstClusHI:])
	lo := binary.LittleEndian.Uint16(slot[offFstClusLO:])

	return &ShortEntry{
		Name:         name,
		Attr:         slot[offAttr],
		FirstCluster: uint32(hi)<<16 | uint32(lo),
		Size:         binary.LittleEndian.Uint32(slot[offFileSize:]),
		CrtTimeTenth: slot[offCrtTimeTenth],
		CrtTime:      binary.LittleEndian.Uint16(slot[offCrtTime:]),
		CrtDate:      binary.LittleEndian.Uint16(slot[offCrtDate:]),
		LastAccDate:  binary.LittleEndian.Uint16(slot[offLastAccessDate:]),
		WrtTime:      binary.LittleEndian.Uint16(slot[offWrtTime:]),
		WrtDate:      binary.LittleEndian.Uint16(slot[offWrtDate:]),
	}
}

// trimDotSuffix strips a trailing "." left over when the extension is
// entirely blank (e.g. an 8-byte name with no extension).
func trimDotSuffix(name string) string {
	if len(name) > 0 && name[len(name)-1] == '.' {
		return name[:len(name)-1]
	}
	return name
}

func trimName(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == ' ' {
		end--
	}
	return string(b[:end])
}

// EncodeShortEntry writes e into slot, which must be Size bytes. name11
// is the raw 11-byte space-padded name (see SynthesizeShortName); it's
// passed separately from e.Name because e.Name is the decoded, dotted
// display form and the two aren't inverses of each other in all cases
// (e.g. lossy synthesis).
func EncodeShortEntry(slot []byte, name11 [11]byte, e *ShortEntry) {
	for i := range slot[:Size] {
		slot[i] = 0
	}

	// The short-entry fields are laid out back to back with no padding
	// (name, ext, attr, reserved, crtTimeTenth, crtTime, crtDate,
	// lastAccDate, fstClusHI, wrtTime, wrtDate, fstClusLO, size), so a
	// cursor writer can serialize the whole slot in field order.
	w := bytewriter.New(slot)
	w.Write(name11[:])
	binary.Write(w, binary.LittleEndian, e.Attr)
	binary.Write(w, binary.LittleEndian, byte(0)) // reserved
	binary.Write(w, binary.LittleEndian, e.CrtTimeTenth)
	binary.Write(w, binary.LittleEndian, e.CrtTime)
	binary.Write(w, binary.LittleEndian, e.CrtDate)
	binary.Write(w, binary.LittleEndian, e.LastAccDate)
	binary.Write(w, binary.LittleEndian, uint16(e.FirstCluster>>16))
	binary.Write(w, binary.LittleEndian, e.WrtTime)
	binary.Write(w, binary.LittleEndian, e.WrtDate)
	binary.Write(w, binary.LittleEndian, uint16(e.FirstCluster))
	binary.Write(w, binary.LittleEndian, e.Size)
}

// SetFirstCluster updates only the first-cluster field of an encoded short
// entry slot in place.
func SetFirstCluster(slot []byte, cluster uint32) {
	binary.LittleEndian.PutUint16(slot[offFstClusHI:], uint16(cluster>>16))
	binary.LittleEndian.PutUint16(slot[offFstClusLO:], uint16(cluster))
}

// SetSize updates only the size field of an encoded short entry slot in
// place.
func SetSize(slot []byte, size uint32) {
	binary.LittleEndian.PutUint32(slot[offFileSize:], size)
}

// Name11 returns the raw 11-byte (name+ext) region of an encoded short
// entry slot, used as input to Checksum.
func Name11(slot []byte) [11]byte {
	var b [11]byte
	copy(b[:], slot[offName:offName+11])
	return b
}
