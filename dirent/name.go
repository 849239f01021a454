package dirent

import "strings"

const legalShortNameChars = "!#$%&'()-@^_`{}~"

// SynthesizeShortName derives an 11-byte space-padded short name from an
// arbitrary filename, per spec.md section 4.H. It never attempts "~N"
// uniqueness disambiguation; lossy reports whether the source name had to
// be altered (illegal characters replaced, or basename/extension
// truncated) to fit the 8.3 slot, which callers may use to decide whether a
// long-name entry is also required. The names "." and ".." map to the
// directory self/parent entry names ".          " and "..         ".
func SynthesizeShortName(filename string) (name11 [11]byte, lossy bool) {
	for i := range name11 {
		name11[i] = ' '
	}
	if filename == "." || filename == ".." {
		copy(name11[:], filename)
		return name11, false
	}

	base, ext := splitBaseExt(filename)
	cleanBase, baseLossy := cleanShortNameComponent(base)
	cleanExt, extLossy := cleanShortNameComponent(ext)

	lossy = baseLossy || extLossy || len(cleanBase) > 8 || len(cleanExt) > 3

	copy(name11[0:8], cleanBase)
	copy(name11[8:11], cleanExt)

	return name11, lossy
}

// splitBaseExt locates the last '.' after the first character and splits
// basename from extension; a name with no such '.' has an empty extension.
func splitBaseExt(filename string) (base, ext string) {
	if filename == "" {
		return "", ""
	}
	idx := strings.LastIndexByte(filename[1:], '.')
	if idx < 0 {
		return filename, ""
	}
	idx++ // account for the [1:] slice above
	return filename[:idx], filename[idx+1:]
}

func cleanShortNameComponent(s string) (cleaned string, lossy bool) {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == ' ' || r == '.':
			lossy = true
			continue
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', strings.ContainsRune(legalShortNameChars, r):
			b.WriteRune(r)
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		default:
			lossy = true
			b.WriteByte('_')
		}
	}
	return b.String(), lossy
}
