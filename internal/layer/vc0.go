package layer

// VC0Layer splits bytes into a mask stream ('V'/'C'/'O' per byte) plus
// the vowel and "everything else" byte streams. Letter classification
// is ASCII-only here (see DESIGN.md's Open Question decision).
type VC0Layer struct{}

func isVowelASCII(c byte) bool {
	switch c {
	case 'a', 'e', 'i', 'o', 'u', 'A', 'E', 'I', 'O', 'U':
		return true
	}
	return false
}

func isLetterASCII(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func (VC0Layer) Encode(data []byte) []Stream {
	mask := make([]byte, len(data))
	var vowels, cons []byte
	for i, c := range data {
		switch {
		case isVowelASCII(c):
			mask[i] = 'V'
			vowels = append(vowels, c)
		case isLetterASCII(c):
			mask[i] = 'C'
			cons = append(cons, c)
		default:
			mask[i] = 'O'
			cons = append(cons, c)
		}
	}
	return []Stream{
		{Name: "mask", Kind: "bytes", AlphabetSize: 256, Bytes: mask},
		{Name: "vowels", Kind: "bytes", AlphabetSize: 256, Bytes: vowels},
		{Name: "cons", Kind: "bytes", AlphabetSize: 256, Bytes: cons},
	}
}

func (VC0Layer) Decode(streams []Stream) []byte {
	var mask, vowels, cons []byte
	for _, s := range streams {
		switch s.Name {
		case "mask":
			mask = s.Bytes
		case "vowels":
			vowels = s.Bytes
		case "cons":
			cons = s.Bytes
		}
	}
	out := make([]byte, 0, len(mask))
	vi, ci := 0, 0
	for _, m := range mask {
		if m == 'V' {
			out = append(out, vowels[vi])
			vi++
		} else {
			out = append(out, cons[ci])
			ci++
		}
	}
	return out
}
