package codec

// NegotiateName picks the best codec name a caller can use, given a set
// of names actually supported in the running environment (supported)
// and a preference order (preferred, checked first to last). This is
// the general form ResolveCodecID specializes for the single zstd
// availability bit: callers building a single-container bundle, or
// writing a pipeline spec from a set of installed codec plugins,
// negotiate a concrete name this way instead of hardcoding one.
//
// It generalizes a fixed zstd/zlib choice into an arbitrary preference
// list over an arbitrary supported set.
func NegotiateName(supported []string, preferred []string) string {
	supportedSet := make(map[string]bool, len(supported))
	for _, s := range supported {
		supportedSet[s] = true
	}
	for _, p := range preferred {
		if supportedSet[p] {
			return p
		}
	}
	if supportedSet["zlib"] {
		return "zlib"
	}
	for _, s := range supported {
		return s
	}
	return "zlib"
}
