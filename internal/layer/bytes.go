package layer

// BytesLayer is the identity layer: a single unnamed "main" byte stream.
type BytesLayer struct{}

func (BytesLayer) Encode(data []byte) []Stream {
	return []Stream{{Name: "main", Kind: "bytes", AlphabetSize: 256, Bytes: data}}
}

func (BytesLayer) Decode(streams []Stream) []byte {
	for _, s := range streams {
		if s.Name == "main" {
			return s.Bytes
		}
	}
	return nil
}
