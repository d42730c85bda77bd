package compress

import "fmt"

// Compress encodes a payload before encryption and decodes it after
// decryption. Squeezing the blob matters mostly for the chunked provider,
// whose total quota sits around 90KB.
type Compress interface {
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

// ForName returns the codec for a config name.
func ForName(name string) (Compress, error) {
	switch name {
	case "", "nop", "none":
		return NewNop(), nil
	case "gzip":
		return NewGZip(), nil
	case "brotli":
		return NewBrotli(), nil
	case "lz4":
		return NewLZ4(), nil
	default:
		return nil, fmt.Errorf("unknown compression codec: %s", name)
	}
}
