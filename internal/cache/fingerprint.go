package cache

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint derives a cache key from the normalized content, the engine
// identity and the model version. Each field is length-prefixed so that
// shifting bytes between fields changes the key.
func Fingerprint(content []byte, engine, modelVersion string) string {
	h, _ := blake2b.New256(nil) // only fails for oversized keys
	var n [8]byte
	for _, field := range [][]byte{content, []byte(engine), []byte(modelVersion)} {
		binary.BigEndian.PutUint64(n[:], uint64(len(field)))
		h.Write(n[:])
		h.Write(field)
	}
	return hex.EncodeToString(h.Sum(nil))
}
