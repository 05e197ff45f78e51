package header

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// fingerprintKey is the BLAKE3 key for header fingerprints: the ASCII
// domain string zero padded to 32 bytes.
var fingerprintKey = func() (k [32]byte) {
	copy(k[:], "schemawire.header")
	return k
}()

// Fingerprint identifies a header byte sequence. Two schemas with the same
// header share a fingerprint.
type Fingerprint [32]byte

func (f Fingerprint) String() string { return hex.EncodeToString(f[:]) }

// Sum computes the keyed BLAKE3 fingerprint of header bytes.
func Sum(header []byte) Fingerprint {
	h, err := blake3.NewKeyed(fingerprintKey[:])
	if err != nil {
		panic("header: blake3 keyed init: " + err.Error())
	}
	h.Write(header)
	var f Fingerprint
	copy(f[:], h.Sum(nil))
	return f
}
