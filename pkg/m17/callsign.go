package m17

import (
	"errors"
	"fmt"
	"strings"
)

// Alphabet is the base-40 character set of encoded callsigns
const Alphabet = " ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-/."

// MaxEncoded is the largest value that decodes to a callsign
const MaxEncoded = 0xEE6B27FFFFFF

// ErrInvalidCallsign is returned by EncodeCallsign for callsigns that do not
// fit the base-40 alphabet or length
var ErrInvalidCallsign = errors.New("invalid m17 callsign")

// DecodeCallsign decodes the first six bytes of b. Values above MaxEncoded
// decode to an empty callsign.
func DecodeCallsign(b []byte) string {
	if len(b) < EncodedLength {
		return ""
	}
	var coded uint64
	for _, c := range b[:EncodedLength] {
		coded = coded<<8 | uint64(c)
	}
	if coded > MaxEncoded {
		return ""
	}

	var sb strings.Builder
	for coded > 0 {
		sb.WriteByte(Alphabet[coded%40])
		coded /= 40
	}
	return strings.TrimRight(sb.String(), " ")
}

// EncodeCallsign packs up to nine characters into six bytes
func EncodeCallsign(cs string) ([EncodedLength]byte, error) {
	var out [EncodedLength]byte
	cs = strings.ToUpper(cs)
	if len(cs) > 9 {
		return out, fmt.Errorf("%w: %q longer than 9 characters", ErrInvalidCallsign, cs)
	}

	var coded uint64
	for i := len(cs) - 1; i >= 0; i-- {
		idx := strings.IndexByte(Alphabet, cs[i])
		if idx < 0 {
			return out, fmt.Errorf("%w: %q contains %q", ErrInvalidCallsign, cs, cs[i])
		}
		coded = coded*40 + uint64(idx)
	}
	for i := EncodedLength - 1; i >= 0; i-- {
		out[i] = byte(coded)
		coded >>= 8
	}
	return out, nil
}
