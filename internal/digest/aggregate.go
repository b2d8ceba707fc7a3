package digest

import (
	"encoding/json"
)

// Bundle is the size-bounded collection of document digests handed to plan
// synthesis. Its serialized form is always a complete JSON document.
type Bundle struct {
	Documents []DocumentDigest `json:"documents"`
	MaxBytes  int              `json:"max_bytes,omitempty"`
	// Dropped counts trailing digests evicted to fit MaxBytes.
	Dropped int `json:"dropped,omitempty"`
	// Overflow marks a ceiling too small to hold even an empty bundle.
	Overflow bool `json:"overflow,omitempty"`

	raw []byte
}

type bundleJSON Bundle

// Aggregate serializes digests in order and, while the result exceeds
// byteCeiling, evicts the last digest and re-serializes. Entries are removed
// whole; the output is never cut mid-structure. If no prefix fits, the
// result is an empty bundle flagged Overflow. Inputs are not modified.
func Aggregate(digests []DocumentDigest, byteCeiling int) Bundle {
	if byteCeiling > 0 {
		for k := len(digests); k >= 0; k-- {
			docs := make([]DocumentDigest, k)
			copy(docs, digests[:k])
			b := Bundle{Documents: docs, MaxBytes: byteCeiling, Dropped: len(digests) - k}
			raw, err := json.Marshal(bundleJSON(b))
			if err != nil {
				// DocumentDigest has only strings, ints and bools; Marshal cannot fail.
				break
			}
			if len(raw) <= byteCeiling {
				b.raw = raw
				return b
			}
		}
	}
	b := Bundle{Documents: []DocumentDigest{}, Dropped: len(digests), Overflow: true}
	b.raw, _ = json.Marshal(struct {
		Documents []DocumentDigest `json:"documents"`
		Overflow  bool             `json:"overflow"`
	}{Documents: b.Documents, Overflow: true})
	return b
}

// Bytes returns the serialized bundle exactly as it was size-checked.
func (b Bundle) Bytes() []byte {
	if b.raw == nil {
		raw, _ := json.Marshal(bundleJSON(b))
		return raw
	}
	out := make([]byte, len(b.raw))
	copy(out, b.raw)
	return out
}

// Size is the length of the serialized bundle in bytes.
func (b Bundle) Size() int { return len(b.Bytes()) }

// MarshalJSON emits the size-checked serialization.
func (b Bundle) MarshalJSON() ([]byte, error) {
	return b.Bytes(), nil
}
