// Package twobit packs nucleotide strings into 2 bits per base.
//
// The canonical alphabet {A,C,G,T} maps to {0,1,2,3}. Any other byte
// (N, IUPAC ambiguity codes, lowercase soft-masking) is preserved through an
// out-of-band escape table, so Decode(Encode(s)) == s for arbitrary byte
// strings while typical assembly sequences still compress 4:1.
//
// Blob layout:
//
//	uvarint  sequence length n
//	uvarint  escape count k
//	k times: uvarint position, 1 original byte
//	ceil(n/4) packed bytes, base i at bits (i%4)*2 of byte i/4
package twobit

import (
	"encoding/binary"
	"fmt"
)

var code = [256]byte{'A': 0, 'C': 1, 'G': 2, 'T': 3}

var base = [4]byte{'A', 'C', 'G', 'T'}

func isCanonical(b byte) bool {
	return b == 'A' || b == 'C' || b == 'G' || b == 'T'
}

// Encode packs seq into a self-describing two-bit blob.
func Encode(seq []byte) []byte {
	var escapes int
	for _, b := range seq {
		if !isCanonical(b) {
			escapes++
		}
	}

	blob := make([]byte, 0, 2*binary.MaxVarintLen64+escapes*(binary.MaxVarintLen64+1)+(len(seq)+3)/4)
	blob = binary.AppendUvarint(blob, uint64(len(seq)))
	blob = binary.AppendUvarint(blob, uint64(escapes))
	for i, b := range seq {
		if !isCanonical(b) {
			blob = binary.AppendUvarint(blob, uint64(i))
			blob = append(blob, b)
		}
	}

	packedAt := len(blob)
	blob = append(blob, make([]byte, (len(seq)+3)/4)...)
	for i, b := range seq {
		// escaped positions keep placeholder bits 00
		if isCanonical(b) {
			blob[packedAt+i/4] |= code[b] << ((i % 4) * 2)
		}
	}
	return blob
}

// Length returns the sequence length without decoding the bases.
func Length(blob []byte) (int64, error) {
	n, read := binary.Uvarint(blob)
	if read <= 0 {
		return 0, fmt.Errorf("twobit: truncated blob header")
	}
	return int64(n), nil
}

// Decode reverses Encode exactly, escapes included.
func Decode(blob []byte) ([]byte, error) {
	n, read := binary.Uvarint(blob)
	if read <= 0 {
		return nil, fmt.Errorf("twobit: truncated blob header")
	}
	blob = blob[read:]
	escapes, read := binary.Uvarint(blob)
	if read <= 0 {
		return nil, fmt.Errorf("twobit: truncated escape count")
	}
	blob = blob[read:]

	type escape struct {
		pos uint64
		b   byte
	}
	escs := make([]escape, 0, escapes)
	for i := uint64(0); i < escapes; i++ {
		pos, read := binary.Uvarint(blob)
		if read <= 0 || read >= len(blob) {
			return nil, fmt.Errorf("twobit: truncated escape table")
		}
		blob = blob[read:]
		if pos >= n {
			return nil, fmt.Errorf("twobit: escape position %d beyond sequence length %d", pos, n)
		}
		escs = append(escs, escape{pos, blob[0]})
		blob = blob[1:]
	}

	if uint64(len(blob)) < (n+3)/4 {
		return nil, fmt.Errorf("twobit: blob holds %d packed bytes, need %d", len(blob), (n+3)/4)
	}
	seq := make([]byte, n)
	for i := uint64(0); i < n; i++ {
		seq[i] = base[(blob[i/4]>>((i%4)*2))&3]
	}
	for _, e := range escs {
		seq[e.pos] = e.b
	}
	return seq, nil
}
