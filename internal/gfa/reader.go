package gfa

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/biogo/hts/bgzf"
)

// Reader iterates tab-separated records of a GFA or PAF text stream,
// skipping blank lines and '#' comments. It tolerates arbitrarily long
// lines (sequence fields routinely exceed any fixed scanner buffer) and
// transparently decompresses BGZF and plain gzip inputs.
type Reader struct {
	br      *bufio.Reader
	closers []io.Closer
	line    int
}

// NewReader wraps an arbitrary stream, sniffing gzip/BGZF magic.
func NewReader(src io.Reader) (*Reader, error) {
	br := bufio.NewReaderSize(src, 1<<20)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, err
	}
	r := &Reader{}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		if isBGZF(br) {
			zr, err := bgzf.NewReader(br, 1)
			if err != nil {
				return nil, fmt.Errorf("opening BGZF stream: %w", err)
			}
			r.closers = append(r.closers, zr)
			r.br = bufio.NewReaderSize(zr, 1<<20)
			return r, nil
		}
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		r.closers = append(r.closers, zr)
		r.br = bufio.NewReaderSize(zr, 1<<20)
		return r, nil
	}
	r.br = br
	return r, nil
}

// isBGZF checks for the BC extra subfield that distinguishes BGZF from
// generic gzip.
func isBGZF(br *bufio.Reader) bool {
	hdr, err := br.Peek(18)
	if err != nil || len(hdr) < 18 {
		return false
	}
	const flgExtra = 0x04
	return hdr[3]&flgExtra != 0 && hdr[12] == 'B' && hdr[13] == 'C'
}

// Next returns the fields of the next record along with its 1-based line
// number. io.EOF signals the end of the stream.
func (r *Reader) Next() ([]string, int, error) {
	for {
		line, err := r.readLine()
		if err != nil {
			return nil, r.line, err
		}
		r.line++
		if line == "" || line[0] == '#' {
			continue
		}
		return strings.Split(line, "\t"), r.line, nil
	}
}

func (r *Reader) readLine() (string, error) {
	var sb strings.Builder
	for {
		chunk, err := r.br.ReadString('\n')
		sb.WriteString(chunk)
		if err == io.EOF {
			if sb.Len() == 0 {
				return "", io.EOF
			}
			return strings.TrimRight(sb.String(), "\r\n"), nil
		}
		if err != nil {
			return "", err
		}
		if strings.HasSuffix(chunk, "\n") {
			return strings.TrimRight(sb.String(), "\r\n"), nil
		}
	}
}

// Close releases the decompressors, if any. The wrapped stream itself is
// not closed; that stays with the caller.
func (r *Reader) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
