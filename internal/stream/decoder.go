package stream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/rescale/docbatch/internal/constants"
)

// LineDecoder splits a chunked byte stream into newline-terminated lines.
// Bytes are held until a full line is available, so a multi-byte UTF-8
// sequence split across chunks is decoded intact. Lines longer than MaxLine
// bytes (constants.MaxStreamLineBytes when zero) are dropped. The zero value
// is ready to use.
type LineDecoder struct {
	MaxLine int

	buf      []byte
	skipping bool
	dropped  int
	flushed  bool
}

// Feed appends chunk and returns every line it completed, without the
// trailing "\n" or "\r\n".
func (d *LineDecoder) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	d.buf = append(d.buf, chunk...)
	limit := d.limit()

	var lines []string
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		switch {
		case d.skipping:
			// Tail of a line already dropped.
			d.skipping = false
		case len(bytes.TrimSuffix(d.buf[:i], []byte{'\r'})) > limit:
			d.drop(i)
		default:
			lines = append(lines, decodeLine(d.buf[:i]))
		}
		d.buf = d.buf[i+1:]
	}

	if len(d.buf) > limit {
		if !d.skipping {
			d.drop(len(d.buf))
			d.skipping = true
		}
		d.buf = nil
	}

	// Reclaim the consumed prefix once the buffer is drained.
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return lines
}

// Flush returns the unterminated remainder at end of stream. It reports
// false if the remainder is empty, was dropped, or Flush was already called.
func (d *LineDecoder) Flush() (string, bool) {
	if d.flushed {
		return "", false
	}
	d.flushed = true
	rest := d.buf
	d.buf = nil
	if len(rest) == 0 || d.skipping {
		return "", false
	}
	return decodeLine(rest), true
}

// Pending returns how many bytes are buffered awaiting a newline.
func (d *LineDecoder) Pending() int {
	return len(d.buf)
}

// Dropped returns how many oversize lines were discarded.
func (d *LineDecoder) Dropped() int {
	return d.dropped
}

func (d *LineDecoder) limit() int {
	if d.MaxLine > 0 {
		return d.MaxLine
	}
	return constants.MaxStreamLineBytes
}

func (d *LineDecoder) drop(n int) {
	d.dropped++
	log.Warn().Int("bytes", n).Int("limit", d.limit()).Msg("dropping oversize stream line")
}

func decodeLine(b []byte) string {
	b = bytes.TrimSuffix(b, []byte{'\r'})
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}

// ReadLines reads r to EOF and calls fn for every line, including a final
// unterminated one. It returns the first error from fn, ctx, or a failed
// read; io.EOF is not an error.
func ReadLines(ctx context.Context, r io.Reader, fn func(line string) error) error {
	var dec LineDecoder
	buf := make([]byte, constants.StreamReadBufferSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.Read(buf)
		if n > 0 {
			for _, line := range dec.Feed(buf[:n]) {
				if ferr := fn(line); ferr != nil {
					return ferr
				}
			}
		}

		if err == io.EOF {
			if line, ok := dec.Flush(); ok {
				return fn(line)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("stream read failed: %w", err)
		}
	}
}
