package extract

import (
	"bufio"
	"bytes"
	"io"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// skipBOM drops a leading UTF-8 byte order mark, which spreadsheet exports
// on Windows commonly add.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		br.Discard(len(utf8BOM))
	}
	return br
}

// countingReader tracks bytes read for progress logging.
type countingReader struct {
	r     io.Reader
	n     int64
	total int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// progress returns the percentage read, or 0 if the size is unknown.
func (c *countingReader) progress() int {
	if c.total <= 0 {
		return 0
	}
	return int(c.n * 100 / c.total)
}
