package protocol

import "bytes"

// LineFramer reassembles newline-terminated lines from an arbitrarily chunked
// byte stream. Bytes after the last terminator stay buffered until the next
// Feed call, so a line split across pipe reads is never lost or truncated.
type LineFramer struct {
	buf []byte
}

// Feed appends chunk to the internal buffer and returns every complete line
// it now holds, in order, without terminators. A trailing '\r' is stripped so
// CRLF peers frame identically.
func (f *LineFramer) Feed(chunk []byte) [][]byte {
	f.buf = append(f.buf, chunk...)

	var lines [][]byte
	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			break
		}
		line := f.buf[:i]
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		out := make([]byte, len(line))
		copy(out, line)
		lines = append(lines, out)
		f.buf = f.buf[i+1:]
	}

	if len(f.buf) == 0 {
		f.buf = nil
	}
	return lines
}

// Pending returns the buffered partial line, if any.
func (f *LineFramer) Pending() []byte {
	return f.buf
}

// Reset discards any buffered partial line. Called when the owning process
// goes away so a respawned process starts with a clean frame boundary.
func (f *LineFramer) Reset() {
	f.buf = nil
}
