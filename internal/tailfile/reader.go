// Package tailfile extracts the tail of a file and lines appended since a
// byte offset, without materializing the whole file.
package tailfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrNotFound is returned when the path does not exist.
var ErrNotFound = errors.New("tailfile: file not found")

// blockSize is the chunk read backward from the end of the file while
// hunting for the last N terminators. Small enough to bound memory, large
// enough that most tails resolve in one or two reads.
const blockSize = 32 * 1024

// Line is a single terminated line with its terminator already stripped.
type Line struct {
	Data []byte
}

func (l Line) String() string { return string(l.Data) }

// LastLines returns the last n terminated lines of the file at path, in
// file order, together with an offset positioned immediately after the
// last terminator observed in the file (equal to the file's byte length
// when the file ends in a terminator). If the file holds fewer than n
// terminated lines, all of them are returned. An unterminated trailing
// fragment is ignored and excluded from the returned offset, so the
// offset always lies on a line boundary for a subsequent LinesSince call.
//
// Peak auxiliary memory is O(n*maxLineBytes + blockSize), independent of
// file size: the backward scan retains only the trailing window of
// complete lines found so far, never the whole file. It also reads a
// bounded number of blocks from the end of the file, independent of
// file size (see TestScanBackward_BoundedReadsOnLargeFile).
func LastLines(path string, n int) ([]Line, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, wrapOpenErr(path, err)
	}
	defer f.Close()

	size, err := fileSize(f)
	if err != nil {
		return nil, 0, fmt.Errorf("tailfile: stat %s: %w", path, err)
	}
	if size == 0 || n <= 0 {
		return nil, size - trailingFragmentLenOrZero(f, size), nil
	}

	lines, offset, err := scanBackward(f, size, n)
	if err != nil {
		return nil, 0, fmt.Errorf("tailfile: read %s: %w", path, err)
	}
	return lines, offset, nil
}

// trailingFragmentLenOrZero is used only for the n<=0/empty-file shortcuts
// in LastLines, where scanBackward's main loop never runs.
func trailingFragmentLenOrZero(f io.ReaderAt, size int64) int64 {
	if size == 0 {
		return 0
	}
	frag, err := trailingFragmentLen(f, size)
	if err != nil {
		return 0
	}
	return frag
}

// trailingFragmentLen returns the number of bytes after the last '\n' in
// the file (0 if the file ends with '\n' or is empty). Takes an
// io.ReaderAt rather than *os.File so tests can wrap the reads and
// verify the block count stays bounded.
func trailingFragmentLen(f io.ReaderAt, size int64) (int64, error) {
	var (
		pos int64 = size
		buf       = make([]byte, blockSize)
	)
	for pos > 0 {
		readSize := int64(blockSize)
		if readSize > pos {
			readSize = pos
		}
		start := pos - readSize
		chunk := buf[:readSize]
		if _, err := f.ReadAt(chunk, start); err != nil && err != io.EOF {
			return 0, err
		}
		if idx := bytes.LastIndexByte(chunk, '\n'); idx >= 0 {
			return size - (start + int64(idx) + 1), nil
		}
		pos = start
	}
	return size, nil // no newline anywhere in the file: the whole file is a fragment
}

// scanBackward reads blocks from the end of the file backward, splitting on
// line terminators, until it has collected n complete lines or reached the
// start of the file. It retains at most n+1 candidate lines at any time,
// and issues at most O(n*maxLineBytes/blockSize + 1) ReadAt calls — it
// never scans blocks past where n lines have been found, regardless of
// how much file lies beyond that point. The returned offset is positioned
// immediately after the last terminator observed (excluding any
// unterminated trailing fragment). Takes an io.ReaderAt rather than
// *os.File so tests can wrap the reads and verify the block count stays
// bounded.
func scanBackward(f io.ReaderAt, size int64, n int) ([]Line, int64, error) {
	var (
		pos                int64 = size
		carry              []byte // unterminated fragment carried backward from a newer block
		collected          [][]byte
		buf                       = make([]byte, blockSize)
		fragmentResolved   bool  // true once the file's one true trailing boundary is found
		trailingFragmentOf int64 // bytes after the last '\n' in the whole file
	)

	for pos > 0 && len(collected) < n+1 {
		readSize := int64(blockSize)
		if readSize > pos {
			readSize = pos
		}
		start := pos - readSize
		chunk := buf[:readSize]
		if _, err := f.ReadAt(chunk, start); err != nil && err != io.EOF {
			return nil, 0, err
		}

		if !fragmentResolved {
			// Hunting for the trailing boundary, the same problem
			// trailingFragmentLen solves: keep discarding whole blocks
			// backward until one contains a '\n', however many blocks the
			// unterminated tail spans.
			switch {
			case len(chunk) > 0 && chunk[len(chunk)-1] == '\n':
				fragmentResolved = true
			case bytes.LastIndexByte(chunk, '\n') >= 0:
				idx := bytes.LastIndexByte(chunk, '\n')
				trailingFragmentOf = size - (start + int64(idx) + 1)
				chunk = chunk[:idx+1]
				fragmentResolved = true
			default:
				// This whole block is still inside the fragment; nothing in
				// it is a real line. Keep scanning older blocks.
				pos = start
				continue
			}
		}

		data := chunk
		if carry != nil {
			data = append(append([]byte{}, chunk...), carry...)
			carry = nil
		}

		segments := splitKeepOrder(data)

		if start > 0 && len(segments) > 0 {
			// The first segment in this window may continue a line whose
			// terminator lies in an earlier (older, not-yet-read) block.
			carry = segments[0]
			segments = segments[1:]
		}

		for i := len(segments) - 1; i >= 0 && len(collected) < n+1; i-- {
			collected = append(collected, segments[i])
		}

		pos = start
	}

	if !fragmentResolved {
		// Reached the start of the file still inside the fragment: no '\n'
		// anywhere, so the whole file is an ignored unterminated fragment.
		trailingFragmentOf = size
	}

	if pos == 0 && carry != nil && len(collected) < n+1 {
		collected = append(collected, carry)
	}

	if len(collected) > n {
		collected = collected[:n]
	}

	lines := make([]Line, len(collected))
	for i, c := range collected {
		lines[len(collected)-1-i] = Line{Data: c}
	}
	return lines, size - trailingFragmentOf, nil
}

// splitKeepOrder splits data on '\n' (stripping a preceding '\r'),
// returning each segment in file order. The final segment is included even
// if unterminated; callers that care about that distinction check whether
// data ends in '\n' themselves.
func splitKeepOrder(data []byte) [][]byte {
	var segs [][]byte
	start := 0
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' {
			line := bytes.TrimSuffix(data[start:i], []byte("\r"))
			segs = append(segs, append([]byte{}, line...))
			start = i + 1
		}
	}
	if start < len(data) {
		segs = append(segs, append([]byte{}, data[start:]...))
	}
	return segs
}

// LinesSince returns every terminated line whose terminator lies strictly
// after byte fromOffset, in file order, together with an offset positioned
// immediately after the last terminator observed. Callers must guarantee
// fromOffset lies on a line boundary (the offset returned by a previous
// LastLines/LinesSince call).
//
// If the read window ends mid-line (no terminator yet for the trailing
// bytes), those bytes are not delivered and the returned offset does not
// advance past them — the next call re-reads from the same point, so the
// fragment is delivered exactly once, whole, once its terminator lands.
func LinesSince(path string, fromOffset int64) ([]Line, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, wrapOpenErr(path, err)
	}
	defer f.Close()

	size, err := fileSize(f)
	if err != nil {
		return nil, 0, fmt.Errorf("tailfile: stat %s: %w", path, err)
	}
	if size <= fromOffset {
		return nil, size, nil
	}

	data := make([]byte, size-fromOffset)
	if _, err := f.ReadAt(data, fromOffset); err != nil && err != io.EOF {
		return nil, 0, fmt.Errorf("tailfile: read %s: %w", path, err)
	}

	segments := splitKeepOrder(data)
	var fragLen int64
	if len(data) > 0 && data[len(data)-1] != '\n' {
		idx := bytes.LastIndexByte(data, '\n')
		fragLen = int64(len(data) - idx - 1)
		if len(segments) > 0 {
			segments = segments[:len(segments)-1]
		}
	}

	lines := make([]Line, len(segments))
	for i, s := range segments {
		lines[i] = Line{Data: s}
	}
	return lines, size - fragLen, nil
}

func fileSize(f *os.File) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func wrapOpenErr(path string, err error) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return fmt.Errorf("tailfile: open %s: %w", path, err)
}
