// Package ttyrec reads and writes the ttyrec recording format.
//
// A recording is a bare sequence of frames with no file header or
// trailer. Each frame is three little-endian uint32 values (seconds,
// microseconds, payload length) followed by the payload bytes. The end
// of a recording is only known by exhausting the stream.
package ttyrec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

// HeaderSize is the fixed size of a frame header.
const HeaderSize = 12

// ErrFrameTooLarge is returned for a payload whose length does not fit
// the uint32 length field.
var ErrFrameTooLarge = errors.New("ttyrec: frame payload exceeds 4 GiB")

// Frame is one timestamped chunk of terminal output.
type Frame struct {
	Sec     uint32
	Usec    uint32
	Payload []byte
}

// FrameAt builds a frame stamped with t.
func FrameAt(t time.Time, payload []byte) Frame {
	return Frame{
		Sec:     uint32(t.Unix()),
		Usec:    uint32(t.Nanosecond() / 1000),
		Payload: payload,
	}
}

// Time returns the frame's timestamp.
func (f Frame) Time() time.Time {
	return time.Unix(int64(f.Sec), int64(f.Usec)*1000)
}

// Writer appends frames to an underlying stream.
type Writer struct {
	w   io.Writer
	buf []byte
}

// NewWriter returns a Writer that writes frames to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteFrame writes the header and payload of f with a single Write call,
// so a concurrent tailer never observes a header without its payload
// from a partially issued write sequence.
func (w *Writer) WriteFrame(f Frame) error {
	if uint64(len(f.Payload)) > math.MaxUint32 {
		return ErrFrameTooLarge
	}
	need := HeaderSize + len(f.Payload)
	if cap(w.buf) < need {
		w.buf = make([]byte, need)
	}
	buf := w.buf[:need]
	binary.LittleEndian.PutUint32(buf[0:4], f.Sec)
	binary.LittleEndian.PutUint32(buf[4:8], f.Usec)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(f.Payload)))
	copy(buf[HeaderSize:], f.Payload)

	if _, err := w.w.Write(buf); err != nil {
		return fmt.Errorf("ttyrec: write frame: %w", err)
	}
	return nil
}

// Sync flushes the underlying stream to stable storage when it supports
// it (an *os.File).
func (w *Writer) Sync() error {
	if s, ok := w.w.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil {
			return fmt.Errorf("ttyrec: sync: %w", err)
		}
	}
	return nil
}

// Reader decodes frames from a stream.
type Reader struct {
	r      io.Reader
	header [HeaderSize]byte
	offset int64
}

// NewReader returns a Reader that decodes frames from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Offset is the number of bytes consumed by fully decoded frames.
func (r *Reader) Offset() int64 { return r.offset }

// Next decodes the next frame. It returns io.EOF at a clean frame
// boundary and io.ErrUnexpectedEOF when the stream ends inside a frame.
func (r *Reader) Next() (Frame, error) {
	n, err := io.ReadFull(r.r, r.header[:])
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return Frame{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, io.ErrUnexpectedEOF
		}
		return Frame{}, fmt.Errorf("ttyrec: read header: %w", err)
	}

	f := Frame{
		Sec:  binary.LittleEndian.Uint32(r.header[0:4]),
		Usec: binary.LittleEndian.Uint32(r.header[4:8]),
	}
	length := binary.LittleEndian.Uint32(r.header[8:12])
	f.Payload = make([]byte, length)
	if _, err := io.ReadFull(r.r, f.Payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, io.ErrUnexpectedEOF
		}
		return Frame{}, fmt.Errorf("ttyrec: read payload: %w", err)
	}
	r.offset += int64(HeaderSize) + int64(length)
	return f, nil
}

// ReadAll decodes every frame in r.
func ReadAll(r io.Reader) ([]Frame, error) {
	var frames []Frame
	fr := NewReader(r)
	for {
		f, err := fr.Next()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
}
