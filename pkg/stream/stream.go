package stream

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

const (
	readChunk  = 64
	bufferSize = 1024
)

// Stream is the operator's byte channel: newline-terminated text in, free
// text out.
type Stream interface {
	io.Writer
	// Buffered reports how many input bytes can be read without blocking.
	Buffered() int
	// ReadByte blocks until a byte is available.
	ReadByte() (byte, error)
	// Peek returns the next byte without consuming it, if one is waiting.
	Peek() (byte, bool)
	// Closed reports whether the input has ended and every byte was consumed.
	Closed() bool
}

// Port adapts a blocking reader into a Stream. A background goroutine pumps
// input into a bounded buffer so availability can be polled without blocking.
type Port struct {
	w      io.Writer
	closer io.Closer
	in     chan byte
	err    error
	eof    atomic.Bool

	peeked    byte
	hasPeeked bool

	closeOnce sync.Once
}

// NewPort starts pumping r. closer may be nil.
func NewPort(r io.Reader, w io.Writer, closer io.Closer) *Port {
	p := &Port{
		w:      w,
		closer: closer,
		in:     make(chan byte, bufferSize),
	}
	go p.pump(r)
	return p
}

func (p *Port) pump(r io.Reader) {
	buf := make([]byte, readChunk)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			p.in <- b
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.EOF
			}
			p.err = err
			close(p.in)
			p.eof.Store(true)
			return
		}
	}
}

// Write sends operator-facing text.
func (p *Port) Write(b []byte) (int, error) {
	return p.w.Write(b)
}

// Buffered reports how many input bytes are waiting.
func (p *Port) Buffered() int {
	n := len(p.in)
	if p.hasPeeked {
		n++
	}
	return n
}

// ReadByte blocks until a byte is available or the input is closed.
func (p *Port) ReadByte() (byte, error) {
	if p.hasPeeked {
		p.hasPeeked = false
		return p.peeked, nil
	}
	b, ok := <-p.in
	if !ok {
		return 0, p.err
	}
	return b, nil
}

// Peek returns the next byte if one is already buffered.
func (p *Port) Peek() (byte, bool) {
	if p.hasPeeked {
		return p.peeked, true
	}
	select {
	case b, ok := <-p.in:
		if !ok {
			return 0, false
		}
		p.peeked = b
		p.hasPeeked = true
		return b, true
	default:
		return 0, false
	}
}

// Closed reports whether the input has ended and every byte was consumed.
func (p *Port) Closed() bool {
	return p.eof.Load() && !p.hasPeeked && len(p.in) == 0
}

// Close releases the underlying device.
func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.closer != nil {
			err = p.closer.Close()
		}
	})
	return err
}
