package stream

import (
	"bytes"
	"io"
	"os"

	"golang.org/x/term"
)

const ctrlC = 0x03

// OpenTerminal uses the process's standard input and output as the console
// stream. When stdin is a terminal it is switched to raw mode so single
// keypresses are delivered immediately; Close restores it.
func OpenTerminal() (*Port, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return NewPort(os.Stdin, os.Stdout, nil), nil
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	restore := closerFunc(func() error { return term.Restore(fd, oldState) })
	return NewPort(&rawReader{r: os.Stdin}, &rawWriter{w: os.Stdout}, restore), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// rawReader maps the carriage return sent by Enter in raw mode to a newline
// and turns Ctrl-C back into an interrupt signal.
type rawReader struct {
	r io.Reader
}

func (r *rawReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	out := p[:0]
	for _, b := range p[:n] {
		switch b {
		case '\r':
			out = append(out, '\n')
		case ctrlC:
			if proc, findErr := os.FindProcess(os.Getpid()); findErr == nil {
				_ = proc.Signal(os.Interrupt)
			}
		default:
			out = append(out, b)
		}
	}
	return len(out), err
}

// rawWriter restores the carriage return that raw mode no longer adds.
type rawWriter struct {
	w io.Writer
}

func (w *rawWriter) Write(p []byte) (int, error) {
	if _, err := w.w.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}
