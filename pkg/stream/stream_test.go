package stream_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/benmeehan/killswitch/pkg/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeCounter struct {
	calls int
}

func (c *closeCounter) Close() error {
	c.calls++
	return nil
}

func TestPort_ReadsInputInOrder(t *testing.T) {
	// Setup
	var out bytes.Buffer
	p := stream.NewPort(strings.NewReader("ab\n"), &out, nil)

	// Execute & Assert
	require.Eventually(t, func() bool { return p.Buffered() == 3 }, time.Second, time.Millisecond)

	b, ok := p.Peek()
	assert.True(t, ok)
	assert.Equal(t, byte('a'), b)
	assert.Equal(t, 3, p.Buffered(), "peeking does not consume")

	for _, want := range []byte("ab\n") {
		got, err := p.ReadByte()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := p.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
	assert.True(t, p.Closed())
}

func TestPort_NotClosedWhileInputRemains(t *testing.T) {
	// Setup
	p := stream.NewPort(strings.NewReader("x"), io.Discard, nil)
	require.Eventually(t, func() bool { return p.Buffered() == 1 }, time.Second, time.Millisecond)

	// Execute
	_, _ = p.Peek()

	// Assert
	assert.False(t, p.Closed())
	_, _ = p.ReadByte()
	assert.Eventually(t, p.Closed, time.Second, time.Millisecond)
}

func TestPort_PeekWithoutInput(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	p := stream.NewPort(r, io.Discard, nil)

	_, ok := p.Peek()
	assert.False(t, ok)
	assert.Zero(t, p.Buffered())
	assert.False(t, p.Closed())
}

func TestPort_ReadError(t *testing.T) {
	// Setup
	r, w := io.Pipe()
	p := stream.NewPort(r, io.Discard, nil)

	// Execute
	_ = w.CloseWithError(errors.New("device unplugged"))

	// Assert
	_, err := p.ReadByte()
	assert.EqualError(t, err, "device unplugged")
}

func TestPort_WriteAndClose(t *testing.T) {
	// Setup
	var out bytes.Buffer
	closer := &closeCounter{}
	p := stream.NewPort(strings.NewReader(""), &out, closer)

	// Execute
	n, err := p.Write([]byte("INFO: Boot sequence complete.\n"))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 30, n)
	assert.Equal(t, "INFO: Boot sequence complete.\n", out.String())

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, closer.calls)
}
