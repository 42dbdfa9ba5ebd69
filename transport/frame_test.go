package transport

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"single byte", 1},
		{"one noise message", 65535},
		{"larger than a noise message", 70000},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			payload := bytes.Repeat([]byte{0xA7}, tc.size)

			var buf bytes.Buffer
			require.NoError(t, WriteFrame(&buf, payload))
			require.Equal(t, FrameHeaderLen+tc.size, buf.Len())
			assert.Equal(t, uint32(tc.size), binary.BigEndian.Uint32(buf.Bytes()[:4]))

			got, err := ReadFrame(&buf)
			require.NoError(t, err)
			assert.Equal(t, tc.size, len(got))
			assert.True(t, bytes.Equal(payload, got))
			assert.Zero(t, buf.Len(), "frame must be consumed exactly")
		})
	}
}

func TestFramesAreSequential(t *testing.T) {
	var buf bytes.Buffer
	fc := NewFrameConn(&buf)
	for _, m := range []string{"one", "", "three"} {
		require.NoError(t, fc.WriteFrame([]byte(m)))
	}

	for _, want := range []string{"one", "", "three"} {
		got, err := fc.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}

	_, err := fc.ReadFrame()
	assert.Equal(t, io.EOF, err)
}

func TestCheckFrameLen(t *testing.T) {
	assert.NoError(t, checkFrameLen(0))
	assert.NoError(t, checkFrameLen(MaxFrameLen))
	assert.ErrorIs(t, checkFrameLen(math.MaxUint32), ErrMessageTooLarge)
	assert.ErrorIs(t, checkFrameLen(math.MaxUint32+10), ErrMessageTooLarge)
}

func TestReadFrameReservedLength(t *testing.T) {
	input := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x00}
	_, err := ReadFrame(bytes.NewReader(input))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadFrameMaxSize(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, make([]byte, 9)))

	fc := NewFrameConn(&buf, WithMaxFrameSize(8))
	_, err := fc.ReadFrame()
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	buf.Reset()
	require.NoError(t, WriteFrame(&buf, make([]byte, 8)))
	got, err := fc.ReadFrame()
	require.NoError(t, err)
	assert.Len(t, got, 8)
}

func TestReadFrameShort(t *testing.T) {
	testCases := []struct {
		name  string
		input []byte
	}{
		{"partial header", []byte{0x00, 0x00}},
		{"missing payload", []byte{0x00, 0x00, 0x00, 0x0A}},
		{"partial payload", []byte{0x00, 0x00, 0x00, 0x0A, 'a', 'b', 'c'}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(tc.input))
			assert.ErrorIs(t, err, ErrShortFrame)
		})
	}

	_, err := ReadFrame(bytes.NewReader(nil))
	assert.Equal(t, io.EOF, err, "a clean end of stream is not a short frame")
}

func TestWriteFrameWriterError(t *testing.T) {
	err := WriteFrame(&failingWriter{limit: 2}, []byte("payload"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)

	err = WriteFrame(&failingWriter{limit: 6}, []byte("payload"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestFrameConnClose(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, NewFrameConn(&buf).Close(), "streams without Close are fine")
}

func FuzzReadFrame(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0, 0, 0, 0})
	f.Add([]byte{0, 0, 0, 3, 'a', 'b', 'c'})
	f.Add([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	f.Add([]byte{0, 0, 0, 9, 'x'})

	f.Fuzz(func(t *testing.T, data []byte) {
		payload, err := readFrame(bytes.NewReader(data), 1<<16)
		if err != nil {
			return
		}

		// Anything accepted must re-encode to the prefix it came from.
		var buf bytes.Buffer
		if err := WriteFrame(&buf, payload); err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(buf.Bytes(), data[:buf.Len()]) {
			t.Fatalf("re-encoded frame differs from input")
		}
	})
}
