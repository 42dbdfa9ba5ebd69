package transport

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/opd-ai/unilink/noise"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func randomBytes(t testing.TB, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestChunkedRecordRoundTrip(t *testing.T) {
	testCases := []struct {
		size      int
		sealedLen int
	}{
		{0, 16},
		{1, 17},
		{65535, 65535 + 32},
		{65536, 65535 + 33},
		{200000, 3*65535 + (200000 - 3*65519) + 16},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%d bytes", tc.size), func(t *testing.T) {
			sender, receiver, buf := bufferedPair(t)
			plaintext := randomBytes(t, tc.size)

			require.NoError(t, sender.Send(plaintext))
			assert.Equal(t, FrameHeaderLen+tc.sealedLen, buf.Len())

			got, err := receiver.Receive()
			require.NoError(t, err)
			assert.Equal(t, tc.size, len(got))
			assert.True(t, bytes.Equal(plaintext, got), "plaintext must survive chunking")
		})
	}
}

func TestRecordsKeepOrder(t *testing.T) {
	sender, receiver, _ := bufferedPair(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, sender.Send([]byte{byte(i)}))
	}
	for i := 0; i < 5; i++ {
		got, err := receiver.Receive()
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, got)
	}
}

func TestSecureConnOverPipe(t *testing.T) {
	initiator, responder := securePair(t)
	big := randomBytes(t, 150000)

	var g errgroup.Group
	g.Go(func() error {
		for _, m := range [][]byte{[]byte("hello"), big} {
			if err := initiator.Send(m); err != nil {
				return err
			}
			echo, err := initiator.Receive()
			if err != nil {
				return err
			}
			if !bytes.Equal(m, echo) {
				return fmt.Errorf("echo of %d bytes differs", len(m))
			}
		}
		return nil
	})
	g.Go(func() error {
		for i := 0; i < 2; i++ {
			m, err := responder.Receive()
			if err != nil {
				return err
			}
			if err := responder.Send(m); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())
}

func TestTamperedSmallRecord(t *testing.T) {
	plaintext := []byte("hi")
	frameLen := FrameHeaderLen + len(plaintext) + noise.TagSize

	for bit := 0; bit < frameLen*8; bit++ {
		sender, receiver, buf := bufferedPair(t)
		require.NoError(t, sender.Send(plaintext))
		require.Equal(t, frameLen, buf.Len())

		buf.Bytes()[bit/8] ^= 1 << (bit % 8)

		got, err := receiver.Receive()
		require.Error(t, err, "bit %d", bit)
		assert.Nil(t, got, "bit %d", bit)
		if bit >= FrameHeaderLen*8 {
			assert.ErrorIs(t, err, ErrDecrypt, "bit %d", bit)
		}
	}
}

func TestTamperedLargeRecord(t *testing.T) {
	plaintext := randomBytes(t, 200000)

	// Payload offsets at the start, the end and both sides of each chunk
	// boundary.
	offsets := []int{0, 65534, 65535, 131069, 131070, 196604, 196605, 200063}
	for _, off := range offsets {
		t.Run(fmt.Sprintf("offset %d", off), func(t *testing.T) {
			sender, receiver, buf := bufferedPair(t)
			require.NoError(t, sender.Send(plaintext))

			buf.Bytes()[FrameHeaderLen+off] ^= 0x80

			got, err := receiver.Receive()
			assert.ErrorIs(t, err, ErrDecrypt)
			assert.Nil(t, got, "no partial plaintext")
		})
	}
}

func TestReceiveEmptyRecord(t *testing.T) {
	_, receiver, buf := bufferedPair(t)
	require.NoError(t, WriteFrame(buf, nil))

	_, err := receiver.Receive()
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestReceiveTruncatedChunk(t *testing.T) {
	_, receiver, buf := bufferedPair(t)
	require.NoError(t, WriteFrame(buf, make([]byte, noise.TagSize-1)))

	_, err := receiver.Receive()
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestNewSecureConnNeedsTransportSession(t *testing.T) {
	s, err := noise.NewSession(noise.PatternXXpsk3, testConfig(t, noise.Initiator, [32]byte{1}).Keys, noise.Initiator)
	require.NoError(t, err)

	_, err = NewSecureConn(NewFrameConn(&bytes.Buffer{}), s)
	assert.ErrorIs(t, err, noise.ErrNotTransport)

	_, err = NewSecureConn(NewFrameConn(&bytes.Buffer{}), nil)
	assert.ErrorIs(t, err, noise.ErrNotTransport)
}

func TestSealedLen(t *testing.T) {
	assert.Equal(t, 16, sealedLen(0))
	assert.Equal(t, ChunkSize+16, sealedLen(ChunkSize))
	assert.Equal(t, ChunkSize+33, sealedLen(ChunkSize+1))
}

func BenchmarkSendReceive(b *testing.B) {
	sender, receiver, _ := bufferedPair(b)
	payload := make([]byte, 64*1024)

	b.SetBytes(int64(len(payload)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := sender.Send(payload); err != nil {
			b.Fatal(err)
		}
		if _, err := receiver.Receive(); err != nil {
			b.Fatal(err)
		}
	}
}
