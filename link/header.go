package link

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderLen is the fixed part of an encoded header.
const HeaderLen = 4

const flagRequest = 0x01

// ErrMalformedHeader indicates a record that does not decode to a Header.
var ErrMalformedHeader = errors.New("malformed unilink header")

// Header is the envelope of every application message on a link.
type Header struct {
	// Way is true for a request and false for a response.
	Way bool
	// Tag selects the logical channel.
	Tag uint8
	// Kind is an application message type. Zero in a response means the
	// tag had no consumer.
	Kind uint16
	// Data is opaque to the link.
	Data []byte
}

// IsRequest reports whether h travels in the request direction.
func (h Header) IsRequest() bool { return h.Way }

// Reply returns a response on the same tag.
func (h Header) Reply(kind uint16, data []byte) Header {
	return Header{Way: false, Tag: h.Tag, Kind: kind, Data: data}
}

func (h Header) String() string {
	way := "response"
	if h.Way {
		way = "request"
	}
	return fmt.Sprintf("%s tag=%d kind=%d len=%d", way, h.Tag, h.Kind, len(h.Data))
}

// MarshalBinary encodes h as
//
//	[flags:1][tag:1][kind:2 big-endian][data]
//
// where bit 0 of flags is set for requests.
func (h Header) MarshalBinary() ([]byte, error) {
	b := make([]byte, HeaderLen+len(h.Data))
	if h.Way {
		b[0] = flagRequest
	}
	b[1] = h.Tag
	binary.BigEndian.PutUint16(b[2:4], h.Kind)
	copy(b[HeaderLen:], h.Data)
	return b, nil
}

// UnmarshalBinary decodes data into h. The payload is copied.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderLen {
		return fmt.Errorf("%w: %d bytes", ErrMalformedHeader, len(data))
	}
	if data[0]&^flagRequest != 0 {
		return fmt.Errorf("%w: unknown flags %#02x", ErrMalformedHeader, data[0])
	}

	h.Way = data[0]&flagRequest != 0
	h.Tag = data[1]
	h.Kind = binary.BigEndian.Uint16(data[2:4])
	h.Data = nil
	if len(data) > HeaderLen {
		h.Data = make([]byte, len(data)-HeaderLen)
		copy(h.Data, data[HeaderLen:])
	}
	return nil
}

// ParseHeader decodes one header.
func ParseHeader(data []byte) (Header, error) {
	var h Header
	err := h.UnmarshalBinary(data)
	return h, err
}
