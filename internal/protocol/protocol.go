// Package protocol implements the relay wire format: a fixed 16-byte
// little-endian header followed by an opaque payload, plus the handful of
// fixed-layout payloads the server itself has to understand (user info,
// stream registration, credentials).
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the fixed frame header length in bytes.
	HeaderSize = 16

	// MaxPayload is the hard frame cap. Anything larger is malformed.
	MaxPayload = 8 << 20

	// Version is exchanged in the Hello frame. A client speaking a
	// different version is rejected during the handshake.
	Version = "GRELAY-2.1"
)

// ErrMalformed is returned for frames that violate the wire format:
// oversized payloads, short reads mid-frame, undersized fixed payloads.
var ErrMalformed = errors.New("protocol: malformed frame")

// MsgType identifies a frame's meaning.
type MsgType uint32

const (
	MsgHello MsgType = 1000 + iota
	MsgFull
	MsgWrongPassword
	MsgWelcome
	MsgBanned
	MsgUserCredentials
	MsgEnableFlow
	MsgUserJoin
	MsgUserLeave
	MsgUserInfo
	MsgDelete
	MsgStreamRegister
	MsgStreamData
	MsgVehicleData
	MsgChat
	MsgPrivChat
	MsgGameCmd
)

func (t MsgType) String() string {
	switch t {
	case MsgHello:
		return "HELLO"
	case MsgFull:
		return "FULL"
	case MsgWrongPassword:
		return "WRONG_PASSWORD"
	case MsgWelcome:
		return "WELCOME"
	case MsgBanned:
		return "BANNED"
	case MsgUserCredentials:
		return "USER_CREDENTIALS"
	case MsgEnableFlow:
		return "ENABLE_FLOW"
	case MsgUserJoin:
		return "USER_JOIN"
	case MsgUserLeave:
		return "USER_LEAVE"
	case MsgUserInfo:
		return "USER_INFO"
	case MsgDelete:
		return "DELETE"
	case MsgStreamRegister:
		return "STREAM_REGISTER"
	case MsgStreamData:
		return "STREAM_DATA"
	case MsgVehicleData:
		return "VEHICLE_DATA"
	case MsgChat:
		return "CHAT"
	case MsgPrivChat:
		return "PRIVCHAT"
	case MsgGameCmd:
		return "GAME_CMD"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint32(t))
}

// ServerUID is the source uid used for frames originated by the server
// itself (chat replies, game commands). On the wire it is uint32(-1).
const ServerUID = ^uint32(0)

// Header is the fixed frame prefix. All fields little-endian.
type Header struct {
	Type      MsgType
	SourceUID uint32
	StreamID  uint32
	Size      uint32
}

// EncodeHeader writes h into a fresh HeaderSize byte slice.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Type))
	binary.LittleEndian.PutUint32(buf[4:8], h.SourceUID)
	binary.LittleEndian.PutUint32(buf[8:12], h.StreamID)
	binary.LittleEndian.PutUint32(buf[12:16], h.Size)
	return buf
}

// DecodeHeader parses a HeaderSize byte slice.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header %d bytes", ErrMalformed, len(buf))
	}
	return Header{
		Type:      MsgType(binary.LittleEndian.Uint32(buf[0:4])),
		SourceUID: binary.LittleEndian.Uint32(buf[4:8]),
		StreamID:  binary.LittleEndian.Uint32(buf[8:12]),
		Size:      binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}

// EncodeFrame serialises a whole frame (header + payload) into one slice so
// the transport can issue a single write.
func EncodeFrame(typ MsgType, sourceUID, streamID uint32, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(typ))
	binary.LittleEndian.PutUint32(buf[4:8], sourceUID)
	binary.LittleEndian.PutUint32(buf[8:12], streamID)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf
}

// WriteFrame encodes and writes one frame. A short write surfaces as an
// error from w.
func WriteFrame(w io.Writer, typ MsgType, sourceUID, streamID uint32, payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("%w: payload %d bytes", ErrMalformed, len(payload))
	}
	_, err := w.Write(EncodeFrame(typ, sourceUID, streamID, payload))
	return err
}

// ReadFrame reads exactly one frame from r. Running out of bytes mid-frame
// yields ErrMalformed; a clean EOF before the header is io.EOF.
func ReadFrame(r io.Reader) (Header, []byte, error) {
	var hbuf [HeaderSize]byte
	if _, err := io.ReadFull(r, hbuf[:]); err != nil {
		if err == io.EOF {
			return Header{}, nil, io.EOF
		}
		return Header{}, nil, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	h, _ := DecodeHeader(hbuf[:])
	if h.Size > MaxPayload {
		return Header{}, nil, fmt.Errorf("%w: payload %d bytes exceeds cap", ErrMalformed, h.Size)
	}
	if h.Size == 0 {
		return h, nil, nil
	}
	payload := make([]byte, h.Size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Header{}, nil, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}
	return h, payload, nil
}
