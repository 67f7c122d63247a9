package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Field widths fixed by the wire contract.
const (
	NicknameLen   = 20
	UniqueIDLen   = 60
	PasswordLen   = 40 // hex digest
	StreamNameLen = 128

	UserInfoSize       = 16 + NicknameLen
	StreamRegisterSize = 8 + StreamNameLen
	CredentialsMinSize = NicknameLen + UniqueIDLen

	// vehiclePosOffset is the opaque out-of-band prefix preceding the three
	// position floats in a VehicleData payload.
	vehiclePosOffset = 16
)

// UserInfo is the payload of UserJoin and UserInfo frames.
type UserInfo struct {
	Version   uint32
	SlotID    uint32
	ColourNum uint32
	Auth      AuthFlags
	Nickname  string
}

// Encode serialises to the fixed 36-byte layout. The nickname is truncated
// to the 20-byte on-wire field at encode time.
func (ui UserInfo) Encode() []byte {
	buf := make([]byte, UserInfoSize)
	binary.LittleEndian.PutUint32(buf[0:4], ui.Version)
	binary.LittleEndian.PutUint32(buf[4:8], ui.SlotID)
	binary.LittleEndian.PutUint32(buf[8:12], ui.ColourNum)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(ui.Auth))
	copyPadded(buf[16:16+NicknameLen], ui.Nickname)
	return buf
}

// DecodeUserInfo parses a UserJoin/UserInfo payload.
func DecodeUserInfo(buf []byte) (UserInfo, error) {
	if len(buf) < UserInfoSize {
		return UserInfo{}, fmt.Errorf("%w: user info %d bytes", ErrMalformed, len(buf))
	}
	return UserInfo{
		Version:   binary.LittleEndian.Uint32(buf[0:4]),
		SlotID:    binary.LittleEndian.Uint32(buf[4:8]),
		ColourNum: binary.LittleEndian.Uint32(buf[8:12]),
		Auth:      AuthFlags(binary.LittleEndian.Uint32(buf[12:16])),
		Nickname:  cString(buf[16 : 16+NicknameLen]),
	}, nil
}

// StreamType classifies a registered stream.
type StreamType uint32

const (
	StreamTruck     StreamType = 0
	StreamCharacter StreamType = 1
	StreamAITraffic StreamType = 2
	StreamChat      StreamType = 3
)

func (t StreamType) String() string {
	switch t {
	case StreamTruck:
		return "truck"
	case StreamCharacter:
		return "character"
	case StreamAITraffic:
		return "aitraffic"
	case StreamChat:
		return "chat"
	}
	return "unknown"
}

// StreamRegister is the payload of StreamRegister frames.
type StreamRegister struct {
	Type   StreamType
	Status int32
	Name   string
}

// Encode serialises to the fixed 136-byte layout.
func (sr StreamRegister) Encode() []byte {
	buf := make([]byte, StreamRegisterSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(sr.Type))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(sr.Status))
	copyPadded(buf[8:8+StreamNameLen], sr.Name)
	return buf
}

// DecodeStreamRegister parses a StreamRegister payload and sanitises the
// name field in place: spaces become NUL and the final byte is forced to
// NUL, so the name is always terminated.
func DecodeStreamRegister(buf []byte) (StreamRegister, error) {
	if len(buf) < StreamRegisterSize {
		return StreamRegister{}, fmt.Errorf("%w: stream register %d bytes", ErrMalformed, len(buf))
	}
	name := buf[8 : 8+StreamNameLen]
	for i, c := range name {
		if c == ' ' {
			name[i] = 0
		}
	}
	name[StreamNameLen-1] = 0
	return StreamRegister{
		Type:   StreamType(binary.LittleEndian.Uint32(buf[0:4])),
		Status: int32(binary.LittleEndian.Uint32(buf[4:8])),
		Name:   cString(name),
	}, nil
}

// Credentials is the payload of UserCredentials frames. The password digest
// is optional; older clients omit it.
type Credentials struct {
	Username string
	UniqueID string
	Password string
}

// Encode serialises to 80 bytes, or 120 when a password digest is present.
func (c Credentials) Encode() []byte {
	size := CredentialsMinSize
	if c.Password != "" {
		size += PasswordLen
	}
	buf := make([]byte, size)
	copyPadded(buf[0:NicknameLen], c.Username)
	copyPadded(buf[NicknameLen:NicknameLen+UniqueIDLen], c.UniqueID)
	if c.Password != "" {
		copyPadded(buf[CredentialsMinSize:], c.Password)
	}
	return buf
}

// DecodeCredentials parses a UserCredentials payload.
func DecodeCredentials(buf []byte) (Credentials, error) {
	if len(buf) < CredentialsMinSize {
		return Credentials{}, fmt.Errorf("%w: credentials %d bytes", ErrMalformed, len(buf))
	}
	c := Credentials{
		Username: cString(buf[0:NicknameLen]),
		UniqueID: cString(buf[NicknameLen : NicknameLen+UniqueIDLen]),
	}
	if len(buf) >= CredentialsMinSize+PasswordLen {
		c.Password = cString(buf[CredentialsMinSize : CredentialsMinSize+PasswordLen])
	}
	return c, nil
}

// EncodeColour builds the 4-byte Welcome payload.
func EncodeColour(colour uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, colour)
	return buf
}

// DecodeColour parses a Welcome payload.
func DecodeColour(buf []byte) (uint32, error) {
	if len(buf) < 4 {
		return 0, fmt.Errorf("%w: colour %d bytes", ErrMalformed, len(buf))
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// PrivChatTarget extracts the destination uid from the first four payload
// bytes of a PrivChat frame; the remainder is the chat text.
func PrivChatTarget(payload []byte) (uid uint32, msg []byte, ok bool) {
	if len(payload) < 4 {
		return 0, nil, false
	}
	return binary.LittleEndian.Uint32(payload[0:4]), payload[4:], true
}

// VehiclePosition extracts the position hint from a VehicleData payload:
// three little-endian float32 immediately after the fixed prefix.
func VehiclePosition(payload []byte) (x, y, z float32, ok bool) {
	if len(payload) < vehiclePosOffset+12 {
		return 0, 0, 0, false
	}
	x = math.Float32frombits(binary.LittleEndian.Uint32(payload[vehiclePosOffset:]))
	y = math.Float32frombits(binary.LittleEndian.Uint32(payload[vehiclePosOffset+4:]))
	z = math.Float32frombits(binary.LittleEndian.Uint32(payload[vehiclePosOffset+8:]))
	return x, y, z, true
}

// copyPadded copies s into dst, truncating to fit and zero-padding the rest.
func copyPadded(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// cString interprets buf as a NUL-padded byte field.
func cString(buf []byte) string {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		return string(buf[:i])
	}
	return string(buf)
}
