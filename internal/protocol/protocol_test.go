package protocol

import (
	"bytes"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		typ     MsgType
		source  uint32
		stream  uint32
		payload []byte
	}{
		{"empty", MsgEnableFlow, 7, 0, nil},
		{"chat", MsgChat, 3, ^uint32(0), []byte("hello there")},
		{"server source", MsgGameCmd, ServerUID, 0, []byte("game.setTime(12)")},
		{"binary", MsgStreamData, 12, 7, []byte{0x00, 0xff, 0x10, 0x00}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteFrame(&buf, tc.typ, tc.source, tc.stream, tc.payload))

			h, payload, err := ReadFrame(&buf)
			require.NoError(t, err)
			assert.Equal(t, tc.typ, h.Type)
			assert.Equal(t, tc.source, h.SourceUID)
			assert.Equal(t, tc.stream, h.StreamID)
			assert.Equal(t, uint32(len(tc.payload)), h.Size)
			if len(tc.payload) == 0 {
				assert.Empty(t, payload)
			} else {
				assert.Equal(t, tc.payload, payload)
			}
		})
	}
}

func TestReadFrameOversized(t *testing.T) {
	h := EncodeHeader(Header{Type: MsgStreamData, Size: MaxPayload + 1})
	_, _, err := ReadFrame(bytes.NewReader(h))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	frame := EncodeFrame(MsgChat, 1, 0, []byte("hello"))
	_, _, err := ReadFrame(bytes.NewReader(frame[:len(frame)-2]))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestReadFrameCleanEOF(t *testing.T) {
	_, _, err := ReadFrame(bytes.NewReader(nil))
	require.ErrorIs(t, err, io.EOF)
}

func TestWriteFrameRejectsOversized(t *testing.T) {
	err := WriteFrame(io.Discard, MsgStreamData, 1, 0, make([]byte, MaxPayload+1))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestUserInfoRoundTrip(t *testing.T) {
	in := UserInfo{Version: 1, SlotID: 4, ColourNum: 2, Auth: AuthMod | AuthRanked, Nickname: "alice"}
	out, err := DecodeUserInfo(in.Encode())
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestUserInfoNicknameTruncated(t *testing.T) {
	in := UserInfo{Nickname: "abcdefghijklmnopqrstuvwxyz"}
	out, err := DecodeUserInfo(in.Encode())
	require.NoError(t, err)
	assert.Equal(t, "abcdefghijklmnopqrst", out.Nickname)
	assert.Len(t, out.Nickname, NicknameLen)
}

func TestStreamRegisterSanitisesName(t *testing.T) {
	raw := StreamRegister{Type: StreamTruck, Status: -1, Name: "big rig.truck"}.Encode()
	out, err := DecodeStreamRegister(raw)
	require.NoError(t, err)
	// Spaces become NUL, so the name stops at the first one.
	assert.Equal(t, "big", out.Name)
	assert.Equal(t, StreamTruck, out.Type)
	assert.Equal(t, int32(-1), out.Status)
}

func TestStreamRegisterForcedTerminator(t *testing.T) {
	buf := StreamRegister{Type: StreamChat, Name: "chat"}.Encode()
	// Overwrite the whole name field with non-NUL bytes.
	for i := 8; i < 8+StreamNameLen; i++ {
		buf[i] = 'x'
	}
	out, err := DecodeStreamRegister(buf)
	require.NoError(t, err)
	assert.Len(t, out.Name, StreamNameLen-1)
}

func TestCredentialsRoundTrip(t *testing.T) {
	in := Credentials{Username: "bob", UniqueID: "token-123", Password: "da39a3ee5e6b4b0d3255"}
	out, err := DecodeCredentials(in.Encode())
	require.NoError(t, err)
	assert.Equal(t, in, out)

	noPw := Credentials{Username: "bob", UniqueID: "token-123"}
	out, err = DecodeCredentials(noPw.Encode())
	require.NoError(t, err)
	assert.Equal(t, noPw, out)
}

func TestPrivChatTarget(t *testing.T) {
	payload := append([]byte{2, 0, 0, 0}, []byte("hi")...)
	uid, msg, ok := PrivChatTarget(payload)
	require.True(t, ok)
	assert.Equal(t, uint32(2), uid)
	assert.Equal(t, []byte("hi"), msg)

	_, _, ok = PrivChatTarget([]byte{1, 2})
	assert.False(t, ok)
}

func TestVehiclePosition(t *testing.T) {
	payload := make([]byte, vehiclePosOffset+12)
	for i, f := range []float32{1.5, -2.25, 300} {
		u := math.Float32bits(f)
		payload[vehiclePosOffset+i*4] = byte(u)
		payload[vehiclePosOffset+i*4+1] = byte(u >> 8)
		payload[vehiclePosOffset+i*4+2] = byte(u >> 16)
		payload[vehiclePosOffset+i*4+3] = byte(u >> 24)
	}
	x, y, z, ok := VehiclePosition(payload)
	require.True(t, ok)
	assert.Equal(t, float32(1.5), x)
	assert.Equal(t, float32(-2.25), y)
	assert.Equal(t, float32(300), z)

	_, _, _, ok = VehiclePosition(payload[:vehiclePosOffset+11])
	assert.False(t, ok)
}

func TestAuthLetters(t *testing.T) {
	assert.Equal(t, "", AuthNone.Letters())
	assert.Equal(t, "AM", (AuthAdmin | AuthMod).Letters())
	assert.Equal(t, "RB", (AuthRanked | AuthBot).Letters())
	assert.Equal(t, "A", (AuthAdmin | AuthBanned).Letters())
	assert.Equal(t, "AX", (AuthAdmin | AuthBanned).ListLetters())
}
