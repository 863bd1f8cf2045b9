package rigsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamptokr/dragon-dmc/internal/protocol/dmc"
)

func encode(t *testing.T, id uint32, p dmc.Payload) []byte {
	t.Helper()
	b, err := dmc.Encode(id, p)
	require.NoError(t, err)
	return b
}

func decodeOne(t *testing.T, frames [][]byte) dmc.Message {
	t.Helper()
	require.Len(t, frames, 1)
	res := dmc.Decode(frames[0])
	require.Equal(t, dmc.Complete, res.Status, "err=%v", res.Err)
	return res.Message
}

func TestDevice_Responses(t *testing.T) {
	tests := []struct {
		name     string
		req      dmc.Payload
		wantType dmc.MessageType
		wantCode dmc.ResponseCode
	}{
		{name: "dmx ok", req: dmc.DmxRequest{StartChannel: 508, Values: [4]uint8{1, 2, 3, 4}}, wantType: 0x8020, wantCode: dmc.RespOk},
		{name: "dmx 越界", req: dmc.DmxRequest{StartChannel: 509}, wantType: 0x8020, wantCode: dmc.RespErrRange},
		{name: "gui out", req: dmc.GuiOutRequest{Triggers: 0x5}, wantType: 0x8030, wantCode: dmc.RespOk},
		{name: "未知命令", req: dmc.Unknown{TypeCode: 0x0042, Data: []byte{9}}, wantType: 0x8042, wantCode: dmc.RespErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(DefaultProfile("sim"))
			raw, err := dmc.DefaultCodec().EncodeFrame(frameOf(t, 11, tt.req))
			require.NoError(t, err)

			msg := decodeOne(t, d.Handle(raw))
			assert.Equal(t, uint32(11), msg.ID)
			assert.Equal(t, tt.wantType, msg.Type)
			code, ok := msg.ResponseCode()
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

// frameOf 绕过注册表的长度约定，允许构造未知类型
func frameOf(t *testing.T, id uint32, p dmc.Payload) dmc.Frame {
	t.Helper()
	b, err := p.MarshalBinary()
	require.NoError(t, err)
	return dmc.Frame{ID: id, Type: p.Type(), Payload: b}
}

func TestDevice_Hello(t *testing.T) {
	d := New(DefaultProfile("bench-rig"))
	msg := decodeOne(t, d.Handle(encode(t, 1, dmc.HiRequest{})))
	hi, ok := msg.Payload.(dmc.HiResponse)
	require.True(t, ok)
	assert.Equal(t, "bench-rig", hi.DeviceName())
	assert.Equal(t, uint16(512), hi.DmxCount)
}

func TestDevice_StoresState(t *testing.T) {
	d := New(DefaultProfile("sim"))
	d.Handle(encode(t, 1, dmc.DmxRequest{StartChannel: 10, Values: [4]uint8{7, 8, 9, 10}}))
	d.Handle(encode(t, 2, dmc.GuiOutRequest{Triggers: 0x81}))
	assert.Equal(t, uint8(7), d.Channel(10))
	assert.Equal(t, uint8(10), d.Channel(13))
	assert.Equal(t, uint32(0x81), d.Triggers())
	assert.Len(t, d.Received(), 2)
}

func TestDevice_ChecksumErrorReply(t *testing.T) {
	d := New(DefaultProfile("sim"))
	raw := encode(t, 77, dmc.GuiOutRequest{Triggers: 1})
	raw[len(raw)-1] ^= 0x01

	msg := decodeOne(t, d.Handle(raw))
	assert.Equal(t, uint32(77), msg.ID)
	assert.Equal(t, dmc.TypeOf(dmc.CmdGuiOut, true), msg.Type)
	code, _ := msg.ResponseCode()
	assert.Equal(t, dmc.RespErrChecksum, code)
	assert.NotZero(t, d.FrameErrors())
}

func TestDevice_IgnoresAcks(t *testing.T) {
	d := New(DefaultProfile("sim"))
	assert.Empty(t, d.Handle(encode(t, 3, dmc.Ack{Command: dmc.CmdHi, Code: dmc.RespOk})))
}

func TestDevice_FaultInjection(t *testing.T) {
	d := New(DefaultProfile("sim"))
	d.DropNext(2)
	assert.Empty(t, d.Handle(encode(t, 1, dmc.HiRequest{})))
	assert.Empty(t, d.Handle(encode(t, 1, dmc.HiRequest{})))
	assert.Len(t, d.Handle(encode(t, 1, dmc.HiRequest{})), 1)

	d.CorruptNext()
	frames := d.Handle(encode(t, 2, dmc.HiRequest{}))
	require.Len(t, frames, 1)
	res := dmc.Decode(frames[0])
	assert.Equal(t, dmc.Invalid, res.Status)
	assert.ErrorIs(t, res.Err, dmc.ErrChecksumMismatch)

	decodeOne(t, d.Handle(encode(t, 3, dmc.HiRequest{})))
}

func TestDevice_SplitInput(t *testing.T) {
	d := New(DefaultProfile("sim"))
	raw := encode(t, 5, dmc.DmxRequest{StartChannel: 1})
	var frames [][]byte
	for i := range raw {
		frames = append(frames, d.Handle(raw[i:i+1])...)
	}
	msg := decodeOne(t, frames)
	assert.Equal(t, uint32(5), msg.ID)
}
