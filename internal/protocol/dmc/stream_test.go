package dmc

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEncode(t *testing.T, id uint32, p Payload) []byte {
	t.Helper()
	raw, err := Encode(id, p)
	require.NoError(t, err)
	return raw
}

// feedChunks 按固定块大小投递数据，返回全部事件
func feedChunks(r *Reassembler, stream []byte, chunk int) []FrameEvent {
	var events []FrameEvent
	for off := 0; off < len(stream); off += chunk {
		end := off + chunk
		if end > len(stream) {
			end = len(stream)
		}
		events = append(events, r.Feed(stream[off:end])...)
	}
	return events
}

func randomJunk(rng *rand.Rand, n int) []byte {
	for {
		junk := make([]byte, n)
		rng.Read(junk)
		// 垃圾数据中的 "DF" 会被当成候选帧头（长度前缀协议固有的限制）
		if !bytes.Contains(junk, marker) {
			return junk
		}
	}
}

func TestReassembler_ResyncAcrossChunkSizes(t *testing.T) {
	f1 := Message{ID: 1, Type: TypeOf(CmdDmx, false), Payload: DmxRequest{StartChannel: 1, Values: [4]uint8{1, 2, 3, 4}}}
	f2 := Message{ID: 2, Type: TypeOf(CmdHi, true), Payload: sampleHiResponse()}
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 5; round++ {
		junk := randomJunk(rng, 5)
		stream := append(append(mustEncode(t, f1.ID, f1.Payload), junk...), mustEncode(t, f2.ID, f2.Payload)...)

		for chunk := 1; chunk <= len(stream); chunk++ {
			events := feedChunks(NewReassembler(nil), stream, chunk)
			require.GreaterOrEqual(t, len(events), 2, "chunk=%d junk=%x", chunk, junk)

			first, last := events[0], events[len(events)-1]
			require.True(t, first.Decoded(), "chunk=%d: first event %v", chunk, first.Err)
			require.True(t, last.Decoded(), "chunk=%d: last event %v", chunk, last.Err)
			assert.Equal(t, f1, *first.Message)
			assert.Equal(t, f2, *last.Message)
			for _, ev := range events[1 : len(events)-1] {
				assert.False(t, ev.Decoded(), "chunk=%d: unexpected extra frame", chunk)
				assert.True(t, IsFrameError(ev.Err), "chunk=%d: %v", chunk, ev.Err)
			}
		}
	}
}

func TestReassembler_FalseMarkerInJunkDelaysNextFrame(t *testing.T) {
	f1 := mustEncode(t, 1, DmxRequest{StartChannel: 1, Values: [4]uint8{1, 2, 3, 4}})
	f2 := mustEncode(t, 2, sampleHiResponse())

	// 垃圾中的伪帧头声明 100 字节载荷，覆盖住后面的 f2
	const declared = 100
	junk := append([]byte(nil), marker...)
	junk = ByteOrder.AppendUint32(junk, 0)
	junk = ByteOrder.AppendUint16(junk, uint16(TypeOf(CmdDmx, false)))
	junk = ByteOrder.AppendUint16(junk, declared)

	r := NewReassembler(nil)
	events := r.Feed(append(append(append([]byte(nil), f1...), junk...), f2...))
	require.Len(t, events, 1)
	require.True(t, events[0].Decoded())
	assert.Equal(t, uint32(1), events[0].Message.ID)
	assert.Equal(t, Accumulating, r.State())
	assert.Equal(t, len(junk)+len(f2), r.Buffered(), "f2 waits behind the false header")

	// 伪帧凑满声明长度后校验失败，滑动后找回 f2
	fill := HeaderLen + declared + ChecksumLen - len(junk) - len(f2)
	events = r.Feed(make([]byte, fill))
	require.NotEmpty(t, events)
	assert.ErrorIs(t, events[0].Err, ErrChecksumMismatch)

	var got []Message
	for _, ev := range events {
		if ev.Decoded() {
			got = append(got, *ev.Message)
			continue
		}
		assert.True(t, IsFrameError(ev.Err), "%v", ev.Err)
	}
	require.Len(t, got, 1)
	assert.Equal(t, uint32(2), got[0].ID)
	assert.Equal(t, sampleHiResponse(), got[0].Payload)
	assert.Equal(t, Seeking, r.State())
}

func TestReassembler_ByteAtATime(t *testing.T) {
	raw := mustEncode(t, 99, GuiOutRequest{Triggers: 0xA5})
	r := NewReassembler(nil)

	for i := 0; i < len(raw)-1; i++ {
		events := r.Feed(raw[i : i+1])
		require.Empty(t, events, "byte %d emitted %v", i, events)
	}
	assert.Equal(t, Accumulating, r.State())

	events := r.Feed(raw[len(raw)-1:])
	require.Len(t, events, 1)
	require.True(t, events[0].Decoded())
	assert.Equal(t, uint32(99), events[0].Message.ID)
	assert.Equal(t, GuiOutRequest{Triggers: 0xA5}, events[0].Message.Payload)
	assert.Equal(t, 0, r.Buffered())
	assert.Equal(t, Seeking, r.State())
}

func TestReassembler_CorruptFrameDoesNotPoisonNext(t *testing.T) {
	bad := mustEncode(t, 1, DmxRequest{StartChannel: 7})
	bad[HeaderLen+2] ^= 0x40
	good := mustEncode(t, 2, Ack{Command: CmdDmx, Code: RespOk})

	events := NewReassembler(nil).Feed(append(bad, good...))
	require.NotEmpty(t, events)

	first := events[0]
	assert.ErrorIs(t, first.Err, ErrChecksumMismatch)
	require.NotNil(t, first.Header, "校验失败时帧头仍可读")
	assert.Equal(t, uint32(1), first.Header.ID)

	last := events[len(events)-1]
	require.True(t, last.Decoded())
	assert.Equal(t, uint32(2), last.Message.ID)

	decoded := 0
	for _, ev := range events {
		if ev.Decoded() {
			decoded++
		}
	}
	assert.Equal(t, 1, decoded)
}

func TestReassembler_BackToBackFrames(t *testing.T) {
	var stream []byte
	for id := uint32(1); id <= 10; id++ {
		stream = append(stream, mustEncode(t, id, Ack{Command: CmdGuiOut, Code: RespOk})...)
	}
	events := NewReassembler(nil).Feed(stream)
	require.Len(t, events, 10)
	for i, ev := range events {
		require.True(t, ev.Decoded())
		assert.Equal(t, uint32(i+1), ev.Message.ID)
	}
}

func TestReassembler_JunkOnly(t *testing.T) {
	r := NewReassembler(nil)
	events := r.Feed([]byte{0x00, 0x01, 0x02, 'D'})
	require.Len(t, events, 1)
	assert.ErrorIs(t, events[0].Err, ErrBadMarker)
	assert.Equal(t, 1, r.Buffered(), "末尾的 'D' 需要保留")

	events = r.Feed([]byte{'X'})
	require.Len(t, events, 1)
	assert.ErrorIs(t, events[0].Err, ErrBadMarker)
	assert.Equal(t, 0, r.Buffered())
}

func TestReassembler_ReadsHugeDeclaredLengthAsInvalid(t *testing.T) {
	bogus := appendHeader(nil, Header{ID: 5, Type: 0x0042, Length: 0xFFFF})
	good := mustEncode(t, 6, HiRequest{})

	events := NewReassembler(nil).Feed(append(bogus, good...))
	require.NotEmpty(t, events)
	assert.ErrorIs(t, events[0].Err, ErrLengthMismatch)
	last := events[len(events)-1]
	require.True(t, last.Decoded())
	assert.Equal(t, uint32(6), last.Message.ID)
}

func TestReassembler_BufferBounded(t *testing.T) {
	r := NewReassembler(nil)
	hdr := appendHeader(nil, Header{ID: 1, Type: 0x0042, Length: MaxPayloadLen})
	r.Feed(hdr)
	r.Feed(make([]byte, MaxPayloadLen))
	assert.LessOrEqual(t, r.Buffered(), MaxFrameLen)
	assert.Equal(t, Accumulating, r.State())

	r.Reset()
	assert.Equal(t, 0, r.Buffered())
	assert.Equal(t, Seeking, r.State())
}

func TestReassembler_UnknownTypeIsDecoded(t *testing.T) {
	raw, err := DefaultCodec().EncodeFrame(Frame{ID: 3, Type: 0x0123, Payload: []byte{1, 2}})
	require.NoError(t, err)
	events := NewReassembler(nil).Feed(raw)
	require.Len(t, events, 1)
	require.True(t, events[0].Decoded())
	assert.Equal(t, Unknown{TypeCode: 0x0123, Data: []byte{1, 2}}, events[0].Message.Payload)
}

func TestRouter(t *testing.T) {
	r := NewRouter()
	var got []MessageType
	r.Register(TypeOf(CmdHi, false), func(m Message) error {
		got = append(got, m.Type)
		return nil
	})
	require.NoError(t, r.Route(Message{Type: TypeOf(CmdHi, false)}))
	require.NoError(t, r.Route(Message{Type: TypeOf(CmdDmx, false)}), "未注册且无 fallback 时忽略")

	r.SetFallback(func(m Message) error {
		got = append(got, 0xFFFF)
		return nil
	})
	require.NoError(t, r.Route(Message{Type: 0x0042}))
	assert.Equal(t, []MessageType{TypeOf(CmdHi, false), 0xFFFF}, got)
}
