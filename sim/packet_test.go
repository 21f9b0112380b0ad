package sim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	payload := []byte("hello towersim")
	frame := encodeFrame(frameHeader{
		Identification: 42,
		TTL:            64,
		Protocol:       99,
		SrcAddr:        0x0A000001,
		DstAddr:        0x0A000002,
	}, payload)

	h, decodedPayload, ok := decodeFrame(frame)
	require.True(t, ok)
	require.Equal(t, uint16(42), h.Identification)
	require.Equal(t, uint8(64), h.TTL)
	require.Equal(t, uint8(99), h.Protocol)
	require.Equal(t, uint32(0x0A000001), h.SrcAddr)
	require.Equal(t, uint32(0x0A000002), h.DstAddr)
	require.Equal(t, payload, decodedPayload)
}

func TestEncodeFrameOptionsPadding(t *testing.T) {
	frame := encodeFrame(frameHeader{
		Options: []byte{1, 2, 3}, // needs one pad byte to reach a 4-byte boundary
	}, []byte{0xAA})

	// ihl = 5 + 1 option word = 6 -> 24-byte header.
	require.Equal(t, uint8(4<<4|6), frame[0])
	require.Len(t, frame, 24+1)
}

func TestIPv4ChecksumSelfVerifies(t *testing.T) {
	frame := encodeFrame(frameHeader{Identification: 7, TTL: 1, Protocol: 2}, []byte{1, 2, 3})
	ihl := int(frame[0] & 0xF)
	headerLen := ihl * 4

	var sum uint32
	for i := 0; i < headerLen; i += 2 {
		sum += uint32(frame[i])<<8 | uint32(frame[i+1])
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	require.Equal(t, uint32(0xFFFF), sum&0xFFFF)
}

func TestNewDataFragmentAndACK(t *testing.T) {
	payload := make([]byte, 100)
	data := newDataFragment(0, 1, 50, 51, payload)
	require.Equal(t, KindData, data.Kind)
	require.Equal(t, 120*8, data.Bits()) // 20-byte header + 100-byte payload

	ack := newACK(1, data, 51)
	require.Equal(t, KindACK, ack.Kind)
	require.Equal(t, data.PacketNum, ack.PacketNum)
	require.Equal(t, IPAddr(51), ack.SrcIP)
	require.Equal(t, IPAddr(50), ack.DstIP)
}

func TestWithViaIncrementsHopCount(t *testing.T) {
	p := newDataFragment(0, 1, 50, 51, []byte{1})
	require.Equal(t, 0, p.HopCount)
	p2 := p.withVia(1)
	require.Equal(t, 1, p2.HopCount)
	require.Equal(t, IPAddr(1), p2.ViaIP)
	// original is untouched — withVia returns a copy.
	require.Equal(t, 0, p.HopCount)
}
