package sim

import (
	"encoding/binary"
)

// PacketKind distinguishes a DATA fragment from the ACK that acknowledges it.
type PacketKind uint8

const (
	KindData PacketKind = iota
	KindACK
)

// header field layout, mirroring the original's IPv4-shaped frame:
//
//	byte 0        : version(4) | ihl(4)
//	byte 1        : type of service
//	bytes 2-3     : total length (header + payload)
//	bytes 4-5     : identification (mirrors the fragment's packet_num)
//	bytes 6-7     : flags(3) | fragment offset(13)
//	byte 8        : TTL
//	byte 9        : protocol
//	bytes 10-11   : header checksum
//	bytes 12-15   : source address
//	bytes 16-19   : destination address
//	bytes 20..    : options, padded to a 4-byte boundary
const baseHeaderLen = 20

// maxFragmentBytes is the largest payload that fits a single frame without
// IP-level fragmentation: 65535 total length minus the 20-byte base header.
const maxFragmentBytes = 65535 - baseHeaderLen

// frameHeader carries the fields needed to build an IPv4-shaped frame.
type frameHeader struct {
	Identification uint16
	TTL            uint8
	Protocol       uint8
	SrcAddr        uint32
	DstAddr        uint32
	Options        []byte
}

// encodeFrame builds header+payload, padding options to a 4-byte boundary,
// computing ihl/total_length, and writing back the one's-complement checksum.
func encodeFrame(h frameHeader, payload []byte) []byte {
	options := h.Options
	if len(options)%4 != 0 {
		pad := 4 - len(options)%4
		options = append(append([]byte{}, options...), make([]byte, pad)...)
	}
	ihl := 5 + len(options)/4
	headerLen := ihl * 4

	frame := make([]byte, headerLen+len(payload))

	frame[0] = byte(4<<4) | byte(ihl&0xF)
	frame[1] = 0 // type of service, unused

	totalLen := headerLen + len(payload)
	binary.BigEndian.PutUint16(frame[2:4], uint16(totalLen))
	binary.BigEndian.PutUint16(frame[4:6], h.Identification)

	// flags=0, fragment offset=0 — this simulation never fragments at the IP
	// layer; oversized sends are split into multiple frames upstream instead.
	binary.BigEndian.PutUint16(frame[6:8], 0)

	frame[8] = h.TTL
	frame[9] = h.Protocol
	// checksum field left zero for the first pass

	binary.BigEndian.PutUint32(frame[12:16], h.SrcAddr)
	binary.BigEndian.PutUint32(frame[16:20], h.DstAddr)

	if len(options) > 0 {
		copy(frame[20:20+len(options)], options)
	}
	copy(frame[headerLen:], payload)

	checksum := ipv4Checksum(frame[:headerLen])
	binary.BigEndian.PutUint16(frame[10:12], checksum)

	return frame
}

// decodeFrame is the inverse of encodeFrame: split header from payload and
// recover the fields the simulation cares about. Length sanity only — the
// payload itself is treated as opaque bytes.
func decodeFrame(frame []byte) (h frameHeader, payload []byte, ok bool) {
	if len(frame) < baseHeaderLen {
		return frameHeader{}, nil, false
	}
	ihl := int(frame[0] & 0xF)
	headerLen := ihl * 4
	if headerLen < baseHeaderLen || len(frame) < headerLen {
		return frameHeader{}, nil, false
	}

	h.Identification = binary.BigEndian.Uint16(frame[4:6])
	h.TTL = frame[8]
	h.Protocol = frame[9]
	h.SrcAddr = binary.BigEndian.Uint32(frame[12:16])
	h.DstAddr = binary.BigEndian.Uint32(frame[16:20])
	if headerLen > baseHeaderLen {
		h.Options = append([]byte{}, frame[baseHeaderLen:headerLen]...)
	}
	payload = frame[headerLen:]
	return h, payload, true
}

// ipv4Checksum computes the 16-bit one's-complement sum of all header
// 16-bit words, assuming the checksum field is currently zero.
func ipv4Checksum(header []byte) uint16 {
	buf := header
	if len(buf)%2 == 1 {
		buf = append(append([]byte{}, buf...), 0)
	}
	var sum uint32
	for i := 0; i < len(buf); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(buf[i : i+2]))
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return uint16(^sum & 0xFFFF)
}

// Packet is the in-flight record routed between UEs and towers. bytes is the
// fully assembled frame from encodeFrame; the routing fields alongside it
// are tower-scoped metadata, not part of the wire frame itself.
type Packet struct {
	TStep      int
	PacketNum  uint16
	Kind       PacketKind
	Bytes      []byte
	SrcIP      IPAddr
	DstIP      IPAddr
	RetxCount  int
	HopCount   int
	ViaIP      IPAddr
	hasVia     bool
}

// Bits returns the packet's wire length in bits — what every bit-budget and
// buffer-threshold accounting in this package charges against.
func (p *Packet) Bits() int { return len(p.Bytes) * 8 }

// newDataFragment builds one DATA packet from a payload slice no larger than
// maxFragmentBytes.
func newDataFragment(tStep int, packetNum uint16, src, dst IPAddr, payload []byte) Packet {
	frame := encodeFrame(frameHeader{
		Identification: packetNum,
		TTL:            64,
		Protocol:       99,
		SrcAddr:        uint32(src),
		DstAddr:        uint32(dst),
	}, payload)
	return Packet{
		TStep:     tStep,
		PacketNum: packetNum,
		Kind:      KindData,
		Bytes:     frame,
		SrcIP:     src,
		DstIP:     dst,
	}
}

// newACK builds the single-byte ACK for a received DATA packet, src/dst
// swapped and packet_num mirrored.
func newACK(tStep int, data Packet, from IPAddr) Packet {
	payload := []byte{0}
	frame := encodeFrame(frameHeader{
		Identification: data.PacketNum,
		TTL:            64,
		Protocol:       99,
		SrcAddr:        uint32(from),
		DstAddr:        uint32(data.SrcIP),
	}, payload)
	return Packet{
		TStep:     tStep,
		PacketNum: data.PacketNum,
		Kind:      KindACK,
		Bytes:     frame,
		SrcIP:     from,
		DstIP:     data.SrcIP,
		RetxCount: data.RetxCount,
	}
}

// withVia returns a copy of p with hop_count incremented and via_ip set to
// the receiving tower, as the ingress invariant in spec.md §3 requires.
func (p Packet) withVia(tower IPAddr) Packet {
	p.HopCount++
	p.ViaIP = tower
	p.hasVia = true
	return p
}
