package transport

import (
	"encoding/binary"
	"fmt"
	"net"
)

// BVLL type octet for BACnet/IP (Annex J).
const bvlcTypeIP = 0x81

// BVLC functions used by this stack.
const (
	bvlcResult                = 0x00
	bvlcForwardedNPDU         = 0x04
	bvlcRegisterForeignDevice = 0x05
	bvlcOriginalUnicast       = 0x0A
	bvlcOriginalBroadcast     = 0x0B
)

// NPDU protocol version, fixed since the original standard.
const npduVersion = 0x01

const (
	npduCtrlNetworkMessage = 0x80
	npduCtrlDestPresent    = 0x20
	npduCtrlSourcePresent  = 0x08
	npduCtrlExpectingReply = 0x04
)

// wrapAPDU frames an APDU in a local NPDU and a BVLC header for
// transmission.
func wrapAPDU(function uint8, apdu []byte, expectingReply bool) []byte {
	ctrl := byte(0)
	if expectingReply {
		ctrl |= npduCtrlExpectingReply
	}
	total := 4 + 2 + len(apdu)
	out := make([]byte, 0, total)
	out = append(out, bvlcTypeIP, function, byte(total>>8), byte(total))
	out = append(out, npduVersion, ctrl)
	return append(out, apdu...)
}

// registerForeignDevice builds a Register-Foreign-Device frame with the
// time-to-live in seconds.
func registerForeignDevice(ttlSeconds uint16) []byte {
	return []byte{bvlcTypeIP, bvlcRegisterForeignDevice, 0x00, 0x06, byte(ttlSeconds >> 8), byte(ttlSeconds)}
}

// unwrapDatagram strips the BVLC and NPDU layers from a received datagram.
// It returns the APDU octets and the originating address, which differs
// from the datagram source for frames forwarded by a BBMD. Network layer
// messages and BVLC control frames return a nil APDU.
func unwrapDatagram(data []byte, src *net.UDPAddr) ([]byte, *net.UDPAddr, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("short BVLC header: %d bytes", len(data))
	}
	if data[0] != bvlcTypeIP {
		return nil, nil, fmt.Errorf("not a BACnet/IP frame: type 0x%02X", data[0])
	}
	length := int(binary.BigEndian.Uint16(data[2:4]))
	if length != len(data) {
		return nil, nil, fmt.Errorf("BVLC length %d, datagram %d", length, len(data))
	}

	origin := src
	payload := data[4:]

	switch data[1] {
	case bvlcOriginalUnicast, bvlcOriginalBroadcast:
	case bvlcForwardedNPDU:
		if len(payload) < 6 {
			return nil, nil, fmt.Errorf("short forwarded-NPDU origin")
		}
		origin = &net.UDPAddr{
			IP:   net.IP(append([]byte(nil), payload[0:4]...)),
			Port: int(binary.BigEndian.Uint16(payload[4:6])),
		}
		payload = payload[6:]
	case bvlcResult:
		// Acknowledgement of a control frame such as foreign device
		// registration; nothing for the application layer.
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported BVLC function 0x%02X", data[1])
	}

	apdu, err := stripNPDU(payload)
	if err != nil {
		return nil, nil, err
	}
	return apdu, origin, nil
}

// stripNPDU skips the network layer header, returning the APDU or nil for
// network layer messages.
func stripNPDU(data []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("short NPDU header")
	}
	if data[0] != npduVersion {
		return nil, fmt.Errorf("NPDU version 0x%02X", data[0])
	}
	ctrl := data[1]
	off := 2

	skipAddress := func() error {
		if off+3 > len(data) {
			return fmt.Errorf("truncated NPDU address")
		}
		alen := int(data[off+2])
		off += 3 + alen
		if off > len(data) {
			return fmt.Errorf("truncated NPDU address")
		}
		return nil
	}

	if ctrl&npduCtrlDestPresent != 0 {
		if err := skipAddress(); err != nil {
			return nil, err
		}
	}
	if ctrl&npduCtrlSourcePresent != 0 {
		if err := skipAddress(); err != nil {
			return nil, err
		}
	}
	if ctrl&npduCtrlDestPresent != 0 {
		// Hop count follows the addresses when a destination is routed.
		if off >= len(data) {
			return nil, fmt.Errorf("truncated NPDU hop count")
		}
		off++
	}
	if ctrl&npduCtrlNetworkMessage != 0 {
		return nil, nil
	}
	if off >= len(data) {
		return nil, fmt.Errorf("NPDU without APDU")
	}
	return data[off:], nil
}
