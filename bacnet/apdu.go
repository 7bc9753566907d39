// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bacnet

import "fmt"

// Flag bits in the first APDU octet. Which bits are meaningful depends on
// the PDU type in the high nibble.
const (
	apduFlagSegmented         = 0x08 // confirmed request, complex ack
	apduFlagMoreFollows       = 0x04
	apduFlagSegmentedAccepted = 0x02 // confirmed request only
	apduFlagNegativeAck       = 0x02 // segment ack only
	apduFlagServer            = 0x01 // segment ack, abort
)

// APDU is the decoded form of a BACnet application layer protocol data
// unit. Only the fields relevant to the PDU type are populated; EncodeAPDU
// ignores the rest.
type APDU struct {
	Type PDUType

	// Segmentation flags (confirmed request and complex ack).
	Segmented   bool
	MoreFollows bool

	// SegmentedResponseAccepted advertises the requester's willingness to
	// receive a segmented answer (confirmed request only).
	SegmentedResponseAccepted bool

	// MaxSegments and MaxAPDU are the encoded size-negotiation codes from
	// the second octet of a confirmed request. Use MaxAPDUForCode and
	// MaxSegmentsCode to translate.
	MaxSegments uint8
	MaxAPDU     uint8

	InvokeID uint8

	// Sequence and window, present only when Segmented is set, and always
	// present in a segment ack.
	SequenceNum uint8
	WindowSize  uint8

	// NegativeAck and Server qualify a segment ack; Server also qualifies
	// an abort.
	NegativeAck bool
	Server      bool

	// Service is the confirmed or unconfirmed service choice, or the
	// reject/abort reason octet for those PDU types.
	Service uint8

	// Data is the service payload: service parameters for requests and
	// complex acks, the class/code pair for an error PDU.
	Data []byte
}

// EncodeAPDU encodes an APDU to its wire form.
func EncodeAPDU(a *APDU) ([]byte, error) {
	switch a.Type {
	case PDUTypeConfirmedRequest:
		first := byte(a.Type) << 4
		if a.Segmented {
			first |= apduFlagSegmented
		}
		if a.MoreFollows {
			first |= apduFlagMoreFollows
		}
		if a.SegmentedResponseAccepted {
			first |= apduFlagSegmentedAccepted
		}
		buf := []byte{first, a.MaxSegments<<4 | a.MaxAPDU&0x0F, a.InvokeID}
		if a.Segmented {
			buf = append(buf, a.SequenceNum, a.WindowSize)
		}
		buf = append(buf, a.Service)
		return append(buf, a.Data...), nil

	case PDUTypeUnconfirmedRequest:
		buf := []byte{byte(a.Type) << 4, a.Service}
		return append(buf, a.Data...), nil

	case PDUTypeSimpleAck:
		return []byte{byte(a.Type) << 4, a.InvokeID, a.Service}, nil

	case PDUTypeComplexAck:
		first := byte(a.Type) << 4
		if a.Segmented {
			first |= apduFlagSegmented
		}
		if a.MoreFollows {
			first |= apduFlagMoreFollows
		}
		buf := []byte{first, a.InvokeID}
		if a.Segmented {
			buf = append(buf, a.SequenceNum, a.WindowSize)
		}
		buf = append(buf, a.Service)
		return append(buf, a.Data...), nil

	case PDUTypeSegmentAck:
		first := byte(a.Type) << 4
		if a.NegativeAck {
			first |= apduFlagNegativeAck
		}
		if a.Server {
			first |= apduFlagServer
		}
		return []byte{first, a.InvokeID, a.SequenceNum, a.WindowSize}, nil

	case PDUTypeError:
		buf := []byte{byte(a.Type) << 4, a.InvokeID, a.Service}
		return append(buf, a.Data...), nil

	case PDUTypeReject:
		return []byte{byte(a.Type) << 4, a.InvokeID, a.Service}, nil

	case PDUTypeAbort:
		first := byte(a.Type) << 4
		if a.Server {
			first |= apduFlagServer
		}
		return []byte{first, a.InvokeID, a.Service}, nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownPduType, a.Type)
	}
}

// DecodeAPDU decodes a wire-form APDU. The returned APDU's Data slice
// aliases the input.
func DecodeAPDU(data []byte) (*APDU, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: empty APDU", ErrTruncatedApdu)
	}
	a := &APDU{Type: PDUType(data[0] >> 4)}
	first := data[0]

	switch a.Type {
	case PDUTypeConfirmedRequest:
		a.Segmented = first&apduFlagSegmented != 0
		a.MoreFollows = first&apduFlagMoreFollows != 0
		a.SegmentedResponseAccepted = first&apduFlagSegmentedAccepted != 0
		if len(data) < 4 {
			return nil, fmt.Errorf("%w: confirmed request header", ErrTruncatedApdu)
		}
		if a.Segmented && len(data) < 6 {
			return nil, fmt.Errorf("%w: segmented request without sequence and window", ErrMalformedApdu)
		}
		a.MaxSegments = data[1] >> 4
		a.MaxAPDU = data[1] & 0x0F
		a.InvokeID = data[2]
		off := 3
		if a.Segmented {
			a.SequenceNum = data[3]
			a.WindowSize = data[4]
			off = 5
		}
		a.Service = data[off]
		a.Data = data[off+1:]

	case PDUTypeUnconfirmedRequest:
		if len(data) < 2 {
			return nil, fmt.Errorf("%w: unconfirmed request header", ErrTruncatedApdu)
		}
		a.Service = data[1]
		a.Data = data[2:]

	case PDUTypeSimpleAck:
		if len(data) < 3 {
			return nil, fmt.Errorf("%w: simple ack", ErrTruncatedApdu)
		}
		a.InvokeID = data[1]
		a.Service = data[2]

	case PDUTypeComplexAck:
		a.Segmented = first&apduFlagSegmented != 0
		a.MoreFollows = first&apduFlagMoreFollows != 0
		if len(data) < 3 {
			return nil, fmt.Errorf("%w: complex ack header", ErrTruncatedApdu)
		}
		if a.Segmented && len(data) < 5 {
			return nil, fmt.Errorf("%w: segmented ack without sequence and window", ErrMalformedApdu)
		}
		a.InvokeID = data[1]
		off := 2
		if a.Segmented {
			a.SequenceNum = data[2]
			a.WindowSize = data[3]
			off = 4
		}
		a.Service = data[off]
		a.Data = data[off+1:]

	case PDUTypeSegmentAck:
		if len(data) < 4 {
			return nil, fmt.Errorf("%w: segment ack", ErrTruncatedApdu)
		}
		a.NegativeAck = first&apduFlagNegativeAck != 0
		a.Server = first&apduFlagServer != 0
		a.InvokeID = data[1]
		a.SequenceNum = data[2]
		a.WindowSize = data[3]

	case PDUTypeError:
		if len(data) < 3 {
			return nil, fmt.Errorf("%w: error PDU", ErrTruncatedApdu)
		}
		a.InvokeID = data[1]
		a.Service = data[2]
		a.Data = data[3:]

	case PDUTypeReject:
		if len(data) < 3 {
			return nil, fmt.Errorf("%w: reject PDU", ErrTruncatedApdu)
		}
		a.InvokeID = data[1]
		a.Service = data[2]

	case PDUTypeAbort:
		if len(data) < 3 {
			return nil, fmt.Errorf("%w: abort PDU", ErrTruncatedApdu)
		}
		a.Server = first&apduFlagServer != 0
		a.InvokeID = data[1]
		a.Service = data[2]

	default:
		return nil, fmt.Errorf("%w: high nibble %d", ErrUnknownPduType, first>>4)
	}
	return a, nil
}

// EncodeErrorPayload encodes the class/code pair carried by an error PDU.
func EncodeErrorPayload(class ErrorClass, code ErrorCode) []byte {
	buf, _ := EncodeAppValue(Enumerated(class))
	codeBuf, _ := EncodeAppValue(Enumerated(code))
	return append(buf, codeBuf...)
}

// DecodeErrorPayload decodes the class/code pair from an error PDU payload.
func DecodeErrorPayload(data []byte) (ErrorClass, ErrorCode, error) {
	classVal, n, err := DecodeAppValue(data)
	if err != nil {
		return 0, 0, err
	}
	class, ok := classVal.(Enumerated)
	if !ok {
		return 0, 0, fmt.Errorf("%w: error class is not enumerated", ErrTypeMismatch)
	}
	codeVal, _, err := DecodeAppValue(data[n:])
	if err != nil {
		return 0, 0, err
	}
	code, ok := codeVal.(Enumerated)
	if !ok {
		return 0, 0, fmt.Errorf("%w: error code is not enumerated", ErrTypeMismatch)
	}
	return ErrorClass(class), ErrorCode(code), nil
}
