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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeConfirmedRequestWire(t *testing.T) {
	req := &ReadPropertyRequest{
		ObjectID: ObjectIdentifier{Type: ObjectTypeAnalogInput, Instance: 1},
		Property: PropertyPresentValue,
	}
	data, err := req.Encode()
	require.NoError(t, err)

	apdu := &APDU{
		Type:                      PDUTypeConfirmedRequest,
		SegmentedResponseAccepted: true,
		MaxSegments:               0x07,
		MaxAPDU:                   0x05,
		InvokeID:                  15,
		Service:                   uint8(ServiceReadProperty),
		Data:                      data,
	}
	wire, err := EncodeAPDU(apdu)
	require.NoError(t, err)

	// 0x02: unsegmented, segmented-response-accepted.
	// 0x75: unlimited segments, 1476-octet APDU.
	assert.Equal(t, byte(0x02), wire[0])
	assert.Equal(t, byte(0x75), wire[1])
	assert.Equal(t, byte(15), wire[2])
	assert.Equal(t, byte(ServiceReadProperty), wire[3])

	back, err := DecodeAPDU(wire)
	require.NoError(t, err)
	assert.Equal(t, apdu.InvokeID, back.InvokeID)
	assert.Equal(t, apdu.Service, back.Service)
	assert.False(t, back.Segmented)
	assert.True(t, back.SegmentedResponseAccepted)
	assert.Equal(t, data, back.Data)
}

func TestAPDURoundTrip(t *testing.T) {
	tests := []struct {
		name string
		apdu *APDU
	}{
		{
			name: "confirmed request",
			apdu: &APDU{
				Type:        PDUTypeConfirmedRequest,
				MaxSegments: 2,
				MaxAPDU:     5,
				InvokeID:    7,
				Service:     uint8(ServiceWriteProperty),
				Data:        []byte{0x01, 0x02},
			},
		},
		{
			name: "segmented confirmed request",
			apdu: &APDU{
				Type:                      PDUTypeConfirmedRequest,
				Segmented:                 true,
				MoreFollows:               true,
				SegmentedResponseAccepted: true,
				MaxSegments:               4,
				MaxAPDU:                   3,
				InvokeID:                  9,
				SequenceNum:               2,
				WindowSize:                4,
				Service:                   uint8(ServiceReadProperty),
				Data:                      []byte{0xAA},
			},
		},
		{
			name: "unconfirmed request",
			apdu: &APDU{
				Type:    PDUTypeUnconfirmedRequest,
				Service: uint8(ServiceWhoIs),
			},
		},
		{
			name: "simple ack",
			apdu: &APDU{
				Type:     PDUTypeSimpleAck,
				InvokeID: 3,
				Service:  uint8(ServiceWriteProperty),
			},
		},
		{
			name: "complex ack",
			apdu: &APDU{
				Type:     PDUTypeComplexAck,
				InvokeID: 4,
				Service:  uint8(ServiceReadProperty),
				Data:     []byte{0x0C},
			},
		},
		{
			name: "segmented complex ack",
			apdu: &APDU{
				Type:        PDUTypeComplexAck,
				Segmented:   true,
				MoreFollows: true,
				InvokeID:    4,
				SequenceNum: 1,
				WindowSize:  1,
				Service:     uint8(ServiceReadProperty),
				Data:        []byte{0x0C, 0x0D},
			},
		},
		{
			name: "segment ack",
			apdu: &APDU{
				Type:        PDUTypeSegmentAck,
				NegativeAck: true,
				Server:      true,
				InvokeID:    4,
				SequenceNum: 6,
				WindowSize:  1,
			},
		},
		{
			name: "error",
			apdu: &APDU{
				Type:     PDUTypeError,
				InvokeID: 5,
				Service:  uint8(ServiceReadProperty),
				Data:     EncodeErrorPayload(ErrorClassProperty, ErrorCodeUnknownProperty),
			},
		},
		{
			name: "reject",
			apdu: &APDU{
				Type:     PDUTypeReject,
				InvokeID: 6,
				Service:  uint8(RejectReasonUnrecognizedService),
			},
		},
		{
			name: "abort from server",
			apdu: &APDU{
				Type:     PDUTypeAbort,
				Server:   true,
				InvokeID: 7,
				Service:  uint8(AbortReasonSegmentationNotSupported),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire, err := EncodeAPDU(tt.apdu)
			require.NoError(t, err)

			back, err := DecodeAPDU(wire)
			require.NoError(t, err)

			if tt.apdu.Data == nil {
				tt.apdu.Data = back.Data
			}
			assert.Equal(t, tt.apdu, back)
		})
	}
}

func TestDecodeAPDUTruncated(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"confirmed request header", []byte{0x00, 0x75, 0x01}},
		{"segmented confirmed request header", []byte{0x08, 0x75, 0x01}},
		{"unconfirmed request header", []byte{0x10}},
		{"simple ack", []byte{0x20, 0x01}},
		{"complex ack header", []byte{0x30, 0x01}},
		{"segmented complex ack header", []byte{0x38, 0x01}},
		{"segment ack", []byte{0x40, 0x01, 0x00}},
		{"error", []byte{0x50, 0x01}},
		{"reject", []byte{0x60, 0x01}},
		{"abort", []byte{0x70, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeAPDU(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTruncatedApdu)
		})
	}
}

func TestDecodeAPDUSegmentedMissingHeader(t *testing.T) {
	// The segmented flag is set but the sequence and window octets are
	// missing: malformed, not merely truncated.
	tests := []struct {
		name string
		data []byte
	}{
		{"confirmed request", []byte{0x08, 0x75, 0x01, 0x00, 0x01}},
		{"complex ack", []byte{0x38, 0x01, 0x00, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeAPDU(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedApdu)
			assert.NotErrorIs(t, err, ErrTruncatedApdu)
		})
	}
}

func TestDecodeAPDUUnknownType(t *testing.T) {
	_, err := DecodeAPDU([]byte{0x80, 0x00, 0x00})
	assert.ErrorIs(t, err, ErrUnknownPduType)

	_, err = EncodeAPDU(&APDU{Type: PDUType(8)})
	assert.ErrorIs(t, err, ErrUnknownPduType)
}

func TestEncodeAPDUFirstOctet(t *testing.T) {
	// The PDU type occupies the high nibble of the first octet.
	tests := []struct {
		name  string
		apdu  *APDU
		first byte
	}{
		{"confirmed request", &APDU{Type: PDUTypeConfirmedRequest, InvokeID: 1, Service: 12}, 0x00},
		{"unconfirmed request", &APDU{Type: PDUTypeUnconfirmedRequest, Service: 8}, 0x10},
		{"simple ack", &APDU{Type: PDUTypeSimpleAck, InvokeID: 1, Service: 15}, 0x20},
		{"complex ack", &APDU{Type: PDUTypeComplexAck, InvokeID: 1, Service: 12}, 0x30},
		{"segment ack", &APDU{Type: PDUTypeSegmentAck, InvokeID: 1}, 0x40},
		{"error", &APDU{Type: PDUTypeError, InvokeID: 1, Service: 12}, 0x50},
		{"reject", &APDU{Type: PDUTypeReject, InvokeID: 1, Service: 9}, 0x60},
		{"abort", &APDU{Type: PDUTypeAbort, InvokeID: 1, Service: 4}, 0x70},
		{"abort from server", &APDU{Type: PDUTypeAbort, Server: true, InvokeID: 1, Service: 4}, 0x71},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire, err := EncodeAPDU(tt.apdu)
			require.NoError(t, err)
			assert.Equal(t, tt.first, wire[0])

			back, err := DecodeAPDU(wire)
			require.NoError(t, err)
			assert.Equal(t, tt.apdu.Type, back.Type)
		})
	}
}

func TestErrorPayloadRoundTrip(t *testing.T) {
	payload := EncodeErrorPayload(ErrorClassObject, ErrorCodeUnknownObject)
	class, code, err := DecodeErrorPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, ErrorClassObject, class)
	assert.Equal(t, ErrorCodeUnknownObject, code)

	_, _, err = DecodeErrorPayload([]byte{0x91})
	assert.Error(t, err)
}
