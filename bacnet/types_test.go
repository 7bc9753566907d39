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

func TestObjectIdentifierPacking(t *testing.T) {
	tests := []struct {
		name string
		oid  ObjectIdentifier
	}{
		{"analog input", ObjectIdentifier{Type: ObjectTypeAnalogInput, Instance: 0}},
		{"device", ObjectIdentifier{Type: ObjectTypeDevice, Instance: 1234}},
		{"max instance", ObjectIdentifier{Type: ObjectTypeDevice, Instance: MaxObjectInstance}},
		{"max type", ObjectIdentifier{Type: MaxObjectType, Instance: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packed := tt.oid.Encode()
			assert.Equal(t, tt.oid, DecodeObjectIdentifier(packed))
		})
	}
}

func TestObjectIdentifierValid(t *testing.T) {
	assert.True(t, ObjectIdentifier{Type: ObjectTypeDevice, Instance: MaxObjectInstance}.Valid())
	assert.False(t, ObjectIdentifier{Type: ObjectTypeDevice, Instance: MaxObjectInstance + 1}.Valid())
	assert.False(t, ObjectIdentifier{Type: MaxObjectType + 1, Instance: 0}.Valid())
}

func TestObjectIdentifierString(t *testing.T) {
	oid := ObjectIdentifier{Type: ObjectTypeAnalogInput, Instance: 5}
	assert.Equal(t, "analog-input:5", oid.String())
}

func TestParseObjectType(t *testing.T) {
	ot, ok := ParseObjectType("analog-input")
	require.True(t, ok)
	assert.Equal(t, ObjectTypeAnalogInput, ot)

	_, ok = ParseObjectType("not-a-type")
	assert.False(t, ok)
}

func TestParsePropertyIdentifier(t *testing.T) {
	prop, ok := ParsePropertyIdentifier("present-value")
	require.True(t, ok)
	assert.Equal(t, PropertyPresentValue, prop)

	prop, ok = ParsePropertyIdentifier("pv")
	require.True(t, ok)
	assert.Equal(t, PropertyPresentValue, prop)

	_, ok = ParsePropertyIdentifier("bogus")
	assert.False(t, ok)
}

func TestMaxAPDUCodes(t *testing.T) {
	tests := []struct {
		code   uint8
		length uint16
	}{
		{0, 50},
		{1, 128},
		{2, 206},
		{3, 480},
		{4, 1024},
		{5, 1476},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.length, MaxAPDUForCode(tt.code))
		assert.Equal(t, tt.code, CodeForMaxAPDU(tt.length))
	}

	// Unknown codes fall back to the protocol maximum.
	assert.Equal(t, uint16(MaxAPDULength), MaxAPDUForCode(9))

	// In-between limits round down.
	assert.Equal(t, uint8(2), CodeForMaxAPDU(400))
	assert.Equal(t, uint8(0), CodeForMaxAPDU(60))
}

func TestMaxSegmentsCode(t *testing.T) {
	assert.Equal(t, uint8(0), MaxSegmentsCode(0))
	assert.Equal(t, uint8(1), MaxSegmentsCode(2))
	assert.Equal(t, uint8(4), MaxSegmentsCode(16))
	assert.Equal(t, uint8(6), MaxSegmentsCode(64))
	assert.Equal(t, uint8(7), MaxSegmentsCode(65))
}

func TestSegmentationCapabilities(t *testing.T) {
	assert.True(t, SegmentationBoth.AcceptsSegmentedResponse())
	assert.True(t, SegmentationReceive.AcceptsSegmentedResponse())
	assert.False(t, SegmentationTransmit.AcceptsSegmentedResponse())
	assert.False(t, SegmentationNone.AcceptsSegmentedResponse())

	assert.True(t, SegmentationBoth.TransmitsSegmented())
	assert.True(t, SegmentationTransmit.TransmitsSegmented())
	assert.False(t, SegmentationReceive.TransmitsSegmented())
	assert.False(t, SegmentationNone.TransmitsSegmented())
}

func TestStatusFlagsFromBitString(t *testing.T) {
	// in-alarm and out-of-service set: 1001 with 4 unused bits.
	flags := StatusFlagsFromBitString(BitString{UnusedBits: 4, Data: []byte{0x90}})
	assert.True(t, flags.InAlarm)
	assert.False(t, flags.Fault)
	assert.False(t, flags.Overridden)
	assert.True(t, flags.OutOfService)
}
