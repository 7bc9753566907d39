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

func TestAppValueRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
	}{
		{"null", Null{}},
		{"boolean false", false},
		{"boolean true", true},
		{"unsigned small", uint64(42)},
		{"unsigned one octet boundary", uint64(255)},
		{"unsigned two octets", uint64(256)},
		{"unsigned large", uint64(0x01020304050607)},
		{"signed zero", int32(0)},
		{"signed negative", int32(-1)},
		{"signed two octets", int32(-129)},
		{"signed four octets", int32(-8388609)},
		{"real", float32(22.5)},
		{"double", float64(-273.15)},
		{"octet string", OctetString{0xDE, 0xAD, 0xBE, 0xEF}},
		{"empty octet string", OctetString{}},
		{"character string", "room 101"},
		{"empty character string", ""},
		{"bit string", BitString{UnusedBits: 3, Data: []byte{0xA8}}},
		{"empty bit string", BitString{}},
		{"enumerated", Enumerated(85)},
		{"date", Date{Year: 2024, Month: 6, Day: 15, DayOfWeek: 6}},
		{"wildcard date", Date{Year: 0xFF + 1900, Month: 0xFF, Day: 0xFF, DayOfWeek: 0xFF}},
		{"time", Time{Hour: 13, Minute: 45, Second: 30, Hundredths: 99}},
		{"object identifier", ObjectIdentifier{Type: ObjectTypeAnalogInput, Instance: 17}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := EncodeAppValue(tt.value)
			require.NoError(t, err)

			dec, n, err := DecodeAppValue(enc)
			require.NoError(t, err)
			assert.Equal(t, len(enc), n)
			assert.Equal(t, tt.value, dec)
		})
	}
}

func TestAppBooleanEncoding(t *testing.T) {
	// The application boolean carries its value in the tag length field
	// and occupies exactly one octet.
	encTrue, err := EncodeAppValue(true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x11}, encTrue)

	encFalse, err := EncodeAppValue(false)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x10}, encFalse)
}

func TestContextBooleanEncoding(t *testing.T) {
	// Context-tagged booleans carry one value octet, unlike the
	// application form.
	enc, err := EncodeContextValue(2, true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x29, 0x01}, enc)

	v, err := DecodeContextValue(TagBoolean, []byte{0x01})
	require.NoError(t, err)
	assert.Equal(t, true, v)

	_, err = DecodeContextValue(TagBoolean, []byte{0x01, 0x00})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestUnsignedShortestForm(t *testing.T) {
	tests := []struct {
		value uint64
		want  []byte
	}{
		{0, []byte{0x00}},
		{255, []byte{0xFF}},
		{256, []byte{0x01, 0x00}},
		{65535, []byte{0xFF, 0xFF}},
		{65536, []byte{0x01, 0x00, 0x00}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, encodeUnsignedValue(tt.value))
	}
}

func TestSignedShortestForm(t *testing.T) {
	tests := []struct {
		value int32
		want  []byte
	}{
		{0, []byte{0x00}},
		{-1, []byte{0xFF}},
		{127, []byte{0x7F}},
		{128, []byte{0x00, 0x80}},
		{-128, []byte{0x80}},
		{-129, []byte{0xFF, 0x7F}},
		{-8388608, []byte{0x80, 0x00, 0x00}},
		{-8388609, []byte{0xFF, 0x7F, 0xFF, 0xFF}},
	}
	for _, tt := range tests {
		got := encodeSignedValue(tt.value)
		assert.Equal(t, tt.want, got, "value %d", tt.value)

		back, err := decodeSignedValue(got)
		require.NoError(t, err)
		assert.Equal(t, tt.value, back)
	}
}

func TestDecodeAppValueErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"null with payload", []byte{0x01, 0x00}, ErrTypeMismatch},
		{"boolean length 2", []byte{0x12, 0x00, 0x00}, ErrTypeMismatch},
		{"real of wrong size", []byte{0x42, 0x00, 0x00}, ErrTruncatedData},
		{"context tag where app expected", []byte{0x09, 0x01}, ErrTypeMismatch},
		{"unsupported reserved tag", []byte{0xD1, 0x00}, ErrTypeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeAppValue(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBitStringValidation(t *testing.T) {
	_, err := encodeBitStringValue(BitString{UnusedBits: 8, Data: []byte{0x00}})
	assert.ErrorIs(t, err, ErrInvalidBitString)

	_, err = encodeBitStringValue(BitString{UnusedBits: 1})
	assert.ErrorIs(t, err, ErrInvalidBitString)

	_, err = decodeBitStringValue(nil)
	assert.ErrorIs(t, err, ErrInvalidBitString)
}

func TestBitStringBit(t *testing.T) {
	// 10101 with 3 unused bits in the final octet.
	bs := BitString{UnusedBits: 3, Data: []byte{0xA8}}
	assert.True(t, bs.Bit(0))
	assert.False(t, bs.Bit(1))
	assert.True(t, bs.Bit(2))
	assert.False(t, bs.Bit(3))
	assert.True(t, bs.Bit(4))
	assert.False(t, bs.Bit(5), "out of range reads as false")
}

func TestCharacterStringCharset(t *testing.T) {
	_, err := decodeCharacterStringValue([]byte{4, 'a'})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestObjectIdentifierEncoding(t *testing.T) {
	oid := ObjectIdentifier{Type: ObjectTypeDevice, Instance: 1234}
	enc, err := encodeObjectIDValue(oid)
	require.NoError(t, err)
	require.Len(t, enc, 4)

	back, err := decodeObjectIDValue(enc)
	require.NoError(t, err)
	assert.Equal(t, oid, back)

	_, err = encodeObjectIDValue(ObjectIdentifier{Type: ObjectTypeDevice, Instance: MaxObjectInstance + 1})
	assert.ErrorIs(t, err, ErrInvalidObjectIdentifier)
}
