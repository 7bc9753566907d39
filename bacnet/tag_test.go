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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeTagCanonical(t *testing.T) {
	tests := []struct {
		name string
		tag  Tag
		want []byte
	}{
		{
			name: "inline number and length",
			tag:  Tag{Number: 2, Class: TagClassApplication, Length: 3},
			want: []byte{0x23},
		},
		{
			name: "context class bit",
			tag:  Tag{Number: 1, Class: TagClassContext, Length: 2},
			want: []byte{0x1A},
		},
		{
			name: "number 14 still inline",
			tag:  Tag{Number: 14, Class: TagClassApplication, Length: 1},
			want: []byte{0xE1},
		},
		{
			name: "number 15 extends",
			tag:  Tag{Number: 15, Class: TagClassContext, Length: 1},
			want: []byte{0xF9, 15},
		},
		{
			name: "number 254 extends",
			tag:  Tag{Number: 254, Class: TagClassContext, Length: 1},
			want: []byte{0xF9, 254},
		},
		{
			name: "length 4 inline",
			tag:  Tag{Number: 0, Class: TagClassApplication, Length: 4},
			want: []byte{0x04},
		},
		{
			name: "length 5 extends to one octet",
			tag:  Tag{Number: 0, Class: TagClassApplication, Length: 5},
			want: []byte{0x05, 5},
		},
		{
			name: "length 253 fits one extension octet",
			tag:  Tag{Number: 0, Class: TagClassApplication, Length: 253},
			want: []byte{0x05, 253},
		},
		{
			name: "length 254 needs 16-bit form",
			tag:  Tag{Number: 0, Class: TagClassApplication, Length: 254},
			want: []byte{0x05, 0xFE, 0x00, 0xFE},
		},
		{
			name: "length 65535 still 16-bit",
			tag:  Tag{Number: 0, Class: TagClassApplication, Length: 65535},
			want: []byte{0x05, 0xFE, 0xFF, 0xFF},
		},
		{
			name: "length 65536 needs 32-bit form",
			tag:  Tag{Number: 0, Class: TagClassApplication, Length: 65536},
			want: []byte{0x05, 0xFF, 0x00, 0x01, 0x00, 0x00},
		},
		{
			name: "extended number and extended length together",
			tag:  Tag{Number: 100, Class: TagClassContext, Length: 300},
			want: []byte{0xFD, 100, 0xFE, 0x01, 0x2C},
		},
		{
			name: "opening tag",
			tag:  Tag{Number: 3, Class: TagClassContext, Opening: true},
			want: []byte{0x3E},
		},
		{
			name: "closing tag",
			tag:  Tag{Number: 3, Class: TagClassContext, Closing: true},
			want: []byte{0x3F},
		},
		{
			name: "opening tag with extended number",
			tag:  Tag{Number: 40, Class: TagClassContext, Opening: true},
			want: []byte{0xFE, 40},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeTag(tt.tag)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTagRoundTrip(t *testing.T) {
	tags := []Tag{
		{Number: 0, Class: TagClassApplication, Length: 0},
		{Number: 7, Class: TagClassApplication, Length: 4},
		{Number: 14, Class: TagClassContext, Length: 4},
		{Number: 15, Class: TagClassApplication, Length: 0},
		{Number: 254, Class: TagClassContext, Length: 5},
		{Number: 3, Class: TagClassApplication, Length: 253},
		{Number: 3, Class: TagClassApplication, Length: 254},
		{Number: 3, Class: TagClassApplication, Length: 70000},
		{Number: 2, Class: TagClassContext, Opening: true},
		{Number: 2, Class: TagClassContext, Closing: true},
	}

	for _, tag := range tags {
		enc := EncodeTag(tag)
		dec, n, err := DecodeTag(enc)
		require.NoError(t, err)
		assert.Equal(t, len(enc), n)
		assert.Equal(t, tag, dec)
	}
}

func TestDecodeTagErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty buffer", nil},
		{"truncated extended number", []byte{0xF1}},
		{"reserved number 255", []byte{0xF1, 0xFF}},
		{"truncated extended length", []byte{0x05}},
		{"truncated 16-bit length", []byte{0x05, 0xFE, 0x01}},
		{"truncated 32-bit length", []byte{0x05, 0xFF, 0x00, 0x01, 0x00}},
		{"application opening form", []byte{0x06}},
		{"application closing form", []byte{0x07}},
		{"extended-number application opening form", []byte{0xF6, 0x20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeTag(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedTag)
		})
	}
}

func TestReadTagValueTruncated(t *testing.T) {
	// Tag advertises 4 value octets but only 2 follow.
	data := []byte{0x24, 0x01, 0x02}
	_, _, _, err := readTagValue(data)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTruncatedData)
}

func TestReadTagValueApplicationBoolean(t *testing.T) {
	// Application boolean true: value lives in the length field, no
	// payload octets follow.
	data := []byte{0x11, 0xAA}
	tag, payload, n, err := readTagValue(data)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Nil(t, payload)
	assert.Equal(t, 1, tag.Length)
}

func TestFindClosingTag(t *testing.T) {
	t.Run("flat", func(t *testing.T) {
		var buf bytes.Buffer
		enc, err := EncodeAppValue(uint64(42))
		require.NoError(t, err)
		buf.Write(enc)
		buf.Write(EncodeClosingTag(3))

		inner, end, err := findClosingTag(buf.Bytes(), 3)
		require.NoError(t, err)
		assert.Equal(t, len(enc), inner)
		assert.Equal(t, buf.Len(), end)
	})

	t.Run("nested same number", func(t *testing.T) {
		var buf bytes.Buffer
		buf.Write(EncodeOpeningTag(3))
		enc, err := EncodeAppValue(uint64(1))
		require.NoError(t, err)
		buf.Write(enc)
		buf.Write(EncodeClosingTag(3))
		innerLen := buf.Len()
		buf.Write(EncodeClosingTag(3))

		inner, end, err := findClosingTag(buf.Bytes(), 3)
		require.NoError(t, err)
		assert.Equal(t, innerLen, inner)
		assert.Equal(t, buf.Len(), end)
	})

	t.Run("unterminated", func(t *testing.T) {
		enc, err := EncodeAppValue(uint64(1))
		require.NoError(t, err)
		_, _, err = findClosingTag(enc, 3)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedTag)
	})
}
