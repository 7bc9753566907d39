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
	"encoding/binary"
	"fmt"
)

// Tag is the initial-octet framing that prefixes every encoded value.
//
// The first octet packs the tag number (bits 7-4), the class bit (bit 3)
// and a length/value/type field (bits 2-0). Tag numbers 15 and above
// spill into a follow-on octet, lengths 5 and above into one, two or four
// follow-on octets. Opening and closing tags delimit constructed
// (nested) encodings and exist only in the context class.
type Tag struct {
	Number  uint8
	Class   TagClass
	Length  int
	Opening bool
	Closing bool
}

// Constructed reports whether the tag opens or closes a constructed encoding.
func (t Tag) Constructed() bool {
	return t.Opening || t.Closing
}

const (
	// tagExtendedNumber in the number nibble signals the number is in the
	// next octet.
	tagExtendedNumber = 0x0F

	// tagExtendedLength in the length field signals the length follows in
	// extension octets.
	tagExtendedLength = 0x05

	lvtOpening = 0x06
	lvtClosing = 0x07

	// length extension markers
	lenFlag16 = 0xFE
	lenFlag32 = 0xFF

	// MaxTagNumber is the largest encodable tag number. 255 is reserved.
	MaxTagNumber = 254
)

// EncodeTag encodes a tag header in canonical (shortest) form. The inline
// number nibble and inline length field are always used when they fit;
// extension octets appear only when the number is 15 or above or the
// length is 5 or above.
func EncodeTag(t Tag) []byte {
	buf := make([]byte, 0, 6)

	first := byte(t.Class) << 3
	if t.Number >= tagExtendedNumber {
		first |= tagExtendedNumber << 4
	} else {
		first |= t.Number << 4
	}

	if t.Opening || t.Closing {
		if t.Opening {
			first |= lvtOpening
		} else {
			first |= lvtClosing
		}
		buf = append(buf, first)
		if t.Number >= tagExtendedNumber {
			buf = append(buf, t.Number)
		}
		return buf
	}

	if t.Length < tagExtendedLength {
		first |= byte(t.Length)
	} else {
		first |= tagExtendedLength
	}
	buf = append(buf, first)

	if t.Number >= tagExtendedNumber {
		buf = append(buf, t.Number)
	}

	if t.Length >= tagExtendedLength {
		switch {
		case t.Length < int(lenFlag16):
			buf = append(buf, byte(t.Length))
		case t.Length <= 0xFFFF:
			buf = append(buf, lenFlag16, byte(t.Length>>8), byte(t.Length))
		default:
			buf = append(buf, lenFlag32,
				byte(t.Length>>24), byte(t.Length>>16), byte(t.Length>>8), byte(t.Length))
		}
	}

	return buf
}

// EncodeOpeningTag encodes an opening tag for constructed data.
func EncodeOpeningTag(number uint8) []byte {
	return EncodeTag(Tag{Number: number, Class: TagClassContext, Opening: true})
}

// EncodeClosingTag encodes a closing tag for constructed data.
func EncodeClosingTag(number uint8) []byte {
	return EncodeTag(Tag{Number: number, Class: TagClassContext, Closing: true})
}

// DecodeTag decodes a tag header and returns the tag along with the number
// of header octets consumed. The value octets, if any, follow the header
// and are not consumed here.
func DecodeTag(data []byte) (Tag, int, error) {
	if len(data) < 1 {
		return Tag{}, 0, fmt.Errorf("%w: empty buffer", ErrMalformedTag)
	}

	t := Tag{
		Number: data[0] >> 4,
		Class:  TagClass((data[0] >> 3) & 0x01),
	}
	lvt := data[0] & 0x07
	consumed := 1

	if t.Number == tagExtendedNumber {
		if len(data) < 2 {
			return Tag{}, 0, fmt.Errorf("%w: truncated extended tag number", ErrMalformedTag)
		}
		if data[1] == 0xFF {
			return Tag{}, 0, fmt.Errorf("%w: reserved tag number 255", ErrMalformedTag)
		}
		t.Number = data[1]
		consumed = 2
	}

	if t.Class == TagClassContext {
		switch lvt {
		case lvtOpening:
			t.Opening = true
			return t, consumed, nil
		case lvtClosing:
			t.Closing = true
			return t, consumed, nil
		}
	} else if lvt > tagExtendedLength {
		// 6 and 7 mark opening and closing tags, valid only in the
		// context class.
		return Tag{}, 0, fmt.Errorf("%w: length type %d in application tag", ErrMalformedTag, lvt)
	}

	if lvt < tagExtendedLength {
		t.Length = int(lvt)
		return t, consumed, nil
	}

	// Extended length.
	if len(data) < consumed+1 {
		return Tag{}, 0, fmt.Errorf("%w: truncated extended length", ErrMalformedTag)
	}
	switch ext := data[consumed]; {
	case ext < lenFlag16:
		t.Length = int(ext)
		consumed++
	case ext == lenFlag16:
		if len(data) < consumed+3 {
			return Tag{}, 0, fmt.Errorf("%w: truncated 16-bit length", ErrMalformedTag)
		}
		t.Length = int(binary.BigEndian.Uint16(data[consumed+1:]))
		consumed += 3
	default:
		if len(data) < consumed+5 {
			return Tag{}, 0, fmt.Errorf("%w: truncated 32-bit length", ErrMalformedTag)
		}
		t.Length = int(binary.BigEndian.Uint32(data[consumed+1:]))
		consumed += 5
	}

	return t, consumed, nil
}

// readTagValue decodes a tag header and checks that the advertised value
// octets are actually present. It returns the tag, the value octets and
// the total number of octets consumed.
func readTagValue(data []byte) (Tag, []byte, int, error) {
	t, n, err := DecodeTag(data)
	if err != nil {
		return Tag{}, nil, 0, err
	}
	if t.Constructed() {
		return t, nil, n, nil
	}
	// An application Boolean carries its value in the length field and has
	// no value octets.
	if t.Class == TagClassApplication && ApplicationTag(t.Number) == TagBoolean {
		return t, nil, n, nil
	}
	if len(data) < n+t.Length {
		return Tag{}, nil, 0, fmt.Errorf("%w: tag %d advertises %d value octets, %d remain",
			ErrTruncatedData, t.Number, t.Length, len(data)-n)
	}
	return t, data[n : n+t.Length], n + t.Length, nil
}

// findClosingTag returns the offset just past the matching closing tag for
// a construct opened with the given number, handling nesting. The offset
// of the closing tag itself is also returned so callers can slice out the
// enclosed octets.
func findClosingTag(data []byte, number uint8) (inner int, end int, err error) {
	depth := 1
	off := 0
	for off < len(data) {
		t, _, n, err := readTagValue(data[off:])
		if err != nil {
			return 0, 0, err
		}
		switch {
		case t.Opening && t.Number == number && t.Class == TagClassContext:
			depth++
		case t.Closing && t.Number == number && t.Class == TagClassContext:
			depth--
			if depth == 0 {
				return off, off + n, nil
			}
		}
		off += n
	}
	return 0, 0, fmt.Errorf("%w: unterminated constructed tag %d", ErrMalformedTag, number)
}
