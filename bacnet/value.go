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
	"math"
)

// A decoded primitive value is one of:
//
//	Null, bool, uint64 (Unsigned), int32 (Signed), float32 (Real),
//	float64 (Double), OctetString, string (CharacterString), BitString,
//	Enumerated, Date, Time, ObjectIdentifier, RawConstructed.
//
// RawConstructed carries the undecoded octets of a constructed or
// otherwise uninterpreted encoding so unknown payloads round-trip
// byte-exact.

// Null is the BACnet Null application value.
type Null struct{}

// OctetString is a raw octet string value.
type OctetString []byte

// Enumerated is an enumeration value; it is distinct from plain unsigned
// so the application tag round-trips.
type Enumerated uint32

// BitString is a bit string with a count of unused bits in the final octet.
type BitString struct {
	UnusedBits uint8
	Data       []byte
}

// Bit returns bit i, counting from the most significant bit of the first
// octet, per the on-wire bit ordering.
func (b BitString) Bit(i int) bool {
	if i < 0 || i >= len(b.Data)*8-int(b.UnusedBits) {
		return false
	}
	return b.Data[i/8]&(0x80>>uint(i%8)) != 0
}

// Date is a BACnet date. Year is the full year; the wire carries year-1900.
// The value 0xFF (and 0xFF+1900 for Year) means "unspecified".
type Date struct {
	Year      uint16
	Month     uint8
	Day       uint8
	DayOfWeek uint8
}

// Time is a BACnet time of day. 0xFF in any field means "unspecified".
type Time struct {
	Hour       uint8
	Minute     uint8
	Second     uint8
	Hundredths uint8
}

// RawConstructed holds the inner octets of a constructed encoding the
// stack does not interpret.
type RawConstructed []byte

const characterSetUTF8 = 0 // ANSI X3.4 / UTF-8

// encodeUnsignedValue emits value in the minimum number of octets.
func encodeUnsignedValue(v uint64) []byte {
	n := 1
	for tmp := v; tmp > 0xFF; tmp >>= 8 {
		n++
	}
	buf := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf
}

// decodeUnsignedValue accepts 1 to 8 octets, zero-extending.
func decodeUnsignedValue(data []byte) (uint64, error) {
	if len(data) == 0 || len(data) > 8 {
		return 0, fmt.Errorf("%w: unsigned value of %d octets", ErrTruncatedData, len(data))
	}
	var v uint64
	for _, b := range data {
		v = v<<8 | uint64(b)
	}
	return v, nil
}

// encodeSignedValue emits value in the minimum number of octets that
// preserves the sign bit.
func encodeSignedValue(v int32) []byte {
	switch {
	case v >= -0x80 && v < 0x80:
		return []byte{byte(v)}
	case v >= -0x8000 && v < 0x8000:
		return []byte{byte(v >> 8), byte(v)}
	case v >= -0x800000 && v < 0x800000:
		return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	default:
		return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	}
}

// decodeSignedValue accepts 1 to 4 octets, sign-extending.
func decodeSignedValue(data []byte) (int32, error) {
	if len(data) == 0 || len(data) > 4 {
		return 0, fmt.Errorf("%w: signed value of %d octets", ErrTruncatedData, len(data))
	}
	v := int32(int8(data[0]))
	for _, b := range data[1:] {
		v = v<<8 | int32(b)
	}
	return v, nil
}

func encodeRealValue(v float32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, math.Float32bits(v))
	return buf
}

func encodeDoubleValue(v float64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}

func encodeObjectIDValue(oid ObjectIdentifier) ([]byte, error) {
	if !oid.Valid() {
		return nil, fmt.Errorf("%w: type %d instance %d", ErrInvalidObjectIdentifier, oid.Type, oid.Instance)
	}
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, oid.Encode())
	return buf, nil
}

func decodeObjectIDValue(data []byte) (ObjectIdentifier, error) {
	if len(data) != 4 {
		return ObjectIdentifier{}, fmt.Errorf("%w: object identifier of %d octets", ErrInvalidObjectIdentifier, len(data))
	}
	return DecodeObjectIdentifier(binary.BigEndian.Uint32(data)), nil
}

func encodeBitStringValue(bs BitString) ([]byte, error) {
	if bs.UnusedBits > 7 {
		return nil, fmt.Errorf("%w: %d unused bits", ErrInvalidBitString, bs.UnusedBits)
	}
	if len(bs.Data) == 0 && bs.UnusedBits != 0 {
		return nil, fmt.Errorf("%w: unused bits with empty payload", ErrInvalidBitString)
	}
	buf := make([]byte, 1+len(bs.Data))
	buf[0] = bs.UnusedBits
	copy(buf[1:], bs.Data)
	return buf, nil
}

func decodeBitStringValue(data []byte) (BitString, error) {
	if len(data) < 1 {
		return BitString{}, fmt.Errorf("%w: missing unused-bits octet", ErrInvalidBitString)
	}
	unused := data[0]
	if unused > 7 {
		return BitString{}, fmt.Errorf("%w: %d unused bits", ErrInvalidBitString, unused)
	}
	if len(data) == 1 && unused != 0 {
		return BitString{}, fmt.Errorf("%w: unused bits with empty payload", ErrInvalidBitString)
	}
	bs := BitString{UnusedBits: unused}
	if len(data) > 1 {
		bs.Data = append([]byte(nil), data[1:]...)
	}
	return bs, nil
}

func encodeCharacterStringValue(s string) []byte {
	buf := make([]byte, 1+len(s))
	buf[0] = characterSetUTF8
	copy(buf[1:], s)
	return buf
}

func decodeCharacterStringValue(data []byte) (string, error) {
	if len(data) < 1 {
		return "", fmt.Errorf("%w: missing character set octet", ErrTruncatedData)
	}
	if data[0] != characterSetUTF8 {
		return "", fmt.Errorf("%w: character set %d", ErrTypeMismatch, data[0])
	}
	return string(data[1:]), nil
}

func encodeDateValue(d Date) []byte {
	year := byte(0xFF)
	if d.Year != 0xFF+1900 {
		year = byte(d.Year - 1900)
	}
	return []byte{year, d.Month, d.Day, d.DayOfWeek}
}

func decodeDateValue(data []byte) (Date, error) {
	if len(data) != 4 {
		return Date{}, fmt.Errorf("%w: date of %d octets", ErrTruncatedData, len(data))
	}
	return Date{
		Year:      uint16(data[0]) + 1900,
		Month:     data[1],
		Day:       data[2],
		DayOfWeek: data[3],
	}, nil
}

func encodeTimeValue(t Time) []byte {
	return []byte{t.Hour, t.Minute, t.Second, t.Hundredths}
}

func decodeTimeValue(data []byte) (Time, error) {
	if len(data) != 4 {
		return Time{}, fmt.Errorf("%w: time of %d octets", ErrTruncatedData, len(data))
	}
	return Time{Hour: data[0], Minute: data[1], Second: data[2], Hundredths: data[3]}, nil
}

// appTagFor returns the application tag for a value.
func appTagFor(v interface{}) (ApplicationTag, error) {
	switch v.(type) {
	case Null:
		return TagNull, nil
	case bool:
		return TagBoolean, nil
	case uint64:
		return TagUnsignedInt, nil
	case int32:
		return TagSignedInt, nil
	case float32:
		return TagReal, nil
	case float64:
		return TagDouble, nil
	case OctetString:
		return TagOctetString, nil
	case string:
		return TagCharacterString, nil
	case BitString:
		return TagBitString, nil
	case Enumerated:
		return TagEnumerated, nil
	case Date:
		return TagDate, nil
	case Time:
		return TagTime, nil
	case ObjectIdentifier:
		return TagObjectID, nil
	default:
		return 0, fmt.Errorf("%w: unsupported value type %T", ErrTypeMismatch, v)
	}
}

// encodeValuePayload produces the value octets without a tag header.
func encodeValuePayload(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case Null:
		return nil, nil
	case bool:
		// Application boolean has no payload; context boolean has a
		// single octet. Callers pick the representation.
		if val {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case uint64:
		return encodeUnsignedValue(val), nil
	case int32:
		return encodeSignedValue(val), nil
	case float32:
		return encodeRealValue(val), nil
	case float64:
		return encodeDoubleValue(val), nil
	case OctetString:
		return val, nil
	case string:
		return encodeCharacterStringValue(val), nil
	case BitString:
		return encodeBitStringValue(val)
	case Enumerated:
		return encodeUnsignedValue(uint64(val)), nil
	case Date:
		return encodeDateValue(val), nil
	case Time:
		return encodeTimeValue(val), nil
	case ObjectIdentifier:
		return encodeObjectIDValue(val)
	default:
		return nil, fmt.Errorf("%w: unsupported value type %T", ErrTypeMismatch, v)
	}
}

// decodeValuePayload interprets value octets according to an application tag.
func decodeValuePayload(tag ApplicationTag, data []byte) (interface{}, error) {
	switch tag {
	case TagNull:
		if len(data) != 0 {
			return nil, fmt.Errorf("%w: null with %d value octets", ErrTypeMismatch, len(data))
		}
		return Null{}, nil
	case TagUnsignedInt:
		return decodeUnsignedValue(data)
	case TagSignedInt:
		return decodeSignedValue(data)
	case TagReal:
		if len(data) != 4 {
			return nil, fmt.Errorf("%w: real of %d octets", ErrTruncatedData, len(data))
		}
		return math.Float32frombits(binary.BigEndian.Uint32(data)), nil
	case TagDouble:
		if len(data) != 8 {
			return nil, fmt.Errorf("%w: double of %d octets", ErrTruncatedData, len(data))
		}
		return math.Float64frombits(binary.BigEndian.Uint64(data)), nil
	case TagOctetString:
		return OctetString(append([]byte{}, data...)), nil
	case TagCharacterString:
		return decodeCharacterStringValue(data)
	case TagBitString:
		return decodeBitStringValue(data)
	case TagEnumerated:
		v, err := decodeUnsignedValue(data)
		if err != nil {
			return nil, err
		}
		if v > math.MaxUint32 {
			return nil, fmt.Errorf("%w: enumerated out of range", ErrTypeMismatch)
		}
		return Enumerated(v), nil
	case TagDate:
		return decodeDateValue(data)
	case TagTime:
		return decodeTimeValue(data)
	case TagObjectID:
		return decodeObjectIDValue(data)
	default:
		return nil, fmt.Errorf("%w: application tag %d", ErrTypeMismatch, tag)
	}
}

// EncodeAppValue encodes a value with its application tag header.
func EncodeAppValue(v interface{}) ([]byte, error) {
	tag, err := appTagFor(v)
	if err != nil {
		return nil, err
	}

	// Boolean carries its value in the tag's length field.
	if b, ok := v.(bool); ok {
		length := 0
		if b {
			length = 1
		}
		return EncodeTag(Tag{Number: uint8(tag), Class: TagClassApplication, Length: length}), nil
	}

	payload, err := encodeValuePayload(v)
	if err != nil {
		return nil, err
	}
	out := EncodeTag(Tag{Number: uint8(tag), Class: TagClassApplication, Length: len(payload)})
	return append(out, payload...), nil
}

// DecodeAppValue decodes one application-tagged value, returning the value
// and the number of octets consumed.
func DecodeAppValue(data []byte) (interface{}, int, error) {
	t, payload, n, err := readTagValue(data)
	if err != nil {
		return nil, 0, err
	}
	if t.Class != TagClassApplication {
		return nil, 0, fmt.Errorf("%w: expected application tag, got context tag %d", ErrTypeMismatch, t.Number)
	}
	if t.Constructed() {
		return nil, 0, fmt.Errorf("%w: unexpected constructed application tag", ErrMalformedTag)
	}

	if ApplicationTag(t.Number) == TagBoolean {
		switch t.Length {
		case 0:
			return false, n, nil
		case 1:
			return true, n, nil
		default:
			return nil, 0, fmt.Errorf("%w: boolean value %d", ErrTypeMismatch, t.Length)
		}
	}

	v, err := decodeValuePayload(ApplicationTag(t.Number), payload)
	if err != nil {
		return nil, 0, err
	}
	return v, n, nil
}

// EncodeContextValue encodes a value under a context tag. Booleans occupy
// one value octet in the context class.
func EncodeContextValue(number uint8, v interface{}) ([]byte, error) {
	payload, err := encodeValuePayload(v)
	if err != nil {
		return nil, err
	}
	out := EncodeTag(Tag{Number: number, Class: TagClassContext, Length: len(payload)})
	return append(out, payload...), nil
}

// DecodeContextValue decodes the value octets of a context tag as the
// given application type. The context class strips type information, so
// the caller supplies the expected type from its schema.
func DecodeContextValue(tag ApplicationTag, payload []byte) (interface{}, error) {
	if tag == TagBoolean {
		if len(payload) != 1 {
			return nil, fmt.Errorf("%w: context boolean of %d octets", ErrTypeMismatch, len(payload))
		}
		return payload[0] != 0, nil
	}
	return decodeValuePayload(tag, payload)
}
