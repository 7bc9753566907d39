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

// ServiceRole distinguishes the request and acknowledgement payloads of a
// confirmed service, which carry different parameter lists.
type ServiceRole int

const (
	RoleRequest ServiceRole = iota
	RoleAck
)

// ServiceParameter is one context-tagged parameter of a service payload.
// Primitive parameters hold a decoded value; constructed parameters hold
// the enclosed octets as RawConstructed.
type ServiceParameter struct {
	TagNumber uint8
	Value     interface{}
}

// paramSpec describes one slot of a service parameter list. Parameters are
// encoded in spec order; optional slots may be absent on the wire.
type paramSpec struct {
	Tag         uint8
	Type        ApplicationTag
	Optional    bool
	Constructed bool
}

var confirmedRequestSchemas = map[ConfirmedServiceChoice][]paramSpec{
	ServiceReadProperty: {
		{Tag: 0, Type: TagObjectID},
		{Tag: 1, Type: TagEnumerated},
		{Tag: 2, Type: TagUnsignedInt, Optional: true},
	},
	ServiceWriteProperty: {
		{Tag: 0, Type: TagObjectID},
		{Tag: 1, Type: TagEnumerated},
		{Tag: 2, Type: TagUnsignedInt, Optional: true},
		{Tag: 3, Constructed: true},
		{Tag: 4, Type: TagUnsignedInt, Optional: true},
	},
	ServiceSubscribeCOV: {
		{Tag: 0, Type: TagUnsignedInt},
		{Tag: 1, Type: TagObjectID},
		{Tag: 2, Type: TagBoolean, Optional: true},
		{Tag: 3, Type: TagUnsignedInt, Optional: true},
	},
}

var confirmedAckSchemas = map[ConfirmedServiceChoice][]paramSpec{
	ServiceReadProperty: {
		{Tag: 0, Type: TagObjectID},
		{Tag: 1, Type: TagEnumerated},
		{Tag: 2, Type: TagUnsignedInt, Optional: true},
		{Tag: 3, Constructed: true},
	},
}

var unconfirmedSchemas = map[UnconfirmedServiceChoice][]paramSpec{
	ServiceWhoIs: {
		{Tag: 0, Type: TagUnsignedInt, Optional: true},
		{Tag: 1, Type: TagUnsignedInt, Optional: true},
	},
	ServiceUnconfirmedCOVNotification: {
		{Tag: 0, Type: TagUnsignedInt},
		{Tag: 1, Type: TagObjectID},
		{Tag: 2, Type: TagObjectID},
		{Tag: 3, Type: TagUnsignedInt},
		{Tag: 4, Constructed: true},
	},
}

func confirmedSchema(service ConfirmedServiceChoice, role ServiceRole) ([]paramSpec, bool) {
	if role == RoleAck {
		s, ok := confirmedAckSchemas[service]
		return s, ok
	}
	s, ok := confirmedRequestSchemas[service]
	return s, ok
}

// HasConfirmedSchema reports whether a parameter schema is registered for
// the service and role. Payloads of services without a schema pass through
// as raw octets.
func HasConfirmedSchema(service ConfirmedServiceChoice, role ServiceRole) bool {
	_, ok := confirmedSchema(service, role)
	return ok
}

func findParam(params []ServiceParameter, tag uint8) (ServiceParameter, bool) {
	for _, p := range params {
		if p.TagNumber == tag {
			return p, true
		}
	}
	return ServiceParameter{}, false
}

func encodeWithSchema(schema []paramSpec, params []ServiceParameter) ([]byte, error) {
	var out []byte
	for _, spec := range schema {
		p, ok := findParam(params, spec.Tag)
		if !ok {
			if spec.Optional {
				continue
			}
			return nil, fmt.Errorf("%w: context tag %d", ErrMissingParameter, spec.Tag)
		}
		if spec.Constructed {
			out = append(out, EncodeOpeningTag(spec.Tag)...)
			switch v := p.Value.(type) {
			case RawConstructed:
				out = append(out, v...)
			default:
				enc, err := EncodeAppValue(p.Value)
				if err != nil {
					return nil, err
				}
				out = append(out, enc...)
			}
			out = append(out, EncodeClosingTag(spec.Tag)...)
			continue
		}
		if tag, err := appTagFor(p.Value); err != nil || tag != spec.Type {
			return nil, fmt.Errorf("%w: context tag %d wants %d, got %T", ErrTypeMismatch, spec.Tag, spec.Type, p.Value)
		}
		enc, err := EncodeContextValue(spec.Tag, p.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, enc...)
	}
	return out, nil
}

func decodeWithSchema(schema []paramSpec, data []byte) ([]ServiceParameter, error) {
	var params []ServiceParameter
	off := 0
	for _, spec := range schema {
		if off >= len(data) {
			if spec.Optional {
				continue
			}
			return nil, fmt.Errorf("%w: context tag %d", ErrMissingParameter, spec.Tag)
		}
		t, n, err := DecodeTag(data[off:])
		if err != nil {
			return nil, err
		}
		if t.Class != TagClassContext || t.Number != spec.Tag {
			if spec.Optional {
				continue
			}
			return nil, fmt.Errorf("%w: context tag %d, found %d", ErrUnexpectedTag, spec.Tag, t.Number)
		}
		if spec.Constructed {
			if !t.Opening {
				return nil, fmt.Errorf("%w: context tag %d is not an opening tag", ErrUnexpectedTag, spec.Tag)
			}
			inner, end, err := findClosingTag(data[off+n:], spec.Tag)
			if err != nil {
				return nil, err
			}
			raw := RawConstructed(append([]byte(nil), data[off+n:off+n+inner]...))
			params = append(params, ServiceParameter{TagNumber: spec.Tag, Value: raw})
			off += n + end
			continue
		}
		if t.Opening || t.Closing {
			return nil, fmt.Errorf("%w: context tag %d is constructed", ErrUnexpectedTag, spec.Tag)
		}
		_, payload, consumed, err := readTagValue(data[off:])
		if err != nil {
			return nil, err
		}
		v, err := DecodeContextValue(spec.Type, payload)
		if err != nil {
			return nil, err
		}
		params = append(params, ServiceParameter{TagNumber: spec.Tag, Value: v})
		off += consumed
	}
	if off != len(data) {
		return nil, fmt.Errorf("%w: %d trailing octets after parameter list", ErrUnexpectedTag, len(data)-off)
	}
	return params, nil
}

// EncodeConfirmedParameters encodes a parameter list for a confirmed
// service. Services without a registered schema are rejected; encode their
// payloads as raw octets on the APDU directly.
func EncodeConfirmedParameters(service ConfirmedServiceChoice, role ServiceRole, params []ServiceParameter) ([]byte, error) {
	schema, ok := confirmedSchema(service, role)
	if !ok {
		return nil, fmt.Errorf("%w: no schema for service %s", ErrTypeMismatch, service)
	}
	return encodeWithSchema(schema, params)
}

// DecodeConfirmedParameters decodes the parameter list of a confirmed
// service payload according to its schema.
func DecodeConfirmedParameters(service ConfirmedServiceChoice, role ServiceRole, data []byte) ([]ServiceParameter, error) {
	schema, ok := confirmedSchema(service, role)
	if !ok {
		return nil, fmt.Errorf("%w: no schema for service %s", ErrTypeMismatch, service)
	}
	return decodeWithSchema(schema, data)
}

// ReadPropertyRequest asks a device for one property of one object.
type ReadPropertyRequest struct {
	ObjectID   ObjectIdentifier
	Property   PropertyIdentifier
	ArrayIndex *uint32
}

func (r *ReadPropertyRequest) Encode() ([]byte, error) {
	params := []ServiceParameter{
		{TagNumber: 0, Value: r.ObjectID},
		{TagNumber: 1, Value: Enumerated(r.Property)},
	}
	if r.ArrayIndex != nil {
		params = append(params, ServiceParameter{TagNumber: 2, Value: uint64(*r.ArrayIndex)})
	}
	return encodeWithSchema(confirmedRequestSchemas[ServiceReadProperty], params)
}

func DecodeReadPropertyRequest(data []byte) (*ReadPropertyRequest, error) {
	params, err := decodeWithSchema(confirmedRequestSchemas[ServiceReadProperty], data)
	if err != nil {
		return nil, err
	}
	req := &ReadPropertyRequest{}
	for _, p := range params {
		switch p.TagNumber {
		case 0:
			req.ObjectID = p.Value.(ObjectIdentifier)
		case 1:
			req.Property = PropertyIdentifier(p.Value.(Enumerated))
		case 2:
			idx := uint32(p.Value.(uint64))
			req.ArrayIndex = &idx
		}
	}
	return req, nil
}

// ReadPropertyACK is the complex ack payload answering a ReadProperty
// request. Value holds the decoded application value from the constructed
// property-value slot, or RawConstructed if it is not a single primitive.
type ReadPropertyACK struct {
	ObjectID   ObjectIdentifier
	Property   PropertyIdentifier
	ArrayIndex *uint32
	Value      interface{}
}

func (r *ReadPropertyACK) Encode() ([]byte, error) {
	params := []ServiceParameter{
		{TagNumber: 0, Value: r.ObjectID},
		{TagNumber: 1, Value: Enumerated(r.Property)},
	}
	if r.ArrayIndex != nil {
		params = append(params, ServiceParameter{TagNumber: 2, Value: uint64(*r.ArrayIndex)})
	}
	params = append(params, ServiceParameter{TagNumber: 3, Value: r.Value})
	return encodeWithSchema(confirmedAckSchemas[ServiceReadProperty], params)
}

func DecodeReadPropertyACK(data []byte) (*ReadPropertyACK, error) {
	params, err := decodeWithSchema(confirmedAckSchemas[ServiceReadProperty], data)
	if err != nil {
		return nil, err
	}
	ack := &ReadPropertyACK{}
	for _, p := range params {
		switch p.TagNumber {
		case 0:
			ack.ObjectID = p.Value.(ObjectIdentifier)
		case 1:
			ack.Property = PropertyIdentifier(p.Value.(Enumerated))
		case 2:
			idx := uint32(p.Value.(uint64))
			ack.ArrayIndex = &idx
		case 3:
			ack.Value = decodeConstructedValue(p.Value.(RawConstructed))
		}
	}
	return ack, nil
}

// decodeConstructedValue interprets a constructed slot that holds exactly
// one application-tagged primitive, falling back to the raw octets for
// lists and ABSTRACT-SYNTAX content.
func decodeConstructedValue(raw RawConstructed) interface{} {
	v, n, err := DecodeAppValue(raw)
	if err != nil || n != len(raw) {
		return raw
	}
	return v
}

// WritePropertyRequest writes one property of one object, optionally at a
// command priority between 1 and 16.
type WritePropertyRequest struct {
	ObjectID   ObjectIdentifier
	Property   PropertyIdentifier
	ArrayIndex *uint32
	Value      interface{}
	Priority   *uint8
}

func (r *WritePropertyRequest) Encode() ([]byte, error) {
	params := []ServiceParameter{
		{TagNumber: 0, Value: r.ObjectID},
		{TagNumber: 1, Value: Enumerated(r.Property)},
	}
	if r.ArrayIndex != nil {
		params = append(params, ServiceParameter{TagNumber: 2, Value: uint64(*r.ArrayIndex)})
	}
	params = append(params, ServiceParameter{TagNumber: 3, Value: r.Value})
	if r.Priority != nil {
		params = append(params, ServiceParameter{TagNumber: 4, Value: uint64(*r.Priority)})
	}
	return encodeWithSchema(confirmedRequestSchemas[ServiceWriteProperty], params)
}

func DecodeWritePropertyRequest(data []byte) (*WritePropertyRequest, error) {
	params, err := decodeWithSchema(confirmedRequestSchemas[ServiceWriteProperty], data)
	if err != nil {
		return nil, err
	}
	req := &WritePropertyRequest{}
	for _, p := range params {
		switch p.TagNumber {
		case 0:
			req.ObjectID = p.Value.(ObjectIdentifier)
		case 1:
			req.Property = PropertyIdentifier(p.Value.(Enumerated))
		case 2:
			idx := uint32(p.Value.(uint64))
			req.ArrayIndex = &idx
		case 3:
			req.Value = decodeConstructedValue(p.Value.(RawConstructed))
		case 4:
			pri := uint8(p.Value.(uint64))
			req.Priority = &pri
		}
	}
	return req, nil
}

// SubscribeCOVRequest subscribes the sender to change-of-value
// notifications for an object. A nil IssueConfirmed cancels an existing
// subscription per the service definition.
type SubscribeCOVRequest struct {
	ProcessID      uint32
	ObjectID       ObjectIdentifier
	IssueConfirmed *bool
	Lifetime       *uint32
}

func (r *SubscribeCOVRequest) Encode() ([]byte, error) {
	params := []ServiceParameter{
		{TagNumber: 0, Value: uint64(r.ProcessID)},
		{TagNumber: 1, Value: r.ObjectID},
	}
	if r.IssueConfirmed != nil {
		params = append(params, ServiceParameter{TagNumber: 2, Value: *r.IssueConfirmed})
	}
	if r.Lifetime != nil {
		params = append(params, ServiceParameter{TagNumber: 3, Value: uint64(*r.Lifetime)})
	}
	return encodeWithSchema(confirmedRequestSchemas[ServiceSubscribeCOV], params)
}

func DecodeSubscribeCOVRequest(data []byte) (*SubscribeCOVRequest, error) {
	params, err := decodeWithSchema(confirmedRequestSchemas[ServiceSubscribeCOV], data)
	if err != nil {
		return nil, err
	}
	req := &SubscribeCOVRequest{}
	for _, p := range params {
		switch p.TagNumber {
		case 0:
			req.ProcessID = uint32(p.Value.(uint64))
		case 1:
			req.ObjectID = p.Value.(ObjectIdentifier)
		case 2:
			confirmed := p.Value.(bool)
			req.IssueConfirmed = &confirmed
		case 3:
			lifetime := uint32(p.Value.(uint64))
			req.Lifetime = &lifetime
		}
	}
	return req, nil
}

// WhoIsRequest solicits I-Am responses, optionally bounded to a device
// instance range. Both limits are present or both absent.
type WhoIsRequest struct {
	Low  *uint32
	High *uint32
}

func (r *WhoIsRequest) Encode() ([]byte, error) {
	var params []ServiceParameter
	if r.Low != nil && r.High != nil {
		params = append(params,
			ServiceParameter{TagNumber: 0, Value: uint64(*r.Low)},
			ServiceParameter{TagNumber: 1, Value: uint64(*r.High)},
		)
	}
	return encodeWithSchema(unconfirmedSchemas[ServiceWhoIs], params)
}

func DecodeWhoIsRequest(data []byte) (*WhoIsRequest, error) {
	params, err := decodeWithSchema(unconfirmedSchemas[ServiceWhoIs], data)
	if err != nil {
		return nil, err
	}
	req := &WhoIsRequest{}
	for _, p := range params {
		v := uint32(p.Value.(uint64))
		switch p.TagNumber {
		case 0:
			req.Low = &v
		case 1:
			req.High = &v
		}
	}
	if (req.Low == nil) != (req.High == nil) {
		return nil, fmt.Errorf("%w: who-is range limits must appear together", ErrMissingParameter)
	}
	return req, nil
}

// IAmNotification announces a device's identity and capabilities. Unlike
// most service payloads its parameters are application tagged.
type IAmNotification struct {
	ObjectID      ObjectIdentifier
	MaxAPDULength uint16
	Segmentation  Segmentation
	VendorID      uint16
}

func (n *IAmNotification) Encode() ([]byte, error) {
	if n.ObjectID.Type != ObjectTypeDevice {
		return nil, fmt.Errorf("%w: i-am announces a device object", ErrInvalidObjectIdentifier)
	}
	var out []byte
	for _, v := range []interface{}{
		n.ObjectID,
		uint64(n.MaxAPDULength),
		Enumerated(n.Segmentation),
		uint64(n.VendorID),
	} {
		enc, err := EncodeAppValue(v)
		if err != nil {
			return nil, err
		}
		out = append(out, enc...)
	}
	return out, nil
}

func DecodeIAmNotification(data []byte) (*IAmNotification, error) {
	n := &IAmNotification{}
	off := 0
	for i, dst := range []func(interface{}) error{
		func(v interface{}) error {
			oid, ok := v.(ObjectIdentifier)
			if !ok || oid.Type != ObjectTypeDevice {
				return fmt.Errorf("%w: i-am object identifier", ErrTypeMismatch)
			}
			n.ObjectID = oid
			return nil
		},
		func(v interface{}) error {
			u, ok := v.(uint64)
			if !ok || u > MaxAPDULength {
				return fmt.Errorf("%w: i-am max APDU length", ErrTypeMismatch)
			}
			n.MaxAPDULength = uint16(u)
			return nil
		},
		func(v interface{}) error {
			e, ok := v.(Enumerated)
			if !ok {
				return fmt.Errorf("%w: i-am segmentation", ErrTypeMismatch)
			}
			n.Segmentation = Segmentation(e)
			return nil
		},
		func(v interface{}) error {
			u, ok := v.(uint64)
			if !ok || u > 0xFFFF {
				return fmt.Errorf("%w: i-am vendor identifier", ErrTypeMismatch)
			}
			n.VendorID = uint16(u)
			return nil
		},
	} {
		if off >= len(data) {
			return nil, fmt.Errorf("%w: i-am parameter %d", ErrMissingParameter, i)
		}
		v, consumed, err := DecodeAppValue(data[off:])
		if err != nil {
			return nil, err
		}
		if err := dst(v); err != nil {
			return nil, err
		}
		off += consumed
	}
	return n, nil
}

// PropertyValue is one entry of a COV notification's list-of-values.
type PropertyValue struct {
	Property   PropertyIdentifier
	ArrayIndex *uint32
	Value      interface{}
}

// COVNotification reports changed property values for a monitored object.
type COVNotification struct {
	ProcessID     uint32
	DeviceID      ObjectIdentifier
	ObjectID      ObjectIdentifier
	TimeRemaining uint32
	Values        []PropertyValue
}

var covValueSchema = []paramSpec{
	{Tag: 0, Type: TagEnumerated},
	{Tag: 1, Type: TagUnsignedInt, Optional: true},
	{Tag: 2, Constructed: true},
}

func (c *COVNotification) Encode() ([]byte, error) {
	var list []byte
	for _, pv := range c.Values {
		params := []ServiceParameter{{TagNumber: 0, Value: Enumerated(pv.Property)}}
		if pv.ArrayIndex != nil {
			params = append(params, ServiceParameter{TagNumber: 1, Value: uint64(*pv.ArrayIndex)})
		}
		params = append(params, ServiceParameter{TagNumber: 2, Value: pv.Value})
		enc, err := encodeWithSchema(covValueSchema, params)
		if err != nil {
			return nil, err
		}
		list = append(list, enc...)
	}
	return encodeWithSchema(unconfirmedSchemas[ServiceUnconfirmedCOVNotification], []ServiceParameter{
		{TagNumber: 0, Value: uint64(c.ProcessID)},
		{TagNumber: 1, Value: c.DeviceID},
		{TagNumber: 2, Value: c.ObjectID},
		{TagNumber: 3, Value: uint64(c.TimeRemaining)},
		{TagNumber: 4, Value: RawConstructed(list)},
	})
}

func DecodeCOVNotification(data []byte) (*COVNotification, error) {
	params, err := decodeWithSchema(unconfirmedSchemas[ServiceUnconfirmedCOVNotification], data)
	if err != nil {
		return nil, err
	}
	c := &COVNotification{}
	var list RawConstructed
	for _, p := range params {
		switch p.TagNumber {
		case 0:
			c.ProcessID = uint32(p.Value.(uint64))
		case 1:
			c.DeviceID = p.Value.(ObjectIdentifier)
		case 2:
			c.ObjectID = p.Value.(ObjectIdentifier)
		case 3:
			c.TimeRemaining = uint32(p.Value.(uint64))
		case 4:
			list = p.Value.(RawConstructed)
		}
	}
	for off := 0; off < len(list); {
		// Entries repeat; decode one schema pass per entry by slicing up to
		// the end of its constructed value slot.
		entry, consumed, err := decodeCOVValue(list[off:])
		if err != nil {
			return nil, err
		}
		c.Values = append(c.Values, entry)
		off += consumed
	}
	return c, nil
}

func decodeCOVValue(data []byte) (PropertyValue, int, error) {
	var pv PropertyValue
	off := 0

	t, payload, n, err := readTagValue(data)
	if err != nil {
		return pv, 0, err
	}
	if t.Class != TagClassContext || t.Number != 0 || t.Constructed() {
		return pv, 0, fmt.Errorf("%w: property identifier slot", ErrUnexpectedTag)
	}
	prop, err := DecodeContextValue(TagEnumerated, payload)
	if err != nil {
		return pv, 0, err
	}
	pv.Property = PropertyIdentifier(prop.(Enumerated))
	off += n

	t, nextLen, err := DecodeTag(data[off:])
	if err != nil {
		return pv, 0, err
	}
	if t.Class == TagClassContext && t.Number == 1 && !t.Constructed() {
		_, payload, consumed, err := readTagValue(data[off:])
		if err != nil {
			return pv, 0, err
		}
		idx, err := DecodeContextValue(TagUnsignedInt, payload)
		if err != nil {
			return pv, 0, err
		}
		v := uint32(idx.(uint64))
		pv.ArrayIndex = &v
		off += consumed
		t, nextLen, err = DecodeTag(data[off:])
		if err != nil {
			return pv, 0, err
		}
	}

	if t.Class != TagClassContext || t.Number != 2 || !t.Opening {
		return pv, 0, fmt.Errorf("%w: property value slot", ErrUnexpectedTag)
	}
	inner, end, err := findClosingTag(data[off+nextLen:], 2)
	if err != nil {
		return pv, 0, err
	}
	pv.Value = decodeConstructedValue(RawConstructed(append([]byte(nil), data[off+nextLen:off+nextLen+inner]...)))
	off += nextLen + end
	return pv, off, nil
}
