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

// Package bacnet implements the BACnet application layer: tagged value
// encoding, APDU framing, service parameter schemas, segmentation and the
// confirmed-request transaction state machine. Data links are consumed
// through the Transport interface; BACnet/IP over UDP is provided in
// internal/transport.
package bacnet

import (
	"fmt"
	"net"
)

// DefaultPort is the standard BACnet/IP UDP port.
const DefaultPort = 47808

// MaxAPDULength is the maximum APDU length for BACnet/IP.
const MaxAPDULength = 1476

// PDU Types. The wire form carries the type in the high nibble of the
// APDU's first octet; the codec applies the shift.
type PDUType uint8

const (
	PDUTypeConfirmedRequest PDUType = iota
	PDUTypeUnconfirmedRequest
	PDUTypeSimpleAck
	PDUTypeComplexAck
	PDUTypeSegmentAck
	PDUTypeError
	PDUTypeReject
	PDUTypeAbort
)

func (p PDUType) String() string {
	names := map[PDUType]string{
		PDUTypeConfirmedRequest:   "confirmed-request",
		PDUTypeUnconfirmedRequest: "unconfirmed-request",
		PDUTypeSimpleAck:          "simple-ack",
		PDUTypeComplexAck:         "complex-ack",
		PDUTypeSegmentAck:         "segment-ack",
		PDUTypeError:              "error",
		PDUTypeReject:             "reject",
		PDUTypeAbort:              "abort",
	}
	if name, ok := names[p]; ok {
		return name
	}
	return fmt.Sprintf("pdu-type(%#02x)", uint8(p))
}

// Confirmed Service Choices
type ConfirmedServiceChoice uint8

const (
	ServiceAcknowledgeAlarm           ConfirmedServiceChoice = 0
	ServiceConfirmedCOVNotification   ConfirmedServiceChoice = 1
	ServiceConfirmedEventNotification ConfirmedServiceChoice = 2
	ServiceGetAlarmSummary            ConfirmedServiceChoice = 3
	ServiceGetEnrollmentSummary       ConfirmedServiceChoice = 4
	ServiceSubscribeCOV               ConfirmedServiceChoice = 5
	ServiceAtomicReadFile             ConfirmedServiceChoice = 6
	ServiceAtomicWriteFile            ConfirmedServiceChoice = 7
	ServiceAddListElement             ConfirmedServiceChoice = 8
	ServiceRemoveListElement          ConfirmedServiceChoice = 9
	ServiceCreateObject               ConfirmedServiceChoice = 10
	ServiceDeleteObject               ConfirmedServiceChoice = 11
	ServiceReadProperty               ConfirmedServiceChoice = 12
	ServiceReadPropertyMultiple       ConfirmedServiceChoice = 14
	ServiceWriteProperty              ConfirmedServiceChoice = 15
	ServiceWritePropertyMultiple      ConfirmedServiceChoice = 16
	ServiceDeviceCommunicationControl ConfirmedServiceChoice = 17
	ServiceConfirmedPrivateTransfer   ConfirmedServiceChoice = 18
	ServiceConfirmedTextMessage       ConfirmedServiceChoice = 19
	ServiceReinitializeDevice         ConfirmedServiceChoice = 20
	ServiceReadRange                  ConfirmedServiceChoice = 26
	ServiceLifeSafetyOperation        ConfirmedServiceChoice = 27
	ServiceSubscribeCOVProperty       ConfirmedServiceChoice = 28
	ServiceGetEventInformation        ConfirmedServiceChoice = 29
)

func (s ConfirmedServiceChoice) String() string {
	names := map[ConfirmedServiceChoice]string{
		ServiceAcknowledgeAlarm:           "AcknowledgeAlarm",
		ServiceConfirmedCOVNotification:   "ConfirmedCOVNotification",
		ServiceConfirmedEventNotification: "ConfirmedEventNotification",
		ServiceGetAlarmSummary:            "GetAlarmSummary",
		ServiceGetEnrollmentSummary:       "GetEnrollmentSummary",
		ServiceSubscribeCOV:               "SubscribeCOV",
		ServiceAtomicReadFile:             "AtomicReadFile",
		ServiceAtomicWriteFile:            "AtomicWriteFile",
		ServiceAddListElement:             "AddListElement",
		ServiceRemoveListElement:          "RemoveListElement",
		ServiceCreateObject:               "CreateObject",
		ServiceDeleteObject:               "DeleteObject",
		ServiceReadProperty:               "ReadProperty",
		ServiceReadPropertyMultiple:       "ReadPropertyMultiple",
		ServiceWriteProperty:              "WriteProperty",
		ServiceWritePropertyMultiple:      "WritePropertyMultiple",
		ServiceDeviceCommunicationControl: "DeviceCommunicationControl",
		ServiceConfirmedPrivateTransfer:   "ConfirmedPrivateTransfer",
		ServiceConfirmedTextMessage:       "ConfirmedTextMessage",
		ServiceReinitializeDevice:         "ReinitializeDevice",
		ServiceReadRange:                  "ReadRange",
		ServiceLifeSafetyOperation:        "LifeSafetyOperation",
		ServiceSubscribeCOVProperty:       "SubscribeCOVProperty",
		ServiceGetEventInformation:        "GetEventInformation",
	}
	if name, ok := names[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", s)
}

// Unconfirmed Service Choices
type UnconfirmedServiceChoice uint8

const (
	ServiceIAm                          UnconfirmedServiceChoice = 0
	ServiceIHave                        UnconfirmedServiceChoice = 1
	ServiceUnconfirmedCOVNotification   UnconfirmedServiceChoice = 2
	ServiceUnconfirmedEventNotification UnconfirmedServiceChoice = 3
	ServiceUnconfirmedPrivateTransfer   UnconfirmedServiceChoice = 4
	ServiceUnconfirmedTextMessage       UnconfirmedServiceChoice = 5
	ServiceTimeSynchronization          UnconfirmedServiceChoice = 6
	ServiceWhoHas                       UnconfirmedServiceChoice = 7
	ServiceWhoIs                        UnconfirmedServiceChoice = 8
	ServiceUTCTimeSynchronization       UnconfirmedServiceChoice = 9
	ServiceWriteGroup                   UnconfirmedServiceChoice = 10
)

func (s UnconfirmedServiceChoice) String() string {
	names := map[UnconfirmedServiceChoice]string{
		ServiceIAm:                          "I-Am",
		ServiceIHave:                        "I-Have",
		ServiceUnconfirmedCOVNotification:   "UnconfirmedCOVNotification",
		ServiceUnconfirmedEventNotification: "UnconfirmedEventNotification",
		ServiceUnconfirmedPrivateTransfer:   "UnconfirmedPrivateTransfer",
		ServiceUnconfirmedTextMessage:       "UnconfirmedTextMessage",
		ServiceTimeSynchronization:          "TimeSynchronization",
		ServiceWhoHas:                       "Who-Has",
		ServiceWhoIs:                        "Who-Is",
		ServiceUTCTimeSynchronization:       "UTCTimeSynchronization",
		ServiceWriteGroup:                   "WriteGroup",
	}
	if name, ok := names[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", s)
}

// ObjectType represents BACnet object types
type ObjectType uint16

const (
	ObjectTypeAnalogInput       ObjectType = 0
	ObjectTypeAnalogOutput      ObjectType = 1
	ObjectTypeAnalogValue       ObjectType = 2
	ObjectTypeBinaryInput       ObjectType = 3
	ObjectTypeBinaryOutput      ObjectType = 4
	ObjectTypeBinaryValue       ObjectType = 5
	ObjectTypeCalendar          ObjectType = 6
	ObjectTypeCommand           ObjectType = 7
	ObjectTypeDevice            ObjectType = 8
	ObjectTypeEventEnrollment   ObjectType = 9
	ObjectTypeFile              ObjectType = 10
	ObjectTypeGroup             ObjectType = 11
	ObjectTypeLoop              ObjectType = 12
	ObjectTypeMultiStateInput   ObjectType = 13
	ObjectTypeMultiStateOutput  ObjectType = 14
	ObjectTypeNotificationClass ObjectType = 15
	ObjectTypeProgram           ObjectType = 16
	ObjectTypeSchedule          ObjectType = 17
	ObjectTypeAveraging         ObjectType = 18
	ObjectTypeMultiStateValue   ObjectType = 19
	ObjectTypeTrendLog          ObjectType = 20
	ObjectTypeLifeSafetyPoint   ObjectType = 21
	ObjectTypeLifeSafetyZone    ObjectType = 22
	ObjectTypeAccumulator       ObjectType = 23
	ObjectTypePulseConverter    ObjectType = 24
	ObjectTypeEventLog          ObjectType = 25

	// MaxObjectType is the largest encodable object type (10 bits).
	MaxObjectType ObjectType = 0x3FF
)

func (o ObjectType) String() string {
	names := map[ObjectType]string{
		ObjectTypeAnalogInput:       "analog-input",
		ObjectTypeAnalogOutput:      "analog-output",
		ObjectTypeAnalogValue:       "analog-value",
		ObjectTypeBinaryInput:       "binary-input",
		ObjectTypeBinaryOutput:      "binary-output",
		ObjectTypeBinaryValue:       "binary-value",
		ObjectTypeCalendar:          "calendar",
		ObjectTypeCommand:           "command",
		ObjectTypeDevice:            "device",
		ObjectTypeEventEnrollment:   "event-enrollment",
		ObjectTypeFile:              "file",
		ObjectTypeGroup:             "group",
		ObjectTypeLoop:              "loop",
		ObjectTypeMultiStateInput:   "multi-state-input",
		ObjectTypeMultiStateOutput:  "multi-state-output",
		ObjectTypeNotificationClass: "notification-class",
		ObjectTypeProgram:           "program",
		ObjectTypeSchedule:          "schedule",
		ObjectTypeAveraging:         "averaging",
		ObjectTypeMultiStateValue:   "multi-state-value",
		ObjectTypeTrendLog:          "trend-log",
		ObjectTypeLifeSafetyPoint:   "life-safety-point",
		ObjectTypeLifeSafetyZone:    "life-safety-zone",
		ObjectTypeAccumulator:       "accumulator",
		ObjectTypePulseConverter:    "pulse-converter",
		ObjectTypeEventLog:          "event-log",
	}
	if name, ok := names[o]; ok {
		return name
	}
	return fmt.Sprintf("vendor-specific(%d)", o)
}

// ParseObjectType parses a string to ObjectType
func ParseObjectType(s string) (ObjectType, bool) {
	types := map[string]ObjectType{
		"analog-input":       ObjectTypeAnalogInput,
		"ai":                 ObjectTypeAnalogInput,
		"analog-output":      ObjectTypeAnalogOutput,
		"ao":                 ObjectTypeAnalogOutput,
		"analog-value":       ObjectTypeAnalogValue,
		"av":                 ObjectTypeAnalogValue,
		"binary-input":       ObjectTypeBinaryInput,
		"bi":                 ObjectTypeBinaryInput,
		"binary-output":      ObjectTypeBinaryOutput,
		"bo":                 ObjectTypeBinaryOutput,
		"binary-value":       ObjectTypeBinaryValue,
		"bv":                 ObjectTypeBinaryValue,
		"device":             ObjectTypeDevice,
		"dev":                ObjectTypeDevice,
		"multi-state-input":  ObjectTypeMultiStateInput,
		"msi":                ObjectTypeMultiStateInput,
		"multi-state-output": ObjectTypeMultiStateOutput,
		"mso":                ObjectTypeMultiStateOutput,
		"multi-state-value":  ObjectTypeMultiStateValue,
		"msv":                ObjectTypeMultiStateValue,
		"schedule":           ObjectTypeSchedule,
		"sch":                ObjectTypeSchedule,
		"trend-log":          ObjectTypeTrendLog,
		"tl":                 ObjectTypeTrendLog,
		"file":               ObjectTypeFile,
		"loop":               ObjectTypeLoop,
		"program":            ObjectTypeProgram,
		"prg":                ObjectTypeProgram,
	}
	if t, ok := types[s]; ok {
		return t, true
	}
	return 0, false
}

// PropertyIdentifier represents BACnet property identifiers
type PropertyIdentifier uint32

const (
	PropertyApduSegmentTimeout         PropertyIdentifier = 10
	PropertyApduTimeout                PropertyIdentifier = 11
	PropertyApplicationSoftwareVersion PropertyIdentifier = 12
	PropertyCOVIncrement               PropertyIdentifier = 22
	PropertyDescription                PropertyIdentifier = 28
	PropertyDeviceType                 PropertyIdentifier = 31
	PropertyEventState                 PropertyIdentifier = 36
	PropertyFirmwareRevision           PropertyIdentifier = 44
	PropertyHighLimit                  PropertyIdentifier = 45
	PropertyLowLimit                   PropertyIdentifier = 59
	PropertyMaxApduLengthAccepted      PropertyIdentifier = 62
	PropertyModelName                  PropertyIdentifier = 70
	PropertyNumberOfApduRetries        PropertyIdentifier = 73
	PropertyObjectIdentifier           PropertyIdentifier = 75
	PropertyObjectList                 PropertyIdentifier = 76
	PropertyObjectName                 PropertyIdentifier = 77
	PropertyObjectType                 PropertyIdentifier = 79
	PropertyOutOfService               PropertyIdentifier = 81
	PropertyPresentValue               PropertyIdentifier = 85
	PropertyPriority                   PropertyIdentifier = 86
	PropertyPriorityArray              PropertyIdentifier = 87
	PropertyProtocolServicesSupported  PropertyIdentifier = 97
	PropertyProtocolVersion            PropertyIdentifier = 98
	PropertyReliability                PropertyIdentifier = 103
	PropertyRelinquishDefault          PropertyIdentifier = 104
	PropertySegmentationSupported      PropertyIdentifier = 107
	PropertyStatusFlags                PropertyIdentifier = 111
	PropertySystemStatus               PropertyIdentifier = 112
	PropertyUnits                      PropertyIdentifier = 117
	PropertyVendorIdentifier           PropertyIdentifier = 120
	PropertyVendorName                 PropertyIdentifier = 121
	PropertyProtocolRevision           PropertyIdentifier = 139
	PropertyDatabaseRevision           PropertyIdentifier = 155
	PropertyMaxSegmentsAccepted        PropertyIdentifier = 167
)

func (p PropertyIdentifier) String() string {
	names := map[PropertyIdentifier]string{
		PropertyApduSegmentTimeout:         "apdu-segment-timeout",
		PropertyApduTimeout:                "apdu-timeout",
		PropertyApplicationSoftwareVersion: "application-software-version",
		PropertyCOVIncrement:               "cov-increment",
		PropertyDescription:                "description",
		PropertyDeviceType:                 "device-type",
		PropertyEventState:                 "event-state",
		PropertyFirmwareRevision:           "firmware-revision",
		PropertyHighLimit:                  "high-limit",
		PropertyLowLimit:                   "low-limit",
		PropertyMaxApduLengthAccepted:      "max-apdu-length-accepted",
		PropertyModelName:                  "model-name",
		PropertyNumberOfApduRetries:        "number-of-apdu-retries",
		PropertyObjectIdentifier:           "object-identifier",
		PropertyObjectList:                 "object-list",
		PropertyObjectName:                 "object-name",
		PropertyObjectType:                 "object-type",
		PropertyOutOfService:               "out-of-service",
		PropertyPresentValue:               "present-value",
		PropertyPriority:                   "priority",
		PropertyPriorityArray:              "priority-array",
		PropertyProtocolServicesSupported:  "protocol-services-supported",
		PropertyProtocolVersion:            "protocol-version",
		PropertyReliability:                "reliability",
		PropertyRelinquishDefault:          "relinquish-default",
		PropertySegmentationSupported:      "segmentation-supported",
		PropertyStatusFlags:                "status-flags",
		PropertySystemStatus:               "system-status",
		PropertyUnits:                      "units",
		PropertyVendorIdentifier:           "vendor-identifier",
		PropertyVendorName:                 "vendor-name",
		PropertyProtocolRevision:           "protocol-revision",
		PropertyDatabaseRevision:           "database-revision",
		PropertyMaxSegmentsAccepted:        "max-segments-accepted",
	}
	if name, ok := names[p]; ok {
		return name
	}
	return fmt.Sprintf("property(%d)", p)
}

// ParsePropertyIdentifier parses a string to PropertyIdentifier
func ParsePropertyIdentifier(s string) (PropertyIdentifier, bool) {
	props := map[string]PropertyIdentifier{
		"object-identifier":        PropertyObjectIdentifier,
		"oid":                      PropertyObjectIdentifier,
		"object-name":              PropertyObjectName,
		"name":                     PropertyObjectName,
		"object-type":              PropertyObjectType,
		"type":                     PropertyObjectType,
		"present-value":            PropertyPresentValue,
		"pv":                       PropertyPresentValue,
		"description":              PropertyDescription,
		"desc":                     PropertyDescription,
		"status-flags":             PropertyStatusFlags,
		"sf":                       PropertyStatusFlags,
		"out-of-service":           PropertyOutOfService,
		"oos":                      PropertyOutOfService,
		"units":                    PropertyUnits,
		"priority-array":           PropertyPriorityArray,
		"pa":                       PropertyPriorityArray,
		"relinquish-default":       PropertyRelinquishDefault,
		"rd":                       PropertyRelinquishDefault,
		"cov-increment":            PropertyCOVIncrement,
		"vendor-name":              PropertyVendorName,
		"vendor-identifier":        PropertyVendorIdentifier,
		"model-name":               PropertyModelName,
		"firmware-revision":        PropertyFirmwareRevision,
		"protocol-version":         PropertyProtocolVersion,
		"protocol-revision":        PropertyProtocolRevision,
		"system-status":            PropertySystemStatus,
		"object-list":              PropertyObjectList,
		"database-revision":        PropertyDatabaseRevision,
		"segmentation-supported":   PropertySegmentationSupported,
		"max-apdu-length-accepted": PropertyMaxApduLengthAccepted,
	}
	if p, ok := props[s]; ok {
		return p, true
	}
	return 0, false
}

// ObjectIdentifier represents a BACnet object identifier (type + instance)
type ObjectIdentifier struct {
	Type     ObjectType
	Instance uint32
}

// MaxObjectInstance is the largest encodable instance number (22 bits).
const MaxObjectInstance = 0x3FFFFF

// NewObjectIdentifier creates a new ObjectIdentifier
func NewObjectIdentifier(objectType ObjectType, instance uint32) ObjectIdentifier {
	return ObjectIdentifier{
		Type:     objectType,
		Instance: instance,
	}
}

// Valid reports whether the identifier fits the 10-bit type / 22-bit
// instance packing.
func (o ObjectIdentifier) Valid() bool {
	return o.Type <= MaxObjectType && o.Instance <= MaxObjectInstance
}

// Encode packs the object identifier into a 4-byte value
func (o ObjectIdentifier) Encode() uint32 {
	return (uint32(o.Type) << 22) | (o.Instance & MaxObjectInstance)
}

// DecodeObjectIdentifier unpacks a 4-byte value to an ObjectIdentifier
func DecodeObjectIdentifier(value uint32) ObjectIdentifier {
	return ObjectIdentifier{
		Type:     ObjectType((value >> 22) & uint32(MaxObjectType)),
		Instance: value & MaxObjectInstance,
	}
}

func (o ObjectIdentifier) String() string {
	return fmt.Sprintf("%s:%d", o.Type.String(), o.Instance)
}

// StatusFlags represents the BACnet status flags
type StatusFlags struct {
	InAlarm      bool
	Fault        bool
	Overridden   bool
	OutOfService bool
}

// StatusFlagsFromBitString interprets a decoded bit string as status flags.
func StatusFlagsFromBitString(bs BitString) StatusFlags {
	return StatusFlags{
		InAlarm:      bs.Bit(0),
		Fault:        bs.Bit(1),
		Overridden:   bs.Bit(2),
		OutOfService: bs.Bit(3),
	}
}

func (s StatusFlags) String() string {
	return fmt.Sprintf("{in-alarm:%v, fault:%v, overridden:%v, out-of-service:%v}",
		s.InAlarm, s.Fault, s.Overridden, s.OutOfService)
}

// Segmentation represents the BACnet segmentation capability
type Segmentation uint8

const (
	SegmentationBoth     Segmentation = 0
	SegmentationTransmit Segmentation = 1
	SegmentationReceive  Segmentation = 2
	SegmentationNone     Segmentation = 3
)

func (s Segmentation) String() string {
	names := map[Segmentation]string{
		SegmentationBoth:     "segmented-both",
		SegmentationTransmit: "segmented-transmit",
		SegmentationReceive:  "segmented-receive",
		SegmentationNone:     "no-segmentation",
	}
	if name, ok := names[s]; ok {
		return name
	}
	return fmt.Sprintf("segmentation(%d)", s)
}

// AcceptsSegmentedResponse reports whether the capability allows receiving
// a segmented reply.
func (s Segmentation) AcceptsSegmentedResponse() bool {
	return s == SegmentationBoth || s == SegmentationReceive
}

// TransmitsSegmented reports whether the capability allows sending a
// segmented request.
func (s Segmentation) TransmitsSegmented() bool {
	return s == SegmentationBoth || s == SegmentationTransmit
}

// Tag types for BACnet encoding
type TagClass uint8

const (
	TagClassApplication TagClass = 0
	TagClassContext     TagClass = 1
)

type ApplicationTag uint8

const (
	TagNull            ApplicationTag = 0
	TagBoolean         ApplicationTag = 1
	TagUnsignedInt     ApplicationTag = 2
	TagSignedInt       ApplicationTag = 3
	TagReal            ApplicationTag = 4
	TagDouble          ApplicationTag = 5
	TagOctetString     ApplicationTag = 6
	TagCharacterString ApplicationTag = 7
	TagBitString       ApplicationTag = 8
	TagEnumerated      ApplicationTag = 9
	TagDate            ApplicationTag = 10
	TagTime            ApplicationTag = 11
	TagObjectID        ApplicationTag = 12
)

// Max-APDU-length-accepted codes carried in the confirmed-request header
// nibble, per the fixed table in the standard.
var maxAPDUCodes = [...]uint16{50, 128, 206, 480, 1024, 1476}

// MaxAPDUForCode returns the APDU length a header code advertises.
func MaxAPDUForCode(code uint8) uint16 {
	if int(code) < len(maxAPDUCodes) {
		return maxAPDUCodes[code]
	}
	return MaxAPDULength
}

// CodeForMaxAPDU returns the largest header code whose advertised length
// does not exceed the given limit.
func CodeForMaxAPDU(length uint16) uint8 {
	code := uint8(0)
	for i, l := range maxAPDUCodes {
		if l <= length {
			code = uint8(i)
		}
	}
	return code
}

// MaxSegmentsCode encodes a max-segments-accepted count into the 3-bit
// header field: 0 is unspecified, then powers of two from 2 through 64,
// 7 for more than 64.
func MaxSegmentsCode(n int) uint8 {
	switch {
	case n <= 0:
		return 0
	case n <= 2:
		return 1
	case n <= 4:
		return 2
	case n <= 8:
		return 3
	case n <= 16:
		return 4
	case n <= 32:
		return 5
	case n <= 64:
		return 6
	default:
		return 7
	}
}

// DeviceInfo represents information about a discovered BACnet device
type DeviceInfo struct {
	ObjectID      ObjectIdentifier
	Address       *net.UDPAddr
	MaxAPDULength uint16
	Segmentation  Segmentation
	VendorID      uint16
}
