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
	"errors"
	"fmt"
)

// Malformed-input errors. Always recoverable at the point of decode: the
// frame is dropped, nothing else is affected.
var (
	ErrMalformedTag            = errors.New("bacnet: malformed tag")
	ErrTruncatedData           = errors.New("bacnet: truncated data")
	ErrTypeMismatch            = errors.New("bacnet: type mismatch")
	ErrInvalidObjectIdentifier = errors.New("bacnet: invalid object identifier")
	ErrInvalidBitString        = errors.New("bacnet: invalid bit string")
)

// Protocol-level errors, surfaced as decode failures. For inbound requests
// the stack answers with a Reject rather than dropping silently.
var (
	ErrUnknownPduType   = errors.New("bacnet: unknown PDU type")
	ErrTruncatedApdu    = errors.New("bacnet: truncated APDU")
	ErrMalformedApdu    = errors.New("bacnet: malformed APDU")
	ErrMissingParameter = errors.New("bacnet: missing service parameter")
	ErrUnexpectedTag    = errors.New("bacnet: unexpected tag")
)

// Transaction-level failures, terminal for the transaction that hit them.
var (
	ErrTransactionTimeout = errors.New("bacnet: transaction timeout")
	ErrSegmentTimeout     = errors.New("bacnet: segment reassembly timeout")
	ErrSegmentOutOfWindow = errors.New("bacnet: segment outside window")
	ErrTransactionAborted = errors.New("bacnet: transaction aborted")
)

// Stack lifecycle errors.
var (
	ErrNotConnected     = errors.New("bacnet: not connected")
	ErrAlreadyConnected = errors.New("bacnet: already connected")
	ErrConnectionClosed = errors.New("bacnet: connection closed")
	ErrNoFreeInvokeID   = errors.New("bacnet: no free invoke ID for peer")
	ErrApduTooLarge     = errors.New("bacnet: APDU exceeds negotiated maximum and segmentation is disabled")
)

// ErrorClass represents BACnet error classes
type ErrorClass uint8

const (
	ErrorClassDevice        ErrorClass = 0
	ErrorClassObject        ErrorClass = 1
	ErrorClassProperty      ErrorClass = 2
	ErrorClassResources     ErrorClass = 3
	ErrorClassSecurity      ErrorClass = 4
	ErrorClassServices      ErrorClass = 5
	ErrorClassVT            ErrorClass = 6
	ErrorClassCommunication ErrorClass = 7
)

func (e ErrorClass) String() string {
	names := map[ErrorClass]string{
		ErrorClassDevice:        "device",
		ErrorClassObject:        "object",
		ErrorClassProperty:      "property",
		ErrorClassResources:     "resources",
		ErrorClassSecurity:      "security",
		ErrorClassServices:      "services",
		ErrorClassVT:            "vt",
		ErrorClassCommunication: "communication",
	}
	if name, ok := names[e]; ok {
		return name
	}
	return fmt.Sprintf("error-class(%d)", e)
}

// ErrorCode represents BACnet error codes
type ErrorCode uint8

const (
	ErrorCodeOther                    ErrorCode = 0
	ErrorCodeConfigurationInProgress  ErrorCode = 2
	ErrorCodeDeviceBusy               ErrorCode = 3
	ErrorCodeInconsistentParameters   ErrorCode = 7
	ErrorCodeInvalidDataType          ErrorCode = 9
	ErrorCodeMissingRequiredParameter ErrorCode = 16
	ErrorCodeReadAccessDenied         ErrorCode = 27
	ErrorCodeServiceRequestDenied     ErrorCode = 29
	ErrorCodeUnknownObject            ErrorCode = 31
	ErrorCodeUnknownProperty          ErrorCode = 32
	ErrorCodeValueOutOfRange          ErrorCode = 37
	ErrorCodeWriteAccessDenied        ErrorCode = 40
	ErrorCodeCharacterSetNotSupported ErrorCode = 41
	ErrorCodeInvalidArrayIndex        ErrorCode = 42
	ErrorCodeNotCovProperty           ErrorCode = 44
	ErrorCodeDatatypeNotSupported     ErrorCode = 47
	ErrorCodeInvalidTag               ErrorCode = 57
	ErrorCodeNetworkDown              ErrorCode = 58
	ErrorCodeUnknownDevice            ErrorCode = 70
	ErrorCodeUnknownRoute             ErrorCode = 71
	ErrorCodeValueTooLong             ErrorCode = 72
	ErrorCodeAbortApduTooLong         ErrorCode = 73
	ErrorCodeAbortOutOfResources      ErrorCode = 75
	ErrorCodeAbortTsmTimeout          ErrorCode = 76
)

func (e ErrorCode) String() string {
	names := map[ErrorCode]string{
		ErrorCodeOther:                    "other",
		ErrorCodeConfigurationInProgress:  "configuration-in-progress",
		ErrorCodeDeviceBusy:               "device-busy",
		ErrorCodeInconsistentParameters:   "inconsistent-parameters",
		ErrorCodeInvalidDataType:          "invalid-data-type",
		ErrorCodeMissingRequiredParameter: "missing-required-parameter",
		ErrorCodeReadAccessDenied:         "read-access-denied",
		ErrorCodeServiceRequestDenied:     "service-request-denied",
		ErrorCodeUnknownObject:            "unknown-object",
		ErrorCodeUnknownProperty:          "unknown-property",
		ErrorCodeValueOutOfRange:          "value-out-of-range",
		ErrorCodeWriteAccessDenied:        "write-access-denied",
		ErrorCodeCharacterSetNotSupported: "character-set-not-supported",
		ErrorCodeInvalidArrayIndex:        "invalid-array-index",
		ErrorCodeNotCovProperty:           "not-cov-property",
		ErrorCodeDatatypeNotSupported:     "datatype-not-supported",
		ErrorCodeInvalidTag:               "invalid-tag",
		ErrorCodeNetworkDown:              "network-down",
		ErrorCodeUnknownDevice:            "unknown-device",
		ErrorCodeUnknownRoute:             "unknown-route",
		ErrorCodeValueTooLong:             "value-too-long",
		ErrorCodeAbortApduTooLong:         "abort-apdu-too-long",
		ErrorCodeAbortOutOfResources:      "abort-out-of-resources",
		ErrorCodeAbortTsmTimeout:          "abort-tsm-timeout",
	}
	if name, ok := names[e]; ok {
		return name
	}
	return fmt.Sprintf("error-code(%d)", e)
}

// BACnetError represents an Error APDU received from a peer
type BACnetError struct {
	Class ErrorClass
	Code  ErrorCode
}

func (e *BACnetError) Error() string {
	return fmt.Sprintf("bacnet error: class=%s, code=%s", e.Class, e.Code)
}

func (e *BACnetError) Is(target error) bool {
	t, ok := target.(*BACnetError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewBACnetError creates a new BACnet error
func NewBACnetError(class ErrorClass, code ErrorCode) *BACnetError {
	return &BACnetError{
		Class: class,
		Code:  code,
	}
}

// RejectReason represents BACnet reject reasons
type RejectReason uint8

const (
	RejectReasonOther                    RejectReason = 0
	RejectReasonBufferOverflow           RejectReason = 1
	RejectReasonInconsistentParameters   RejectReason = 2
	RejectReasonInvalidParameterDataType RejectReason = 3
	RejectReasonInvalidTag               RejectReason = 4
	RejectReasonMissingRequiredParameter RejectReason = 5
	RejectReasonParameterOutOfRange      RejectReason = 6
	RejectReasonTooManyArguments         RejectReason = 7
	RejectReasonUndefinedEnumeration     RejectReason = 8
	RejectReasonUnrecognizedService      RejectReason = 9
)

func (r RejectReason) String() string {
	names := map[RejectReason]string{
		RejectReasonOther:                    "other",
		RejectReasonBufferOverflow:           "buffer-overflow",
		RejectReasonInconsistentParameters:   "inconsistent-parameters",
		RejectReasonInvalidParameterDataType: "invalid-parameter-data-type",
		RejectReasonInvalidTag:               "invalid-tag",
		RejectReasonMissingRequiredParameter: "missing-required-parameter",
		RejectReasonParameterOutOfRange:      "parameter-out-of-range",
		RejectReasonTooManyArguments:         "too-many-arguments",
		RejectReasonUndefinedEnumeration:     "undefined-enumeration",
		RejectReasonUnrecognizedService:      "unrecognized-service",
	}
	if name, ok := names[r]; ok {
		return name
	}
	return fmt.Sprintf("reject-reason(%d)", r)
}

// RejectError represents a BACnet reject response
type RejectError struct {
	InvokeID uint8
	Reason   RejectReason
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("bacnet reject: invoke-id=%d, reason=%s", e.InvokeID, e.Reason)
}

// AbortReason represents BACnet abort reasons
type AbortReason uint8

const (
	AbortReasonOther                         AbortReason = 0
	AbortReasonBufferOverflow                AbortReason = 1
	AbortReasonInvalidApduInThisState        AbortReason = 2
	AbortReasonPreemptedByHigherPriorityTask AbortReason = 3
	AbortReasonSegmentationNotSupported      AbortReason = 4
	AbortReasonSecurityError                 AbortReason = 5
	AbortReasonInsufficientSecurity          AbortReason = 6
	AbortReasonWindowSizeOutOfRange          AbortReason = 7
	AbortReasonApplicationExceededReplyTime  AbortReason = 8
	AbortReasonOutOfResources                AbortReason = 9
	AbortReasonTsmTimeout                    AbortReason = 10
	AbortReasonApduTooLong                   AbortReason = 11
)

func (a AbortReason) String() string {
	names := map[AbortReason]string{
		AbortReasonOther:                         "other",
		AbortReasonBufferOverflow:                "buffer-overflow",
		AbortReasonInvalidApduInThisState:        "invalid-apdu-in-this-state",
		AbortReasonPreemptedByHigherPriorityTask: "preempted-by-higher-priority-task",
		AbortReasonSegmentationNotSupported:      "segmentation-not-supported",
		AbortReasonSecurityError:                 "security-error",
		AbortReasonInsufficientSecurity:          "insufficient-security",
		AbortReasonWindowSizeOutOfRange:          "window-size-out-of-range",
		AbortReasonApplicationExceededReplyTime:  "application-exceeded-reply-time",
		AbortReasonOutOfResources:                "out-of-resources",
		AbortReasonTsmTimeout:                    "tsm-timeout",
		AbortReasonApduTooLong:                   "apdu-too-long",
	}
	if name, ok := names[a]; ok {
		return name
	}
	return fmt.Sprintf("abort-reason(%d)", a)
}

// AbortError represents a BACnet abort, local or from a peer
type AbortError struct {
	InvokeID uint8
	Server   bool
	Reason   AbortReason
}

func (e *AbortError) Error() string {
	origin := "client"
	if e.Server {
		origin = "server"
	}
	return fmt.Sprintf("bacnet abort: invoke-id=%d, origin=%s, reason=%s", e.InvokeID, origin, e.Reason)
}

func (e *AbortError) Unwrap() error {
	return ErrTransactionAborted
}

// IsTimeout returns true if the error is a transaction or segment timeout
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTransactionTimeout) || errors.Is(err, ErrSegmentTimeout)
}

// IsAborted returns true if the error reflects a local or peer abort
func IsAborted(err error) bool {
	return errors.Is(err, ErrTransactionAborted)
}

// IsPropertyNotFound returns true if the error indicates property not found
func IsPropertyNotFound(err error) bool {
	var bacnetErr *BACnetError
	if errors.As(err, &bacnetErr) {
		return bacnetErr.Code == ErrorCodeUnknownProperty
	}
	return false
}

// IsAccessDenied returns true if the error indicates access denied
func IsAccessDenied(err error) bool {
	var bacnetErr *BACnetError
	if errors.As(err, &bacnetErr) {
		return bacnetErr.Code == ErrorCodeReadAccessDenied || bacnetErr.Code == ErrorCodeWriteAccessDenied
	}
	return false
}
