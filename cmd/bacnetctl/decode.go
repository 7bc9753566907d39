package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edgeo-scada/bacnet-stack/bacnet"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <hex>",
	Short: "Decode a raw APDU from hex",
	Long: `Decode parses a hex-encoded APDU and prints its structure.

Whitespace and colons in the input are ignored, so captures from
tcpdump or Wireshark can be pasted directly.

Examples:
  # Decode a ReadProperty request
  bacnetctl decode 00020f0c0c0000000119551e

  # Decode a captured ComplexAck
  bacnetctl decode "30 0f 0c 0c 00 00 00 01 19 55 3e 44 42 28 00 00 3f"`,

	Args: cobra.MinimumNArgs(1),
	RunE: runDecode,
}

func runDecode(cmd *cobra.Command, args []string) error {
	raw := strings.Join(args, "")
	raw = strings.NewReplacer(" ", "", ":", "", "\n", "", "\t", "").Replace(raw)

	data, err := hex.DecodeString(raw)
	if err != nil {
		return fmt.Errorf("invalid hex input: %w", err)
	}

	apdu, err := bacnet.DecodeAPDU(data)
	if err != nil {
		return fmt.Errorf("decode apdu: %w", err)
	}

	f := NewFormatter(outputFmt)

	f.Printf("PDU Type      : %s\n", apdu.Type)

	switch apdu.Type {
	case bacnet.PDUTypeConfirmedRequest:
		service := bacnet.ConfirmedServiceChoice(apdu.Service)
		f.Printf("Invoke ID     : %d\n", apdu.InvokeID)
		f.Printf("Service       : %s (%d)\n", service, apdu.Service)
		f.Printf("Segmented     : %v\n", apdu.Segmented)
		if apdu.Segmented {
			f.Printf("More Follows  : %v\n", apdu.MoreFollows)
			f.Printf("Sequence      : %d\n", apdu.SequenceNum)
			f.Printf("Window Size   : %d\n", apdu.WindowSize)
		}
		f.Printf("Seg Resp OK   : %v\n", apdu.SegmentedResponseAccepted)
		f.Printf("Max Segments  : 0x%X\n", apdu.MaxSegments)
		f.Printf("Max APDU Code : 0x%X\n", apdu.MaxAPDU)
		decodeServiceData(f, service, bacnet.RoleRequest, apdu.Data)

	case bacnet.PDUTypeUnconfirmedRequest:
		service := bacnet.UnconfirmedServiceChoice(apdu.Service)
		f.Printf("Service       : %s (%d)\n", service, apdu.Service)
		decodeUnconfirmedData(f, service, apdu.Data)

	case bacnet.PDUTypeSimpleAck:
		f.Printf("Invoke ID     : %d\n", apdu.InvokeID)
		f.Printf("Service       : %s (%d)\n", bacnet.ConfirmedServiceChoice(apdu.Service), apdu.Service)

	case bacnet.PDUTypeComplexAck:
		service := bacnet.ConfirmedServiceChoice(apdu.Service)
		f.Printf("Invoke ID     : %d\n", apdu.InvokeID)
		f.Printf("Service       : %s (%d)\n", service, apdu.Service)
		f.Printf("Segmented     : %v\n", apdu.Segmented)
		if apdu.Segmented {
			f.Printf("More Follows  : %v\n", apdu.MoreFollows)
			f.Printf("Sequence      : %d\n", apdu.SequenceNum)
			f.Printf("Window Size   : %d\n", apdu.WindowSize)
		}
		if !apdu.Segmented {
			decodeServiceData(f, service, bacnet.RoleAck, apdu.Data)
		} else {
			f.Printf("Segment Data  : %x\n", apdu.Data)
		}

	case bacnet.PDUTypeSegmentAck:
		f.Printf("Invoke ID     : %d\n", apdu.InvokeID)
		f.Printf("Negative ACK  : %v\n", apdu.NegativeAck)
		f.Printf("From Server   : %v\n", apdu.Server)
		f.Printf("Sequence      : %d\n", apdu.SequenceNum)
		f.Printf("Window Size   : %d\n", apdu.WindowSize)

	case bacnet.PDUTypeError:
		f.Printf("Invoke ID     : %d\n", apdu.InvokeID)
		f.Printf("Service       : %s (%d)\n", bacnet.ConfirmedServiceChoice(apdu.Service), apdu.Service)
		class, code, err := bacnet.DecodeErrorPayload(apdu.Data)
		if err != nil {
			f.Printf("Error Payload : %x (undecodable: %v)\n", apdu.Data, err)
		} else {
			f.Printf("Error Class   : %s\n", class)
			f.Printf("Error Code    : %s\n", code)
		}

	case bacnet.PDUTypeReject:
		f.Printf("Invoke ID     : %d\n", apdu.InvokeID)
		f.Printf("Reason        : %s (%d)\n", bacnet.RejectReason(apdu.Service), apdu.Service)

	case bacnet.PDUTypeAbort:
		f.Printf("Invoke ID     : %d\n", apdu.InvokeID)
		f.Printf("From Server   : %v\n", apdu.Server)
		f.Printf("Reason        : %s (%d)\n", bacnet.AbortReason(apdu.Service), apdu.Service)
	}

	return nil
}

func decodeServiceData(f *Formatter, service bacnet.ConfirmedServiceChoice, role bacnet.ServiceRole, data []byte) {
	if len(data) == 0 {
		return
	}
	if !bacnet.HasConfirmedSchema(service, role) {
		f.Printf("Service Data  : %x\n", data)
		return
	}

	params, err := bacnet.DecodeConfirmedParameters(service, role, data)
	if err != nil {
		f.Printf("Service Data  : %x (undecodable: %v)\n", data, err)
		return
	}

	f.Println("Parameters    :")
	for _, p := range params {
		f.Printf("  [%d] %s\n", p.TagNumber, formatValue(p.Value))
	}
}

func decodeUnconfirmedData(f *Formatter, service bacnet.UnconfirmedServiceChoice, data []byte) {
	switch service {
	case bacnet.ServiceWhoIs:
		req, err := bacnet.DecodeWhoIsRequest(data)
		if err != nil {
			f.Printf("Service Data  : %x (undecodable: %v)\n", data, err)
			return
		}
		if req.Low != nil && req.High != nil {
			f.Printf("Device Range  : %d - %d\n", *req.Low, *req.High)
		} else {
			f.Println("Device Range  : all devices")
		}

	case bacnet.ServiceIAm:
		iam, err := bacnet.DecodeIAmNotification(data)
		if err != nil {
			f.Printf("Service Data  : %x (undecodable: %v)\n", data, err)
			return
		}
		f.Printf("Device        : %s\n", iam.ObjectID)
		f.Printf("Max APDU      : %d\n", iam.MaxAPDULength)
		f.Printf("Segmentation  : %s\n", iam.Segmentation)
		f.Printf("Vendor ID     : %d\n", iam.VendorID)

	case bacnet.ServiceUnconfirmedCOVNotification:
		cov, err := bacnet.DecodeCOVNotification(data)
		if err != nil {
			f.Printf("Service Data  : %x (undecodable: %v)\n", data, err)
			return
		}
		f.Printf("Process ID    : %d\n", cov.ProcessID)
		f.Printf("Device        : %s\n", cov.DeviceID)
		f.Printf("Object        : %s\n", cov.ObjectID)
		f.Printf("Time Remaining: %d\n", cov.TimeRemaining)
		f.Println("Values        :")
		for _, pv := range cov.Values {
			f.Printf("  %s = %s\n", pv.Property, formatValue(pv.Value))
		}

	default:
		if len(data) > 0 {
			f.Printf("Service Data  : %x\n", data)
		}
	}
}
