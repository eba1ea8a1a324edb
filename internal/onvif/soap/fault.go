package soap

import (
	"encoding/xml"
)

// Fault represents a SOAP 1.2 fault
type Fault struct {
	XMLName xml.Name    `xml:"s:Fault"`
	Code    FaultCode   `xml:"s:Code"`
	Reason  FaultReason `xml:"s:Reason"`
}

// FaultCode represents a SOAP fault code
type FaultCode struct {
	Value   string        `xml:"s:Value"`
	Subcode *FaultSubcode `xml:"s:Subcode,omitempty"`
}

// FaultSubcode represents a SOAP fault subcode
type FaultSubcode struct {
	Value string `xml:"s:Value"`
}

// FaultReason represents a SOAP fault reason
type FaultReason struct {
	Text FaultText `xml:"s:Text"`
}

// FaultText is the human readable reason
type FaultText struct {
	Lang  string `xml:"xml:lang,attr"`
	Value string `xml:",chardata"`
}

// Common SOAP fault codes
const (
	FaultCodeSender   = "s:Sender"
	FaultCodeReceiver = "s:Receiver"
)

// Common ONVIF fault subcodes
const (
	SubcodeNotAuthorized = "ter:NotAuthorized"
	SubcodeInvalidArgVal = "ter:InvalidArgVal"
	SubcodeActionFailed  = "ter:Action/Failure"
	SubcodeNoSuchService = "ter:ActionNotSupported"
)

// fallbackFault is returned if a fault cannot be marshalled.
const fallbackFault = xml.Header +
	`<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope">` +
	`<s:Body><s:Fault><s:Code><s:Value>s:Receiver</s:Value></s:Code>` +
	`<s:Reason><s:Text xml:lang="en">Internal error</s:Text></s:Reason>` +
	`</s:Fault></s:Body></s:Envelope>`

// NewFault creates a new SOAP fault
func NewFault(code, subcode, reason string) *Fault {
	f := &Fault{
		Code: FaultCode{
			Value: code,
		},
		Reason: FaultReason{
			Text: FaultText{Lang: "en", Value: reason},
		},
	}

	if subcode != "" {
		f.Code.Subcode = &FaultSubcode{
			Value: subcode,
		}
	}

	return f
}

// Error makes a fault usable as a handler error.
func (f *Fault) Error() string {
	if f.Code.Subcode != nil {
		return f.Code.Value + "/" + f.Code.Subcode.Value + ": " + f.Reason.Text.Value
	}
	return f.Code.Value + ": " + f.Reason.Text.Value
}

// IsSender reports whether the fault blames the client.
func (f *Fault) IsSender() bool {
	return f.Code.Value == FaultCodeSender
}

// NewNotAuthorizedFault creates a "Not Authorized" fault
func NewNotAuthorizedFault(message string) *Fault {
	if message == "" {
		message = "The action requested requires authorization and the sender is not authorized"
	}
	return NewFault(FaultCodeSender, SubcodeNotAuthorized, message)
}

// NewInvalidArgsFault creates an "Invalid Arguments" fault
func NewInvalidArgsFault(message string) *Fault {
	if message == "" {
		message = "Invalid arguments"
	}
	return NewFault(FaultCodeSender, SubcodeInvalidArgVal, message)
}

// NewActionFailedFault creates an "Action Failed" fault
func NewActionFailedFault(message string) *Fault {
	if message == "" {
		message = "The requested action failed"
	}
	return NewFault(FaultCodeReceiver, SubcodeActionFailed, message)
}

type faultEnvelope struct {
	XMLName  xml.Name `xml:"s:Envelope"`
	XmlnsS   string   `xml:"xmlns:s,attr"`
	XmlnsTer string   `xml:"xmlns:ter,attr"`
	Body     struct {
		Fault *Fault
	} `xml:"s:Body"`
}

// MarshalFault marshals a SOAP fault to a complete envelope.
// Caller supplied text is escaped by the encoder.
func MarshalFault(fault *Fault) ([]byte, error) {
	envelope := faultEnvelope{
		XmlnsS:   NamespaceEnvelope,
		XmlnsTer: NamespaceError,
	}
	envelope.Body.Fault = fault

	output, err := xml.Marshal(envelope)
	if err != nil {
		return nil, err
	}

	return append([]byte(xml.Header), output...), nil
}

// FaultEnvelope is MarshalFault that never fails.
func FaultEnvelope(fault *Fault) []byte {
	output, err := MarshalFault(fault)
	if err != nil {
		return []byte(fallbackFault)
	}
	return output
}

// BuildFault produces a fault envelope from a code and reason.
func BuildFault(code, reason string) []byte {
	return FaultEnvelope(NewFault(code, "", reason))
}
