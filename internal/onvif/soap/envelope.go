package soap

import (
	"encoding/xml"
)

// Namespaces used in every envelope this server produces
const (
	NamespaceEnvelope = "http://www.w3.org/2003/05/soap-envelope"
	NamespaceDevice   = "http://www.onvif.org/ver10/device/wsdl"
	NamespaceMedia    = "http://www.onvif.org/ver10/media/wsdl"
	NamespaceSchema   = "http://www.onvif.org/ver10/schema"
	NamespaceError    = "http://www.onvif.org/ver10/error"
)

// NamespacePTZ is advertised by GetServices when PTZ is enabled.
const NamespacePTZ = "http://www.onvif.org/ver20/ptz/wsdl"

// Envelope is the request-scoped view of an inbound SOAP envelope.
// Header and Body hold the raw inner markup of those elements.
type Envelope struct {
	Header string
	Body   string
	// Action is the local name of the first element inside Body, empty when
	// the body has no child element.
	Action string
}

// envelopeScope returns the region holding the Envelope's children. A
// document without an Envelope element is scanned from its top level.
func envelopeScope(doc string) (from, to int, err error) {
	env, ok, err := findElement(doc, "Envelope", 0)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, len(doc), nil
	}
	return env.innerStart, env.innerEnd, nil
}

// Extract locates the Header and Body of a raw envelope. Body, Header and
// Envelope are matched with any namespace prefix (s:Body, soap:Body, Body).
func Extract(raw []byte) (*Envelope, error) {
	doc := string(raw)
	from, to, err := envelopeScope(doc)
	if err != nil {
		return nil, err
	}

	body, ok, err := findChild(doc, from, to, "Body")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrMissingBody
	}

	env := &Envelope{Body: doc[body.innerStart:body.innerEnd]}

	first, ok, err := nextTag(doc[:body.innerEnd], body.innerStart)
	if err != nil {
		return nil, err
	}
	if ok && !first.closing {
		env.Action = first.local()
	}

	header, ok, err := findChild(doc, from, to, "Header")
	if err != nil {
		return nil, err
	}
	if ok {
		env.Header = doc[header.innerStart:header.innerEnd]
	}

	return env, nil
}

// ExtractHeader returns the inner markup of the envelope's Header. A missing
// Header is not an error and yields an empty string.
func ExtractHeader(raw []byte) (string, error) {
	doc := string(raw)
	from, to, err := envelopeScope(doc)
	if err != nil {
		return "", err
	}
	header, ok, err := findChild(doc, from, to, "Header")
	if err != nil || !ok {
		return "", err
	}
	return doc[header.innerStart:header.innerEnd], nil
}

type responseEnvelope struct {
	XMLName  xml.Name     `xml:"s:Envelope"`
	XmlnsS   string       `xml:"xmlns:s,attr"`
	XmlnsTds string       `xml:"xmlns:tds,attr"`
	XmlnsTrt string       `xml:"xmlns:trt,attr"`
	XmlnsTt  string       `xml:"xmlns:tt,attr"`
	Body     responseBody `xml:"s:Body"`
}

type responseBody struct {
	Content string `xml:",innerxml"`
}

// BuildResponse wraps a body fragment in a complete SOAP 1.2 envelope
// declaring the s, tds, trt and tt prefixes. The fragment is inserted
// verbatim and may be empty.
func BuildResponse(fragment string) []byte {
	env := responseEnvelope{
		XmlnsS:   NamespaceEnvelope,
		XmlnsTds: NamespaceDevice,
		XmlnsTrt: NamespaceMedia,
		XmlnsTt:  NamespaceSchema,
		Body:     responseBody{Content: fragment},
	}
	output, err := xml.Marshal(env)
	if err != nil {
		return BuildFault(FaultCodeReceiver, "Failed to build response")
	}
	return append([]byte(xml.Header), output...)
}

// MarshalBody renders a typed response body into a fragment for BuildResponse.
func MarshalBody(v any) (string, error) {
	output, err := xml.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(output), nil
}
