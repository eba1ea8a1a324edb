// Package wsse signs outgoing ONVIF SOAP requests with a WS-Security
// UsernameToken.
package wsse

import (
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	nsSecext  = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
	nsUtility = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd"

	passwordDigestType = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-username-token-profile-1.0#PasswordDigest"
	passwordTextType   = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-username-token-profile-1.0#PasswordText"
	base64BinaryType   = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-soap-message-security-1.0#Base64Binary"

	createdLayout = "2006-01-02T15:04:05Z"
	nonceSize     = 16
)

// ErrNoBody is returned when a request has no SOAP Body to sign.
var ErrNoBody = errors.New("wsse: envelope has no Body element")

var (
	headerTag = regexp.MustCompile(`<([A-Za-z_][\w.-]*:)?Header(\s[^>]*)?/?>`)
	bodyTag   = regexp.MustCompile(`<([A-Za-z_][\w.-]*:)?Body[\s/>]`)
)

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// Token holds the values of one UsernameToken
type Token struct {
	Username string
	Password string
	Nonce    []byte
	Created  time.Time
	// Digest sends Base64(SHA1(nonce + created + password)) instead of the
	// plain password.
	Digest bool
}

// NewToken creates a digest token with a random nonce.
func NewToken(username, password string, now time.Time) (*Token, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return &Token{
		Username: username,
		Password: password,
		Nonce:    nonce,
		Created:  now.UTC(),
		Digest:   true,
	}, nil
}

// PasswordDigest computes Base64(SHA1(nonce + created + password)).
func PasswordDigest(nonce []byte, created, password string) string {
	h := sha1.New()
	h.Write(nonce)
	h.Write([]byte(created))
	h.Write([]byte(password))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Header renders the wsse:Security header block.
func (t *Token) Header() string {
	created := t.Created.UTC().Format(createdLayout)
	password, passwordType := t.Password, passwordTextType
	if t.Digest {
		password, passwordType = PasswordDigest(t.Nonce, created, t.Password), passwordDigestType
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<wsse:Security xmlns:wsse="%s" xmlns:wsu="%s">`, nsSecext, nsUtility)
	b.WriteString(`<wsse:UsernameToken>`)
	fmt.Fprintf(&b, `<wsse:Username>%s</wsse:Username>`, xmlEscaper.Replace(t.Username))
	fmt.Fprintf(&b, `<wsse:Password Type="%s">%s</wsse:Password>`, passwordType, xmlEscaper.Replace(password))
	if len(t.Nonce) > 0 {
		fmt.Fprintf(&b, `<wsse:Nonce EncodingType="%s">%s</wsse:Nonce>`,
			base64BinaryType, base64.StdEncoding.EncodeToString(t.Nonce))
	}
	if !t.Created.IsZero() {
		fmt.Fprintf(&b, `<wsu:Created>%s</wsu:Created>`, created)
	}
	b.WriteString(`</wsse:UsernameToken></wsse:Security>`)
	return b.String()
}

// Sign inserts the token's Security block into envelope, creating a Header
// when the envelope has none.
func (t *Token) Sign(envelope []byte) ([]byte, error) {
	security := t.Header()

	if loc := headerTag.FindSubmatchIndex(envelope); loc != nil {
		tag := envelope[loc[0]:loc[1]]
		var out bytes.Buffer
		out.Write(envelope[:loc[0]])
		if bytes.HasSuffix(tag, []byte("/>")) {
			var prefix []byte
			if loc[2] >= 0 {
				prefix = envelope[loc[2]:loc[3]]
			}
			out.Write(tag[:len(tag)-2])
			out.WriteString(">" + security + "</")
			out.Write(prefix)
			out.WriteString("Header>")
		} else {
			out.Write(tag)
			out.WriteString(security)
		}
		out.Write(envelope[loc[1]:])
		return out.Bytes(), nil
	}

	loc := bodyTag.FindSubmatchIndex(envelope)
	if loc == nil {
		return nil, ErrNoBody
	}
	var prefix string
	if loc[2] >= 0 {
		prefix = string(envelope[loc[2]:loc[3]])
	}
	var out bytes.Buffer
	out.Write(envelope[:loc[0]])
	fmt.Fprintf(&out, "<%sHeader>%s</%sHeader>", prefix, security, prefix)
	out.Write(envelope[loc[0]:])
	return out.Bytes(), nil
}

// Envelope wraps a body fragment in a SOAP 1.2 envelope declaring the
// ONVIF device, media and schema namespaces.
func Envelope(body string) []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"` +
		` xmlns:tds="http://www.onvif.org/ver10/device/wsdl"` +
		` xmlns:trt="http://www.onvif.org/ver10/media/wsdl"` +
		` xmlns:tt="http://www.onvif.org/ver10/schema">` +
		`<s:Body>` + body + `</s:Body></s:Envelope>`)
}

// Transport signs every request body with a fresh UsernameToken
type Transport struct {
	Username string
	Password string
	// PlainText sends the password as PasswordText.
	PlainText bool
	Transport http.RoundTripper
	Now       func() time.Time
}

// NewTransport creates a digest-signing transport over http.DefaultTransport.
func NewTransport(username, password string) *Transport {
	return &Transport{
		Username:  username,
		Password:  password,
		Transport: http.DefaultTransport,
		Now:       time.Now,
	}
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return t.base().RoundTrip(req)
	}
	body, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}

	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	token, err := NewToken(t.Username, t.Password, now())
	if err != nil {
		return nil, err
	}
	token.Digest = !t.PlainText

	signed, err := token.Sign(body)
	if err != nil {
		return nil, err
	}

	req2 := cloneRequest(req)
	req2.Body = io.NopCloser(bytes.NewReader(signed))
	req2.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(signed)), nil
	}
	req2.ContentLength = int64(len(signed))
	return t.base().RoundTrip(req2)
}

func (t *Transport) base() http.RoundTripper {
	if t.Transport != nil {
		return t.Transport
	}
	return http.DefaultTransport
}

// cloneRequest creates a shallow copy of the request with its own headers
func cloneRequest(req *http.Request) *http.Request {
	req2 := new(http.Request)
	*req2 = *req
	req2.Header = make(http.Header, len(req.Header))
	for k, v := range req.Header {
		req2.Header[k] = v
	}
	return req2
}
