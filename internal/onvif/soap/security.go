package soap

import (
	"strings"
	"unicode/utf8"
)

// Field bounds for UsernameToken values. Longer values are truncated.
const (
	MaxUsernameLen = 64
	MaxPasswordLen = 64
	MaxNonceLen    = 64
	MaxCreatedLen  = 64
)

// PasswordDigestMarker identifies the digest password type, as in
// http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-username-token-profile-1.0#PasswordDigest
const PasswordDigestMarker = "PasswordDigest"

// UsernameToken is the WS-Security UsernameToken of a single request.
type UsernameToken struct {
	Username string
	// Password holds the plaintext password, or the Base64 digest when IsDigest is set.
	Password string
	Nonce    string
	Created  string
	IsDigest bool
}

// ExtractToken parses a WS-Security header fragment into a UsernameToken.
// Username and Password are required; Nonce and Created are optional.
func ExtractToken(header string) (*UsernameToken, error) {
	scope := header
	if el, ok, err := findElement(header, "UsernameToken", 0); err == nil && ok {
		scope = header[el.innerStart:el.innerEnd]
	}

	username, ok := ElementText(scope, "Username")
	if !ok {
		return nil, ErrMissingUsername
	}

	pw, ok, err := findElement(scope, "Password", 0)
	if err != nil || !ok {
		return nil, ErrMissingPassword
	}

	token := &UsernameToken{
		Username: truncate(strings.TrimSpace(username), MaxUsernameLen),
		Password: truncate(xmlUnescaper.Replace(scope[pw.innerStart:pw.innerEnd]), MaxPasswordLen),
		IsDigest: strings.Contains(scope[pw.open.start:pw.open.end], PasswordDigestMarker),
	}
	if nonce, ok := ElementText(scope, "Nonce"); ok {
		token.Nonce = truncate(strings.TrimSpace(nonce), MaxNonceLen)
	}
	if created, ok := ElementText(scope, "Created"); ok {
		token.Created = truncate(strings.TrimSpace(created), MaxCreatedLen)
	}

	return token, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
