package soap

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const digestHeader = `<wsse:Security xmlns:wsse="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd" xmlns:wsu="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd">
  <wsse:UsernameToken>
    <wsse:Username>admin</wsse:Username>
    <wsse:Password Type="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-username-token-profile-1.0#PasswordDigest">tuOSpGlFlIXsozq4HFNeeGeFLEI=</wsse:Password>
    <wsse:Nonce EncodingType="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-soap-message-security-1.0#Base64Binary">LKqI6G/AikKCQrN0zqZFlg==</wsse:Nonce>
    <wsu:Created>2024-01-01T12:00:00Z</wsu:Created>
  </wsse:UsernameToken>
</wsse:Security>`

func TestExtractToken(t *testing.T) {
	t.Run("digest token", func(t *testing.T) {
		token, err := ExtractToken(digestHeader)
		require.NoError(t, err)
		assert.Equal(t, "admin", token.Username)
		assert.Equal(t, "tuOSpGlFlIXsozq4HFNeeGeFLEI=", token.Password)
		assert.Equal(t, "LKqI6G/AikKCQrN0zqZFlg==", token.Nonce)
		assert.Equal(t, "2024-01-01T12:00:00Z", token.Created)
		assert.True(t, token.IsDigest)
	})

	t.Run("plaintext token without nonce or created", func(t *testing.T) {
		token, err := ExtractToken(`<Security><UsernameToken><Username>admin</Username><Password Type="...#PasswordText">admin123</Password></UsernameToken></Security>`)
		require.NoError(t, err)
		assert.Equal(t, "admin", token.Username)
		assert.Equal(t, "admin123", token.Password)
		assert.Empty(t, token.Nonce)
		assert.Empty(t, token.Created)
		assert.False(t, token.IsDigest)
	})

	t.Run("password without type is plaintext", func(t *testing.T) {
		token, err := ExtractToken(`<Username>u</Username><Password>p</Password>`)
		require.NoError(t, err)
		assert.False(t, token.IsDigest)
	})

	t.Run("entities are expanded", func(t *testing.T) {
		token, err := ExtractToken(`<Username>a&amp;b</Username><Password>p&lt;&amp;lt;&quot;&apos;&gt;</Password>`)
		require.NoError(t, err)
		assert.Equal(t, "a&b", token.Username)
		assert.Equal(t, `p<&lt;"'>`, token.Password)
	})

	t.Run("password whitespace is preserved", func(t *testing.T) {
		token, err := ExtractToken(`<Username> admin </Username><Password> secret </Password>`)
		require.NoError(t, err)
		assert.Equal(t, "admin", token.Username)
		assert.Equal(t, " secret ", token.Password)
	})

	t.Run("created outside the token is ignored", func(t *testing.T) {
		token, err := ExtractToken(`<wsu:Timestamp><wsu:Created>2020-01-01T00:00:00Z</wsu:Created></wsu:Timestamp><wsse:UsernameToken><wsse:Username>u</wsse:Username><wsse:Password>p</wsse:Password></wsse:UsernameToken>`)
		require.NoError(t, err)
		assert.Empty(t, token.Created)
	})

	t.Run("missing username", func(t *testing.T) {
		_, err := ExtractToken(`<UsernameToken><Password>p</Password></UsernameToken>`)
		assert.ErrorIs(t, err, ErrMissingUsername)
	})

	t.Run("missing password", func(t *testing.T) {
		_, err := ExtractToken(`<UsernameToken><Username>u</Username></UsernameToken>`)
		assert.ErrorIs(t, err, ErrMissingPassword)
	})

	t.Run("unclosed password", func(t *testing.T) {
		_, err := ExtractToken(`<Username>u</Username><Password>p`)
		assert.ErrorIs(t, err, ErrMissingPassword)
	})

	t.Run("empty header", func(t *testing.T) {
		_, err := ExtractToken("")
		assert.ErrorIs(t, err, ErrMissingUsername)
	})
}

func TestExtractTokenTruncates(t *testing.T) {
	long := strings.Repeat("a", 500)
	token, err := ExtractToken(`<Username>` + long + `</Username><Password>` + long + `</Password><Nonce>` + long + `</Nonce><Created>` + long + `</Created>`)
	require.NoError(t, err)
	assert.Len(t, token.Username, MaxUsernameLen)
	assert.Len(t, token.Password, MaxPasswordLen)
	assert.Len(t, token.Nonce, MaxNonceLen)
	assert.Len(t, token.Created, MaxCreatedLen)

	t.Run("multi-byte values stay valid UTF-8", func(t *testing.T) {
		token, err := ExtractToken(`<Username>x` + strings.Repeat("é", 40) + `</Username><Password>p</Password>`)
		require.NoError(t, err)
		assert.True(t, utf8.ValidString(token.Username))
		assert.LessOrEqual(t, len(token.Username), MaxUsernameLen)
		assert.Equal(t, MaxUsernameLen-1, len(token.Username))
	})
}
