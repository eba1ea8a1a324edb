// Package auth validates WS-Security UsernameTokens: password digests,
// Created timestamps, nonce replay and the per-request gate combining them.
package auth

import (
	"crypto/sha1" //nolint:gosec // SHA-1 is mandated by the UsernameToken profile
	"crypto/subtle"
	"encoding/base64"
)

// ComputeDigest returns Base64(SHA-1(nonce || created || password)), the
// PasswordDigest of the WS-Security UsernameToken profile.
func ComputeDigest(nonce []byte, created, password string) string {
	hash := sha1.New() //nolint:gosec
	hash.Write(nonce)
	hash.Write([]byte(created))
	hash.Write([]byte(password))
	return base64.StdEncoding.EncodeToString(hash.Sum(nil))
}

// ValidateDigest reports whether clientDigest is the PasswordDigest for the
// Base64 encoded nonce, the created string and the stored password. Empty
// arguments and a nonce that is not valid Base64 never validate.
func ValidateDigest(clientDigest, nonceB64, created, password string) bool {
	if clientDigest == "" || nonceB64 == "" || created == "" || password == "" {
		return false
	}

	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil || len(nonce) == 0 {
		return false
	}

	expected := ComputeDigest(nonce, created, password)
	return subtle.ConstantTimeCompare([]byte(clientDigest), []byte(expected)) == 1
}

// equalSecret compares a plaintext password in constant time.
func equalSecret(given, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(given), []byte(stored)) == 1
}
