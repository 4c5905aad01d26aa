package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// MetaSignaturePrefix is the envelope used in X-Hub-Signature-256
const MetaSignaturePrefix = "sha256="

// SignWebhookPayload returns prefix + hex(HMAC-SHA256(payload, secret))
func SignWebhookPayload(payload []byte, secret, prefix string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return prefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks a "sha256=<hex>" signature over the raw payload
func VerifyWebhookSignature(payload []byte, signature, secret string) bool {
	return VerifyPrefixedSignature(payload, signature, secret, MetaSignaturePrefix)
}

// VerifyPrefixedSignature checks signature against prefix + hex digest, byte for byte.
func VerifyPrefixedSignature(payload []byte, signature, secret, prefix string) bool {
	if signature == "" || secret == "" {
		return false
	}
	expected := SignWebhookPayload(payload, secret, prefix)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// SecureCompare compares two shared keys in constant time
func SecureCompare(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
