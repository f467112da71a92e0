package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrInvalidCredentialScope = errors.New("invalid credential scope")
	ErrInvalidAccessKey       = errors.New("invalid access key")
	ErrSignatureMismatch      = errors.New("signature does not match")
)

// ValidateScope confirms a parsed credential scope targets this deployment
// (region, service) and carries the fixed aws4_request terminal.
func ValidateScope(scope CredentialScope, region, service string) error {
	switch {
	case scope.Region != region:
		return fmt.Errorf("%w: region mismatch", ErrInvalidCredentialScope)
	case scope.Service != service:
		return fmt.Errorf("%w: service mismatch", ErrInvalidCredentialScope)
	case scope.Terminal != "aws4_request":
		return fmt.Errorf("%w: terminal must be aws4_request", ErrInvalidCredentialScope)
	default:
		return nil
	}
}

// SigningKey derives the per-request signing key via the AWS4 HMAC chain:
// secret -> date -> region -> service -> "aws4_request".
func SigningKey(secret, date, region, service string) []byte {
	key := hmacSum([]byte("AWS4"+secret), date)
	key = hmacSum(key, region)
	key = hmacSum(key, service)
	return hmacSum(key, "aws4_request")
}

func SignatureHex(signingKey []byte, stringToSign string) string {
	return hex.EncodeToString(hmacSum(signingKey, stringToSign))
}

// VerifySignature performs a case-insensitive, constant-time comparison of
// two hex signatures, rejecting length mismatches outright.
func VerifySignature(expected, actual string) bool {
	expected = strings.ToLower(strings.TrimSpace(expected))
	actual = strings.ToLower(strings.TrimSpace(actual))
	if expected == "" || len(expected) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(actual)) == 1
}

// VerifyRequest re-derives the expected signature for a parsed request and
// compares it against the one the caller supplied.
func VerifyRequest(r *http.Request, auth RequestAuth, secret, region, service string) error {
	cred := auth.Authorization.Credential
	if cred.AccessKey == "" {
		return ErrInvalidAccessKey
	}
	if err := ValidateScope(cred, region, service); err != nil {
		return err
	}

	canonical, err := BuildCanonicalRequest(r, auth.SignedHeaders, auth.PayloadHash)
	if err != nil {
		return err
	}
	stringToSign := BuildStringToSign(canonical, auth.RequestTime, cred)
	key := SigningKey(secret, cred.Date, cred.Region, cred.Service)

	if !VerifySignature(SignatureHex(key, stringToSign), auth.Authorization.Signature) {
		return ErrSignatureMismatch
	}
	return nil
}

func hmacSum(key []byte, message string) []byte {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(message))
	return mac.Sum(nil)
}
