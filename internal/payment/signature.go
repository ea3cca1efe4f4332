package payment

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log"
	"strings"
)

var (
	ErrMissingSignature = errors.New("notification signature is missing")
	ErrInvalidSignature = errors.New("notification signature does not match")
)

// Signature computes the gateway's notification signature:
// hex(SHA-512(order_id + status_code + gross_amount + server_key)).
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// SignatureVerifier checks notification authenticity against the server key.
type SignatureVerifier struct {
	serverKey string
	required  bool
}

// NewSignatureVerifier creates a verifier. With required=false, notifications that
// carry no signature at all are accepted; a signature that is present is still checked.
func NewSignatureVerifier(serverKey string, required bool) *SignatureVerifier {
	if !required {
		log.Println("WARNING: webhook signature verification is disabled; unsigned payment notifications will be trusted")
	}
	return &SignatureVerifier{serverKey: serverKey, required: required}
}

// Verify validates the notification. signature is the value of the signature header;
// when empty, the body's signature_key is used instead.
func (v *SignatureVerifier) Verify(n Notification, signature string) error {
	if signature == "" {
		signature = n.SignatureKey
	}
	if signature == "" {
		if v.required {
			return ErrMissingSignature
		}
		log.Printf("WARNING: accepting unsigned payment notification for order %s", n.OrderID)
		return nil
	}

	expected := Signature(n.OrderID, n.StatusCode, n.GrossAmount.String(), v.serverKey)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(signature))) != 1 {
		return ErrInvalidSignature
	}
	return nil
}
