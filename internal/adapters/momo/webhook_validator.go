package momo

import (
	"crypto/hmac"
	"log"
	"strings"

	"github.com/fitstack/fitstack-settlement/internal/core/domain"
)

// WebhookValidator validates MoMo IPN signatures.
type WebhookValidator struct {
	accessKey string
	signer    *Signer
}

// NewWebhookValidator creates a new webhook validator.
func NewWebhookValidator(accessKey, secretKey string) *WebhookValidator {
	return &WebhookValidator{accessKey: accessKey, signer: NewSigner(secretKey)}
}

// Verify recomputes the IPN signature over the callback fields and compares
// it with the received one, ignoring case.
//
// The signed string is:
// accessKey=..&amount=..&extraData=..&message=..&orderId=..&orderInfo=..&orderType=..
// &partnerCode=..&payType=..&requestId=..&responseTime=..&resultCode=..&transId=..
func (v *WebhookValidator) Verify(cb domain.GatewayCallback) bool {
	received := strings.ToLower(strings.TrimSpace(cb.Signature))
	if received == "" {
		log.Printf("IPN for order %s carries no signature", cb.OrderID)
		return false
	}

	expected := v.signer.Sign(CallbackFields(v.accessKey, cb))

	// Compare signatures (constant-time comparison)
	if !hmac.Equal([]byte(received), []byte(expected)) {
		log.Printf("IPN signature mismatch for order %s: computed=%s received=%s", cb.OrderID, expected, received)
		return false
	}
	return true
}
