// Package momo implements the MoMo wallet gateway protocol: request signing,
// IPN verification and the captureWallet create call.
package momo

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/fitstack/fitstack-settlement/internal/core/domain"
)

// Field is one key=value pair of a canonical signature string.
type Field struct {
	Key   string
	Value string
}

// Canonical joins fields as k1=v1&k2=v2 in the order given.
func Canonical(fields []Field) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(f.Key)
		b.WriteByte('=')
		b.WriteString(f.Value)
	}
	return b.String()
}

// Signer computes HMAC-SHA256 signatures with the partner secret key.
type Signer struct {
	secret []byte
}

// NewSigner creates a signer for the given secret key.
func NewSigner(secretKey string) *Signer {
	return &Signer{secret: []byte(secretKey)}
}

// Sign returns the lowercase hex HMAC-SHA256 of the canonical string.
func (s *Signer) Sign(fields []Field) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(Canonical(fields)))
	return hex.EncodeToString(h.Sum(nil))
}

// CreateRequest holds the signed part of a captureWallet create request.
type CreateRequest struct {
	AccessKey   string
	Amount      int64
	ExtraData   string
	IpnURL      string
	OrderID     string
	OrderInfo   string
	PartnerCode string
	RedirectURL string
	RequestID   string
	RequestType string
}

// CreateRequestFields returns the create request fields in protocol order.
func CreateRequestFields(r CreateRequest) []Field {
	return []Field{
		{"accessKey", r.AccessKey},
		{"amount", strconv.FormatInt(r.Amount, 10)},
		{"extraData", r.ExtraData},
		{"ipnUrl", r.IpnURL},
		{"orderId", r.OrderID},
		{"orderInfo", r.OrderInfo},
		{"partnerCode", r.PartnerCode},
		{"redirectUrl", r.RedirectURL},
		{"requestId", r.RequestID},
		{"requestType", r.RequestType},
	}
}

// CallbackFields returns the IPN fields in protocol order. The access key is
// not part of the callback body; it comes from configuration.
func CallbackFields(accessKey string, cb domain.GatewayCallback) []Field {
	return []Field{
		{"accessKey", accessKey},
		{"amount", strconv.FormatInt(cb.Amount, 10)},
		{"extraData", cb.ExtraData},
		{"message", cb.Message},
		{"orderId", cb.OrderID},
		{"orderInfo", cb.OrderInfo},
		{"orderType", cb.OrderType},
		{"partnerCode", cb.PartnerCode},
		{"payType", cb.PayType},
		{"requestId", cb.RequestID},
		{"responseTime", cb.ResponseTime},
		{"resultCode", strconv.Itoa(cb.ResultCode)},
		{"transId", cb.TransID},
	}
}
