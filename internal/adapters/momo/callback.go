package momo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fitstack/fitstack-settlement/internal/core/domain"
)

// ParseCallback decodes an IPN body leniently: keys match regardless of case,
// and numeric fields may arrive as JSON numbers or strings. Text fields keep
// the exact form that was signed.
func ParseCallback(body []byte) (domain.GatewayCallback, error) {
	var cb domain.GatewayCallback

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return cb, fmt.Errorf("%w: callback body: %v", domain.ErrInvalidRequest, err)
	}
	if raw == nil {
		return cb, fmt.Errorf("%w: callback body is null", domain.ErrInvalidRequest)
	}

	fields := make(map[string]any, len(raw))
	for k, v := range raw {
		fields[strings.ToLower(k)] = v
	}

	cb.PartnerCode = text(fields["partnercode"])
	cb.OrderID = text(fields["orderid"])
	cb.RequestID = text(fields["requestid"])
	cb.OrderInfo = text(fields["orderinfo"])
	cb.OrderType = text(fields["ordertype"])
	cb.TransID = text(fields["transid"])
	cb.Message = text(fields["message"])
	cb.PayType = text(fields["paytype"])
	cb.ResponseTime = text(fields["responsetime"])
	cb.ExtraData = text(fields["extradata"])
	cb.Signature = text(fields["signature"])

	if cb.OrderID == "" {
		return cb, fmt.Errorf("%w: callback has no orderId", domain.ErrInvalidRequest)
	}

	amount, err := integer(fields, "amount")
	if err != nil {
		return cb, err
	}
	cb.Amount = amount

	code, err := integer(fields, "resultcode")
	if err != nil {
		return cb, err
	}
	cb.ResultCode = int(code)

	return cb, nil
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func integer(fields map[string]any, key string) (int64, error) {
	v, ok := fields[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: callback has no %s", domain.ErrInvalidRequest, key)
	}

	s := strings.TrimSpace(text(v))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	// some senders render integers as 450000.0
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: callback %s %q is not an integer", domain.ErrInvalidRequest, key, s)
	}
	return int64(f), nil
}
