// Package domain contains the core business entities for the settlement service.
// This is the innermost layer - no dependencies on frameworks or infrastructure.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the lifecycle state of a Payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentCompleted || s == PaymentFailed || s == PaymentCancelled
}

// MembershipStatus is the lifecycle state of a Membership.
type MembershipStatus string

const (
	MembershipActive    MembershipStatus = "active"
	MembershipPaused    MembershipStatus = "paused"
	MembershipExpired   MembershipStatus = "expired"
	MembershipCancelled MembershipStatus = "cancelled"
)

// DefaultCurrency is the only currency the wallet gateway settles in.
const DefaultCurrency = "VND"

// Payment represents one attempted charge.
type Payment struct {
	ID               uuid.UUID         `json:"id"`
	OrderID          string            `json:"order_id"`
	TransID          *string           `json:"trans_id,omitempty"` // set only on completion
	MemberID         uuid.UUID         `json:"member_id"`
	PackageID        uuid.UUID         `json:"package_id"`
	Amount           int64             `json:"amount"` // minor units, immutable
	Currency         string            `json:"currency"`
	Status           PaymentStatus     `json:"status"`
	Method           string            `json:"method"`
	Metadata         GatewayMetadata   `json:"metadata"`
	AppliedPromotion *AppliedPromotion `json:"applied_promotion,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// GatewayMetadata is the fixed-shape record of what the gateway round-trip produced.
type GatewayMetadata struct {
	RequestID string `json:"request_id"`
	OrderID   string `json:"order_id"`
	PayURL    string `json:"pay_url,omitempty"`
}

// AppliedPromotion snapshots the promotion used to price a Payment.
type AppliedPromotion struct {
	PromotionID     uuid.UUID `json:"promotion_id"`
	Code            string    `json:"code"`
	DiscountPercent float64   `json:"discount_percent"`
	OriginalAmount  int64     `json:"original_amount"`
}

// Membership represents a subscription to a package bought with a Payment.
type Membership struct {
	ID                uuid.UUID        `json:"id"`
	MemberID          uuid.UUID        `json:"member_id"`
	PackageID         uuid.UUID        `json:"package_id"`
	PaymentID         uuid.UUID        `json:"payment_id"`
	StartDate         *time.Time       `json:"start_date"` // nil while paused
	EndDate           time.Time        `json:"end_date"`
	AutoRenew         bool             `json:"auto_renew"`
	Status            MembershipStatus `json:"status"`
	AvailableSessions int              `json:"available_sessions"`
	UsedSessions      int              `json:"used_sessions"`
	LastSessionReset  *time.Time       `json:"last_session_reset,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// RemainingSessions returns the unused session credits.
func (m *Membership) RemainingSessions() int {
	return m.AvailableSessions - m.UsedSessions
}

// Package is a purchasable training offering owned by FitStack Core.
type Package struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Price            int64     `json:"price"` // minor units
	DurationDays     int       `json:"duration_days"`
	TrainingSessions int       `json:"training_sessions"`
	Active           bool      `json:"active"`
}

// Promotion discounts a set of packages during a window.
type Promotion struct {
	ID              uuid.UUID   `json:"id"`
	Code            string      `json:"code"`
	DiscountPercent float64     `json:"discount_percent"`
	Status          string      `json:"status"`
	StartDate       time.Time   `json:"start_date"`
	EndDate         time.Time   `json:"end_date"`
	PackageIDs      []uuid.UUID `json:"package_ids"`
}

// PromotionActive is the status value of a usable promotion.
const PromotionActive = "active"

// AppliesTo reports whether the promotion discounts pkgID at time t.
func (p *Promotion) AppliesTo(pkgID uuid.UUID, t time.Time) bool {
	if p.Status != PromotionActive || t.Before(p.StartDate) || t.After(p.EndDate) {
		return false
	}
	for _, id := range p.PackageIDs {
		if id == pkgID {
			return true
		}
	}
	return false
}

// ChargeOrder is what the Request Initiator hands to the gateway.
type ChargeOrder struct {
	OrderID   string
	RequestID string
	Amount    int64
	OrderInfo string
	ExtraData string // correlation blob
}

// ChargeResponse is the gateway's answer to a ChargeOrder.
type ChargeResponse struct {
	PayURL       string
	ResultCode   int
	Message      string
	ResponseTime int64
}

// ChargeResult is returned to the member after initiating a charge.
type ChargeResult struct {
	PaymentID uuid.UUID `json:"payment_id"`
	OrderID   string    `json:"order_id"`
	Amount    int64     `json:"amount"`
	PayURL    string    `json:"pay_url"`
}

// ResultCodeSuccess is the gateway's canonical success code.
const ResultCodeSuccess = 0

// GatewayCallback is the inbound IPN notification from the wallet gateway.
// String fields keep the exact textual form that was signed.
type GatewayCallback struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      string `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime string `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature"`
}

// Succeeded reports whether the gateway confirmed the charge.
func (c *GatewayCallback) Succeeded() bool {
	return c.ResultCode == ResultCodeSuccess
}

// MembershipActivated is sent to FitStack Core after a settlement activates a membership.
type MembershipActivated struct {
	MembershipID uuid.UUID `json:"membership_id"`
	MemberID     uuid.UUID `json:"member_id"`
	PackageID    uuid.UUID `json:"package_id"`
	PaymentID    uuid.UUID `json:"payment_id"`
	OrderID      string    `json:"order_id"`
	Amount       int64     `json:"amount"`
	EndDate      time.Time `json:"end_date"`
}
