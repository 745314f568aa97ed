// Package ports defines the interfaces (ports) for the settlement service.
// These are contracts that adapters must implement.
package ports

import (
	"context"
	"time"

	"github.com/fitstack/fitstack-settlement/internal/core/domain"
	"github.com/google/uuid"
)

// PaymentGateway talks to the external wallet gateway.
type PaymentGateway interface {
	// CreateCharge signs and sends the outbound charge request.
	// Transport failures and timeouts wrap domain.ErrGatewayUnavailable.
	CreateCharge(ctx context.Context, order domain.ChargeOrder) (*domain.ChargeResponse, error)
}

// CallbackVerifier authenticates inbound gateway callbacks.
type CallbackVerifier interface {
	// Verify recomputes the callback signature. It never mutates state.
	Verify(cb domain.GatewayCallback) bool
}

// PaymentRepository persists payments. Status changes are conditional so
// concurrent settlements of one order cannot both win.
type PaymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error)

	// UpdateMetadata replaces the gateway metadata; status is untouched.
	UpdateMetadata(ctx context.Context, id uuid.UUID, meta domain.GatewayMetadata) error

	// TransitionStatus moves the payment from `from` to `to` and reports
	// whether this call performed the transition. transID is stamped when non-nil.
	TransitionStatus(ctx context.Context, orderID string, from, to domain.PaymentStatus, transID *string) (bool, error)

	// CountPendingBefore counts pending payments created before t.
	CountPendingBefore(ctx context.Context, t time.Time) (int64, error)
}

// MembershipRepository persists memberships.
type MembershipRepository interface {
	Create(ctx context.Context, m *domain.Membership) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Membership, error)
	GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*domain.Membership, error)
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]domain.Membership, error)

	// UpdateState writes status and start date only if the stored status is
	// still `from`, reporting whether the row changed.
	UpdateState(ctx context.Context, id uuid.UUID, from domain.MembershipStatus, to domain.MembershipStatus, startDate *time.Time) (bool, error)

	// AdjustUsedSessions adds delta to used sessions on an active membership,
	// keeping 0 <= used <= available; false when the bound would be crossed.
	AdjustUsedSessions(ctx context.Context, id uuid.UUID, delta int) (bool, error)

	// ExpireEnded flips active memberships whose end date is before now.
	ExpireEnded(ctx context.Context, now time.Time) (int64, error)
}

// PackageRepository reads packages.
type PackageRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Package, error)
}

// PromotionRepository reads promotions.
type PromotionRepository interface {
	// FindActiveForPackage returns the best active promotion for the package at
	// time t, or nil when none applies.
	FindActiveForPackage(ctx context.Context, packageID uuid.UUID, t time.Time) (*domain.Promotion, error)
}

// MemberDirectory answers whether a member exists in FitStack Core.
type MemberDirectory interface {
	MemberExists(ctx context.Context, memberID uuid.UUID) (bool, error)
}

// ActivationNotifier tells FitStack Core that a membership became active.
type ActivationNotifier interface {
	NotifyMembershipActivated(ctx context.Context, evt domain.MembershipActivated) error
}

// TxManager runs fn inside one database transaction; repositories called
// with the ctx passed to fn join it.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderLocker serializes work on a single order id.
type OrderLocker interface {
	// Acquire blocks until the lock for key is held or ctx ends.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Clock returns the current time. Services take one so tests can pin "now".
type Clock func() time.Time
