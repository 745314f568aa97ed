// Package service implements the core business logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fitstack/fitstack-settlement/internal/core/domain"
	"github.com/fitstack/fitstack-settlement/internal/core/ports"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "fitstack/settlement"

var tracer = otel.Tracer(instrumentationName)

// CheckoutConfig holds the per-deployment values stamped on every charge.
type CheckoutConfig struct {
	OrderPrefix string
	OrderInfo   string
	Method      string
}

// CheckoutService initiates charges against the wallet gateway.
type CheckoutService struct {
	cfg        CheckoutConfig
	gateway    ports.PaymentGateway
	payments   ports.PaymentRepository
	packages   ports.PackageRepository
	promotions ports.PromotionRepository
	members    ports.MemberDirectory
	now        ports.Clock
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(
	cfg CheckoutConfig,
	gateway ports.PaymentGateway,
	payments ports.PaymentRepository,
	packages ports.PackageRepository,
	promotions ports.PromotionRepository,
	members ports.MemberDirectory,
	now ports.Clock,
) *CheckoutService {
	if now == nil {
		now = time.Now
	}
	return &CheckoutService{
		cfg:        cfg,
		gateway:    gateway,
		payments:   payments,
		packages:   packages,
		promotions: promotions,
		members:    members,
		now:        now,
	}
}

// CreateCharge prices the package, records a pending payment and asks the
// gateway for a pay URL. The pending payment is kept whatever the gateway says.
func (s *CheckoutService) CreateCharge(ctx context.Context, memberID, packageID uuid.UUID) (*domain.ChargeResult, error) {
	ctx, span := tracer.Start(ctx, "checkout.create_charge", trace.WithAttributes(
		attribute.String("member_id", memberID.String()),
		attribute.String("package_id", packageID.String()),
	))
	defer span.End()

	result, err := s.createCharge(ctx, memberID, packageID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("order_id", result.OrderID), attribute.Int64("amount", result.Amount))
	return result, nil
}

func (s *CheckoutService) createCharge(ctx context.Context, memberID, packageID uuid.UUID) (*domain.ChargeResult, error) {
	if memberID == uuid.Nil || packageID == uuid.Nil {
		return nil, domain.NewServiceError(domain.ErrInvalidRequest,
			"member_id and package_id are required", "VALIDATION_ERROR")
	}

	exists, err := s.members.MemberExists(ctx, memberID)
	if err != nil {
		log.Printf("Failed to check member %s: %v", memberID, err)
		return nil, fmt.Errorf("check member %s: %w", memberID, err)
	}
	if !exists {
		return nil, domain.NewServiceError(domain.ErrMemberNotFound,
			"member not found: "+memberID.String(), "MEMBER_NOT_FOUND")
	}

	pkg, err := s.packages.GetByID(ctx, packageID)
	if err != nil {
		if errors.Is(err, domain.ErrPackageNotFound) {
			return nil, domain.NewServiceError(err, "package not found: "+packageID.String(), "PACKAGE_NOT_FOUND")
		}
		return nil, fmt.Errorf("load package %s: %w", packageID, err)
	}
	if !pkg.Active {
		return nil, domain.NewServiceError(domain.ErrPackageNotFound,
			"package is not on sale: "+packageID.String(), "PACKAGE_INACTIVE")
	}

	now := s.now().UTC()
	promo, err := s.promotions.FindActiveForPackage(ctx, pkg.ID, now)
	if err != nil {
		return nil, fmt.Errorf("find promotion for package %s: %w", pkg.ID, err)
	}

	amount, applied := quote(pkg, promo)
	if amount <= 0 {
		return nil, domain.NewServiceError(domain.ErrInvalidRequest,
			"charge amount must be positive", "INVALID_AMOUNT")
	}

	orderID := newOrderID(s.cfg.OrderPrefix, now)
	requestID := uuid.NewString()

	payment := &domain.Payment{
		ID:        uuid.New(),
		OrderID:   orderID,
		MemberID:  memberID,
		PackageID: pkg.ID,
		Amount:    amount,
		Currency:  domain.DefaultCurrency,
		Status:    domain.PaymentPending,
		Method:    s.cfg.Method,
		Metadata: domain.GatewayMetadata{
			RequestID: requestID,
			OrderID:   orderID,
		},
		AppliedPromotion: applied,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// must be durable before the gateway hears about the order
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("persist pending payment %s: %w", orderID, err)
	}

	resp, err := s.gateway.CreateCharge(ctx, domain.ChargeOrder{
		OrderID:   orderID,
		RequestID: requestID,
		Amount:    amount,
		OrderInfo: s.cfg.OrderInfo,
		ExtraData: domain.EncodeCorrelation(memberID, pkg.ID),
	})
	if err == nil && resp.ResultCode != domain.ResultCodeSuccess {
		err = fmt.Errorf("%w: resultCode=%d message=%q", domain.ErrGatewayRejected, resp.ResultCode, resp.Message)
	}
	if err != nil {
		log.Printf("Failed to create charge for order %s (payment %s stays pending): %v", orderID, payment.ID, err)
		return nil, gatewayError(err)
	}

	payment.Metadata.PayURL = resp.PayURL
	if err := s.payments.UpdateMetadata(ctx, payment.ID, payment.Metadata); err != nil {
		// the charge exists at the gateway; the member can still pay
		log.Printf("Failed to store pay URL for order %s: %v", orderID, err)
	}

	log.Printf("Created charge %s for member %s, package %s, amount: %d", orderID, memberID, pkg.ID, amount)

	return &domain.ChargeResult{
		PaymentID: payment.ID,
		OrderID:   orderID,
		Amount:    amount,
		PayURL:    resp.PayURL,
	}, nil
}

// GetPayment loads a payment by id.
func (s *CheckoutService) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			return nil, domain.NewServiceError(err, "payment not found: "+id.String(), "PAYMENT_NOT_FOUND")
		}
		return nil, err
	}
	return p, nil
}

func gatewayError(err error) error {
	if errors.Is(err, domain.ErrGatewayRejected) {
		return domain.NewServiceError(err, "payment gateway refused the charge, try again", "GATEWAY_REJECTED")
	}
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		err = fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	return domain.NewServiceError(err, "payment gateway unavailable, try again", "GATEWAY_UNAVAILABLE")
}

// newOrderID returns <prefix><unix millis>-<8 hex>.
func newOrderID(prefix string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s%d-%s", prefix, now.UnixMilli(), suffix)
}
