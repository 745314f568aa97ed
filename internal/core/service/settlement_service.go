package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/fitstack/fitstack-settlement/internal/core/domain"
	"github.com/fitstack/fitstack-settlement/internal/core/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

// Outcome names what a single Settle call did.
type Outcome string

const (
	OutcomeCompleted           Outcome = "completed"
	OutcomeFailed              Outcome = "failed"
	OutcomeReplay              Outcome = "replay"
	OutcomeAmountMismatch      Outcome = "amount_mismatch"
	OutcomeCorrelationMismatch Outcome = "correlation_mismatch"
	OutcomeInvalidCorrelation  Outcome = "invalid_correlation"
	OutcomeUnknownOrder        Outcome = "unknown_order"
	OutcomeError               Outcome = "error"
)

// SettlementService finalizes payments from verified gateway callbacks.
type SettlementService struct {
	payments    ports.PaymentRepository
	memberships *MembershipService
	tx          ports.TxManager
	locker      ports.OrderLocker
	notifier    ports.ActivationNotifier
	outcomes    metric.Int64Counter
}

// NewSettlementService creates a new settlement processor. notifier may be nil.
func NewSettlementService(
	payments ports.PaymentRepository,
	memberships *MembershipService,
	tx ports.TxManager,
	locker ports.OrderLocker,
	notifier ports.ActivationNotifier,
) *SettlementService {
	counter, err := otel.Meter(instrumentationName).Int64Counter("settlement.outcomes",
		metric.WithDescription("Settlement attempts by outcome"))
	if err != nil {
		log.Printf("Failed to create settlement.outcomes counter: %v", err)
		counter = noop.Int64Counter{}
	}

	return &SettlementService{
		payments:    payments,
		memberships: memberships,
		tx:          tx,
		locker:      locker,
		notifier:    notifier,
		outcomes:    counter,
	}
}

// Settle applies a callback that already passed signature verification.
// Replays of an already-settled order return OutcomeReplay and no error.
func (s *SettlementService) Settle(ctx context.Context, cb domain.GatewayCallback) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "settlement.settle", trace.WithAttributes(
		attribute.String("order_id", cb.OrderID),
		attribute.Int("result_code", cb.ResultCode),
	))
	defer span.End()

	outcome, activated, err := s.settle(ctx, cb)

	s.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Printf("Settlement of order %s ended with %s: %v", cb.OrderID, outcome, err)
	} else {
		log.Printf("Settlement of order %s: %s", cb.OrderID, outcome)
	}

	if activated != nil {
		s.notify(ctx, *activated)
	}
	return outcome, err
}

func (s *SettlementService) settle(ctx context.Context, cb domain.GatewayCallback) (Outcome, *domain.MembershipActivated, error) {
	release, err := s.locker.Acquire(ctx, "settlement:"+cb.OrderID)
	if err != nil {
		return OutcomeError, nil, fmt.Errorf("lock order %s: %w", cb.OrderID, err)
	}
	defer release()

	payment, err := s.payments.GetByOrderID(ctx, cb.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			return OutcomeUnknownOrder, nil, err
		}
		return OutcomeError, nil, fmt.Errorf("load order %s: %w", cb.OrderID, err)
	}

	if payment.Status.IsTerminal() {
		return OutcomeReplay, nil, nil
	}

	memberID, packageID, err := domain.DecodeCorrelation(cb.ExtraData)
	if err != nil {
		return s.reject(ctx, payment, OutcomeInvalidCorrelation, err)
	}
	if cb.Amount != payment.Amount {
		return s.reject(ctx, payment, OutcomeAmountMismatch,
			fmt.Errorf("%w: callback %d, stored %d", domain.ErrAmountMismatch, cb.Amount, payment.Amount))
	}
	if memberID != payment.MemberID || packageID != payment.PackageID {
		return s.reject(ctx, payment, OutcomeCorrelationMismatch,
			fmt.Errorf("%w: callback names member %s package %s", domain.ErrCorrelationMismatch, memberID, packageID))
	}

	if !cb.Succeeded() {
		won, err := s.payments.TransitionStatus(ctx, payment.OrderID, domain.PaymentPending, domain.PaymentFailed, nil)
		if err != nil {
			return OutcomeError, nil, fmt.Errorf("fail order %s: %w", payment.OrderID, err)
		}
		if !won {
			return OutcomeReplay, nil, nil
		}
		log.Printf("Order %s declined by gateway: resultCode=%d message=%q", payment.OrderID, cb.ResultCode, cb.Message)
		return OutcomeFailed, nil, nil
	}

	var transID *string
	if cb.TransID != "" {
		transID = &cb.TransID
	}

	outcome := OutcomeReplay
	var activated *domain.MembershipActivated
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		won, err := s.payments.TransitionStatus(ctx, payment.OrderID, domain.PaymentPending, domain.PaymentCompleted, transID)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}

		payment.Status = domain.PaymentCompleted
		payment.TransID = transID

		m, err := s.memberships.ActivateFromPayment(ctx, payment)
		if err != nil {
			return err
		}

		outcome = OutcomeCompleted
		activated = &domain.MembershipActivated{
			MembershipID: m.ID,
			MemberID:     m.MemberID,
			PackageID:    m.PackageID,
			PaymentID:    payment.ID,
			OrderID:      payment.OrderID,
			Amount:       payment.Amount,
			EndDate:      m.EndDate,
		}
		return nil
	})
	if err != nil {
		return OutcomeError, nil, fmt.Errorf("complete order %s: %w", payment.OrderID, err)
	}

	return outcome, activated, nil
}

// reject marks a tampered payment failed and reports why.
func (s *SettlementService) reject(ctx context.Context, payment *domain.Payment, outcome Outcome, cause error) (Outcome, *domain.MembershipActivated, error) {
	if _, err := s.payments.TransitionStatus(ctx, payment.OrderID, domain.PaymentPending, domain.PaymentFailed, nil); err != nil {
		return OutcomeError, nil, errors.Join(cause, fmt.Errorf("fail order %s: %w", payment.OrderID, err))
	}
	return outcome, nil, cause
}

// notify tells Core about a new membership. Failures are logged only; the
// membership is already committed.
func (s *SettlementService) notify(ctx context.Context, evt domain.MembershipActivated) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyMembershipActivated(context.WithoutCancel(ctx), evt); err != nil {
		log.Printf("Failed to notify Core of membership %s (order %s): %v", evt.MembershipID, evt.OrderID, err)
	}
}
