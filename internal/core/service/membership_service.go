package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fitstack/fitstack-settlement/internal/core/domain"
	"github.com/fitstack/fitstack-settlement/internal/core/ports"
	"github.com/google/uuid"
)

// MembershipService owns every Membership state transition.
type MembershipService struct {
	memberships ports.MembershipRepository
	packages    ports.PackageRepository
	now         ports.Clock
}

// NewMembershipService creates a new membership lifecycle manager.
func NewMembershipService(
	memberships ports.MembershipRepository,
	packages ports.PackageRepository,
	now ports.Clock,
) *MembershipService {
	if now == nil {
		now = time.Now
	}
	return &MembershipService{
		memberships: memberships,
		packages:    packages,
		now:         now,
	}
}

// ActivateFromPayment creates the membership bought by a completed payment.
// Callers guarantee it runs once per payment; the payment_id unique index
// backs that up in storage.
func (s *MembershipService) ActivateFromPayment(ctx context.Context, payment *domain.Payment) (*domain.Membership, error) {
	pkg, err := s.packages.GetByID(ctx, payment.PackageID)
	if err != nil {
		return nil, fmt.Errorf("load package %s: %w", payment.PackageID, err)
	}

	now := s.now().UTC()
	m := &domain.Membership{
		ID:                uuid.New(),
		MemberID:          payment.MemberID,
		PackageID:         pkg.ID,
		PaymentID:         payment.ID,
		StartDate:         &now,
		EndDate:           now.AddDate(0, 0, pkg.DurationDays),
		Status:            domain.MembershipActive,
		AvailableSessions: pkg.TrainingSessions,
		UsedSessions:      0,
		LastSessionReset:  &now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.memberships.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create membership for payment %s: %w", payment.ID, err)
	}

	log.Printf("Membership %s activated for member %s (package %s, ends %s)",
		m.ID, m.MemberID, m.PackageID, m.EndDate.Format(time.RFC3339))
	return m, nil
}

// Pause suspends an active membership. Sessions and end date stay as they are.
func (s *MembershipService) Pause(ctx context.Context, id uuid.UUID) (*domain.Membership, error) {
	return s.transition(ctx, id, domain.MembershipActive, domain.MembershipPaused, nil)
}

// Resume reactivates a paused membership from now. The end date is not
// extended by the paused duration.
func (s *MembershipService) Resume(ctx context.Context, id uuid.UUID) (*domain.Membership, error) {
	now := s.now().UTC()
	return s.transition(ctx, id, domain.MembershipPaused, domain.MembershipActive, &now)
}

// Cancel ends an active or paused membership for good.
func (s *MembershipService) Cancel(ctx context.Context, id uuid.UUID) (*domain.Membership, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Status != domain.MembershipActive && m.Status != domain.MembershipPaused {
		return nil, invalidTransition(m, domain.MembershipCancelled)
	}
	return s.transition(ctx, id, m.Status, domain.MembershipCancelled, m.StartDate)
}

func (s *MembershipService) transition(
	ctx context.Context,
	id uuid.UUID,
	from, to domain.MembershipStatus,
	startDate *time.Time,
) (*domain.Membership, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Status != from {
		return nil, invalidTransition(m, to)
	}

	ok, err := s.memberships.UpdateState(ctx, id, from, to, startDate)
	if err != nil {
		return nil, fmt.Errorf("update membership %s: %w", id, err)
	}
	if !ok {
		// lost a race with another transition; report against the fresh state
		fresh, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, invalidTransition(fresh, to)
	}

	m.Status = to
	m.StartDate = startDate
	log.Printf("Membership %s: %s -> %s", id, from, to)
	return m, nil
}

// ConsumeSession books one session credit on an active membership.
func (s *MembershipService) ConsumeSession(ctx context.Context, id uuid.UUID) (*domain.Membership, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Status != domain.MembershipActive {
		return nil, domain.NewServiceError(domain.ErrInvalidTransition,
			fmt.Sprintf("membership is %s", m.Status), "MEMBERSHIP_NOT_ACTIVE")
	}

	ok, err := s.memberships.AdjustUsedSessions(ctx, id, 1)
	if err != nil {
		return nil, fmt.Errorf("consume session on %s: %w", id, err)
	}
	if !ok {
		return nil, domain.NewServiceError(domain.ErrNoSessionsLeft,
			fmt.Sprintf("%d of %d sessions used", m.UsedSessions, m.AvailableSessions), "NO_SESSIONS_LEFT")
	}
	return s.Get(ctx, id)
}

// ReleaseSession gives back a session credit, e.g. after a cancelled booking.
func (s *MembershipService) ReleaseSession(ctx context.Context, id uuid.UUID) (*domain.Membership, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	ok, err := s.memberships.AdjustUsedSessions(ctx, id, -1)
	if err != nil {
		return nil, fmt.Errorf("release session on %s: %w", id, err)
	}
	if !ok {
		return nil, domain.NewServiceError(domain.ErrInvalidTransition,
			"no used session to release", "NOTHING_TO_RELEASE")
	}
	return s.Get(ctx, id)
}

// ExpireSweep flips every active membership whose end date is before now.
func (s *MembershipService) ExpireSweep(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.memberships.ExpireEnded(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("expire memberships: %w", err)
	}
	if n > 0 {
		log.Printf("Expiry sweep: %d memberships expired", n)
	}
	return n, nil
}

// Get loads a membership by id.
func (s *MembershipService) Get(ctx context.Context, id uuid.UUID) (*domain.Membership, error) {
	m, err := s.memberships.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrMembershipNotFound) {
			return nil, domain.NewServiceError(err, "membership "+id.String()+" not found", "MEMBERSHIP_NOT_FOUND")
		}
		return nil, err
	}
	return m, nil
}

// ListByMember returns the member's memberships, newest first.
func (s *MembershipService) ListByMember(ctx context.Context, memberID uuid.UUID) ([]domain.Membership, error) {
	return s.memberships.ListByMember(ctx, memberID)
}

func invalidTransition(m *domain.Membership, to domain.MembershipStatus) error {
	return domain.NewServiceError(domain.ErrInvalidTransition,
		fmt.Sprintf("cannot move membership %s from %s to %s", m.ID, m.Status, to),
		"INVALID_TRANSITION")
}
