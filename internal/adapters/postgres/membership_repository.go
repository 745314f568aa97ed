package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fitstack/fitstack-settlement/internal/core/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MembershipRepository implements ports.MembershipRepository.
type MembershipRepository struct {
	db *gorm.DB
}

// NewMembershipRepository creates a new membership repository.
func NewMembershipRepository(db *gorm.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// Create inserts a membership. The payment_id unique index rejects a second
// membership for the same payment.
func (r *MembershipRepository) Create(ctx context.Context, m *domain.Membership) error {
	if err := conn(ctx, r.db).Create(toMembershipRecord(m)).Error; err != nil {
		return fmt.Errorf("insert membership for payment %s: %w", m.PaymentID, err)
	}
	return nil
}

// GetByID loads a membership by id.
func (r *MembershipRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Membership, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByPaymentID loads the membership bought by a payment.
func (r *MembershipRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*domain.Membership, error) {
	return r.first(ctx, "payment_id = ?", paymentID)
}

func (r *MembershipRepository) first(ctx context.Context, query string, arg any) (*domain.Membership, error) {
	var rec membershipRecord
	err := conn(ctx, r.db).Where(query, arg).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMembershipNotFound
		}
		return nil, err
	}
	m := rec.toDomain()
	return &m, nil
}

// ListByMember returns a member's memberships, newest first.
func (r *MembershipRepository) ListByMember(ctx context.Context, memberID uuid.UUID) ([]domain.Membership, error) {
	var recs []membershipRecord
	err := conn(ctx, r.db).
		Where("member_id = ?", memberID).
		Order("created_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}

	out := make([]domain.Membership, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toDomain())
	}
	return out, nil
}

// UpdateState sets status and start date if the stored status is still from.
func (r *MembershipRepository) UpdateState(
	ctx context.Context,
	id uuid.UUID,
	from, to domain.MembershipStatus,
	startDate *time.Time,
) (bool, error) {
	res := conn(ctx, r.db).
		Model(&membershipRecord{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]any{
			"status":     string(to),
			"start_date": startDate,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AdjustUsedSessions moves used_sessions by delta inside [0, available_sessions]
// on an active membership, in a single statement.
func (r *MembershipRepository) AdjustUsedSessions(ctx context.Context, id uuid.UUID, delta int) (bool, error) {
	res := conn(ctx, r.db).
		Model(&membershipRecord{}).
		Where("id = ? AND status = ?", id, string(domain.MembershipActive)).
		Where("used_sessions + ? BETWEEN 0 AND available_sessions", delta).
		Updates(map[string]any{
			"used_sessions": gorm.Expr("used_sessions + ?", delta),
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ExpireEnded flips active memberships whose end date is before now.
func (r *MembershipRepository) ExpireEnded(ctx context.Context, now time.Time) (int64, error) {
	res := conn(ctx, r.db).
		Model(&membershipRecord{}).
		Where("status = ? AND end_date < ?", string(domain.MembershipActive), now).
		Updates(map[string]any{
			"status":     string(domain.MembershipExpired),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}
