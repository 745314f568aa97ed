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

// PaymentRepository implements ports.PaymentRepository.
type PaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository.
func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a new payment.
func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	if err := conn(ctx, r.db).Create(toPaymentRecord(p)).Error; err != nil {
		return fmt.Errorf("insert payment %s: %w", p.OrderID, err)
	}
	return nil
}

// GetByID loads a payment by id.
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByOrderID loads a payment by its gateway order id.
func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	return r.first(ctx, "order_id = ?", orderID)
}

func (r *PaymentRepository) first(ctx context.Context, query string, arg any) (*domain.Payment, error) {
	var rec paymentRecord
	err := conn(ctx, r.db).Where(query, arg).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	return rec.toDomain(), nil
}

// UpdateMetadata replaces the gateway metadata without touching status.
func (r *PaymentRepository) UpdateMetadata(ctx context.Context, id uuid.UUID, meta domain.GatewayMetadata) error {
	res := conn(ctx, r.db).
		Model(&paymentRecord{ID: id}).
		Select("metadata", "updated_at").
		Updates(&paymentRecord{Metadata: meta, UpdatedAt: time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

// TransitionStatus is a conditional update keyed on the prior status, so
// only one caller can move a payment out of pending.
func (r *PaymentRepository) TransitionStatus(
	ctx context.Context,
	orderID string,
	from, to domain.PaymentStatus,
	transID *string,
) (bool, error) {
	updates := map[string]any{
		"status":     string(to),
		"updated_at": time.Now().UTC(),
	}
	if transID != nil {
		updates["trans_id"] = *transID
	}

	res := conn(ctx, r.db).
		Model(&paymentRecord{}).
		Where("order_id = ? AND status = ?", orderID, string(from)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CountPendingBefore counts pending payments created before t.
func (r *PaymentRepository) CountPendingBefore(ctx context.Context, t time.Time) (int64, error) {
	var n int64
	err := conn(ctx, r.db).
		Model(&paymentRecord{}).
		Where("status = ? AND created_at < ?", string(domain.PaymentPending), t).
		Count(&n).Error
	return n, err
}
