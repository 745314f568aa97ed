package postgres

import (
	"time"

	"github.com/fitstack/fitstack-settlement/internal/core/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

type paymentRecord struct {
	ID               uuid.UUID                `gorm:"type:uuid;primaryKey"`
	OrderID          string                   `gorm:"type:varchar(100);uniqueIndex;not null"`
	TransID          *string                  `gorm:"type:varchar(100)"`
	MemberID         uuid.UUID                `gorm:"type:uuid;index;not null"`
	PackageID        uuid.UUID                `gorm:"type:uuid;not null"`
	Amount           int64                    `gorm:"not null"`
	Currency         string                   `gorm:"type:varchar(3);not null"`
	Status           string                   `gorm:"type:varchar(20);index:idx_payments_status_created;not null"`
	Method           string                   `gorm:"type:varchar(50)"`
	Metadata         domain.GatewayMetadata   `gorm:"type:jsonb;serializer:json"`
	AppliedPromotion *domain.AppliedPromotion `gorm:"type:jsonb;serializer:json"`
	CreatedAt        time.Time                `gorm:"index:idx_payments_status_created"`
	UpdatedAt        time.Time
}

func (paymentRecord) TableName() string { return "payments" }

func toPaymentRecord(p *domain.Payment) *paymentRecord {
	return &paymentRecord{
		ID:               p.ID,
		OrderID:          p.OrderID,
		TransID:          p.TransID,
		MemberID:         p.MemberID,
		PackageID:        p.PackageID,
		Amount:           p.Amount,
		Currency:         p.Currency,
		Status:           string(p.Status),
		Method:           p.Method,
		Metadata:         p.Metadata,
		AppliedPromotion: p.AppliedPromotion,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func (r *paymentRecord) toDomain() *domain.Payment {
	return &domain.Payment{
		ID:               r.ID,
		OrderID:          r.OrderID,
		TransID:          r.TransID,
		MemberID:         r.MemberID,
		PackageID:        r.PackageID,
		Amount:           r.Amount,
		Currency:         r.Currency,
		Status:           domain.PaymentStatus(r.Status),
		Method:           r.Method,
		Metadata:         r.Metadata,
		AppliedPromotion: r.AppliedPromotion,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type membershipRecord struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	MemberID          uuid.UUID `gorm:"type:uuid;index;not null"`
	PackageID         uuid.UUID `gorm:"type:uuid;not null"`
	PaymentID         uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"` // one membership per payment
	StartDate         *time.Time
	EndDate           time.Time `gorm:"index:idx_memberships_status_end;not null"`
	AutoRenew         bool      `gorm:"default:false"`
	Status            string    `gorm:"type:varchar(20);index:idx_memberships_status_end;not null"`
	AvailableSessions int       `gorm:"not null;default:0"`
	UsedSessions      int       `gorm:"not null;default:0;check:used_sessions >= 0"`
	LastSessionReset  *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (membershipRecord) TableName() string { return "memberships" }

func toMembershipRecord(m *domain.Membership) *membershipRecord {
	return &membershipRecord{
		ID:                m.ID,
		MemberID:          m.MemberID,
		PackageID:         m.PackageID,
		PaymentID:         m.PaymentID,
		StartDate:         m.StartDate,
		EndDate:           m.EndDate,
		AutoRenew:         m.AutoRenew,
		Status:            string(m.Status),
		AvailableSessions: m.AvailableSessions,
		UsedSessions:      m.UsedSessions,
		LastSessionReset:  m.LastSessionReset,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func (r *membershipRecord) toDomain() domain.Membership {
	return domain.Membership{
		ID:                r.ID,
		MemberID:          r.MemberID,
		PackageID:         r.PackageID,
		PaymentID:         r.PaymentID,
		StartDate:         r.StartDate,
		EndDate:           r.EndDate,
		AutoRenew:         r.AutoRenew,
		Status:            domain.MembershipStatus(r.Status),
		AvailableSessions: r.AvailableSessions,
		UsedSessions:      r.UsedSessions,
		LastSessionReset:  r.LastSessionReset,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

type packageRecord struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name             string    `gorm:"type:varchar(200);not null"`
	Price            int64     `gorm:"not null"`
	DurationDays     int       `gorm:"not null"`
	TrainingSessions int       `gorm:"not null;default:0"`
	Active           bool      `gorm:"default:true"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (packageRecord) TableName() string { return "packages" }

func (r *packageRecord) toDomain() *domain.Package {
	return &domain.Package{
		ID:               r.ID,
		Name:             r.Name,
		Price:            r.Price,
		DurationDays:     r.DurationDays,
		TrainingSessions: r.TrainingSessions,
		Active:           r.Active,
	}
}

type promotionRecord struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Code            string         `gorm:"type:varchar(50);uniqueIndex;not null"`
	DiscountPercent float64        `gorm:"not null"`
	Status          string         `gorm:"type:varchar(20);not null"`
	StartDate       time.Time      `gorm:"not null"`
	EndDate         time.Time      `gorm:"not null"`
	PackageIDs      pq.StringArray `gorm:"type:text[]"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (promotionRecord) TableName() string { return "promotions" }

// toDomain drops package ids that are not UUIDs.
func (r *promotionRecord) toDomain() *domain.Promotion {
	ids := make([]uuid.UUID, 0, len(r.PackageIDs))
	for _, s := range r.PackageIDs {
		if id, err := uuid.Parse(s); err == nil {
			ids = append(ids, id)
		}
	}
	return &domain.Promotion{
		ID:              r.ID,
		Code:            r.Code,
		DiscountPercent: r.DiscountPercent,
		Status:          r.Status,
		StartDate:       r.StartDate,
		EndDate:         r.EndDate,
		PackageIDs:      ids,
	}
}
