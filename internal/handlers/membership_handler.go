package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/fitstack/fitstack-settlement/internal/core/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Memberships is the membership lifecycle as seen by the HTTP layer.
type Memberships interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Membership, error)
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]domain.Membership, error)
	Pause(ctx context.Context, id uuid.UUID) (*domain.Membership, error)
	Resume(ctx context.Context, id uuid.UUID) (*domain.Membership, error)
	Cancel(ctx context.Context, id uuid.UUID) (*domain.Membership, error)
	ConsumeSession(ctx context.Context, id uuid.UUID) (*domain.Membership, error)
	ReleaseSession(ctx context.Context, id uuid.UUID) (*domain.Membership, error)
	ExpireSweep(ctx context.Context, now time.Time) (int64, error)
}

type membershipAction func(ctx context.Context, id uuid.UUID) (*domain.Membership, error)

// MembershipHandler handles HTTP requests for memberships.
type MembershipHandler struct {
	memberships Memberships
}

// NewMembershipHandler creates a new membership handler.
func NewMembershipHandler(memberships Memberships) *MembershipHandler {
	return &MembershipHandler{memberships: memberships}
}

// List handles GET /api/v1/memberships
func (h *MembershipHandler) List(c *gin.Context) {
	memberID, _ := memberFromContext(c)

	list, err := h.memberships.ListByMember(c.Request.Context(), memberID)
	if err != nil {
		log.Printf("List memberships error for member %s: %v", memberID, err)
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    list,
	})
}

// Pause handles POST /api/v1/memberships/:id/pause
func (h *MembershipHandler) Pause(c *gin.Context) {
	h.ownerAction(c, h.memberships.Pause)
}

// Resume handles POST /api/v1/memberships/:id/resume
func (h *MembershipHandler) Resume(c *gin.Context) {
	h.ownerAction(c, h.memberships.Resume)
}

// Cancel handles POST /api/v1/memberships/:id/cancel
func (h *MembershipHandler) Cancel(c *gin.Context) {
	h.ownerAction(c, h.memberships.Cancel)
}

// ConsumeSession handles POST /internal/memberships/:id/sessions/consume
func (h *MembershipHandler) ConsumeSession(c *gin.Context) {
	h.action(c, h.memberships.ConsumeSession)
}

// ReleaseSession handles POST /internal/memberships/:id/sessions/release
func (h *MembershipHandler) ReleaseSession(c *gin.Context) {
	h.action(c, h.memberships.ReleaseSession)
}

// ExpireNow handles POST /api/v1/admin/memberships/expire
// Runs the expiry sweep outside the worker schedule.
func (h *MembershipHandler) ExpireNow(c *gin.Context) {
	n, err := h.memberships.ExpireSweep(c.Request.Context(), time.Now().UTC())
	if err != nil {
		log.Printf("Manual expiry sweep error: %v", err)
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"expired": n,
	})
}

// ownerAction runs act after checking the caller owns the membership or is an admin.
func (h *MembershipHandler) ownerAction(c *gin.Context, act membershipAction) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	m, err := h.memberships.Get(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	memberID, admin := memberFromContext(c)
	if !admin && m.MemberID != memberID {
		handleServiceError(c, domain.NewServiceError(domain.ErrForbidden,
			"membership belongs to another member", "FORBIDDEN"))
		return
	}

	h.run(c, id, act)
}

func (h *MembershipHandler) action(c *gin.Context, act membershipAction) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	h.run(c, id, act)
}

func (h *MembershipHandler) run(c *gin.Context, id uuid.UUID, act membershipAction) {
	m, err := act(c.Request.Context(), id)
	if err != nil {
		log.Printf("Membership %s action error: %v", id, err)
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    m,
	})
}
