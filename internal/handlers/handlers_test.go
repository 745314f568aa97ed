package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fitstack/fitstack-settlement/internal/core/domain"
	"github.com/fitstack/fitstack-settlement/internal/core/service"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testJWTSecret = "jwt-test-secret"
	testAPIKey    = "internal-test-key"
)

var (
	ownerID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	otherID = uuid.MustParse("33333333-3333-3333-3333-333333333333")
)

type stubCheckout struct {
	result  *domain.ChargeResult
	payment *domain.Payment
	err     error
	calls   int
}

func (s *stubCheckout) CreateCharge(_ context.Context, _, _ uuid.UUID) (*domain.ChargeResult, error) {
	s.calls++
	return s.result, s.err
}

func (s *stubCheckout) GetPayment(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	if s.payment == nil || s.payment.ID != id {
		return nil, domain.NewServiceError(domain.ErrPaymentNotFound, "payment not found", "PAYMENT_NOT_FOUND")
	}
	return s.payment, nil
}

type stubSettler struct {
	mu      sync.Mutex
	outcome service.Outcome
	err     error
	got     []domain.GatewayCallback
}

func (s *stubSettler) Settle(_ context.Context, cb domain.GatewayCallback) (service.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, cb)
	return s.outcome, s.err
}

type verifierFunc func(domain.GatewayCallback) bool

func (f verifierFunc) Verify(cb domain.GatewayCallback) bool { return f(cb) }

type stubMemberships struct {
	membership *domain.Membership
	actionErr  error
	expired    int64
	actions    []string
}

func (s *stubMemberships) Get(_ context.Context, id uuid.UUID) (*domain.Membership, error) {
	if s.membership == nil || s.membership.ID != id {
		return nil, domain.NewServiceError(domain.ErrMembershipNotFound, "membership not found", "MEMBERSHIP_NOT_FOUND")
	}
	return s.membership, nil
}

func (s *stubMemberships) ListByMember(_ context.Context, memberID uuid.UUID) ([]domain.Membership, error) {
	if s.membership != nil && s.membership.MemberID == memberID {
		return []domain.Membership{*s.membership}, nil
	}
	return []domain.Membership{}, nil
}

func (s *stubMemberships) act(name string) (*domain.Membership, error) {
	s.actions = append(s.actions, name)
	if s.actionErr != nil {
		return nil, s.actionErr
	}
	return s.membership, nil
}

func (s *stubMemberships) Pause(context.Context, uuid.UUID) (*domain.Membership, error) {
	return s.act("pause")
}

func (s *stubMemberships) Resume(context.Context, uuid.UUID) (*domain.Membership, error) {
	return s.act("resume")
}

func (s *stubMemberships) Cancel(context.Context, uuid.UUID) (*domain.Membership, error) {
	return s.act("cancel")
}

func (s *stubMemberships) ConsumeSession(context.Context, uuid.UUID) (*domain.Membership, error) {
	return s.act("consume")
}

func (s *stubMemberships) ReleaseSession(context.Context, uuid.UUID) (*domain.Membership, error) {
	return s.act("release")
}

func (s *stubMemberships) ExpireSweep(context.Context, time.Time) (int64, error) {
	s.actions = append(s.actions, "expire")
	return s.expired, nil
}

type testServer struct {
	router      *gin.Engine
	checkout    *stubCheckout
	settler     *stubSettler
	memberships *stubMemberships
	verified    bool
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{
		checkout: &stubCheckout{result: &domain.ChargeResult{
			PaymentID: uuid.New(),
			OrderID:   "FS1700000000000-abcd1234",
			Amount:    450000,
			PayURL:    "https://test-payment.momo.vn/pay/abc",
		}},
		settler:     &stubSettler{outcome: service.OutcomeCompleted},
		memberships: &stubMemberships{},
		verified:    true,
	}

	payments := NewPaymentHandler(ts.checkout, ts.settler,
		verifierFunc(func(domain.GatewayCallback) bool { return ts.verified }),
		FrontendURLs{
			SuccessURL: "https://app.fitstack.test/payment/success",
			FailureURL: "https://app.fitstack.test/payment/failure?from=momo",
		})

	ts.router = SetupRouter(RouterConfig{
		GinMode:        gin.TestMode,
		CORSOrigins:    []string{"*"},
		JWTSecret:      testJWTSecret,
		InternalAPIKey: testAPIKey,
		CheckoutRPS:    100,
		CheckoutBurst:  100,
	}, payments, NewMembershipHandler(ts.memberships))
	return ts
}

func memberToken(t *testing.T, memberID uuid.UUID, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"member_id": memberID.String(),
		"role":      role,
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func (ts *testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestCreateCheckout(t *testing.T) {
	ts := newTestServer(t)
	token := memberToken(t, ownerID, "member")

	w := ts.do(http.MethodPost, "/api/v1/payments/checkout", `{"package_id":"`+uuid.NewString()+`"}`, bearer(token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "https://test-payment.momo.vn/pay/abc", data["pay_url"])
	assert.Equal(t, float64(450000), data["amount"])
}

func TestCreateCheckoutRequiresValidToken(t *testing.T) {
	ts := newTestServer(t)
	body := `{"package_id":"` + uuid.NewString() + `"}`

	w := ts.do(http.MethodPost, "/api/v1/payments/checkout", body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"member_id": ownerID.String()})
	signed, err := forged.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)
	w = ts.do(http.MethodPost, "/api/v1/payments/checkout", body, bearer(signed))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	noMember := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "member"})
	signed, err = noMember.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	w = ts.do(http.MethodPost, "/api/v1/payments/checkout", body, bearer(signed))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Zero(t, ts.checkout.calls)
}

func TestCreateCheckoutValidation(t *testing.T) {
	ts := newTestServer(t)
	token := memberToken(t, ownerID, "member")

	w := ts.do(http.MethodPost, "/api/v1/payments/checkout", `{}`, bearer(token))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPost, "/api/v1/payments/checkout", `{"package_id":"gold"}`, bearer(token))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, w)["code"])
}

func TestCreateCheckoutMapsServiceErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{domain.NewServiceError(domain.ErrGatewayUnavailable, "payment gateway unavailable, try again", "GATEWAY_UNAVAILABLE"), http.StatusBadGateway},
		{domain.NewServiceError(domain.ErrPackageNotFound, "package not found", "PACKAGE_NOT_FOUND"), http.StatusNotFound},
		{domain.NewServiceError(domain.ErrInvalidRequest, "charge amount must be positive", "INVALID_AMOUNT"), http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			ts := newTestServer(t)
			ts.checkout.err = tc.err

			w := ts.do(http.MethodPost, "/api/v1/payments/checkout",
				`{"package_id":"`+uuid.NewString()+`"}`, bearer(memberToken(t, ownerID, "member")))
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, false, decode(t, w)["success"])
		})
	}
}

func TestCreateCheckoutRateLimited(t *testing.T) {
	ts := newTestServer(t)
	ts.router = SetupRouter(RouterConfig{
		GinMode:       gin.TestMode,
		JWTSecret:     testJWTSecret,
		CheckoutRPS:   0.001,
		CheckoutBurst: 1,
	}, NewPaymentHandler(ts.checkout, ts.settler, verifierFunc(func(domain.GatewayCallback) bool { return true }), FrontendURLs{}),
		NewMembershipHandler(ts.memberships))

	body := `{"package_id":"` + uuid.NewString() + `"}`
	owner := bearer(memberToken(t, ownerID, "member"))

	assert.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/v1/payments/checkout", body, owner).Code)
	assert.Equal(t, http.StatusTooManyRequests, ts.do(http.MethodPost, "/api/v1/payments/checkout", body, owner).Code)

	// buckets are per member
	other := bearer(memberToken(t, otherID, "member"))
	assert.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/v1/payments/checkout", body, other).Code)
}

func TestGetPaymentOwnership(t *testing.T) {
	ts := newTestServer(t)
	ts.checkout.payment = &domain.Payment{ID: uuid.New(), MemberID: ownerID, Status: domain.PaymentPending}
	path := "/api/v1/payments/" + ts.checkout.payment.ID.String()

	w := ts.do(http.MethodGet, path, "", bearer(memberToken(t, ownerID, "member")))
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodGet, path, "", bearer(memberToken(t, otherID, "member")))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodGet, path, "", bearer(memberToken(t, otherID, RoleAdmin)))
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodGet, "/api/v1/payments/"+uuid.NewString(), "", bearer(memberToken(t, ownerID, "member")))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

const ipnBody = `{"partnerCode":"MOMO","orderId":"FS1700000000000-abcd1234","requestId":"r","amount":450000,
"orderInfo":"Thanh toan goi tap","orderType":"momo_wallet","transId":4088878653,"resultCode":0,"message":"Successful.",
"payType":"qr","responseTime":1700000005000,"extraData":"x","signature":"abc"}`

func TestIPNAlwaysAnswers200(t *testing.T) {
	cases := []struct {
		name       string
		body       string
		verified   bool
		settleErr  error
		wantStatus string
		wantSettle int
	}{
		{"processed", ipnBody, true, nil, "processed", 1},
		{"settlement error", ipnBody, true, domain.ErrAmountMismatch, "processed_with_error", 1},
		{"bad signature", ipnBody, false, nil, "ignored", 0},
		{"malformed body", `{"orderId":`, true, nil, "received", 0},
		{"form body", `orderId=1&amount=2`, true, nil, "received", 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.verified = tc.verified
			ts.settler.err = tc.settleErr

			w := ts.do(http.MethodPost, "/api/v1/payments/momo/ipn", tc.body, nil)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tc.wantStatus, decode(t, w)["status"])
			assert.Len(t, ts.settler.got, tc.wantSettle)
		})
	}
}

func TestIPNPassesParsedCallback(t *testing.T) {
	ts := newTestServer(t)

	ts.do(http.MethodPost, "/api/v1/payments/momo/ipn", ipnBody, nil)

	require.Len(t, ts.settler.got, 1)
	cb := ts.settler.got[0]
	assert.Equal(t, "FS1700000000000-abcd1234", cb.OrderID)
	assert.Equal(t, int64(450000), cb.Amount)
	assert.Equal(t, "4088878653", cb.TransID)
}

func TestReturnRedirect(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/v1/payments/momo/return?orderId=FS1-a&resultCode=0", "", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://app.fitstack.test/payment/success?orderId=FS1-a", w.Header().Get("Location"))

	w = ts.do(http.MethodGet, "/api/v1/payments/momo/return?orderId=FS1-a&resultCode=1006", "", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://app.fitstack.test/payment/failure?from=momo&orderId=FS1-a", w.Header().Get("Location"))
}

func TestMembershipOwnerActions(t *testing.T) {
	ts := newTestServer(t)
	m := &domain.Membership{ID: uuid.New(), MemberID: ownerID, Status: domain.MembershipActive}
	ts.memberships.membership = m
	base := "/api/v1/memberships/" + m.ID.String()

	w := ts.do(http.MethodPost, base+"/pause", "", bearer(memberToken(t, ownerID, "member")))
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodPost, base+"/resume", "", bearer(memberToken(t, otherID, "member")))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(http.MethodPost, base+"/cancel", "", bearer(memberToken(t, otherID, RoleAdmin)))
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, []string{"pause", "cancel"}, ts.memberships.actions)

	ts.memberships.actionErr = domain.NewServiceError(domain.ErrInvalidTransition, "cannot move", "INVALID_TRANSITION")
	w = ts.do(http.MethodPost, base+"/resume", "", bearer(memberToken(t, ownerID, "member")))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", decode(t, w)["code"])

	w = ts.do(http.MethodPost, "/api/v1/memberships/nope/pause", "", bearer(memberToken(t, ownerID, "member")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListMemberships(t *testing.T) {
	ts := newTestServer(t)
	ts.memberships.membership = &domain.Membership{ID: uuid.New(), MemberID: ownerID}

	w := ts.do(http.MethodGet, "/api/v1/memberships", "", bearer(memberToken(t, ownerID, "member")))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], 1)

	w = ts.do(http.MethodGet, "/api/v1/memberships", "", bearer(memberToken(t, otherID, "member")))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], 0)
}

func TestInternalSessionRoutesRequireAPIKey(t *testing.T) {
	ts := newTestServer(t)
	m := &domain.Membership{ID: uuid.New(), MemberID: ownerID, Status: domain.MembershipActive, AvailableSessions: 2}
	ts.memberships.membership = m
	path := "/internal/memberships/" + m.ID.String() + "/sessions/consume"

	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodPost, path, "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		ts.do(http.MethodPost, path, "", map[string]string{"X-Internal-API-Key": "wrong"}).Code)
	assert.Equal(t, http.StatusUnauthorized,
		ts.do(http.MethodPost, path, "", bearer(memberToken(t, ownerID, RoleAdmin))).Code)

	w := ts.do(http.MethodPost, path, "", map[string]string{"X-Internal-API-Key": testAPIKey})
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodPost, "/internal/memberships/"+m.ID.String()+"/sessions/release", "", bearer(testAPIKey))
	assert.Equal(t, http.StatusOK, w.Code)

	ts.memberships.actionErr = domain.NewServiceError(domain.ErrNoSessionsLeft, "2 of 2 sessions used", "NO_SESSIONS_LEFT")
	w = ts.do(http.MethodPost, path, "", map[string]string{"X-Internal-API-Key": testAPIKey})
	assert.Equal(t, http.StatusConflict, w.Code)

	assert.Equal(t, []string{"consume", "release", "consume"}, ts.memberships.actions)
}

func TestAdminExpireRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)
	ts.memberships.expired = 3

	w := ts.do(http.MethodPost, "/api/v1/admin/memberships/expire", "", bearer(memberToken(t, ownerID, "member")))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(http.MethodPost, "/api/v1/admin/memberships/expire", "", bearer(memberToken(t, ownerID, RoleAdmin)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), decode(t, w)["expired"])
}
