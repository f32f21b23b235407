package refunds

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-backend/api/middleware"
	internalrefunds "github.com/angelmondragon/marketplace-backend/internal/refunds"
	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

type stubRefunds struct {
	internalrefunds.Service
	reason   string
	customer uuid.UUID
	seller   uuid.UUID
	err      error
}

func (s *stubRefunds) RequestRefund(ctx context.Context, orderID, itemID uuid.UUID, reason string, customerID uuid.UUID) (*models.OrderItem, error) {
	s.reason = reason
	s.customer = customerID
	if s.err != nil {
		return nil, s.err
	}
	status := enums.RefundStatusPendingApproval
	return &models.OrderItem{ID: itemID, OrderID: orderID, RefundStatus: &status}, nil
}

func (s *stubRefunds) RejectRefundRequest(ctx context.Context, itemID uuid.UUID, reason string, sellerID uuid.UUID) (*models.OrderItem, error) {
	s.reason = reason
	s.seller = sellerID
	status := enums.RefundStatusRejected
	return &models.OrderItem{ID: itemID, RefundStatus: &status}, nil
}

func (s *stubRefunds) ListSellerRefundRequests(ctx context.Context, sellerID uuid.UUID) ([]models.OrderItem, error) {
	return nil, nil
}

func serve(t *testing.T, svc internalrefunds.Service, method, pattern, path, body string, actor *auth.Actor) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	switch pattern {
	case "/orders/{orderId}/items/{itemId}/refund":
		r.Post(pattern, Request(svc, nil))
	case "/refunds/{itemId}/reject":
		r.Post(pattern, Reject(svc, nil))
	case "/refunds":
		r.Get(pattern, ListPending(svc, nil))
	}
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if actor != nil {
		req = req.WithContext(middleware.WithActor(req.Context(), *actor))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRequestTrimsReason(t *testing.T) {
	svc := &stubRefunds{}
	customer := auth.NewActor(uuid.New(), enums.UserRoleCustomer)
	path := "/orders/" + uuid.NewString() + "/items/" + uuid.NewString() + "/refund"

	rec := serve(t, svc, http.MethodPost, "/orders/{orderId}/items/{itemId}/refund", path, `{"reason":"  damaged box  "}`, &customer)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, customer.UserID, svc.customer)
	assert.Equal(t, "damaged box", svc.reason)
}

func TestRequestRequiresReason(t *testing.T) {
	svc := &stubRefunds{}
	customer := auth.NewActor(uuid.New(), enums.UserRoleCustomer)
	path := "/orders/" + uuid.NewString() + "/items/" + uuid.NewString() + "/refund"

	rec := serve(t, svc, http.MethodPost, "/orders/{orderId}/items/{itemId}/refund", path, `{}`, &customer)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.reason)
}

func TestRequestRequiresActor(t *testing.T) {
	path := "/orders/" + uuid.NewString() + "/items/" + uuid.NewString() + "/refund"

	rec := serve(t, &stubRefunds{}, http.MethodPost, "/orders/{orderId}/items/{itemId}/refund", path, `{"reason":"x"}`, nil)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestForwardsDomainErrors(t *testing.T) {
	svc := &stubRefunds{err: pkgerrors.New(pkgerrors.CodeInvalidTransition, "item is not delivered")}
	customer := auth.NewActor(uuid.New(), enums.UserRoleCustomer)
	path := "/orders/" + uuid.NewString() + "/items/" + uuid.NewString() + "/refund"

	rec := serve(t, svc, http.MethodPost, "/orders/{orderId}/items/{itemId}/refund", path, `{"reason":"late"}`, &customer)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRejectPassesSeller(t *testing.T) {
	svc := &stubRefunds{}
	seller := auth.NewActor(uuid.New(), enums.UserRoleSeller)

	rec := serve(t, svc, http.MethodPost, "/refunds/{itemId}/reject", "/refunds/"+uuid.NewString()+"/reject", `{"reason":"used item"}`, &seller)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, seller.UserID, svc.seller)
	assert.Equal(t, "used item", svc.reason)
}

func TestListPendingNeverReturnsNull(t *testing.T) {
	seller := auth.NewActor(uuid.New(), enums.UserRoleSeller)

	rec := serve(t, &stubRefunds{}, http.MethodGet, "/refunds", "/refunds", "", &seller)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data struct {
			Items []json.RawMessage `json:"items"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotNil(t, body.Data.Items)
	assert.Contains(t, rec.Body.String(), `"items":[]`)
}
