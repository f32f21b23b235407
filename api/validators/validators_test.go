package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

type statusBody struct {
	Status string `json:"status" validate:"required,oneof=PREPARING SHIPPED"`
	Reason string `json:"reason" validate:"max=10"`
}

type noteBody struct {
	Note string `json:"note" validate:"notblank,max=5"`
}

func (b *noteBody) Normalize() {
	b.Note = strings.TrimSpace(b.Note)
}

func post(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func TestDecodeJSONBody(t *testing.T) {
	var body statusBody
	require.NoError(t, DecodeJSONBody(post(`{"status":"SHIPPED"}`), &body))
	assert.Equal(t, "SHIPPED", body.Status)
}

func TestDecodeJSONBodyRejects(t *testing.T) {
	cases := map[string]string{
		"empty":         ``,
		"unknown field": `{"status":"SHIPPED","extra":1}`,
		"bad json":      `{"status":`,
		"trailing data": `{"status":"SHIPPED"} {"status":"SHIPPED"}`,
		"oneof":         `{"status":"LOST"}`,
		"missing":       `{}`,
		"too long":      `{"status":"SHIPPED","reason":"much too long reason"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			var body statusBody
			err := DecodeJSONBody(post(payload), &body)
			assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
}

func TestDecodeJSONBodyOversized(t *testing.T) {
	payload := `{"status":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
	var body statusBody
	assert.True(t, pkgerrors.Is(DecodeJSONBody(post(payload), &body), pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyNormalizesBeforeValidating(t *testing.T) {
	var body noteBody
	require.NoError(t, DecodeJSONBody(post(`{"note":"  hi  "}`), &body))
	assert.Equal(t, "hi", body.Note)

	err := DecodeJSONBody(post(`{"note":"   "}`), &noteBody{})
	require.Error(t, err)
	assert.Equal(t, map[string]string{"note": "is required"}, pkgerrors.As(err).Details())
}

func TestQueryInt(t *testing.T) {
	got, err := QueryInt(httptest.NewRequest(http.MethodGet, "/?limit=30", nil), "limit", 20, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 30, got)

	got, err = QueryInt(httptest.NewRequest(http.MethodGet, "/", nil), "limit", 20, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 20, got)

	for _, q := range []string{"/?limit=500", "/?limit=ten"} {
		_, err := QueryInt(httptest.NewRequest(http.MethodGet, q, nil), "limit", 20, 1, 100)
		assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), q)
	}
}

func TestParsePagination(t *testing.T) {
	cursor := pagination.Cursor{CreatedAt: time.Now(), ID: uuid.New()}.Encode()
	params, err := ParsePagination(httptest.NewRequest(http.MethodGet, "/?limit=5&cursor="+cursor, nil))
	require.NoError(t, err)
	assert.Equal(t, pagination.Params{Limit: 5, Cursor: cursor}, params)

	_, err = ParsePagination(httptest.NewRequest(http.MethodGet, "/?cursor=garbage", nil))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	got, err := ParseUUIDParam(withParam(httptest.NewRequest(http.MethodGet, "/", nil), "orderId", id.String()), "orderId")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	for _, raw := range []string{"", "nope"} {
		_, err := ParseUUIDParam(withParam(httptest.NewRequest(http.MethodGet, "/", nil), "orderId", raw), "orderId")
		assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), raw)
	}
}

func withParam(r *http.Request, key, value string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rc))
}
