package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

func decodeFailure(t *testing.T, w *httptest.ResponseRecorder) Failure {
	t.Helper()
	var body Failure
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"hello": "world"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"hello":"world"}}`, w.Body.String())
}

func TestWriteSuccessStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"id": "1"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestWriteSuccessUnencodable(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]any{"ch": make(chan int)})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, string(pkgerrors.CodeInternal), decodeFailure(t, w).Error.Code)
}

func TestWriteErrorTypedError(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "bad input").
		WithDetails(map[string]string{"field": "qty"})
	WriteError(context.Background(), nil, w, err)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeFailure(t, w)
	assert.Equal(t, string(pkgerrors.CodeValidation), body.Error.Code)
	assert.Equal(t, "bad input", body.Error.Message)
	assert.Equal(t, map[string]any{"field": "qty"}, body.Error.Details)
}

func TestWriteErrorStatuses(t *testing.T) {
	cases := map[pkgerrors.Code]int{
		pkgerrors.CodeNotFound:          http.StatusNotFound,
		pkgerrors.CodeForbidden:         http.StatusForbidden,
		pkgerrors.CodeInvalidTransition: http.StatusConflict,
		pkgerrors.CodeInsufficientStock: http.StatusConflict,
		pkgerrors.CodeAddressMissing:    http.StatusUnprocessableEntity,
		pkgerrors.CodeEmptyCart:         http.StatusUnprocessableEntity,
		pkgerrors.CodeGatewayFailure:    http.StatusBadGateway,
		pkgerrors.CodeDependency:        http.StatusServiceUnavailable,
	}
	logg := logger.New(logger.Options{ServiceName: "responses-test", Output: &bytes.Buffer{}})
	for code, status := range cases {
		t.Run(string(code), func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(context.Background(), logg, w, pkgerrors.New(code, "x"))
			assert.Equal(t, status, w.Code)
		})
	}
}

func TestWriteErrorHidesDependencyMessage(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("dial tcp 10.0.0.1"), "load order"))

	assert.Equal(t, pkgerrors.PolicyFor(pkgerrors.CodeDependency).Fallback, decodeFailure(t, w).Error.Message)
}

func TestWriteErrorUntypedBecomesInternal(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeFailure(t, w)
	assert.Equal(t, string(pkgerrors.CodeInternal), body.Error.Code)
	assert.NotContains(t, body.Error.Message, "boom")
}

func TestWriteErrorLogsLevelByStatus(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "responses-test", Output: &buf})

	WriteError(context.Background(), logg, httptest.NewRecorder(), pkgerrors.New(pkgerrors.CodeNotFound, "order missing"))
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "request rejected")

	buf.Reset()
	WriteError(context.Background(), logg, httptest.NewRecorder(), errors.New("boom"))
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), `"http_status":500`)
}
