package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/marketplace-backend/api/responses"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/marketplace-backend/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	// DefaultIdempotencyTTL covers retries of ordinary mutations.
	DefaultIdempotencyTTL = 24 * time.Hour
	// PaymentIdempotencyTTL covers calls that create orders or move money.
	PaymentIdempotencyTTL = 7 * 24 * time.Hour

	// A reservation outlives any sane handler but expires if the process
	// dies mid-request, so the key becomes usable again.
	reservationTTL = 2 * time.Minute
	maxKeyLength   = 255
)

const (
	stateInFlight = "in_flight"
	stateDone     = "done"
)

type storedResponse struct {
	State       string `json:"state"`
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency guards mutating routes against client retries. The first
// request under a key runs; later requests with the same key and body get
// the recorded response back.
type Idempotency struct {
	store pkgredis.IdempotencyStore
	logg  *logger.Logger
}

func NewIdempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) *Idempotency {
	return &Idempotency{store: store, logg: logg}
}

// Require demands an Idempotency-Key and keeps the outcome for ttl. 5xx
// outcomes are dropped so the client may retry under the same key.
func (i *Idempotency) Require(ttl time.Duration) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return func(next http.Handler) http.Handler {
		if i == nil || i.store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, i.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}
			if len(clientKey) > maxKeyLength {
				responses.WriteError(ctx, i.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, i.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := requestHash(r.Method, r.URL.Path, body)
			key := i.store.IdempotencyKey("http:"+UserIDFromContext(ctx), clientKey)

			reservation, err := json.Marshal(storedResponse{State: stateInFlight, RequestHash: hash})
			if err != nil {
				responses.WriteError(ctx, i.logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode reservation"))
				return
			}
			reserved, err := i.store.SetNX(ctx, key, string(reservation), reservationTTL)
			if err != nil {
				responses.WriteError(ctx, i.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				i.replay(w, r, key, hash)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)
			i.record(r, key, hash, capture, ttl)
		})
	}
}

func (i *Idempotency) replay(w http.ResponseWriter, r *http.Request, key, hash string) {
	ctx := r.Context()
	raw, err := i.store.Get(ctx, key)
	if pkgredis.IsNil(err) {
		// The reservation expired between SETNX and GET.
		responses.WriteError(ctx, i.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, i.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, i.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if stored.RequestHash != hash {
		responses.WriteError(ctx, i.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "Idempotency-Key reused with a different request"))
		return
	}
	if stored.State != stateDone {
		responses.WriteError(ctx, i.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
		return
	}

	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

func (i *Idempotency) record(r *http.Request, key, hash string, capture *responseCapture, ttl time.Duration) {
	ctx := r.Context()
	status := capture.statusCode()
	if status >= http.StatusInternalServerError {
		if err := i.store.Del(ctx, key); err != nil && i.logg != nil {
			i.logg.Error(ctx, "release idempotency key", err)
		}
		return
	}

	payload, err := json.Marshal(storedResponse{
		State:       stateDone,
		RequestHash: hash,
		Status:      status,
		ContentType: capture.Header().Get("Content-Type"),
		Body:        capture.body.Bytes(),
	})
	if err == nil {
		err = i.store.Set(ctx, key, string(payload), ttl)
	}
	if err != nil && i.logg != nil {
		i.logg.Error(ctx, "persist idempotency record", err)
	}
}

// requestHash binds a key to one route and body so reuse elsewhere is caught.
func requestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
