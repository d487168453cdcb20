package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", shared.Validation("qty", "must be greater than 0"), http.StatusBadRequest},
		{"not found", fmt.Errorf("load: %w", shared.NotFound("purchase", 4)), http.StatusNotFound},
		{"transition", &shared.InvalidTransitionError{Kind: "transfer", ID: 1, From: "RECEIVED", Action: "send"}, http.StatusConflict},
		{"over receipt", &shared.OverReceiptError{PurchaseID: 1, LineID: 2, Requested: 5, Remaining: 2}, http.StatusConflict},
		{"insufficient", shared.ErrInsufficientStock, http.StatusConflict},
		{"retryable", &shared.RetryableError{Op: "tx", Err: errors.New("40001")}, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, tc.err)
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, tc.status, StatusOf(tc.err))

			var body ProblemDetail
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tc.status, body.Status)
		})
	}
}

func TestRespondErrorRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, &shared.RetryableError{Op: "tx", Err: errors.New("serialization")})
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestInternalErrorHidesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("dial tcp 10.0.0.1:5432"))
	require.NotContains(t, rec.Body.String(), "10.0.0.1")
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Qty int64 `json:"qty"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"qty":1,"extra":true}`))
	err := DecodeJSON(req, &target)
	require.ErrorIs(t, err, shared.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	require.ErrorIs(t, DecodeJSON(req, &target), shared.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"qty":3}`))
	require.NoError(t, DecodeJSON(req, &target))
	require.Equal(t, int64(3), target.Qty)
}
