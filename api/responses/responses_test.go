package responses

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/orderflowhq/orderflow-backend/pkg/errors"
	"github.com/orderflowhq/orderflow-backend/pkg/logger"
	"github.com/orderflowhq/orderflow-backend/pkg/types"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) types.ErrorEnvelope {
	t.Helper()

	var envelope types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	return envelope
}

func TestWriteSuccessWrapsData(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteSuccess(rec, map[string]string{"status": "ok"})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var envelope struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	require.Equal(t, "ok", envelope.Data["status"])
}

func TestWriteErrorValidationPassesMessageThrough(t *testing.T) {
	rec := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
		WithDetails(map[string]string{"quantity": "must be greater than zero"})

	WriteError(context.Background(), testLogger(), rec, err)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	envelope := decodeError(t, rec)
	require.Equal(t, string(pkgerrors.CodeValidation), envelope.Error.Code)
	require.Equal(t, "quantity must be positive", envelope.Error.Message)
	require.NotNil(t, envelope.Error.Details)
}

func TestWriteErrorInternalHidesMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	err := pkgerrors.Wrap(pkgerrors.CodeInternal, errors.New("pq: connection reset"), "load order failed").
		WithDetails(map[string]string{"dsn": "secret"})

	WriteError(context.Background(), testLogger(), rec, err)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	envelope := decodeError(t, rec)
	require.Equal(t, string(pkgerrors.CodeInternal), envelope.Error.Code)
	require.Equal(t, "internal server error", envelope.Error.Message)
	require.Nil(t, envelope.Error.Details)
}

func TestWriteErrorInsufficientStockMapsConflict(t *testing.T) {
	rec := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeInsufficientStock, "only 2 units available")

	WriteError(context.Background(), testLogger(), rec, err)

	require.Equal(t, http.StatusConflict, rec.Code)
	envelope := decodeError(t, rec)
	require.Equal(t, "only 2 units available", envelope.Error.Message)
}

func TestWriteErrorUntypedBecomesInternal(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteError(context.Background(), testLogger(), rec, errors.New("boom"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	envelope := decodeError(t, rec)
	require.Equal(t, string(pkgerrors.CodeInternal), envelope.Error.Code)
}

func TestWriteErrorEchoesRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx := ContextWithRequestID(context.Background(), "req-123")

	WriteError(ctx, testLogger(), rec, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))

	require.Equal(t, http.StatusNotFound, rec.Code)
	envelope := decodeError(t, rec)
	require.Equal(t, "req-123", envelope.Error.RequestID)
}

func TestWriteErrorStateConflictMapsUnprocessable(t *testing.T) {
	rec := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeStateConflict, "order already paid")

	WriteError(context.Background(), testLogger(), rec, err)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	envelope := decodeError(t, rec)
	require.Equal(t, "order already paid", envelope.Error.Message)
}
