package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestOKWritesSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, http.StatusCreated, map[string]int{"id": 7})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decodeEnvelope(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, map[string]any{"id": float64(7)}, body["data"])
	_, hasMessage := body["message"]
	assert.False(t, hasMessage)
}

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("user: %w", ErrNotFound), http.StatusNotFound},
		{ErrDuplicate, http.StatusConflict},
		{ErrConflict, http.StatusConflict},
		{ErrValidation, http.StatusBadRequest},
		{ErrUnprocessable, http.StatusUnprocessableEntity},
		{ErrForbidden, http.StatusForbidden},
		{ErrUnauthorized, http.StatusUnauthorized},
		{errors.New("db exploded"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.Equal(t, tc.status, StatusFor(tc.err))
		body := decodeEnvelope(t, rec)
		assert.Equal(t, false, body["success"])
	}
}

func TestRespondErrorHidesInternalMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("dial tcp 10.0.0.1:3306: refused"))
	body := decodeEnvelope(t, rec)
	assert.Equal(t, "internal server error", body["message"])
}

type sample struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required,min=2"`
	Items []struct {
		Qty int `json:"quantity" validate:"gt=0"`
	} `json:"items" validate:"required,min=1,dive"`
}

func TestValidateReportsJSONFieldNames(t *testing.T) {
	in := sample{Email: "nope", Items: []struct {
		Qty int `json:"quantity" validate:"gt=0"`
	}{{Qty: 0}}}
	err := Validate(in)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	var fe *FieldErrors
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "must be a valid email address", fe.Fields["email"])
	assert.Equal(t, "is required", fe.Fields["name"])
	assert.Equal(t, "must be greater than 0", fe.Fields["items[0].quantity"])

	rec := httptest.NewRecorder()
	RespondError(rec, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeEnvelope(t, rec)
	assert.Contains(t, body["errors"], "email")
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	err := DecodeJSON(req, &target)
	assert.ErrorIs(t, err, ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	assert.ErrorIs(t, DecodeJSON(req, &target), ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok"}`))
	require.NoError(t, DecodeJSON(req, &target))
	assert.Equal(t, "ok", target.Name)
}
