package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type samplePayload struct {
	Months int     `json:"durationMonths" validate:"required,gt=0,lte=120"`
	Label  string  `json:"label" validate:"required"`
	Amount Decimal `json:"amount"`
}

func TestDecodeJSONValidation(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"durationMonths": 0, "amount": "x"}`))
	var p samplePayload
	err := DecodeJSON(req, &p)
	require.Error(t, err)

	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, http.StatusUnprocessableEntity, appErr.HTTPStatus)
	details, ok := appErr.Details.(map[string]string)
	require.True(t, ok)
	require.Equal(t, "required", details["durationMonths"])
	require.Equal(t, "required", details["label"])
	require.True(t, p.Amount.IsZero())
}

func TestDecodeJSONMalformed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	var p samplePayload
	err := DecodeJSON(req, &p)

	rr := httptest.NewRecorder()
	WriteError(rr, err)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var body struct {
		Error ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "BAD_REQUEST", body.Error.Code)
}

func TestWriteErrorPlain(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, errors.New("boom"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}
