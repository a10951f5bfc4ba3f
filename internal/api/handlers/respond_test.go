package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-chat/internal/core"
	"github.com/markdave123-py/contexta-chat/internal/logger"
	"github.com/markdave123-py/contexta-chat/internal/services"
)

func TestWriteErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{core.Invalidf("bad input"), http.StatusBadRequest},
		{core.NotFoundf("conversation x"), http.StatusNotFound},
		{fmt.Errorf("email: %w", core.ErrConflict), http.StatusConflict},
		{services.ErrInvalidCredentials, http.StatusUnauthorized},
		{core.Transient("embed", errors.New("quota")), http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", core.Transient("complete", errors.New("timeout"))), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, logger.Discard(), httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
}

func TestWriteErrorHidesInternals(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, logger.Discard(), httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: password authentication failed"))
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestParseIDList(t *testing.T) {
	a, b := uuid.NewString(), uuid.NewString()

	ids, err := parseIDList(a + "," + b)
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, ids)

	for _, raw := range []string{"", "nope", a + ",", a + "," + b + "," + a + "," + b} {
		_, err := parseIDList(raw)
		assert.ErrorIs(t, err, core.ErrValidation, raw)
	}
}
