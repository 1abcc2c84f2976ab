package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"raffle-ledger/internal/backup"
	"raffle-ledger/internal/ledger"
	"raffle-ledger/internal/raffle"
	"raffle-ledger/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	testCases := []struct {
		raw     string
		want    *int64
		wantErr error
	}{
		{"", nil, nil},
		{"null", nil, nil},
		{"400", ptr(400), nil},
		{`"400"`, ptr(400), nil},
		{"400.0", ptr(400), nil},
		{`" 600 "`, ptr(600), nil},
		{"-200", ptr(-200), nil},
		{"200.5", nil, util.ErrInvalidAmount},
		{`"abc"`, nil, util.ErrInvalidAmount},
		{`""`, nil, util.ErrInvalidAmount},
		{"true", nil, util.ErrInvalidAmount},
	}
	for _, tc := range testCases {
		got, err := parseAmount(json.RawMessage(tc.raw))
		if tc.wantErr != nil {
			assert.ErrorIs(t, err, tc.wantErr, "raw=%s", tc.raw)
			continue
		}
		require.NoError(t, err, "raw=%s", tc.raw)
		assert.Equal(t, tc.want, got, "raw=%s", tc.raw)
	}
}

func TestWriteError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	testCases := []struct {
		err        error
		wantStatus int
		wantCode   int
	}{
		{util.ErrInvalidIdentifier, http.StatusBadRequest, util.CodeInvalidParam},
		{fmt.Errorf("%w: 250", util.ErrNotAMultiple), http.StatusBadRequest, util.CodeInvalidParam},
		{util.ErrOutOfRange, http.StatusBadRequest, util.CodeInvalidParam},
		{raffle.ErrModeMismatch, http.StatusBadRequest, util.CodeInvalidParam},
		{ledger.ErrDuplicateIdentifier, http.StatusConflict, util.CodeConflict},
		{ledger.ErrNotFound, http.StatusNotFound, util.CodeNotFound},
		{backup.ErrNotFound, http.StatusNotFound, util.CodeNotFound},
		{ledger.ErrEmptyLedger, http.StatusBadRequest, util.CodeEmptyLedger},
		{fmt.Errorf("ledger insert: %w: %w", ledger.ErrStorage, errors.New("disk I/O error")), http.StatusInternalServerError, util.CodeServerErr},
		{fmt.Errorf("%w: entropy exhausted", ledger.ErrBadPick), http.StatusInternalServerError, util.CodeServerErr},
		{errors.New("boom"), http.StatusInternalServerError, util.CodeServerErr},
	}
	for _, tc := range testCases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		writeError(c, tc.err)

		assert.Equal(t, tc.wantStatus, w.Code, tc.err.Error())
		var body struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tc.wantCode, body.Code, tc.err.Error())
		assert.NotEmpty(t, body.Message)
		if errors.Is(tc.err, ledger.ErrBadPick) {
			assert.NotContains(t, body.Message, "重试")
		}
	}
}

func ptr(v int64) *int64 { return &v }
