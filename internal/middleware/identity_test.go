package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devxaves/lifeline-protocol/internal/middleware"
	"github.com/devxaves/lifeline-protocol/internal/models"
)

func TestIdentity(t *testing.T) {
	tests := []struct {
		name           string
		header         string
		expectedStatus int
		expectedWallet string
		expectNext     bool
	}{
		{
			name:           "Кошелек передан",
			header:         "0xabc",
			expectedStatus: http.StatusOK,
			expectedWallet: "0xabc",
			expectNext:     true,
		},
		{
			name:           "Пробелы обрезаются",
			header:         "  0xabc ",
			expectedStatus: http.StatusOK,
			expectedWallet: "0xabc",
			expectNext:     true,
		},
		{
			name:           "Заголовок отсутствует",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Пустой заголовок",
			header:         "   ",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			var gotWallet string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				gotWallet, _ = middleware.GetWalletFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, "/api/vault/heartbeat", nil)
			if tt.header != "" {
				req.Header.Set(middleware.WalletHeader, tt.header)
			}
			rr := httptest.NewRecorder()

			middleware.Identity(next).ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Equal(t, tt.expectNext, called)
			assert.Equal(t, tt.expectedWallet, gotWallet)
			if !tt.expectNext {
				assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
				var resp models.ErrorResponse
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
				assert.Equal(t, middleware.KindUnauthenticated, resp.Kind)
				assert.Contains(t, resp.Error, middleware.WalletHeader)
			}
		})
	}
}

func TestGetWalletFromContext(t *testing.T) {
	wallet, ok := middleware.GetWalletFromContext(context.Background())
	assert.False(t, ok)
	assert.Empty(t, wallet)

	ctx := context.WithValue(context.Background(), middleware.WalletKey, "")
	_, ok = middleware.GetWalletFromContext(ctx)
	assert.False(t, ok)

	ctx = context.WithValue(context.Background(), middleware.WalletKey, "0xabc")
	wallet, ok = middleware.GetWalletFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "0xabc", wallet)
}
