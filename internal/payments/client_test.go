package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Proton-105/payments-bot/internal/errors"
	"github.com/Proton-105/payments-bot/pkg/config"
)

type staticTokens map[int64]string

func (s staticTokens) Token(_ context.Context, chatID int64) (string, error) {
	token, ok := s[chatID]
	if !ok {
		return "", apperrors.NewAuthError("not logged in")
	}
	return token, nil
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(
		config.PaymentsConfig{BaseURL: srv.URL, Timeout: time.Second, MaxRetries: 3},
		staticTokens{555: "tok-555"},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithRetryPolicy(apperrors.RetryPolicy{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}),
	)
}

func TestClient_GetBalancesSendsBearer(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/wallets/balances", r.URL.Path)
		assert.Equal(t, "Bearer tok-555", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[{"walletId":"w1","network":"polygon","symbol":"USDC","balance":"100.25","isDefault":true}]`))
	}))

	balances, err := client.GetBalances(context.Background(), 555)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.True(t, balances[0].Balance.Equal(decimal.RequireFromString("100.25")))
	assert.True(t, balances[0].IsDefault)
}

func TestClient_NoSession(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))

	_, err := client.GetWallets(context.Background(), 1)
	assert.True(t, apperrors.IsAuth(err))
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestClient_RetryBehaviour(t *testing.T) {
	testCases := []struct {
		name          string
		statuses      []int
		expectedCalls int32
		expectCode    string
	}{
		{name: "5xx retried then succeeds", statuses: []int{502, 503, 200}, expectedCalls: 3},
		{name: "429 retried", statuses: []int{429, 200}, expectedCalls: 2},
		{name: "4xx not retried", statuses: []int{400}, expectedCalls: 1, expectCode: apperrors.CodeAPIRequest},
		{name: "401 becomes auth error", statuses: []int{401}, expectedCalls: 1, expectCode: apperrors.CodeAuth},
		{name: "gives up after ceiling", statuses: []int{500, 500, 500, 500, 500}, expectedCalls: 4, expectCode: apperrors.CodeExternalAPI},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			var calls int32
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&calls, 1)
				status := tc.statuses[n-1]
				w.WriteHeader(status)
				if status == http.StatusOK {
					_, _ = w.Write([]byte(`{"id":"tr-1","status":"success","amount":"50"}`))
					return
				}
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			}))

			transfer, err := client.SendFundsToEmail(context.Background(), 555, "a@b.com", decimal.NewFromInt(50))

			assert.Equal(t, tc.expectedCalls, atomic.LoadInt32(&calls))
			if tc.expectCode == "" {
				require.NoError(t, err)
				assert.Equal(t, "tr-1", transfer.ID)
				return
			}

			appErr, ok := apperrors.As(err)
			require.True(t, ok, "expected AppError, got %v", err)
			assert.Equal(t, tc.expectCode, appErr.Code)
		})
	}
}

func TestClient_SendUsesStableIdempotencyKey(t *testing.T) {
	var keys []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		if len(keys) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "0xabc", body["walletAddress"])
		assert.Equal(t, "polygon", body["network"])
		assert.Equal(t, "25", body["amount"])
		_, _ = w.Write([]byte(`{"id":"tr-2"}`))
	}))

	_, err := client.SendFundsToWallet(context.Background(), 555, "0xabc", "polygon", decimal.NewFromInt(25))
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.NotEmpty(t, keys[0])
	assert.Equal(t, keys[0], keys[1])
}

func TestClient_CalculateFee(t *testing.T) {
	t.Run("quote endpoint", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/quotes/fee", r.URL.Path)
			_, _ = w.Write([]byte(`{"fee":"0.1"}`))
		}))

		fee, err := client.CalculateFee(context.Background(), 555, decimal.NewFromInt(50), KindEmail, "")
		require.NoError(t, err)
		assert.Equal(t, "0.1", fee.String())
	})

	t.Run("fallback table on failure", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		fee, err := client.CalculateFee(context.Background(), 555, decimal.NewFromInt(100), KindBank, "")
		require.NoError(t, err)
		assert.Equal(t, "2", fee.String())

		check, err := client.ValidateMinimumAmount(context.Background(), 555, decimal.NewFromInt(5), KindWallet, "polygon")
		require.NoError(t, err)
		assert.False(t, check.Valid)
		assert.Equal(t, "10", check.MinimumAmount.String())
	})

	t.Run("auth errors are not masked", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))

		_, err := client.CalculateFee(context.Background(), 555, decimal.NewFromInt(50), KindEmail, "")
		assert.True(t, apperrors.IsAuth(err))
	})
}

func TestClient_TransferHistoryPaging(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"data":[{"id":"t6"}],"count":12}`))
	}))

	page, err := client.GetTransferHistory(context.Background(), 555, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Page)
	assert.True(t, page.HasMore)
	assert.Len(t, page.Data, 1)
}

func TestClient_CircuitOpens(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	client.policy.MaxRetries = 0

	for i := 0; i < 10; i++ {
		_, _ = client.GetBalances(context.Background(), 555)
	}
	before := atomic.LoadInt32(&calls)

	_, err := client.GetBalances(context.Background(), 555)
	assert.True(t, errors.Is(err, apperrors.ErrCircuitOpen))
	assert.Equal(t, before, atomic.LoadInt32(&calls))
}

func TestFallbackTable(t *testing.T) {
	table := DefaultFallbackTable()

	testCases := []struct {
		name     string
		amount   string
		kind     TransferKind
		network  string
		expected string
	}{
		{name: "email percent", amount: "50", kind: KindEmail, expected: "0.1"},
		{name: "wallet with network fee", amount: "100", kind: KindWallet, network: "Polygon", expected: "0.6"},
		{name: "bank minimum fee", amount: "60", kind: KindBank, expected: "2"},
		{name: "bank percent", amount: "1000", kind: KindBank, expected: "15"},
		{name: "unknown kind", amount: "10", kind: TransferKind("x"), expected: "0"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			fee := table.Fee(decimal.RequireFromString(tc.amount), tc.kind, tc.network)
			assert.Equal(t, tc.expected, fee.String())
		})
	}
}
