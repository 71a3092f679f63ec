package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	deposits []Deposit
	err      error
}

func (q *recordingQueue) EnqueueDeposit(_ context.Context, d Deposit) error {
	if q.err != nil {
		return q.err
	}
	q.deposits = append(q.deposits, d)
	return nil
}

func TestWebhookHandler(t *testing.T) {
	const validBody = `{"event":"deposit","data":{"amount":"50","network":"polygon","organizationId":"org-1","txHash":"0xabc"}}`

	testCases := []struct {
		name       string
		body       string
		secret     string
		queue      *recordingQueue
		wantStatus int
		wantSent   int
	}{
		{name: "delivers inline", body: validBody, wantStatus: http.StatusOK, wantSent: 2},
		{name: "numeric amount", body: `{"event":"deposit","data":{"amount":12.5,"organizationId":"org-1"}}`, wantStatus: http.StatusOK, wantSent: 2},
		{name: "other events ignored", body: `{"event":"withdrawal","data":{}}`, wantStatus: http.StatusAccepted},
		{name: "malformed json", body: `{"event":`, wantStatus: http.StatusBadRequest},
		{name: "missing organization", body: `{"event":"deposit","data":{"amount":"5"}}`, wantStatus: http.StatusBadRequest},
		{name: "wrong secret", body: validBody, secret: "s3cret", wantStatus: http.StatusUnauthorized},
		{name: "queued", body: validBody, queue: &recordingQueue{}, wantStatus: http.StatusAccepted},
		{name: "queue down", body: validBody, queue: &recordingQueue{err: errors.New("redis down")}, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			relay, sender := newTestRelay(t)
			require.NoError(t, relay.SubscribeToOrganization(ctx, 1))
			require.NoError(t, relay.SubscribeToOrganization(ctx, 2))

			var queue Enqueuer
			if tc.queue != nil {
				queue = tc.queue
			}

			router := chi.NewRouter()
			NewWebhookHandler(relay, queue, tc.secret, testLogger()).Mount(router, "/webhooks/deposit")

			req := httptest.NewRequest(http.MethodPost, "/webhooks/deposit", strings.NewReader(tc.body))
			req.Header.Set(webhookSecretHeader, "wrong")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Len(t, sender.sent, tc.wantSent)
			if tc.queue != nil && tc.queue.err == nil {
				require.Len(t, tc.queue.deposits, 1)
				assert.Equal(t, "org-1", tc.queue.deposits[0].OrganizationID)
			}
		})
	}
}

func TestWebhookHandler_ValidSecret(t *testing.T) {
	relay, _ := newTestRelay(t)
	handler := NewWebhookHandler(relay, nil, "s3cret", testLogger())

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"event":"deposit","data":{"amount":"1","organizationId":"org-9"}}`))
	req.Header.Set(webhookSecretHeader, "s3cret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, float64(0), body["delivered"])
}

func TestParseEvent_StringEncodedData(t *testing.T) {
	d, err := ParseEvent([]byte(`{"event":"deposit","data":"{\"amount\":\"7.25\",\"organizationId\":\"org-1\"}"}`))
	require.NoError(t, err)
	assert.Equal(t, "7.25", d.Amount.String())
}
