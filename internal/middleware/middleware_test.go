package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/payments-bot/internal/idempotency"
	"github.com/Proton-105/payments-bot/internal/ratelimit"
	"github.com/Proton-105/payments-bot/pkg/config"
	"github.com/Proton-105/payments-bot/pkg/logger"
)

type fakeContext struct {
	telebot.Context

	text     string
	callback *telebot.Callback
	updateID int

	sent      []string
	responses []*telebot.CallbackResponse
}

func newText(text string) *fakeContext {
	return &fakeContext{text: text, updateID: 1}
}

func newCallback(data string) *fakeContext {
	return &fakeContext{callback: &telebot.Callback{ID: "cb", Data: data}, updateID: 1}
}

func (c *fakeContext) Text() string { return c.text }
func (c *fakeContext) Callback() *telebot.Callback { return c.callback }
func (c *fakeContext) Chat() *telebot.Chat { return &telebot.Chat{ID: 7} }
func (c *fakeContext) Sender() *telebot.User { return &telebot.User{ID: 7} }
func (c *fakeContext) Message() *telebot.Message { return nil }
func (c *fakeContext) Update() telebot.Update { return telebot.Update{ID: c.updateID} }

func (c *fakeContext) Send(what interface{}, _ ...interface{}) error {
	if text, ok := what.(string); ok {
		c.sent = append(c.sent, text)
	}
	return nil
}

func (c *fakeContext) Respond(resp ...*telebot.CallbackResponse) error {
	c.responses = append(c.responses, resp...)
	return nil
}

func rateLimitConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled: true,
		PerUser: config.RateLimitRule{Limit: 5, Window: "1m"},
		Commands: map[string]config.RateLimitRule{
			"send": {Limit: 1, Window: "1m"},
		},
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	calls := 0
	next := func(telebot.Context) error {
		calls++
		return nil
	}

	mw := NewRateLimitMiddleware(ratelimit.NewMemoryLimiter(nil), ratelimit.NewRules(rateLimitConfig()), nil, nil)
	handler := mw.Handle(next)

	require.NoError(t, handler(newText("/send")))
	assert.Equal(t, 1, calls)

	// The send button counts against the /send rule.
	button := newCallback("flow:send_email")
	require.NoError(t, handler(button))
	assert.Equal(t, 1, calls)
	require.Len(t, button.responses, 1)
	assert.True(t, button.responses[0].ShowAlert)
	assert.Equal(t, rateLimitedFallback, button.responses[0].Text)

	// Plain text is limited by the per-user rule only.
	for i := 0; i < 3; i++ {
		require.NoError(t, handler(newText("hello")))
	}
	assert.Equal(t, 4, calls)

	blocked := newText("hello")
	require.NoError(t, handler(blocked))
	assert.Equal(t, 4, calls)
	assert.Equal(t, []string{rateLimitedFallback}, blocked.sent)
}

func TestRateLimitMiddleware_Whitelist(t *testing.T) {
	cfg := rateLimitConfig()
	cfg.PerUser.Limit = 0
	cfg.Whitelist = []int64{7}

	calls := 0
	handler := NewRateLimitMiddleware(ratelimit.NewMemoryLimiter(nil), ratelimit.NewRules(cfg), nil, nil).Handle(func(telebot.Context) error {
		calls++
		return nil
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, handler(newText("/send")))
	}
	assert.Equal(t, 3, calls)
}

func TestLimitedCommand(t *testing.T) {
	testCases := []struct {
		name     string
		ctx      *fakeContext
		expected string
	}{
		{name: "command", ctx: newText("/withdraw"), expected: "withdraw"},
		{name: "command with suffix", ctx: newText("/Bulk@payments_bot"), expected: "bulk"},
		{name: "send wallet button", ctx: newCallback("flow:send_wallet"), expected: "send"},
		{name: "withdraw bank button", ctx: newCallback("flow:withdraw_bank"), expected: "withdraw"},
		{name: "non flow button", ctx: newCallback("confirm"), expected: ""},
		{name: "free text", ctx: newText("10"), expected: ""},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, limitedCommand(tc.ctx))
		})
	}
}

func TestExtractCommandName(t *testing.T) {
	assert.Equal(t, "/balance", extractCommandName(newText("/balance@bot")))
	assert.Equal(t, "callback:history", extractCommandName(newCallback("history:2")))
	assert.Equal(t, "text", extractCommandName(newText("user@example.com")))
	assert.Equal(t, "unknown", extractCommandName(newText("  ")))
	assert.Equal(t, "unknown", extractCommandName(nil))
}

func TestIdempotency(t *testing.T) {
	manager := idempotency.NewManager(idempotency.NewMemoryStore(), nil)

	calls := 0
	handler := Idempotency(manager, time.Hour, nil)(func(telebot.Context) error {
		calls++
		return nil
	})

	update := newText("CONFIRM")
	require.NoError(t, handler(update))
	require.NoError(t, handler(update))
	assert.Equal(t, 1, calls)

	next := newText("CONFIRM")
	next.updateID = 2
	require.NoError(t, handler(next))
	assert.Equal(t, 2, calls)
}

func TestIdempotency_FailedUpdateIsRetried(t *testing.T) {
	manager := idempotency.NewManager(idempotency.NewMemoryStore(), nil)
	boom := errors.New("telegram unavailable")

	calls := 0
	handler := Idempotency(manager, time.Hour, nil)(func(telebot.Context) error {
		calls++
		if calls == 1 {
			return boom
		}
		return nil
	})

	update := newText("/balance")
	assert.ErrorIs(t, handler(update), boom)
	assert.NoError(t, handler(update))
	assert.Equal(t, 2, calls)
}

func TestRequestLogger(t *testing.T) {
	handler := logger.Middleware(RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, logger.CorrelationIDFromContext(r.Context()))
		w.WriteHeader(http.StatusTeapot)
	})))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ready", nil).WithContext(context.Background())
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
