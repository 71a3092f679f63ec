package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Proton-105/payments-bot/internal/ratelimit"
	"github.com/Proton-105/payments-bot/internal/session"
	"github.com/Proton-105/payments-bot/pkg/metrics"
)

// ErrNoOrganization is returned when the chat's session has no organization to subscribe to.
var ErrNoOrganization = errors.New("session has no organization")

// Sessions resolves the organization of a chat.
type Sessions interface {
	GetSession(ctx context.Context, chatID int64) (*session.Session, error)
	Authenticated(ctx context.Context) ([]*session.Session, error)
}

// Sender delivers a Markdown message to a chat.
type Sender interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// ChannelSubscriber joins the live event channel of an organization on behalf of chatID.
type ChannelSubscriber interface {
	Subscribe(ctx context.Context, chatID int64, orgID string) error
}

// Relay fans deposit events out to every chat of the receiving organization, at most one
// message per chat per throttle window.
type Relay struct {
	sessions Sessions
	store    SubscriptionStore
	throttle *ratelimit.Throttle
	sender   Sender
	channels ChannelSubscriber
	log      *slog.Logger
	now      func() time.Time
}

// NewRelay wires a Relay. throttle may be nil to disable throttling.
func NewRelay(sessions Sessions, store SubscriptionStore, throttle *ratelimit.Throttle, log *slog.Logger) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{
		sessions: sessions,
		store:    store,
		throttle: throttle,
		log:      log.With("component", "notify"),
		now:      time.Now,
	}
}

// SetSender attaches the chat transport. Deliveries before it is set are dropped.
func (r *Relay) SetSender(sender Sender) {
	r.sender = sender
}

// SetChannels attaches the live channel feed.
func (r *Relay) SetChannels(channels ChannelSubscriber) {
	r.channels = channels
}

// SubscribeToOrganization maps chatID to its session's organization.
func (r *Relay) SubscribeToOrganization(ctx context.Context, chatID int64) error {
	sess, err := r.sessions.GetSession(ctx, chatID)
	if err != nil {
		return err
	}
	if sess.OrganizationID == "" {
		return ErrNoOrganization
	}

	if err := r.store.Add(ctx, sess.OrganizationID, chatID); err != nil {
		return err
	}

	if r.channels != nil {
		if err := r.channels.Subscribe(ctx, chatID, sess.OrganizationID); err != nil {
			return fmt.Errorf("subscribe channel: %w", err)
		}
	}

	r.log.Info("chat subscribed to deposits", slog.Int64("chat_id", chatID), slog.String("org_id", sess.OrganizationID))
	return nil
}

// Unsubscribe stops notifications for chatID, e.g. on logout.
func (r *Relay) Unsubscribe(ctx context.Context, chatID int64) error {
	return r.store.Remove(ctx, chatID)
}

// Restore re-subscribes every authenticated session, used at startup.
func (r *Relay) Restore(ctx context.Context) (int, error) {
	sessions, err := r.sessions.Authenticated(ctx)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, sess := range sessions {
		if err := r.SubscribeToOrganization(ctx, sess.ChatID); err != nil {
			r.log.Warn("failed to restore subscription", slog.Int64("chat_id", sess.ChatID), slog.Any("error", err))
			continue
		}
		restored++
	}
	return restored, nil
}

// HandleDeposit notifies every chat of d's organization and returns how many were delivered.
func (r *Relay) HandleDeposit(ctx context.Context, d Deposit) (int, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}

	chats, err := r.store.Chats(ctx, d.OrganizationID)
	if err != nil {
		return 0, err
	}
	if len(chats) == 0 {
		r.log.Debug("deposit for organization without chats", slog.String("org_id", d.OrganizationID))
		return 0, nil
	}

	delivered := 0
	for _, chatID := range chats {
		if r.deliver(ctx, chatID, d) {
			delivered++
		}
	}
	return delivered, nil
}

// SimulateDeposit sends a synthetic deposit notification to chatID only.
func (r *Relay) SimulateDeposit(ctx context.Context, chatID int64, amount decimal.Decimal, network string) error {
	orgID := "simulated"
	if sess, err := r.sessions.GetSession(ctx, chatID); err == nil && sess.OrganizationID != "" {
		orgID = sess.OrganizationID
	}

	d := Deposit{Amount: amount, Network: network, OrganizationID: orgID, Timestamp: r.now()}
	if err := d.Validate(); err != nil {
		return err
	}
	if !r.deliver(ctx, chatID, d) {
		return ratelimit.ErrLimitExceeded
	}
	return nil
}

func (r *Relay) deliver(ctx context.Context, chatID int64, d Deposit) bool {
	if r.sender == nil {
		metrics.RecordNotification("dropped")
		return false
	}
	if !r.throttle.Allow(ctx, chatID) {
		metrics.RecordNotification("throttled")
		r.log.Debug("deposit notification throttled", slog.Int64("chat_id", chatID))
		return false
	}

	if err := r.sender.Notify(ctx, chatID, d.Message()); err != nil {
		metrics.RecordNotification("failed")
		r.log.Warn("deposit notification failed", slog.Int64("chat_id", chatID), slog.Any("error", err))
		return false
	}

	metrics.RecordNotification("sent")
	return true
}
