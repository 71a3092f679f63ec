package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Proton-105/payments-bot/pkg/config"
)

const (
	pusherProtocol    = "7"
	pusherClient      = "payments-bot"
	pusherVersion     = "1.0"
	orgChannelPrefix  = "private-org-"
	handshakeTimeout  = 10 * time.Second
	writeTimeout      = 10 * time.Second
	readTimeout       = 2 * time.Minute
	minReconnectDelay = time.Second
	maxReconnectDelay = 30 * time.Second
	eventEstablished  = "pusher:connection_established"
	eventSubscribe    = "pusher:subscribe"
	eventSubscribed   = "pusher_internal:subscription_succeeded"
	eventPing         = "pusher:ping"
	eventPong         = "pusher:pong"
	eventPusherError  = "pusher:error"
)

var errNotConnected = errors.New("channel feed not connected")

// ChannelAuthorizer signs private channel subscriptions with a chat's credentials.
type ChannelAuthorizer interface {
	AuthorizeChannel(ctx context.Context, chatID int64, socketID, channel string) (string, error)
}

type pusherMessage struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// PusherSubscriber keeps a websocket to the Pusher-compatible event feed, joins one private
// channel per organization and hands deposit events to a callback. It reconnects with backoff
// and re-joins every known channel.
type PusherSubscriber struct {
	url       string
	auth      ChannelAuthorizer
	onDeposit func(ctx context.Context, d Deposit)
	log       *slog.Logger
	dialer    *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	socketID string
	// channels maps a channel to the chat whose credentials authorize it.
	channels map[string]int64
	writeMu  sync.Mutex
}

// NewPusherSubscriber builds a subscriber for cfg. onDeposit is called from the read loop.
func NewPusherSubscriber(cfg config.NotificationsConfig, auth ChannelAuthorizer, onDeposit func(ctx context.Context, d Deposit), log *slog.Logger) *PusherSubscriber {
	if log == nil {
		log = slog.Default()
	}
	return &PusherSubscriber{
		url:       feedURL(cfg),
		auth:      auth,
		onDeposit: onDeposit,
		log:       log.With("component", "pusher"),
		dialer:    &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		channels:  make(map[string]int64),
	}
}

// ChannelName returns the private channel of orgID.
func ChannelName(orgID string) string {
	return orgChannelPrefix + orgID
}

func feedURL(cfg config.NotificationsConfig) string {
	host := cfg.PusherHost
	if host == "" {
		host = fmt.Sprintf("wss://ws-%s.pusher.com", cfg.PusherCluster)
	} else if !strings.Contains(host, "://") {
		host = "wss://" + host
	}

	q := url.Values{}
	q.Set("protocol", pusherProtocol)
	q.Set("client", pusherClient)
	q.Set("version", pusherVersion)
	return fmt.Sprintf("%s/app/%s?%s", strings.TrimRight(host, "/"), url.PathEscape(cfg.PusherKey), q.Encode())
}

// Subscribe remembers the organization channel and joins it now when connected.
func (p *PusherSubscriber) Subscribe(ctx context.Context, chatID int64, orgID string) error {
	channel := ChannelName(orgID)

	p.mu.Lock()
	_, known := p.channels[channel]
	p.channels[channel] = chatID
	connected := p.conn != nil && p.socketID != ""
	p.mu.Unlock()

	if known || !connected {
		return nil
	}
	return p.join(ctx, channel, chatID)
}

// Run connects and reads events until ctx is done.
func (p *PusherSubscriber) Run(ctx context.Context) {
	delay := minReconnectDelay
	for {
		err := p.session(ctx)
		if ctx.Err() != nil {
			p.log.Info("channel feed stopped")
			return
		}

		p.log.Warn("channel feed disconnected, reconnecting", slog.Duration("delay", delay), slog.Any("error", err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// session runs one connection until it fails.
func (p *PusherSubscriber) session(ctx context.Context) error {
	conn, _, err := p.dialer.DialContext(ctx, p.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer p.disconnect(conn)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		var msg pusherMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if err := p.handle(ctx, conn, msg); err != nil {
			return err
		}
	}
}

func (p *PusherSubscriber) handle(ctx context.Context, conn *websocket.Conn, msg pusherMessage) error {
	switch msg.Event {
	case eventEstablished:
		var established struct {
			SocketID string `json:"socket_id"`
		}
		if err := decodeData(msg.Data, &established); err != nil {
			return fmt.Errorf("decode connection: %w", err)
		}

		p.mu.Lock()
		p.conn = conn
		p.socketID = established.SocketID
		channels := make(map[string]int64, len(p.channels))
		for channel, chatID := range p.channels {
			channels[channel] = chatID
		}
		p.mu.Unlock()

		p.log.Info("channel feed connected", slog.Int("channels", len(channels)))
		for channel, chatID := range channels {
			if err := p.join(ctx, channel, chatID); err != nil {
				p.log.Warn("failed to join channel", slog.String("channel", channel), slog.Any("error", err))
			}
		}

	case eventPing:
		return p.write(pusherMessage{Event: eventPong, Data: json.RawMessage(`{}`)})

	case eventSubscribed:
		p.log.Debug("joined channel", slog.String("channel", msg.Channel))

	case eventPusherError:
		p.log.Warn("channel feed error", slog.String("data", string(msg.Data)))

	case EventDeposit:
		deposit, err := parseDepositData(msg.Data)
		if err != nil {
			p.log.Warn("ignoring malformed deposit event", slog.String("channel", msg.Channel), slog.Any("error", err))
			return nil
		}
		if p.onDeposit != nil {
			p.onDeposit(ctx, deposit)
		}
	}
	return nil
}

func (p *PusherSubscriber) join(ctx context.Context, channel string, chatID int64) error {
	p.mu.Lock()
	socketID := p.socketID
	p.mu.Unlock()
	if socketID == "" {
		return errNotConnected
	}

	auth, err := p.auth.AuthorizeChannel(ctx, chatID, socketID, channel)
	if err != nil {
		return fmt.Errorf("authorize %s: %w", channel, err)
	}

	data, err := json.Marshal(map[string]string{"channel": channel, "auth": auth})
	if err != nil {
		return err
	}
	return p.write(pusherMessage{Event: eventSubscribe, Data: data})
}

func (p *PusherSubscriber) write(msg pusherMessage) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}

func (p *PusherSubscriber) disconnect(conn *websocket.Conn) {
	p.mu.Lock()
	if p.conn == conn {
		p.conn = nil
		p.socketID = ""
	}
	p.mu.Unlock()
	_ = conn.Close()
}

// decodeData handles Pusher's habit of sending data as a JSON-encoded string.
func decodeData(data json.RawMessage, out any) error {
	var encoded string
	if err := json.Unmarshal(data, &encoded); err == nil {
		data = json.RawMessage(encoded)
	}
	return json.Unmarshal(data, out)
}
