package bot

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/payments-bot/internal/bot/handlers"
)

type callbackRoute struct {
	prefix  string
	handler handlers.CallbackHandler
}

// Router dispatches commands, callbacks, and state-aware updates.
type Router struct {
	mu sync.RWMutex
	// commands are keyed by "/name"; aliases map reply keyboard labels to a command.
	commands       map[string]handlers.Handler
	aliases        map[string]string
	callbacks      []callbackRoute
	dispatcher     *Dispatcher
	defaultHandler handlers.Handler
	middlewares    []handlers.Middleware
	log            *slog.Logger
}

// NewRouter builds a Router with empty registries.
func NewRouter(dispatcher *Dispatcher, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		commands:    make(map[string]handlers.Handler),
		aliases:     make(map[string]string),
		dispatcher:  dispatcher,
		middlewares: make([]handlers.Middleware, 0),
		log:         log,
	}
}

// RegisterCommand registers a handler for a bot command.
func (r *Router) RegisterCommand(cmd string, h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[strings.ToLower(cmd)] = h
}

// RegisterAlias makes a reply keyboard label behave like cmd.
func (r *Router) RegisterAlias(label, cmd string) {
	label = strings.TrimSpace(label)
	if label == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[label] = strings.ToLower(cmd)
}

// RegisterCallback registers a handler for callback data starting with prefix. The longest
// matching prefix wins.
func (r *Router) RegisterCallback(prefix string, h handlers.CallbackHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.callbacks = append(r.callbacks, callbackRoute{prefix: prefix, handler: h})
	sort.SliceStable(r.callbacks, func(i, j int) bool {
		return len(r.callbacks[i].prefix) > len(r.callbacks[j].prefix)
	})
}

// Use appends a middleware to the chain.
func (r *Router) Use(mw handlers.Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw)
}

// SetDefault sets the fallback handler for unmatched text and unknown commands.
func (r *Router) SetDefault(h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultHandler = h
}

// Route directs the incoming update to the appropriate handler.
func (r *Router) Route(c telebot.Context) error {
	if c == nil {
		return nil
	}

	if callback := c.Callback(); callback != nil {
		return r.handleCallback(c, callback.Data)
	}

	return r.handleMessage(c)
}

func (r *Router) handleCallback(c telebot.Context, data string) error {
	// Answer first so the client's spinner stops regardless of what the handler does.
	if err := c.Respond(); err != nil {
		r.log.Warn("failed to answer callback", slog.String("data", data), slog.Any("error", err))
	}

	handler := r.findCallbackHandler(data)
	if handler == nil {
		r.log.Info("no callback handler found", slog.String("data", data))
		return nil
	}

	return r.executeHandler(handlers.Handler(handler), c)
}

func (r *Router) handleMessage(c telebot.Context) error {
	text := strings.TrimSpace(c.Text())

	if strings.HasPrefix(text, "/") {
		if handler := r.getCommandHandler(commandName(text)); handler != nil {
			return r.executeHandler(handler, c)
		}
		if handler := r.getDefaultHandler(); handler != nil {
			return r.executeHandler(handler, c)
		}
		return nil
	}

	if cmd, ok := r.getAlias(text); ok {
		if handler := r.getCommandHandler(cmd); handler != nil {
			return r.executeHandler(handler, c)
		}
	}

	return r.executeHandler(r.dispatchState, c)
}

// dispatchState hands free text to the active flow, or to the default handler when the chat
// is idle.
func (r *Router) dispatchState(c telebot.Context) error {
	if r.dispatcher != nil {
		handled, err := r.dispatcher.Dispatch(c)
		if err != nil || handled {
			return err
		}
	}

	if handler := r.getDefaultHandler(); handler != nil {
		return handler(c)
	}
	return nil
}

func (r *Router) executeHandler(h handlers.Handler, c telebot.Context) error {
	wrapped := r.applyMiddlewares(h)
	if wrapped == nil {
		return nil
	}
	return wrapped(c)
}

func (r *Router) findCallbackHandler(data string) handlers.CallbackHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, route := range r.callbacks {
		if strings.HasPrefix(data, route.prefix) {
			return route.handler
		}
	}

	return nil
}

func (r *Router) getCommandHandler(cmd string) handlers.Handler {
	r.mu.RLock()
	handler := r.commands[cmd]
	r.mu.RUnlock()
	return handler
}

func (r *Router) getAlias(label string) (string, bool) {
	r.mu.RLock()
	cmd, ok := r.aliases[label]
	r.mu.RUnlock()
	return cmd, ok
}

func (r *Router) getDefaultHandler() handlers.Handler {
	r.mu.RLock()
	handler := r.defaultHandler
	r.mu.RUnlock()
	return handler
}

// applyMiddlewares wraps the handler with all registered middlewares.
func (r *Router) applyMiddlewares(h handlers.Handler) handlers.Handler {
	if h == nil {
		return nil
	}

	middlewares := r.middlewaresSnapshot()
	wrapped := h
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}

	return wrapped
}

func (r *Router) middlewaresSnapshot() []handlers.Middleware {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.middlewares) == 0 {
		return nil
	}

	snapshot := make([]handlers.Middleware, len(r.middlewares))
	copy(snapshot, r.middlewares)
	return snapshot
}

// commandName extracts "/send" from "/send@payments_bot 10".
func commandName(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	name, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(name)
}
