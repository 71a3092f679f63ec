package state

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrInvalidTransition indicates that a requested transition is not part of any flow.
var ErrInvalidTransition = errors.New("invalid state transition")

var transitionRecorder = func(from, to string) {}

// RegisterTransitionRecorder allows external packages to observe state transitions.
func RegisterTransitionRecorder(recorder func(from, to string)) {
	if recorder == nil {
		transitionRecorder = func(string, string) {}
		return
	}

	transitionRecorder = recorder
}

// Registry is the per-chat conversation state registry. Unknown chats are idle with an empty context.
type Registry interface {
	GetState(ctx context.Context, chatID int64) (State, error)
	// SetState overwrites the current state and keeps the context.
	SetState(ctx context.Context, chatID int64, st State) error
	// TransitionTo moves to st if the flow table allows it.
	TransitionTo(ctx context.Context, chatID int64, st State) error
	GetContext(ctx context.Context, chatID int64) (TxContext, error)
	// UpdateContext shallow-merges patch into the stored context.
	UpdateContext(ctx context.Context, chatID int64, patch TxContext) error
	// ResetState sets the state to idle and keeps the context.
	ResetState(ctx context.Context, chatID int64) error
	// ClearChat deletes both state and context.
	ClearChat(ctx context.Context, chatID int64) error
	// GetChatState returns the chat's full record, an idle one when unknown.
	GetChatState(ctx context.Context, chatID int64) (*ChatState, error)
	GetAllStates(ctx context.Context) ([]*ChatState, error)
}

type registry struct {
	storage Storage
	log     *slog.Logger
	now     func() time.Time
}

// NewRegistry creates a Registry over storage.
func NewRegistry(storage Storage, log *slog.Logger) Registry {
	if log == nil {
		log = slog.Default()
	}

	return &registry{
		storage: storage,
		log:     log,
		now:     time.Now,
	}
}

func (r *registry) load(ctx context.Context, chatID int64) (*ChatState, error) {
	st, err := r.storage.Get(ctx, chatID)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return &ChatState{ChatID: chatID, Current: StateIdle}, nil
		}
		return nil, err
	}
	if st.Current == "" {
		st.Current = StateIdle
	}
	return st, nil
}

func (r *registry) save(ctx context.Context, st *ChatState) error {
	st.UpdatedAt = r.now().UTC()
	return r.storage.Save(ctx, st)
}

// GetState returns the chat's state, idle when unknown.
func (r *registry) GetState(ctx context.Context, chatID int64) (State, error) {
	st, err := r.load(ctx, chatID)
	if err != nil {
		return StateIdle, err
	}
	return st.Current, nil
}

func (r *registry) SetState(ctx context.Context, chatID int64, next State) error {
	st, err := r.load(ctx, chatID)
	if err != nil {
		return err
	}

	transitionRecorder(string(st.Current), string(next))
	st.Current = next
	return r.save(ctx, st)
}

func (r *registry) TransitionTo(ctx context.Context, chatID int64, next State) error {
	st, err := r.load(ctx, chatID)
	if err != nil {
		return err
	}

	if !IsTransitionAllowed(st.Current, next) {
		r.log.Warn("invalid state transition", "chat_id", chatID, "from", st.Current, "to", next)
		return ErrInvalidTransition
	}

	transitionRecorder(string(st.Current), string(next))
	st.Current = next
	return r.save(ctx, st)
}

// GetContext returns the collected context, empty when unknown.
func (r *registry) GetContext(ctx context.Context, chatID int64) (TxContext, error) {
	st, err := r.load(ctx, chatID)
	if err != nil {
		return TxContext{}, err
	}
	return st.Context, nil
}

func (r *registry) UpdateContext(ctx context.Context, chatID int64, patch TxContext) error {
	st, err := r.load(ctx, chatID)
	if err != nil {
		return err
	}

	st.Context = st.Context.Merge(patch)
	return r.save(ctx, st)
}

func (r *registry) ResetState(ctx context.Context, chatID int64) error {
	st, err := r.storage.Get(ctx, chatID)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		return err
	}
	if st.Current == StateIdle {
		return nil
	}

	transitionRecorder(string(st.Current), string(StateIdle))
	st.Current = StateIdle
	return r.save(ctx, st)
}

func (r *registry) ClearChat(ctx context.Context, chatID int64) error {
	return r.storage.Delete(ctx, chatID)
}

func (r *registry) GetChatState(ctx context.Context, chatID int64) (*ChatState, error) {
	return r.load(ctx, chatID)
}

// GetAllStates returns every stored chat state.
func (r *registry) GetAllStates(ctx context.Context) ([]*ChatState, error) {
	return r.storage.List(ctx)
}
