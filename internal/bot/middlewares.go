package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/payments-bot/internal/bot/handlers"
	"github.com/Proton-105/payments-bot/internal/domain"
	apperrors "github.com/Proton-105/payments-bot/internal/errors"
	"github.com/Proton-105/payments-bot/internal/repository"
)

const lastActiveTimeout = 5 * time.Second

// RecoveryMiddleware catches panics, reports them via the centralized handler, and notifies the user.
func RecoveryMiddleware(log *slog.Logger, errHandler *apperrors.Handler) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered in handler",
						slog.Int64("chat_id", handlers.ChatID(c)),
						slog.Any("panic", r),
						slog.String("stack", string(debug.Stack())),
					)

					userMsg := apperrors.DefaultUserMessage
					if errHandler != nil {
						appErr := apperrors.NewInternalError(fmt.Errorf("panic recovered: %v", r))
						if msg, _ := errHandler.Handle(context.Background(), appErr); msg != "" {
							userMsg = msg
						}
					}

					if c != nil {
						if sendErr := c.Send(userMsg); sendErr != nil {
							log.Error("failed to notify user about panic", slog.Any("error", sendErr))
						}
					}

					err = nil
				}
			}()

			return next(c)
		}
	}
}

// ErrorHandlingMiddleware centralizes error reporting and user messaging for handler failures.
func ErrorHandlingMiddleware(errHandler *apperrors.Handler) handlers.Middleware {
	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			userMsg := apperrors.DefaultUserMessage
			if errHandler != nil {
				if msg, _ := errHandler.Handle(context.Background(), err); msg != "" {
					userMsg = msg
				}
			}

			if c != nil {
				_ = c.Send(userMsg)
			}

			return nil
		}
	}
}

// LoggingMiddleware logs basic telemetry about incoming updates. Free text is logged by length
// only since it may carry emails or one-time codes.
func LoggingMiddleware(log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			start := time.Now()
			chatID := handlers.ChatID(c)
			action := describeUpdate(c)

			log.Debug("handling update", slog.Int64("chat_id", chatID), slog.String("action", action))
			err := next(c)
			log.Info("handled update",
				slog.Int64("chat_id", chatID),
				slog.String("action", action),
				slog.Duration("duration", time.Since(start)),
				slog.Any("error", err),
			)

			return err
		}
	}
}

// ChatRegistrationMiddleware records every chat the first time it talks to the bot.
func ChatRegistrationMiddleware(chats repository.ChatRepository, log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			if chats == nil || c == nil || c.Sender() == nil {
				return next(c)
			}

			ctx := context.Background()
			chatID := handlers.ChatID(c)

			_, err := chats.FindByID(ctx, chatID)
			switch {
			case err == nil:
			case errors.Is(err, repository.ErrChatNotFound):
				sender := c.Sender()
				chat := &domain.Chat{
					ChatID:       chatID,
					Username:     sender.Username,
					FirstName:    sender.FirstName,
					LastName:     sender.LastName,
					LanguageCode: sender.LanguageCode,
					CreatedAt:    time.Now().UTC(),
				}
				if createErr := chats.Create(ctx, chat); createErr != nil {
					// Registration is bookkeeping; the update is still served.
					log.Error("failed to register chat", slog.Int64("chat_id", chatID), slog.Any("error", createErr))
				} else {
					log.Info("registered new chat", slog.Int64("chat_id", chatID))
				}
			default:
				log.Error("failed to look up chat", slog.Int64("chat_id", chatID), slog.Any("error", err))
			}

			return next(c)
		}
	}
}

// LastActiveMiddleware records chat activity timestamps without blocking request flow.
func LastActiveMiddleware(chats repository.ChatRepository, log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			if chats != nil && c != nil {
				go func(id int64, at time.Time) {
					ctx, cancel := context.WithTimeout(context.Background(), lastActiveTimeout)
					defer cancel()
					if err := chats.TouchLastActive(ctx, id, at); err != nil && !errors.Is(err, repository.ErrChatNotFound) {
						log.Debug("failed to update last activity", slog.Int64("chat_id", id), slog.Any("error", err))
					}
				}(handlers.ChatID(c), time.Now().UTC())
			}

			return next(c)
		}
	}
}

func describeUpdate(c telebot.Context) string {
	if c == nil {
		return ""
	}
	if cb := c.Callback(); cb != nil {
		return "callback:" + cb.Data
	}

	text := strings.TrimSpace(c.Text())
	if strings.HasPrefix(text, "/") {
		return commandName(text)
	}
	return fmt.Sprintf("text(%d)", len(text))
}
