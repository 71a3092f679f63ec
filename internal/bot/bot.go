package bot

import (
	"fmt"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/payments-bot/internal/bot/handlers"
	"github.com/Proton-105/payments-bot/internal/bot/keyboard"
	apperrors "github.com/Proton-105/payments-bot/internal/errors"
	"github.com/Proton-105/payments-bot/internal/i18n"
	"github.com/Proton-105/payments-bot/internal/idempotency"
	"github.com/Proton-105/payments-bot/internal/middleware"
	"github.com/Proton-105/payments-bot/internal/repository"
	"github.com/Proton-105/payments-bot/internal/state"
	"github.com/Proton-105/payments-bot/pkg/config"
)

// Deps are the collaborators the bot's handlers are wired to.
type Deps struct {
	Engine      Conversation
	Sessions    handlers.Sessions
	Account     handlers.AccountAPI
	Relay       handlers.DepositRelay
	Chats       repository.ChatRepository
	I18n        *i18n.Manager
	Errors      *apperrors.Handler
	Idempotency idempotency.Manager
	RateLimit   *middleware.RateLimitMiddleware
}

// Bot wraps telebot.Bot with application dependencies required for handling updates.
type Bot struct {
	telebot    *telebot.Bot
	log        *slog.Logger
	cfg        config.Config
	deps       Deps
	router     *Router
	dispatcher *Dispatcher
}

// New builds a telegram bot instance configured according to the application settings.
func New(cfg config.Config, log *slog.Logger, deps Deps) (*Bot, error) {
	if log == nil {
		log = slog.Default()
	}
	if deps.Errors == nil {
		deps.Errors = apperrors.NewHandler(log, cfg.Sentry.Enabled)
	}

	settings := telebot.Settings{
		Token: cfg.Bot.Token,
		OnError: func(err error, c telebot.Context) {
			log.Error("telegram update failed", slog.Int64("chat_id", handlers.ChatID(c)), slog.Any("error", err))
		},
	}

	if cfg.Bot.Mode == "webhook" {
		settings.Poller = &telebot.Webhook{
			Listen:   cfg.Bot.WebhookListen,
			Endpoint: &telebot.WebhookEndpoint{PublicURL: cfg.Bot.WebhookURL},
		}
	} else {
		settings.Poller = &telebot.LongPoller{
			Timeout: cfg.Bot.Timeout,
		}
	}

	tb, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}

	return newBot(tb, cfg, log, deps), nil
}

func newBot(tb *telebot.Bot, cfg config.Config, log *slog.Logger, deps Deps) *Bot {
	dispatcher := NewDispatcher(deps.Engine, handlers.NewExpiredButtonHandler(deps.I18n), log)

	b := &Bot{
		telebot:    tb,
		log:        log,
		cfg:        cfg,
		deps:       deps,
		router:     NewRouter(dispatcher, log),
		dispatcher: dispatcher,
	}

	b.setupRouter()

	if tb != nil {
		if deps.RateLimit != nil {
			tb.Use(deps.RateLimit.Handle)
		}
		tb.Handle(telebot.OnText, b.router.Route)
		tb.Handle(telebot.OnCallback, b.router.Route)
	}

	return b
}

// Start publishes the command menu and runs the telegram bot event loop. It blocks until Stop.
func (b *Bot) Start() {
	if b.telebot == nil {
		return
	}

	if err := b.telebot.SetCommands(telegramCommands()); err != nil {
		b.log.Warn("failed to publish bot commands", slog.Any("error", err))
	}

	b.log.Info("telegram bot started", slog.String("mode", b.cfg.Bot.Mode), slog.String("username", b.telebot.Me.Username))
	b.telebot.Start()
}

// Stop gracefully stops the telegram bot.
func (b *Bot) Stop() {
	if b.telebot == nil {
		return
	}

	b.log.Info("stopping telegram bot...")
	b.telebot.Stop()
}

// Telebot exposes the underlying telebot.Bot instance for integrations such as health checks.
func (b *Bot) Telebot() *telebot.Bot {
	return b.telebot
}

// Router exposes the update router.
func (b *Bot) Router() *Router {
	return b.router
}

func (b *Bot) setupRouter() {
	d := b.deps

	b.router.Use(RecoveryMiddleware(b.log, d.Errors))
	b.router.Use(middleware.Idempotency(d.Idempotency, middleware.DefaultIdempotencyTTL, b.log))
	b.router.Use(ErrorHandlingMiddleware(d.Errors))
	b.router.Use(LoggingMiddleware(b.log))
	b.router.Use(ChatRegistrationMiddleware(d.Chats, b.log))
	b.router.Use(LastActiveMiddleware(d.Chats, b.log))
	b.router.Use(middleware.Metrics)

	account := handlers.NewAccount(d.Account, d.Sessions, d.I18n, d.Errors, b.log)
	history := handlers.NewHistory(account, b.cfg.Limits.HistoryPageSize)

	b.router.RegisterCommand(CommandStart, handlers.NewStartHandler(d.Sessions, d.I18n, b.log))
	b.router.RegisterCommand(CommandHelp, handlers.NewHelpHandler())
	b.router.RegisterCommand(CommandLogin, b.dispatcher.StartFlow(state.FlowLogin))
	b.router.RegisterCommand(CommandLogout, handlers.NewLogoutHandler(d.Sessions, d.Engine, d.Relay, b.log))
	b.router.RegisterCommand(CommandMe, account.Me())
	b.router.RegisterCommand(CommandBalance, account.Balance())
	b.router.RegisterCommand(CommandWallets, account.Wallets())
	b.router.RegisterCommand(CommandDeposit, account.Deposit())
	b.router.RegisterCommand(CommandHistory, history.Command())
	b.router.RegisterCommand(CommandSend, handlers.NewSendMenuHandler(d.I18n))
	b.router.RegisterCommand(CommandWithdraw, handlers.NewWithdrawMenuHandler(d.I18n))
	b.router.RegisterCommand(CommandBulk, b.dispatcher.StartFlow(state.FlowBulk))
	b.router.RegisterCommand(CommandPaymentLink, b.dispatcher.StartFlow(state.FlowPaymentLink))
	b.router.RegisterCommand(CommandSimulateDeposit, handlers.NewSimulateDepositHandler(d.Sessions, d.Relay, b.log))
	b.router.RegisterCommand(CommandCancel, handlers.NewCancelHandler(d.Engine, b.log))

	flowCallback := b.dispatcher.FlowCallback()
	b.router.RegisterCallback(CallbackMenu, handlers.NewMenuHandler(d.I18n))
	b.router.RegisterCallback(CallbackCancel, flowCallback)
	b.router.RegisterCallback(CallbackConfirm, flowCallback)
	b.router.RegisterCallback(CallbackSkip, flowCallback)
	b.router.RegisterCallback(CallbackNetwork, flowCallback)
	b.router.RegisterCallback(CallbackBankAccount, flowCallback)
	b.router.RegisterCallback(CallbackFlow, b.dispatcher.StartFromCallback())
	b.router.RegisterCallback(CallbackSetDefaultWallet, account.SetDefaultWallet())
	b.router.RegisterCallback(CallbackHistoryPage, history.Page())

	b.registerAliases()
	b.router.SetDefault(handlers.NewFallbackHandler(d.I18n))
}

// registerAliases maps the main menu labels of every loaded language to their commands.
func (b *Bot) registerAliases() {
	var translators []i18n.Translator
	if b.deps.I18n != nil {
		for _, lang := range b.deps.I18n.Languages() {
			translators = append(translators, b.deps.I18n.Translator(lang))
		}
	}
	if len(translators) == 0 {
		translators = append(translators, nil)
	}

	for _, t := range translators {
		for label, cmd := range keyboard.MainMenuAliases(t) {
			b.router.RegisterAlias(label, cmd)
		}
	}
}
