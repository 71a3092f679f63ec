package ratelimit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Proton-105/payments-bot/pkg/config"
)

// ErrNoRule is returned for commands without a dedicated limit.
var ErrNoRule = errors.New("no rate limit rule")

// Rules encapsulates configured rate limits and helper methods.
type Rules struct {
	config config.RateLimitConfig
}

// NewRules constructs rate limiting rules from configuration settings.
func NewRules(cfg config.RateLimitConfig) *Rules {
	return &Rules{config: cfg}
}

// IsWhitelisted returns true if the chat bypasses rate limits.
func (r *Rules) IsWhitelisted(chatID int64) bool {
	for _, id := range r.config.Whitelist {
		if id == chatID {
			return true
		}
	}
	return false
}

// GetCommandLimit returns the limit and window for command, or ErrNoRule.
func (r *Rules) GetCommandLimit(command string) (int, time.Duration, error) {
	rule, ok := r.config.Commands[strings.ToLower(strings.TrimPrefix(command, "/"))]
	if !ok {
		return 0, 0, ErrNoRule
	}
	return parseRule(rule)
}

// GetPerUserLimit returns the per-chat rule that applies to every update.
func (r *Rules) GetPerUserLimit() (int, time.Duration, error) {
	return parseRule(r.config.PerUser)
}

func parseRule(rule config.RateLimitRule) (int, time.Duration, error) {
	if rule.Window == "" {
		return rule.Limit, 0, errors.New("window duration is not set")
	}
	window, err := time.ParseDuration(rule.Window)
	if err != nil {
		return 0, 0, fmt.Errorf("parse window %q: %w", rule.Window, err)
	}
	return rule.Limit, window, nil
}
