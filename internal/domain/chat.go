package domain

import "time"

// Chat is a Telegram chat that has talked to the bot.
type Chat struct {
	ChatID       int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// DisplayName returns the best available human-readable name.
func (c *Chat) DisplayName() string {
	if c == nil {
		return ""
	}
	if c.FirstName != "" {
		return c.FirstName
	}
	if c.Username != "" {
		return "@" + c.Username
	}
	return ""
}
