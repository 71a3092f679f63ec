package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/payments-bot/internal/domain"
)

func TestMemoryChatRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryChatRepository()

	_, err := repo.FindByID(ctx, 7)
	assert.ErrorIs(t, err, ErrChatNotFound)

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, &domain.Chat{ChatID: 7, FirstName: "Ada", CreatedAt: created}))
	require.NoError(t, repo.Create(ctx, &domain.Chat{ChatID: 7, FirstName: "Overwritten", CreatedAt: created}))

	chat, err := repo.FindByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Ada", chat.DisplayName())
	assert.Equal(t, created, chat.LastActiveAt)

	later := created.Add(time.Hour)
	require.NoError(t, repo.TouchLastActive(ctx, 7, later))
	chat, _ = repo.FindByID(ctx, 7)
	assert.Equal(t, later, chat.LastActiveAt)

	assert.ErrorIs(t, repo.TouchLastActive(ctx, 8, later), ErrChatNotFound)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestChatDisplayName(t *testing.T) {
	assert.Equal(t, "@ada", (&domain.Chat{Username: "ada"}).DisplayName())
	assert.Equal(t, "", (&domain.Chat{}).DisplayName())
}
