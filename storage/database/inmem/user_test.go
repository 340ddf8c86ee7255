package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/foundi/core/chat"
	"github.com/trezcool/foundi/core/user"
)

func TestUserRepository_DeleteUsersByID_dropsTheirMessages(t *testing.T) {
	ctx := context.Background()
	db := Open()
	usrRepo := NewUserRepository(db)
	msgRepo := NewMessageRepository(db)

	now := time.Now().UTC()
	newUser := func(email, role string) user.User {
		usr, err := usrRepo.CreateUser(ctx, user.User{Email: email, Role: role, Status: user.StatusActive, CreatedAt: now})
		require.NoError(t, err)
		return usr
	}
	admin := newUser("prof@test.cd", user.RoleAdmin)
	awa := newUser("awa@test.cd", user.RoleStudent)
	moussa := newUser("moussa@test.cd", user.RoleStudent)

	for _, m := range []chat.Message{
		{ID: "g-awa", Channel: chat.ChannelGlobal, AuthorID: awa.ID, CreatedAt: now},
		{ID: "g-moussa", Channel: chat.ChannelGlobal, AuthorID: moussa.ID, CreatedAt: now},
		{ID: "p-awa", Channel: chat.ChannelPrivate, AuthorID: awa.ID, RecipientID: admin.ID, PairKey: chat.PairKey(awa.ID, admin.ID), CreatedAt: now},
		{ID: "p-to-awa", Channel: chat.ChannelPrivate, AuthorID: admin.ID, RecipientID: awa.ID, PairKey: chat.PairKey(awa.ID, admin.ID), CreatedAt: now},
		{ID: "p-moussa", Channel: chat.ChannelPrivate, AuthorID: admin.ID, RecipientID: moussa.ID, PairKey: chat.PairKey(moussa.ID, admin.ID), CreatedAt: now},
	} {
		_, err := msgRepo.CreateMessage(ctx, m)
		require.NoError(t, err)
	}

	cnt, err := usrRepo.DeleteUsersByID(ctx, []string{awa.ID, "lol"})
	require.NoError(t, err)
	assert.Equal(t, 1, cnt)

	for _, id := range []string{"g-awa", "p-awa", "p-to-awa"} {
		_, err = msgRepo.GetMessage(ctx, id)
		assert.Equal(t, chat.ErrNotFound, err, id)
	}
	for _, id := range []string{"g-moussa", "p-moussa"} {
		_, err = msgRepo.GetMessage(ctx, id)
		assert.NoError(t, err, id)
	}
}
