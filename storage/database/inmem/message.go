package inmemdb

import (
	"context"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/foundi/core/chat"
)

type messageRepository struct {
	db *messageTable
}

var _ chat.Repository = (*messageRepository)(nil) // interface compliance check

func NewMessageRepository(db *DB) chat.Repository {
	return &messageRepository{db: db.message}
}

func copyMessage(m *chat.Message) chat.Message {
	msg := *m
	msg.Participants = append([]string(nil), m.Participants...)
	return msg
}

func (repo *messageRepository) CreateMessage(_ context.Context, m chat.Message) (chat.Message, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.table[m.ID] = &m
	return copyMessage(&m), nil
}

func (repo *messageRepository) GetMessage(_ context.Context, id string) (chat.Message, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if m, ok := repo.db.table[id]; ok {
		return copyMessage(m), nil
	}
	return chat.Message{}, chat.ErrNotFound
}

func (repo *messageRepository) UpdateMessageText(_ context.Context, id, text string, editedAt time.Time) (chat.Message, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	m, ok := repo.db.table[id]
	if !ok {
		return chat.Message{}, chat.ErrNotFound
	}
	m.Text = text
	m.Edited = true
	m.EditedAt = null.TimeFrom(editedAt.UTC())
	return copyMessage(m), nil
}

func (repo *messageRepository) DeleteMessage(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return chat.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}

func (repo *messageRepository) filter(keep func(m *chat.Message) bool) []chat.Message {
	msgs := make([]chat.Message, 0)
	for _, m := range repo.db.table {
		if keep(m) {
			msgs = append(msgs, copyMessage(m))
		}
	}
	chat.SortMessages(msgs)
	return msgs
}

func (repo *messageRepository) QueryGlobal(_ context.Context, limit int) ([]chat.Message, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	msgs := repo.filter(func(m *chat.Message) bool { return m.Channel == chat.ChannelGlobal })
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (repo *messageRepository) QueryConversation(_ context.Context, pairKey string) ([]chat.Message, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return repo.filter(func(m *chat.Message) bool {
		return m.Channel == chat.ChannelPrivate && m.PairKey == pairKey
	}), nil
}

func (repo *messageRepository) CountMessages(_ context.Context, channel string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if channel == "" {
		return len(repo.db.table), nil
	}
	var cnt int
	for _, m := range repo.db.table {
		if m.Channel == channel {
			cnt++
		}
	}
	return cnt, nil
}
