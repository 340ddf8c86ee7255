package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/foundi/core/chat"
)

type messageRow struct {
	ID            string      `db:"id"`
	Channel       string      `db:"channel"`
	Text          string      `db:"text"`
	AuthorID      string      `db:"author_id"`
	AuthorName    string      `db:"author_name"`
	AuthorRole    string      `db:"author_role"`
	RecipientID   null.String `db:"recipient_id"`
	RecipientName null.String `db:"recipient_name"`
	PairKey       null.String `db:"pair_key"`
	CreatedAt     time.Time   `db:"created_at"`
	Edited        bool        `db:"edited"`
	EditedAt      null.Time   `db:"edited_at"`
}

func toMessageRow(m chat.Message) messageRow {
	return messageRow{
		ID:            m.ID,
		Channel:       m.Channel,
		Text:          m.Text,
		AuthorID:      m.AuthorID,
		AuthorName:    m.AuthorName,
		AuthorRole:    m.AuthorRole,
		RecipientID:   null.NewString(m.RecipientID, m.RecipientID != ""),
		RecipientName: null.NewString(m.RecipientName, m.RecipientID != ""),
		PairKey:       null.NewString(m.PairKey, m.PairKey != ""),
		CreatedAt:     m.CreatedAt.UTC(),
		Edited:        m.Edited,
		EditedAt:      m.EditedAt,
	}
}

func (r messageRow) message() chat.Message {
	m := chat.Message{
		ID:            r.ID,
		Channel:       r.Channel,
		Text:          r.Text,
		AuthorID:      r.AuthorID,
		AuthorName:    r.AuthorName,
		AuthorRole:    r.AuthorRole,
		RecipientID:   r.RecipientID.String,
		RecipientName: r.RecipientName.String,
		PairKey:       r.PairKey.String,
		CreatedAt:     r.CreatedAt.UTC(),
		Edited:        r.Edited,
		EditedAt:      r.EditedAt,
	}
	if m.RecipientID != "" {
		m.Participants = chat.Participants(m.AuthorID, m.RecipientID)
	}
	return m
}

func messages(rows []messageRow) []chat.Message {
	msgs := make([]chat.Message, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, r.message())
	}
	return msgs
}

type messageRepository struct {
	db *sqlx.DB
}

var _ chat.Repository = (*messageRepository)(nil) // interface compliance check

func NewMessageRepository(db *sqlx.DB) chat.Repository {
	return &messageRepository{db: db}
}

func (repo *messageRepository) CreateMessage(ctx context.Context, m chat.Message) (chat.Message, error) {
	q := `INSERT INTO message (id, channel, text, author_id, author_name, author_role, recipient_id, recipient_name, pair_key, created_at, edited, edited_at)
		VALUES (:id, :channel, :text, :author_id, :author_name, :author_role, :recipient_id, :recipient_name, :pair_key, :created_at, :edited, :edited_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, toMessageRow(m)); err != nil {
		return chat.Message{}, errors.Wrap(err, "inserting message")
	}
	return m, nil
}

func (repo *messageRepository) GetMessage(ctx context.Context, id string) (chat.Message, error) {
	if _, err := uuid.Parse(id); err != nil {
		return chat.Message{}, chat.ErrNotFound
	}
	var row messageRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM message WHERE id = $1`, id); err != nil {
		return chat.Message{}, trapNoRowsErr(err, chat.ErrNotFound, "finding message")
	}
	return row.message(), nil
}

func (repo *messageRepository) UpdateMessageText(ctx context.Context, id, text string, editedAt time.Time) (chat.Message, error) {
	var row messageRow
	q := `UPDATE message SET text = $2, edited = true, edited_at = $3 WHERE id = $1 RETURNING *`
	if err := repo.db.GetContext(ctx, &row, q, id, text, editedAt.UTC()); err != nil {
		return chat.Message{}, trapNoRowsErr(err, chat.ErrNotFound, "updating message")
	}
	return row.message(), nil
}

func (repo *messageRepository) DeleteMessage(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM message WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting message")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return chat.ErrNotFound
	}
	return nil
}

func (repo *messageRepository) QueryGlobal(ctx context.Context, limit int) ([]chat.Message, error) {
	q := `SELECT * FROM (
			SELECT * FROM message WHERE channel = $1 ORDER BY created_at DESC, id DESC LIMIT $2
		) newest ORDER BY created_at, id`
	var rows []messageRow
	if err := repo.db.SelectContext(ctx, &rows, q, chat.ChannelGlobal, limit); err != nil {
		return nil, errors.Wrap(err, "querying global messages")
	}
	return messages(rows), nil
}

func (repo *messageRepository) QueryConversation(ctx context.Context, pairKey string) ([]chat.Message, error) {
	q := `SELECT * FROM message WHERE channel = $1 AND pair_key = $2 ORDER BY created_at, id`
	var rows []messageRow
	if err := repo.db.SelectContext(ctx, &rows, q, chat.ChannelPrivate, pairKey); err != nil {
		return nil, errors.Wrap(err, "querying conversation")
	}
	return messages(rows), nil
}

func (repo *messageRepository) CountMessages(ctx context.Context, channel string) (int, error) {
	q := `SELECT COUNT(*) FROM message`
	var args []interface{}
	if channel != "" {
		q += " WHERE channel = $1"
		args = append(args, channel)
	}
	var cnt int
	err := repo.db.GetContext(ctx, &cnt, q, args...)
	return cnt, errors.Wrap(err, "counting messages")
}
