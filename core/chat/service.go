// Package chat holds the global chat and the private conversations between students and
// the teacher, and publishes every accepted write to the live feed.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/foundi/core"
	"github.com/trezcool/foundi/core/access"
	"github.com/trezcool/foundi/core/user"
)

var (
	NowFunc = time.Now // mockable

	ErrNotFound = core.NewNotFoundError("message not found")
	// ErrNoCounterpart means messaging is disabled: no admin account exists yet.
	ErrNoCounterpart = core.NewNotFoundError("no one to talk to yet")
	ErrNotCounterpart = errors.New("this user is not one of your contacts")

	errEmptyText = "message cannot be empty"
)

type (
	Repository interface {
		CreateMessage(ctx context.Context, m Message) (Message, error)
		GetMessage(ctx context.Context, id string) (Message, error)
		UpdateMessageText(ctx context.Context, id, text string, editedAt time.Time) (Message, error)
		DeleteMessage(ctx context.Context, id string) error
		// QueryGlobal returns the newest limit global messages in ascending (created_at, id) order.
		QueryGlobal(ctx context.Context, limit int) ([]Message, error)
		// QueryConversation returns the messages of pairKey in ascending (created_at, id) order.
		QueryConversation(ctx context.Context, pairKey string) ([]Message, error)
		CountMessages(ctx context.Context, channel string) (int, error)
	}

	// Publisher fans accepted writes out to the feed subscribers.
	Publisher interface {
		Publish(ctx context.Context, ev Event) error
	}

	Service struct {
		repo        Repository
		usrSvc      user.Service
		policy      *access.Policy
		pub         Publisher
		logger      core.Logger
		globalLimit int
		maxLength   int
	}
)

func NewService(
	repo Repository,
	usrSvc user.Service,
	policy *access.Policy,
	pub Publisher,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		repo:        repo,
		usrSvc:      usrSvc,
		policy:      policy,
		pub:         pub,
		logger:      logger,
		globalLimit: conf.Chat.GlobalLimit,
		maxLength:   conf.Chat.MaxLength,
	}
}

// now is rounded to the microsecond precision of the database so that published
// messages match what later reads return.
func now() time.Time {
	return NowFunc().UTC().Truncate(time.Microsecond)
}

func (svc *Service) cleanText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", core.NewValidationError(nil, core.FieldError{Field: "text", Error: errEmptyText})
	}
	if utf8.RuneCountInString(text) > svc.maxLength {
		msg := fmt.Sprintf("message cannot be longer than %d characters", svc.maxLength)
		return "", core.NewValidationError(nil, core.FieldError{Field: "text", Error: msg})
	}
	return text, nil
}

// publish never fails the write: the store is the authority and subscribers can resync.
func (svc *Service) publish(ctx context.Context, typ string, m Message) {
	ev := Event{Type: typ, Topic: m.Topic(), Message: &m}
	if err := svc.pub.Publish(ctx, ev); err != nil {
		svc.logger.Error(fmt.Sprintf("publishing %s event: %v", typ, err), err)
	}
}

// Counterparts lists who viewer can talk to privately: the teacher for a student, every
// student for the teacher. Other admins have no private conversations.
func (svc *Service) Counterparts(ctx context.Context, viewer user.User) ([]user.User, error) {
	teacher, err := svc.usrSvc.GetTeacher(ctx)
	if err != nil {
		if errors.Cause(err) == user.ErrNoTeacher {
			return []user.User{}, nil
		}
		return nil, err
	}
	if viewer.IsAdmin() {
		if viewer.ID != teacher.ID {
			return []user.User{}, nil
		}
		return svc.usrSvc.QueryStudents(ctx)
	}
	return []user.User{teacher}, nil
}

// Counterpart resolves the other side of viewer's conversation. A student may omit
// counterpartID; the teacher must name a student. Any other admin is forbidden.
func (svc *Service) Counterpart(ctx context.Context, viewer user.User, counterpartID string) (user.User, error) {
	teacher, err := svc.usrSvc.GetTeacher(ctx)
	if err != nil {
		if errors.Cause(err) == user.ErrNoTeacher {
			return user.User{}, ErrNoCounterpart
		}
		return user.User{}, errors.Wrap(err, "getting teacher")
	}
	if viewer.IsStudent() {
		if counterpartID != "" && counterpartID != teacher.ID {
			return user.User{}, core.NewValidationError(ErrNotCounterpart, core.FieldError{Field: "with", Error: ErrNotCounterpart.Error()})
		}
		return teacher, nil
	}

	if viewer.ID != teacher.ID {
		return user.User{}, core.ErrForbidden
	}
	if counterpartID == "" {
		return user.User{}, core.NewValidationError(nil, core.FieldError{Field: "with", Error: "this field is required"})
	}
	other, err := svc.usrSvc.GetByID(ctx, counterpartID)
	if err != nil {
		if core.IsNotFound(err) {
			return user.User{}, core.NewValidationError(ErrNotCounterpart, core.FieldError{Field: "with", Error: ErrNotCounterpart.Error()})
		}
		return user.User{}, errors.Wrap(err, "getting counterpart")
	}
	if !other.IsStudent() {
		return user.User{}, core.NewValidationError(ErrNotCounterpart, core.FieldError{Field: "with", Error: ErrNotCounterpart.Error()})
	}
	return other, nil
}

func (svc *Service) SendGlobal(ctx context.Context, author user.User, text string) (Message, error) {
	if err := svc.policy.Authorize(author, access.ObjMessage, access.ActCreate); err != nil {
		return Message{}, err
	}
	text, err := svc.cleanText(text)
	if err != nil {
		return Message{}, err
	}
	m := Message{
		ID:         uuid.New().String(),
		Channel:    ChannelGlobal,
		Text:       text,
		AuthorID:   author.ID,
		AuthorName: author.FullName(),
		AuthorRole: author.Role,
		CreatedAt:  now(),
	}
	m, err = svc.repo.CreateMessage(ctx, m)
	if err != nil {
		return Message{}, errors.Wrap(err, "creating message")
	}
	svc.publish(ctx, EventCreated, m)
	return m, nil
}

func (svc *Service) SendPrivate(ctx context.Context, author user.User, recipientID, text string) (Message, error) {
	if err := svc.policy.Authorize(author, access.ObjMessage, access.ActCreate); err != nil {
		return Message{}, err
	}
	text, err := svc.cleanText(text)
	if err != nil {
		return Message{}, err
	}
	recipient, err := svc.Counterpart(ctx, author, recipientID)
	if err != nil {
		return Message{}, err
	}
	m := Message{
		ID:            uuid.New().String(),
		Channel:       ChannelPrivate,
		Text:          text,
		AuthorID:      author.ID,
		AuthorName:    author.FullName(),
		AuthorRole:    author.Role,
		RecipientID:   recipient.ID,
		RecipientName: recipient.FullName(),
		Participants:  Participants(author.ID, recipient.ID),
		PairKey:       PairKey(author.ID, recipient.ID),
		CreatedAt:     now(),
	}
	m, err = svc.repo.CreateMessage(ctx, m)
	if err != nil {
		return Message{}, errors.Wrap(err, "creating message")
	}
	svc.publish(ctx, EventCreated, m)
	return m, nil
}

func (svc *Service) authorized(ctx context.Context, actor user.User, id, act string) (Message, error) {
	m, err := svc.repo.GetMessage(ctx, id)
	if err != nil {
		return Message{}, err
	}
	if !m.VisibleTo(actor.ID) {
		return Message{}, ErrNotFound
	}
	if err = svc.policy.Authorize(actor, access.ObjMessage, act, m.AuthorID); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Edit replaces the text of one of actor's messages. Author and creation time never change.
func (svc *Service) Edit(ctx context.Context, actor user.User, id, text string) (Message, error) {
	if _, err := svc.authorized(ctx, actor, id, access.ActEdit); err != nil {
		return Message{}, err
	}
	text, err := svc.cleanText(text)
	if err != nil {
		return Message{}, err
	}
	m, err := svc.repo.UpdateMessageText(ctx, id, text, now())
	if err != nil {
		return Message{}, errors.Wrap(err, "updating message")
	}
	svc.publish(ctx, EventUpdated, m)
	return m, nil
}

func (svc *Service) Delete(ctx context.Context, actor user.User, id string) error {
	m, err := svc.authorized(ctx, actor, id, access.ActDelete)
	if err != nil {
		return err
	}
	if err = svc.repo.DeleteMessage(ctx, id); err != nil {
		return errors.Wrap(err, "deleting message")
	}
	svc.publish(ctx, EventDeleted, Message{ID: m.ID, Channel: m.Channel, PairKey: m.PairKey})
	return nil
}

// Global returns the newest messages of the global channel, oldest first.
func (svc *Service) Global(ctx context.Context, viewer user.User) ([]Message, error) {
	if !viewer.IsActive() {
		return nil, core.ErrForbidden
	}
	msgs, err := svc.repo.QueryGlobal(ctx, svc.globalLimit)
	if err != nil {
		return nil, errors.Wrap(err, "querying global messages")
	}
	SortMessages(msgs)
	return msgs, nil
}

// Conversation returns the messages between viewer and their counterpart, oldest first.
func (svc *Service) Conversation(ctx context.Context, viewer user.User, counterpartID string) (string, []Message, error) {
	other, err := svc.Counterpart(ctx, viewer, counterpartID)
	if err != nil {
		return "", nil, err
	}
	pairKey := PairKey(viewer.ID, other.ID)
	msgs, err := svc.Snapshot(ctx, viewer, PrivateTopic(pairKey))
	return pairKey, msgs, err
}

// Topic resolves a feed subscription request to its topic. channel is "global" or "private";
// counterpartID follows Counterpart rules.
func (svc *Service) Topic(ctx context.Context, viewer user.User, channel, counterpartID string) (string, error) {
	switch channel {
	case ChannelGlobal, "":
		if !viewer.IsActive() {
			return "", core.ErrForbidden
		}
		return TopicGlobal, nil
	case ChannelPrivate:
		other, err := svc.Counterpart(ctx, viewer, counterpartID)
		if err != nil {
			return "", err
		}
		return PrivateTopic(PairKey(viewer.ID, other.ID)), nil
	default:
		return "", core.NewValidationError(nil, core.FieldError{Field: "topic", Error: "unknown topic"})
	}
}

// Snapshot returns the current content of topic as seen by viewer, oldest first.
func (svc *Service) Snapshot(ctx context.Context, viewer user.User, topic string) ([]Message, error) {
	if topic == TopicGlobal {
		return svc.Global(ctx, viewer)
	}
	pairKey := strings.TrimPrefix(topic, ChannelPrivate+":")
	if pairKey == topic {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "topic", Error: "unknown topic"})
	}
	if err := svc.policy.Authorize(viewer, access.ObjConversation, access.ActRead, pairKey); err != nil {
		return nil, err
	}
	msgs, err := svc.repo.QueryConversation(ctx, pairKey)
	if err != nil {
		return nil, errors.Wrap(err, "querying conversation")
	}
	SortMessages(msgs)
	return msgs, nil
}

func (svc *Service) Count(ctx context.Context, channel string) (int, error) {
	cnt, err := svc.repo.CountMessages(ctx, channel)
	return cnt, errors.Wrap(err, "counting messages")
}

