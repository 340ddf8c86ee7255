package chat

import (
	"sort"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/foundi/core/access"
)

// Channels
const (
	ChannelGlobal  = "global"
	ChannelPrivate = "private"
)

// TopicGlobal is the feed topic of the global channel. Private topics are "private:<pair key>".
const TopicGlobal = ChannelGlobal

type Message struct {
	ID            string    `json:"id"`
	Channel       string    `json:"channel"`
	Text          string    `json:"text"`
	AuthorID      string    `json:"author_id"`
	AuthorName    string    `json:"author_name"`
	AuthorRole    string    `json:"author_role"`
	RecipientID   string    `json:"recipient_id,omitempty"`
	RecipientName string    `json:"recipient_name,omitempty"`
	Participants  []string  `json:"participants,omitempty"` // sorted pair
	PairKey       string    `json:"pair_key,omitempty"`
	CreatedAt     time.Time `json:"created_at"` // UTC, server assigned
	Edited        bool      `json:"edited"`
	EditedAt      null.Time `json:"edited_at"`
}

// VisibleTo reports whether userID may read m.
func (m Message) VisibleTo(userID string) bool {
	if m.Channel == ChannelGlobal {
		return userID != ""
	}
	for _, p := range m.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Topic is the feed topic m is published on.
func (m Message) Topic() string {
	if m.Channel == ChannelPrivate {
		return PrivateTopic(m.PairKey)
	}
	return TopicGlobal
}

// Participants returns the two IDs sorted.
func Participants(a, b string) []string {
	ps := []string{a, b}
	sort.Strings(ps)
	return ps
}

// PairKey identifies the conversation between a and b regardless of the order.
func PairKey(a, b string) string {
	return strings.Join(Participants(a, b), access.PairSeparator)
}

func PrivateTopic(pairKey string) string {
	return ChannelPrivate + ":" + pairKey
}

// SortMessages orders msgs by (CreatedAt, ID).
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

// Event types
const (
	EventSnapshot = "snapshot"
	EventCreated  = "created"
	EventUpdated  = "updated"
	EventDeleted  = "deleted"
)

// Event is what feed subscribers receive. A snapshot carries the ordered list; the other
// events carry one message (only its ID for deletions).
type Event struct {
	Type     string    `json:"type"`
	Topic    string    `json:"topic"`
	Message  *Message  `json:"message,omitempty"`
	Messages []Message `json:"messages,omitempty"`
}

// View is the ordered list a subscriber keeps: it starts from a snapshot and applies events.
type View struct {
	msgs []Message
}

func NewView(snapshot []Message) *View {
	v := &View{msgs: append([]Message(nil), snapshot...)}
	SortMessages(v.msgs)
	return v
}

func (v *View) index(id string) int {
	for i, m := range v.msgs {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// Apply folds ev into the view. Events replayed twice leave it unchanged.
func (v *View) Apply(ev Event) {
	switch ev.Type {
	case EventSnapshot:
		v.msgs = append(v.msgs[:0], ev.Messages...)
	case EventCreated, EventUpdated:
		if ev.Message == nil {
			return
		}
		if i := v.index(ev.Message.ID); i >= 0 {
			v.msgs[i] = *ev.Message
		} else {
			v.msgs = append(v.msgs, *ev.Message)
		}
	case EventDeleted:
		if ev.Message == nil {
			return
		}
		if i := v.index(ev.Message.ID); i >= 0 {
			v.msgs = append(v.msgs[:i], v.msgs[i+1:]...)
		}
	}
	SortMessages(v.msgs)
}

func (v *View) Messages() []Message {
	return append([]Message(nil), v.msgs...)
}
