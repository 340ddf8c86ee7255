package portal

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/foundi/core/chat"
)

// Estimated storage per document, in KB.
const (
	KBPerMessage = 1
	KBPerUser    = 2
	KBPerCourse  = 3
)

type (
	UserCounter interface {
		Count(ctx context.Context, role string) (int, error)
	}
	CourseCounter interface {
		Count(ctx context.Context) (int, error)
	}
	MessageCounter interface {
		Count(ctx context.Context, channel string) (int, error)
	}
)

// Usage is the document count per collection with a rough storage estimate.
type Usage struct {
	Users           int `json:"users"`
	Courses         int `json:"courses"`
	GlobalMessages  int `json:"global_messages"`
	PrivateMessages int `json:"private_messages"`
	EstimatedKB     int `json:"estimated_kb"`
}

func MeasureUsage(ctx context.Context, users UserCounter, courses CourseCounter, msgs MessageCounter) (Usage, error) {
	var u Usage
	var err error
	if u.Users, err = users.Count(ctx, ""); err != nil {
		return Usage{}, errors.Wrap(err, "counting users")
	}
	if u.Courses, err = courses.Count(ctx); err != nil {
		return Usage{}, errors.Wrap(err, "counting courses")
	}
	if u.GlobalMessages, err = msgs.Count(ctx, chat.ChannelGlobal); err != nil {
		return Usage{}, errors.Wrap(err, "counting global messages")
	}
	if u.PrivateMessages, err = msgs.Count(ctx, chat.ChannelPrivate); err != nil {
		return Usage{}, errors.Wrap(err, "counting private messages")
	}
	u.EstimatedKB = (u.GlobalMessages+u.PrivateMessages)*KBPerMessage + u.Users*KBPerUser + u.Courses*KBPerCourse
	return u, nil
}
