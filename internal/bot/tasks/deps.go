// Package tasks implements the scheduled jobs: daily and weekly report
// pushes, the retention check and report archive maintenance.
package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/chatkeeper/internal/config"
	"github.com/edgard/chatkeeper/internal/database"
)

// Sender pushes a message to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Reporter produces report texts.
type Reporter interface {
	Daily(ctx context.Context, groupID, date string) (string, error)
	Weekly(ctx context.Context, groupID, weekStart string) (string, error)
}

// RetentionChecker runs the retention sweep when it is due.
type RetentionChecker interface {
	CheckRetention(ctx context.Context) (bool, error)
}

// ActiveGroups lists groups that have a message log.
type ActiveGroups interface {
	GroupIDs(ctx context.Context) []string
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger    *slog.Logger
	Config    *config.Config
	Reports   Reporter
	Sender    Sender
	Retention RetentionChecker
	Archive   database.Store
	Groups    *Groups
	Active    ActiveGroups
	Clock     clockwork.Clock
}

func (d TaskDeps) now() time.Time {
	if d.Clock == nil {
		return time.Now()
	}
	return d.Clock.Now()
}
