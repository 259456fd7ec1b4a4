package database

import "time"

// Report kinds.
const (
	KindDaily  = "daily"
	KindWeekly = "weekly"
)

// Report is an archived daily or weekly group report as it was delivered.
type Report struct {
	ID            int64     `db:"id"             json:"id"`
	GroupID       string    `db:"group_id"       json:"group_id"`
	Kind          string    `db:"kind"           json:"kind"`
	PeriodStart   string    `db:"period_start"   json:"period_start"` // YYYY-MM-DD
	TotalMessages int64     `db:"total_messages" json:"total_messages"`
	Body          string    `db:"body"           json:"body"`
	CreatedAt     time.Time `db:"created_at"     json:"created_at"`
}
