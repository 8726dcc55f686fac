package domain

import "time"

// QueueStatus represents the lifecycle state of a settlement queue item.
type QueueStatus string

const (
	QueueStatusQueued     QueueStatus = "QUEUED"
	QueueStatusProcessing QueueStatus = "PROCESSING"
	QueueStatusDone       QueueStatus = "DONE"
	QueueStatusFailed     QueueStatus = "FAILED"
	QueueStatusSkipped    QueueStatus = "SKIPPED"
)

// Valid reports whether s is one of the known queue statuses.
func (s QueueStatus) Valid() bool {
	switch s {
	case QueueStatusQueued, QueueStatusProcessing, QueueStatusDone, QueueStatusFailed, QueueStatusSkipped:
		return true
	}
	return false
}

// QueueItem is one unit of settlement work for a finished game.
type QueueItem struct {
	ID             string      `json:"id"`
	GameID         string      `json:"game_id"`
	League         string      `json:"league"`
	ExternalGameID string      `json:"external_game_id,omitempty"`
	Status         QueueStatus `json:"status"`
	Outcome        *string     `json:"outcome,omitempty"`
	Reason         *string     `json:"reason,omitempty"`
	Attempts       int         `json:"attempts"`
	NextAttemptAt  time.Time   `json:"next_attempt_at"`
	LockedBy       *string     `json:"locked_by,omitempty"`
	LockedAt       *time.Time  `json:"locked_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// NewQueueItem carries the fields an outcome decider supplies when enqueueing.
type NewQueueItem struct {
	GameID         string  `json:"game_id"`
	League         string  `json:"league"`
	ExternalGameID string  `json:"external_game_id"`
	Outcome        *string `json:"outcome"`
	Reason         *string `json:"reason"`
}

// QueueFilter narrows ListQueue results. Zero values mean "no filter".
type QueueFilter struct {
	Status QueueStatus
	League string
	Limit  int
}

// QueueStats holds item counts per status.
type QueueStats struct {
	Queued     int64 `json:"queued"`
	Processing int64 `json:"processing"`
	Done       int64 `json:"done"`
	Failed     int64 `json:"failed"`
	Skipped    int64 `json:"skipped"`
	Total      int64 `json:"total"`
}

// Add increments the counter for status by n.
func (s *QueueStats) Add(status QueueStatus, n int64) {
	switch status {
	case QueueStatusQueued:
		s.Queued += n
	case QueueStatusProcessing:
		s.Processing += n
	case QueueStatusDone:
		s.Done += n
	case QueueStatusFailed:
		s.Failed += n
	case QueueStatusSkipped:
		s.Skipped += n
	default:
		return
	}
	s.Total += n
}

// RetryBackoffMinutes is the fixed retry schedule applied by MarkFailed,
// indexed by attempt number (1-based). Attempts past the end reuse the last
// value.
var RetryBackoffMinutes = []int{1, 5, 30, 120, 720}

// RetryBackoff returns the delay before the next attempt once an item has
// failed attempts times.
func RetryBackoff(attempts int) time.Duration {
	idx := attempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(RetryBackoffMinutes) {
		idx = len(RetryBackoffMinutes) - 1
	}
	return time.Duration(RetryBackoffMinutes[idx]) * time.Minute
}
