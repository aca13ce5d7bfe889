package config

import "fmt"

// Database holds the SQLite database configuration
type Database struct {
	Path         string `envconfig:"DB_PATH" default:"schedq.db"`
	BusyTimeout  int    `envconfig:"DB_BUSY_TIMEOUT_MS" default:"5000"`
	JournalMode  string `envconfig:"DB_JOURNAL_MODE" default:"WAL"`
	MaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"1"`
}

// DSN returns a connection string for the modernc sqlite driver, carrying
// the pragmas the scheduler relies on.
func (d Database) DSN() string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(%s)&_pragma=foreign_keys(1)",
		d.Path,
		d.BusyTimeout,
		d.JournalMode,
	)
}

// Server holds the configuration for the API server
type Server struct {
	ServerPort string `envconfig:"SERVER_PORT" default:"8080"`
	Database   Database
	Scheduler  Scheduler
}

// Scheduler holds the scheduling knobs
type Scheduler struct {
	RetryDelayCap int      `envconfig:"SCHED_RETRY_DELAY_CAP" default:"3600"` // seconds
	TaskAgeDays   int      `envconfig:"SCHED_TASK_AGE_DAYS" default:"7"`      // cleanup threshold
	EventAgeDays  int      `envconfig:"SCHED_EVENT_AGE_DAYS" default:"7"`     // cleanup threshold
	InitialQueues []string `envconfig:"SCHED_QUEUES" default:"main,small_jobs"`
}
