package constants

import "time"

const (
	DatabaseTimeout = 5 * time.Second
	RequestTimeout  = 30 * time.Second
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	// Ledger transaction retry bounds for transient sqlite contention
	FinishMatchRetries    = 5
	FinishMatchRetryDelay = 50 * time.Millisecond
)

const (
	MinPoolCapacity  = 4
	MinFlexiblePool  = 4
	LeaderboardLimit = 10
)
