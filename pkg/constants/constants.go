// Package constants defines application-wide limits, timeouts, and durations.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default request timeout
	DefaultTimeout = 30 * time.Second

	// UploadTimeout bounds file upload and download requests
	UploadTimeout = 10 * time.Minute

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second

	// OnlineWindow is how recent last activity must be for a user to count as online
	OnlineWindow = 30 * time.Minute

	// PresenceTTL is the lifetime of a presence key in Redis
	PresenceTTL = 30 * time.Minute

	// RedisHealthCheckInterval is the interval between Redis health checks
	RedisHealthCheckInterval = 10 * time.Second
)

// Database connection constants
const (
	// MaxConnLifetime is the maximum lifetime of a database connection
	MaxConnLifetime = 1 * time.Hour

	// MaxConnIdleTime is the maximum idle time for a database connection
	MaxConnIdleTime = 30 * time.Minute

	// HealthCheckPeriod is the interval between database health checks
	HealthCheckPeriod = 1 * time.Minute
)

// Identity constants
const (
	// MaxUsernameLength is the maximum username length in characters
	MaxUsernameLength = 150

	// DefaultAutoDeleteHours is the message TTL given to new users
	DefaultAutoDeleteHours = 3

	// MaxAutoDeleteHours caps the message TTL preference at one year
	MaxAutoDeleteHours = 24 * 365
)

// Conversation constants
const (
	// DefaultMemberLimit is the member limit of a group created without one
	DefaultMemberLimit = 50
)

// AllowedMemberLimits are the only accepted group member limits
var AllowedMemberLimits = []int{5, 10, 15, 50}

// Storage and file upload constants
const (
	// MaxFileSize is the upload size ceiling (1 GiB)
	MaxFileSize int64 = 1 << 30

	// UploadKeyPrefix is the first segment of every blob key
	UploadKeyPrefix = "uploads"

	// MultipartMemory is how much of a multipart upload gin keeps in memory before spilling to disk
	MultipartMemory = 32 << 20

	// DownloadURLExpiry is the lifetime of a presigned download link
	DownloadURLExpiry = 15 * time.Minute
)
