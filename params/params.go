package params

import "time"

const (
	ServerBodyLimit    = 1048576 // 1 MiB
	ServerIdleTimeout  = 30 * time.Second
	ServerReadTimeout  = 10 * time.Second
	ServerWriteTimeout = 10 * time.Second

	SessionTokenBytes     = 48   // 384 bits of entropy per bearer token
	SessionCacheKeyPrefix = "s:" // redis key prefix for cached sessions

	DefaultMaxAttempts     = 3              // failed logins before the account locks
	DefaultSessionLifetime = 24 * time.Hour // bearer token time to live

	SessionSweepInterval  = 10 * time.Minute // expired session reclamation period
	IdentityWatchInterval = 5 * time.Minute  // remote identity polling period
	IdentityCallTimeout   = 15 * time.Second // upper bound for a single provider call

	HealthCheckServerAddr = ":3001" // health check server address
)
