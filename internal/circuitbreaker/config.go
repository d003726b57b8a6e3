package circuitbreaker

import (
	"os"
	"strconv"
	"time"
)

// HTTPProfile returns breaker settings for outbound HTTP dependencies
// (vector index, embedding service), tunable via CB_HTTP_* env vars.
func HTTPProfile() Config {
	return Config{
		MaxRequests:      envUint32("CB_HTTP_MAX_REQUESTS", 5),
		Interval:         envDuration("CB_HTTP_INTERVAL", 30*time.Second),
		Timeout:          envDuration("CB_HTTP_TIMEOUT", 15*time.Second),
		FailureThreshold: envUint32("CB_HTTP_FAILURE_THRESHOLD", 3),
		SuccessThreshold: envUint32("CB_HTTP_SUCCESS_THRESHOLD", 2),
	}
}

// DatabaseProfile returns breaker settings for the ledger database,
// tunable via CB_DB_* env vars.
func DatabaseProfile() Config {
	return Config{
		MaxRequests:      envUint32("CB_DB_MAX_REQUESTS", 3),
		Interval:         envDuration("CB_DB_INTERVAL", 60*time.Second),
		Timeout:          envDuration("CB_DB_TIMEOUT", 30*time.Second),
		FailureThreshold: envUint32("CB_DB_FAILURE_THRESHOLD", 5),
		SuccessThreshold: envUint32("CB_DB_SUCCESS_THRESHOLD", 2),
	}
}

// RedisProfile returns breaker settings for the Redis embedding cache tier,
// tunable via CB_REDIS_* env vars.
func RedisProfile() Config {
	return Config{
		MaxRequests:      envUint32("CB_REDIS_MAX_REQUESTS", 5),
		Interval:         envDuration("CB_REDIS_INTERVAL", 30*time.Second),
		Timeout:          envDuration("CB_REDIS_TIMEOUT", 15*time.Second),
		FailureThreshold: envUint32("CB_REDIS_FAILURE_THRESHOLD", 3),
		SuccessThreshold: envUint32("CB_REDIS_SUCCESS_THRESHOLD", 2),
	}
}

func envUint32(key string, def uint32) uint32 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseUint(val, 10, 32); err == nil {
			return uint32(parsed)
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return def
}
