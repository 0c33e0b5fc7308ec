package tools

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment overrides read by global/config:
// LINKHUB_LOG_LEVEL      (debug | info | warn | error)
// LINKHUB_WORKERS        (comma separated worker base urls)
// LINKHUB_GATEWAY_ADDR   (default :8080)
// LINKHUB_WORKER_ADDR    (default :3000)
// LINKHUB_STORE_DRIVER   (memory | postgres | mongo)
// LINKHUB_POSTGRES_DSN / LINKHUB_MONGO_URI / LINKHUB_REDIS_ADDR
// LINKHUB_NATS_SERVERS / LINKHUB_KAFKA_BROKERS
// LINKHUB_S3_BUCKET / LINKHUB_S3_REGION / LINKHUB_S3_ENDPOINT
// LINKHUB_JWT_SECRET

func GetEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func GetEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func GetEnvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "true" || v == "1" || v == "yes"
}

// GetEnvDuration accepts Go duration strings ("5s") or plain milliseconds.
func GetEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

// GetEnvList splits a comma separated value, dropping empty items.
func GetEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return SplitList(v)
}

func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
