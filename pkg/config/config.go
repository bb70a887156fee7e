// Package config centralizes environment configuration for the engine daemon.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every externally tunable parameter for the daemon.
type Config struct {
	Env         string // "local", "dev", "prod"
	ServiceName string

	// Capital allocation
	Bankroll        float64 // starting bankroll in currency units
	KellyFraction   float64 // fraction of full Kelly to stake
	MaxStakeFrac    float64 // hard cap per position, fraction of bankroll
	MaxPositionSize float64 // optimizer per-position weight cap
	RiskFreeRate    float64 // Sharpe objective baseline

	// Execution
	DryRun           bool
	ExecutionTimeout time.Duration // joint deadline for all arbitrage legs

	// Bookmakers, "name=https://api.example.com,other=https://..."
	BookmakerEndpoints string
	BookmakerAPIKey    string

	// Safety
	RedisAddr         string
	KillSwitchKey     string
	KillSwitchFile    string
	SafetyPollTimeout time.Duration

	// Decision cycle
	MinEdge       float64
	CycleInterval time.Duration

	// Notifications and feeds
	WebhookURL     string
	KafkaBrokers   string // "a:9092,b:9092"
	KafkaTopic     string
	KafkaOppsTopic string // opportunity intake; empty disables the cycle loop

	// HTTP surfaces
	APIPort     string
	MetricsPort string
}

// Load reads configuration from the environment, applying defaults
// suitable for local development.
func Load() Config {
	return Config{
		Env:         getEnv("ENV", "local"),
		ServiceName: getEnv("SERVICE_NAME", "betengine"),

		Bankroll:        getEnvFloat("BANKROLL", 1000),
		KellyFraction:   getEnvFloat("KELLY_FRACTION", 0.25),
		MaxStakeFrac:    getEnvFloat("MAX_STAKE_FRACTION", 0.05),
		MaxPositionSize: getEnvFloat("MAX_POSITION_SIZE", 0.05),
		RiskFreeRate:    getEnvFloat("RISK_FREE_RATE", 0.0),

		DryRun:           getEnvBool("DRY_RUN", true),
		ExecutionTimeout: getEnvDuration("ARBITRAGE_EXECUTION_TIMEOUT", 5*time.Second),

		BookmakerEndpoints: getEnv("BOOKMAKER_ENDPOINTS", ""),
		BookmakerAPIKey:    getEnv("BOOKMAKER_API_KEY", ""),

		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		KillSwitchKey:     getEnv("KILL_SWITCH_KEY", "betengine:kill_switch"),
		KillSwitchFile:    getEnv("KILL_SWITCH_FILE", "kill_switch.json"),
		SafetyPollTimeout: getEnvDuration("SAFETY_POLL_TIMEOUT", 500*time.Millisecond),

		MinEdge:       getEnvFloat("MIN_EDGE", 0.01),
		CycleInterval: getEnvDuration("CYCLE_INTERVAL", time.Minute),

		WebhookURL:     getEnv("ALERT_WEBHOOK_URL", ""),
		KafkaBrokers:   getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:     getEnv("KAFKA_TOPIC_ALERTS", "engine_alerts"),
		KafkaOppsTopic: getEnv("KAFKA_TOPIC_OPPORTUNITIES", ""),

		APIPort:     getEnv("HTTP_PORT", "8080"),
		MetricsPort: getEnv("METRICS_PORT", "9095"),
	}
}

// Bookmakers parses the endpoint list into a name-to-URL map.
func (c Config) Bookmakers() map[string]string {
	out := make(map[string]string)
	for _, entry := range strings.Split(c.BookmakerEndpoints, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, url, ok := strings.Cut(entry, "=")
		if !ok || name == "" || url == "" {
			continue
		}
		out[name] = url
	}
	return out
}

// Brokers splits the comma-separated broker list, dropping empty entries.
func (c Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
