package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port           string
	Environment    string
	AllowedOrigins []string
	JWTSecret      string
	KioskSecret    string
	Redis          RedisConfig
	Notifier       NotifierConfig
	Call           CallConfig
	ICE            ICEConfig
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// NotifierConfig points at the push-relay service that forwards call
// notifications to a doctor's device token.
type NotifierConfig struct {
	BaseURL string
	Timeout time.Duration
}

// CallConfig holds the two-phase call attempt policy knobs.
type CallConfig struct {
	PhaseTimeout time.Duration
}

// ICEConfig lists the STUN servers and the optional TURN relay for the
// peer link. TURN credentials are needed behind most clinic NATs.
type ICEConfig struct {
	STUNServers []string
	TURNServers []string
	TURNUser    string
	TURNPass    string
}

func Load() *Config {
	// Parse allowed origins (comma-separated)
	originsStr := getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	origins := strings.Split(originsStr, ",")

	stun := strings.Split(getEnv("ICE_STUN_SERVERS",
		"stun:stun.l.google.com:19302,stun:stun1.l.google.com:19302"), ",")

	var turn []string
	if turnStr := getEnv("ICE_TURN_SERVERS", ""); turnStr != "" {
		turn = strings.Split(turnStr, ",")
	}

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		AllowedOrigins: origins,
		JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production"),
		KioskSecret:    getEnv("KIOSK_SECRET", "change-me-in-production"),
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       0,
		},
		Notifier: NotifierConfig{
			BaseURL: getEnv("NOTIFIER_URL", "http://localhost:9090"),
			Timeout: getDuration("NOTIFIER_TIMEOUT_MS", 5000),
		},
		Call: CallConfig{
			PhaseTimeout: getDuration("CALL_PHASE_TIMEOUT_MS", 15000),
		},
		ICE: ICEConfig{
			STUNServers: stun,
			TURNServers: turn,
			TURNUser:    getEnv("ICE_TURN_USER", ""),
			TURNPass:    getEnv("ICE_TURN_PASS", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultMs int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return time.Duration(defaultMs) * time.Millisecond
}
