package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// LoadEnv loads environment variables from local .env files if present
func LoadEnv(logger *logrus.Logger) {
	files := []string{".env", ".env.dev"}
	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			if logger != nil {
				logger.WithError(err).Warnf("Failed to load %s", file)
			}
			continue
		}
		loaded = append(loaded, file)
	}
	if logger == nil {
		return
	}
	if len(loaded) == 0 {
		logger.Debug("No local env files loaded; relying on process environment")
	} else {
		logger.Debugf("Loaded env files: %s", strings.Join(loaded, ", "))
	}
}

// GetEnv gets an environment variable with a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt gets an integer environment variable with a default value
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvBool gets a boolean environment variable with a default value
func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvFloat gets a float environment variable with a default value
func GetEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetLogLevel gets the log level from environment
func GetLogLevel() logrus.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Governor holds the publication governor tuning knobs.
type Governor struct {
	MaxVariants          int
	PostSpacing          time.Duration
	EvaluationWindow     time.Duration
	EngagementThreshold  float64
	StrictMode           bool
	EnableAutoRevision   bool
	BrandTone            string
	ManagedAgents        []string
	AuditMaxEntries      int
	GateCacheTTL         time.Duration
}

// DefaultManagedAgents is the fixed set of agents covered by an emergency stop.
var DefaultManagedAgents = []string{
	"TwitterAgent",
	"ContentGenerationAgent",
	"EngagementAgent",
	"AnalyticsAgent",
}

// LoadGovernor reads governor settings from the environment.
func LoadGovernor() Governor {
	agents := DefaultManagedAgents
	if raw := os.Getenv("GOVERNOR_AGENTS"); raw != "" {
		parts := strings.Split(raw, ",")
		agents = make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				agents = append(agents, trimmed)
			}
		}
	}

	return Governor{
		MaxVariants:         GetEnvInt("MAX_VARIANTS", 3),
		PostSpacing:         time.Duration(GetEnvInt("SPACING_MINUTES", 30)) * time.Minute,
		EvaluationWindow:    time.Duration(GetEnvInt("EVALUATION_HOURS", 24)) * time.Hour,
		EngagementThreshold: GetEnvFloat("ENGAGEMENT_THRESHOLD", 0),
		StrictMode:          GetEnvBool("STRICT_MODE", false),
		EnableAutoRevision:  GetEnvBool("ENABLE_AUTO_REVISION", true),
		BrandTone:           GetEnv("BRAND_TONE", "professional yet approachable"),
		ManagedAgents:       agents,
		AuditMaxEntries:     GetEnvInt("SAFETY_AUDIT_MAX_ENTRIES", 1000),
		GateCacheTTL:        time.Duration(GetEnvInt("GATE_CACHE_TTL_SECONDS", 300)) * time.Second,
	}
}
