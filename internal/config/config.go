package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr         string
	DataDir      string
	ContentPath  string
	GlossaryPath string
	CORSOrigin   string
	// Passcodes overrides the built-in table ("hash=label;hash=label").
	Passcodes string
	// Session storage for the access gate, scoped by SessionID
	SessionID  string
	SessionTTL time.Duration
	RedisURL   string
	// Shared state document
	Remote    Remote
	SyncDelay time.Duration
	// Search
	MeiliURL       string
	MeiliMasterKey string
}

// Remote holds the settings of the shared state backend. Sync is off
// unless every required setting is present.
type Remote struct {
	Backend string
	URL     string
}

// Enabled reports whether the required remote settings are present.
func (r Remote) Enabled() bool {
	switch strings.ToLower(strings.TrimSpace(r.Backend)) {
	case "":
		return false
	case "memory":
		return true
	default:
		return strings.TrimSpace(r.URL) != ""
	}
}

func Load() Config {
	return Config{
		Addr:         getenv("API_ADDR", ":8788"),
		DataDir:      getenv("AGENCYOS_DATA_DIR", "./data"),
		ContentPath:  getenv("AGENCYOS_CONTENT_PATH", ""),
		GlossaryPath: getenv("AGENCYOS_GLOSSARY_PATH", ""),
		CORSOrigin:   getenv("AGENCYOS_CORS_ORIGIN", "*"),
		Passcodes:    getenv("AGENCYOS_PASSCODES", ""),
		SessionID:    getenv("AGENCYOS_SESSION_ID", "default"),
		SessionTTL:   time.Duration(getenvInt("AGENCYOS_SESSION_TTL_SECONDS", 43200)) * time.Second,
		// Redis - empty keeps the access session in memory only
		RedisURL: getenv("REDIS_URL", ""),
		Remote: Remote{
			Backend: getenv("AGENCYOS_REMOTE_BACKEND", ""),
			URL:     getenv("AGENCYOS_REMOTE_URL", ""),
		},
		SyncDelay:      time.Duration(getenvInt("AGENCYOS_SYNC_DELAY_MS", 300)) * time.Millisecond,
		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
