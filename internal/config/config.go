package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed phrases.yaml
var phrasesYAML []byte

type Config struct {
	Store      StoreConfig
	Database   DatabaseConfig
	Match      MatchConfig
	Embedding  EmbeddingConfig
	Attendance AttendanceConfig
	Speech     SpeechConfig
	Session    SessionConfig
	Web        WebConfig
	Phrases    PhrasesConfig
}

type StoreConfig struct {
	Backend string // sqlite (default), postgres or memory
	Path    string // sqlite file, defaults to face_db.sqlite
	Dim     int    // defaults to 512
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type MatchConfig struct {
	Threshold float64 // minimum cosine similarity, defaults to 0.45
	Index     string  // flat (default) or hnsw
}

type EmbeddingConfig struct {
	URL          string // defaults to http://localhost:8000
	MaxImageSize int    // longest side sent to the embedder, defaults to 1920
}

type AttendanceConfig struct {
	Sink         string // csv (default), sql, mqtt or log; comma separated for fan-out
	CSVPath      string // defaults to attendance_log.csv
	SQLDriver    string // sqlite, mysql or postgres
	SQLDSN       string
	MQTTBroker   string // e.g. tcp://localhost:1883
	MQTTTopic    string // defaults to attendance/events
	MQTTClientID string
}

type SpeechConfig struct {
	Command string // TTS command, e.g. espeak; empty logs the phrase only
}

type SessionConfig struct {
	StopPolicy      string        // drain (default) or discard
	StopTimeout     time.Duration // defaults to 5s
	AnnounceUnknown bool          // say the unknown phrase once per run of unmatched faces
}

type WebConfig struct {
	AllowedOrigins string // comma separated CORS origins
	APIToken       string // bearer token required on /api/v1 when set
}

// PhrasesConfig holds announcement templates. {name} is replaced with the label.
type PhrasesConfig struct {
	CheckIn  string `yaml:"checkin"`
	CheckOut string `yaml:"checkout"`
	Unknown  string `yaml:"unknown"`
}

// Format returns the announcement for an identity in the given mode.
// Unknown modes fall back to the check-in phrase.
func (p PhrasesConfig) Format(mode, name string) string {
	tmpl := p.CheckIn
	if mode == "checkout" {
		tmpl = p.CheckOut
	}
	return strings.ReplaceAll(tmpl, "{name}", name)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float in [-1, 1].
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= -1 && f <= 1 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a positive time.Duration.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// envBool reads an environment variable as a bool.
func envBool(key string, defaultVal bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var phrases PhrasesConfig
	if err := yaml.Unmarshal(phrasesYAML, &phrases); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded phrases.yaml: " + err.Error())
	}

	return &Config{
		Store: StoreConfig{
			Backend: strings.ToLower(envString("STORE_BACKEND", "sqlite")),
			Path:    envString("STORE_PATH", "face_db.sqlite"),
			Dim:     envInt("EMBEDDING_DIM", 512),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Match: MatchConfig{
			Threshold: envFloat("MATCH_THRESHOLD", 0.45),
			Index:     strings.ToLower(envString("MATCH_INDEX", "flat")),
		},
		Embedding: EmbeddingConfig{
			URL:          envString("EMBEDDING_URL", "http://localhost:8000"),
			MaxImageSize: envInt("MAX_IMAGE_SIZE", 1920),
		},
		Attendance: AttendanceConfig{
			Sink:         strings.ToLower(envString("ATTENDANCE_SINK", "csv")),
			CSVPath:      envString("ATTENDANCE_CSV_PATH", "attendance_log.csv"),
			SQLDriver:    strings.ToLower(envString("ATTENDANCE_SQL_DRIVER", "sqlite")),
			SQLDSN:       os.Getenv("ATTENDANCE_SQL_DSN"),
			MQTTBroker:   os.Getenv("MQTT_BROKER"),
			MQTTTopic:    envString("MQTT_TOPIC", "attendance/events"),
			MQTTClientID: os.Getenv("MQTT_CLIENT_ID"),
		},
		Speech: SpeechConfig{
			Command: os.Getenv("SPEECH_COMMAND"),
		},
		Session: SessionConfig{
			StopPolicy:      strings.ToLower(envString("SESSION_STOP_POLICY", "drain")),
			StopTimeout:     envDuration("SESSION_STOP_TIMEOUT", 5*time.Second),
			AnnounceUnknown: envBool("SESSION_ANNOUNCE_UNKNOWN", true),
		},
		Web: WebConfig{
			AllowedOrigins: os.Getenv("WEB_ALLOWED_ORIGINS"),
			APIToken:       os.Getenv("WEB_API_TOKEN"),
		},
		Phrases: phrases,
	}
}

// AttendanceSinks returns the configured sink names.
func (c *AttendanceConfig) AttendanceSinks() []string {
	var out []string
	for _, s := range strings.Split(c.Sink, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
