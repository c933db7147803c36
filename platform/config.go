package platform

import (
	"os"
	"strconv"
	"time"
)

// Config collects everything read from the environment at startup. It is
// populated once in main and handed to the constructors that need it, so no
// package reads os.Getenv at request time.
type Config struct {
	Port string

	DB DBConfig

	LLMBaseURL string
	LLMAPIKey  string

	SearchAPIKey      string
	SearchBaseURL     string
	VideoAPIKey       string
	VideoBaseURL      string
	TranscriptBaseURL string

	AccessSecret string

	StaleAfter      time.Duration
	CheckpointEvery time.Duration
	GenerationLimit time.Duration

	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string
	DigestFrom   string
	DigestTo     string
}

// DBConfig 包含数据库连接的配置信息
type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

func LoadConfig() Config {
	return Config{
		Port: getenv("PORT", "8080"),
		DB: DBConfig{
			Host:     os.Getenv("SQL_HOST"),
			Port:     getenv("SQL_PORT", "3306"),
			User:     os.Getenv("SQL_USER"),
			Password: os.Getenv("SQL_PASSWORD"),
			DBName:   getenv("SQL_DBNAME", "streamchat"),
		},
		LLMBaseURL:        os.Getenv("LLM_BASE_URL"),
		LLMAPIKey:         os.Getenv("LLM_API_KEY"),
		SearchAPIKey:      os.Getenv("SEARCH_API_KEY"),
		SearchBaseURL:     getenv("SEARCH_BASE_URL", "https://api.search.brave.com/res/v1"),
		VideoAPIKey:       os.Getenv("VIDEO_API_KEY"),
		VideoBaseURL:      getenv("VIDEO_BASE_URL", "https://www.googleapis.com/youtube/v3"),
		TranscriptBaseURL: os.Getenv("VIDEO_TRANSCRIPT_BASE_URL"),
		AccessSecret:      os.Getenv("ACCESS_SECRET"),
		StaleAfter:        getenvDuration("GENERATION_STALE_AFTER", 30*time.Second),
		CheckpointEvery:   getenvDuration("GENERATION_CHECKPOINT_EVERY", 750*time.Millisecond),
		GenerationLimit:   getenvDuration("GENERATION_TIME_LIMIT", 5*time.Minute),
		SMTPHost:          os.Getenv("SMTP_HOST"),
		SMTPPort:          getenv("SMTP_PORT", "587"),
		SMTPUser:          os.Getenv("SMTP_USER"),
		SMTPPassword:      os.Getenv("SMTP_PASSWORD"),
		DigestFrom:        os.Getenv("DIGEST_FROM"),
		DigestTo:          os.Getenv("DIGEST_TO"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
