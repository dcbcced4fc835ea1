package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":8080"
	DefaultAdvisorTimeout  = 120
	DefaultAnalysisTimeout = 30
	DefaultMaxAttachments  = 8
	DefaultMaxAttachmentMB = 16
	DefaultSessionBudgetMB = 16
	DefaultPGHost          = "127.0.0.1"
	DefaultPGPort          = 5432
	DefaultPGUser          = "postgres"
	DefaultPGDatabase      = "krishimitra"
	DefaultPGSSLMode       = "disable"
	DefaultLanguage        = "en"
)

type Config struct {
	Log        LogConfig        `toml:"log"`
	Server     ServerConfig     `toml:"server"`
	Advisor    AdvisorConfig    `toml:"advisor"`
	Classifier ClassifierConfig `toml:"classifier"`
	Extractor  ExtractorConfig  `toml:"extractor"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Voice      VoiceConfig      `toml:"voice"`
	Limits     LimitsConfig     `toml:"limits"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// AdvisorConfig locates the conversational-AI collaborator.
type AdvisorConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

func (c AdvisorConfig) BaseURL() string {
	host := c.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := c.Port
	if port == 0 {
		port = 8081
	}
	return "http://" + host + ":" + fmt.Sprint(port)
}

// ClassifierConfig locates the disease-classification collaborator.
type ClassifierConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ExtractorConfig locates the document-extraction collaborator.
type ExtractorConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type PostgresConfig struct {
	// Enabled selects the Postgres history store; the in-memory store is
	// used otherwise.
	Enabled  bool   `toml:"enabled"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

type VoiceConfig struct {
	// AutoSpeak triggers text-to-speech automatically after a successful
	// voice-originated reply.
	AutoSpeak       bool   `toml:"auto_speak"`
	DefaultLanguage string `toml:"default_language"`
}

// LimitsConfig fixes the bounds the collaborating services leave open.
type LimitsConfig struct {
	MaxAttachmentsPerBatch int `toml:"max_attachments_per_batch"`
	MaxAttachmentMB        int `toml:"max_attachment_mb"`
	SessionBudgetMB        int `toml:"session_budget_mb"`
	// AnalysisTimeoutSeconds bounds each attachment's analysis, image or
	// document alike; the per-collaborator timeouts only cover their
	// HTTP clients.
	AnalysisTimeoutSeconds int `toml:"analysis_timeout_seconds"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Advisor: AdvisorConfig{
			Host:           "127.0.0.1",
			Port:           8081,
			TimeoutSeconds: DefaultAdvisorTimeout,
		},
		Classifier: ClassifierConfig{
			BaseURL:        "http://127.0.0.1:8082",
			TimeoutSeconds: DefaultAnalysisTimeout,
		},
		Extractor: ExtractorConfig{
			BaseURL:        "http://127.0.0.1:8083",
			TimeoutSeconds: DefaultAnalysisTimeout,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Voice: VoiceConfig{
			AutoSpeak:       true,
			DefaultLanguage: DefaultLanguage,
		},
		Limits: LimitsConfig{
			MaxAttachmentsPerBatch: DefaultMaxAttachments,
			MaxAttachmentMB:        DefaultMaxAttachmentMB,
			SessionBudgetMB:        DefaultSessionBudgetMB,
			AnalysisTimeoutSeconds: DefaultAnalysisTimeout,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
