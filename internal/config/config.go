package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/felo/msg-viewer/internal/parser"
	"github.com/spf13/cobra"
)

// String decoding modes for the --strings flag
const (
	StringsDrop    = "drop"
	StringsReplace = "replace"
	StringsStrict  = "strict"
)

// Config holds application configuration
type Config struct {
	// Server settings
	Host        string
	Port        string
	CORSOrigins []string

	// Database settings
	DBPath string

	// Email folder settings
	EmailsPath string

	// Decoding settings
	Codepage    int    // Forces the 8-bit string codepage; 0 uses the message's own
	StringsMode string // drop, replace or strict
	Workers     int

	// Logging settings
	LogLevel string
	LogDir   string
}

// Default returns default configuration
func Default() *Config {
	dataDir := defaultDataDir()

	return &Config{
		Host:        "localhost",
		Port:        "8080",
		DBPath:      filepath.Join(dataDir, "emails.db"),
		EmailsPath:  "./emails",
		StringsMode: StringsDrop,
		Workers:     runtime.NumCPU() * 2,
		LogLevel:    "info",
	}
}

// defaultDataDir is ~/.msg-viewer, or the working directory when there is no home
func defaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".msg-viewer")
}

// Address returns the full server address
func (c *Config) Address() string {
	return c.Host + ":" + c.Port
}

// URL returns the full server URL
func (c *Config) URL() string {
	return "http://" + c.Address()
}

// ParserOptions translates the decoding settings into parser options
func (c *Config) ParserOptions() []parser.Option {
	var opts []parser.Option
	if c.Codepage != 0 {
		opts = append(opts, parser.WithCodepage(c.Codepage))
	}
	switch c.StringsMode {
	case StringsReplace:
		opts = append(opts, parser.WithLossyStrings())
	case StringsStrict:
		opts = append(opts, parser.WithStrictStrings())
	}
	return opts
}

// RegisterFlags attaches the shared CLI flags to the root command; every subcommand inherits them.
func RegisterFlags(cmd *cobra.Command) error {
	def := Default()

	flags := cmd.PersistentFlags()
	flags.String("db", def.DBPath, "Path to the SQLite index database")
	flags.String("emails", def.EmailsPath, "Folder containing .msg files (falls back to MSG_VIEWER_EMAILS env var)")
	flags.String("host", def.Host, "HTTP listen host")
	flags.String("port", def.Port, "HTTP listen port")
	flags.StringSlice("cors-origin", nil, "Allowed CORS origins for the JSON API (default: none)")
	flags.Int("codepage", 0, "Force the Windows codepage used for 8-bit strings (0 = use the message's own)")
	flags.String("strings", def.StringsMode, "Undecodable string handling: drop, replace or strict")
	flags.Int("workers", def.Workers, "Number of concurrent indexing workers")
	flags.String("log-level", def.LogLevel, "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Optional directory for log files")

	return nil
}

// LoadConfig converts the parsed Cobra flags into a Config struct with validation.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()

	dbPath, err := flags.GetString("db")
	if err != nil {
		return Config{}, err
	}
	emailsPath, err := flags.GetString("emails")
	if err != nil {
		return Config{}, err
	}
	host, err := flags.GetString("host")
	if err != nil {
		return Config{}, err
	}
	port, err := flags.GetString("port")
	if err != nil {
		return Config{}, err
	}
	corsOrigins, err := flags.GetStringSlice("cors-origin")
	if err != nil {
		return Config{}, err
	}
	codepage, err := flags.GetInt("codepage")
	if err != nil {
		return Config{}, err
	}
	stringsMode, err := flags.GetString("strings")
	if err != nil {
		return Config{}, err
	}
	workers, err := flags.GetInt("workers")
	if err != nil {
		return Config{}, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return Config{}, err
	}
	logDir, err := flags.GetString("log-dir")
	if err != nil {
		return Config{}, err
	}

	if !flags.Changed("emails") {
		if env := os.Getenv("MSG_VIEWER_EMAILS"); env != "" {
			emailsPath = env
		}
	}

	logLevel = strings.ToLower(logLevel)
	if logLevel == "warning" {
		logLevel = "warn"
	}

	cfg := Config{
		Host:        host,
		Port:        port,
		CORSOrigins: corsOrigins,
		DBPath:      dbPath,
		EmailsPath:  filepath.Clean(emailsPath),
		Codepage:    codepage,
		StringsMode: strings.ToLower(stringsMode),
		Workers:     workers,
		LogLevel:    logLevel,
		LogDir:      logDir,
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	if cfg.DBPath == "" {
		return fmt.Errorf("--db is required")
	}
	if cfg.EmailsPath == "" {
		return fmt.Errorf("--emails is required")
	}
	if port, err := strconv.Atoi(cfg.Port); err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("--port must be between 1 and 65535")
	}
	if cfg.Codepage < 0 || cfg.Codepage > 65535 {
		return fmt.Errorf("--codepage must be between 0 and 65535")
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("--workers must be at least 1")
	}

	switch cfg.StringsMode {
	case StringsDrop, StringsReplace, StringsStrict:
	default:
		return fmt.Errorf("invalid --strings: %s", cfg.StringsMode)
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}
