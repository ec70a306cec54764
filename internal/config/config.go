package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"
)

type Config struct {
	Addr         string
	DBDriver     string // sqlite | pgx
	DBDSN        string
	SeedDemo     bool
	LogFile      string
	TemplatesDir string
	BodyLimit    int

	SessionTTL    time.Duration
	SessionSecret string
	LoginRateMax  int

	CartAllowAnonymous bool
	// CartMaxLineQty caps a single cart line; 0 means unbounded.
	CartMaxLineQty int
	ResetCodeTTL   time.Duration

	Blob      BlobConfig
	SMTP      SMTPConfig
	Assistant AssistantConfig
}

type BlobConfig struct {
	Backend   string // db | s3
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
}

func (s SMTPConfig) Configured() bool { return s.Host != "" && s.User != "" }

type AssistantConfig struct {
	URL             string
	APIKey          string
	Timeout         time.Duration
	ConversationTTL time.Duration
}

func (a AssistantConfig) Configured() bool { return a.URL != "" }

func Default() Config {
	return Config{
		Addr:               ":8080",
		DBDriver:           "sqlite",
		DBDSN:              "phonestore.db",
		TemplatesDir:       "./web/templates",
		BodyLimit:          8 << 20,
		SessionTTL:         24 * time.Hour,
		LoginRateMax:       5,
		CartAllowAnonymous: true,
		ResetCodeTTL:       15 * time.Minute,
		Blob:               BlobConfig{Backend: "db", Region: "us-east-1"},
		SMTP:               SMTPConfig{Port: 465},
		Assistant:          AssistantConfig{Timeout: 20 * time.Second, ConversationTTL: 24 * time.Hour},
	}
}

// Load reads .env, an optional config file, the environment and the
// command line, in that order of increasing precedence.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[config] .env: %v", err)
	}
	cfg, err := Parse(os.Args[1:], os.LookupEnv)
	if err != nil {
		log.Fatalf("[config] %v", err)
	}
	log.Printf("[config] ADDR=%s DB_DRIVER=%s DB_DSN=%s BLOB_BACKEND=%s SMTP=%t ASSISTANT=%t CART_MAX_LINE_QTY=%d",
		cfg.Addr, cfg.DBDriver, cfg.DBDSN, cfg.Blob.Backend, cfg.SMTP.Configured(), cfg.Assistant.Configured(), cfg.CartMaxLineQty)
	return cfg
}

// Parse builds a Config from defaults, the file named by --config or
// CONFIG_FILE, the lookup function and args.
func Parse(args []string, lookup func(string) (string, bool)) (Config, error) {
	fs := pflag.NewFlagSet("phonestore", pflag.ContinueOnError)
	file := fs.String("config", "", "JSON config file (comments allowed)")
	addr := fs.String("addr", "", "listen address")
	driver := fs.String("db-driver", "", "database driver: sqlite or pgx")
	dsn := fs.String("db-dsn", "", "database DSN")
	seed := fs.Bool("seed-demo", false, "seed demo accounts and products")
	logFile := fs.String("log-file", "", "append logs to this file")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Default()
	path := *file
	if path == "" {
		path, _ = lookup("CONFIG_FILE")
	}
	if path != "" {
		vals, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := cfg.apply(func(k string) (string, bool) { v, ok := vals[k]; return v, ok }); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := cfg.apply(lookup); err != nil {
		return Config{}, err
	}

	if fs.Changed("addr") {
		cfg.Addr = *addr
	}
	if fs.Changed("db-driver") {
		cfg.DBDriver = *driver
	}
	if fs.Changed("db-dsn") {
		cfg.DBDSN = *dsn
	}
	if fs.Changed("seed-demo") {
		cfg.SeedDemo = *seed
	}
	if fs.Changed("log-file") {
		cfg.LogFile = *logFile
	}
	return cfg, cfg.finish()
}

// readFile flattens a config file into the same keys as the environment.
func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			out[strings.ToUpper(k)] = t
		case float64:
			out[strings.ToUpper(k)] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			out[strings.ToUpper(k)] = strconv.FormatBool(t)
		}
	}
	return out, nil
}

func (c *Config) apply(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	num := func(dst *int, key string) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(dst *time.Duration, key string) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(dst *bool, key string) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str(&c.Addr, "ADDR")
	if port, ok := lookup("PORT"); ok && port != "" {
		c.Addr = ":" + port
	}
	str(&c.DBDriver, "DB_DRIVER")
	str(&c.DBDSN, "DB_DSN")
	flag(&c.SeedDemo, "SEED_DEMO")
	str(&c.LogFile, "LOG_FILE")
	str(&c.TemplatesDir, "TEMPLATES_DIR")
	num(&c.BodyLimit, "BODY_LIMIT")
	dur(&c.SessionTTL, "SESSION_TTL")
	str(&c.SessionSecret, "SESSION_SECRET")
	num(&c.LoginRateMax, "LOGIN_RATE_MAX")
	flag(&c.CartAllowAnonymous, "CART_ALLOW_ANONYMOUS")
	num(&c.CartMaxLineQty, "CART_MAX_LINE_QTY")
	dur(&c.ResetCodeTTL, "RESET_CODE_TTL")

	str(&c.Blob.Backend, "BLOB_BACKEND")
	str(&c.Blob.Bucket, "S3_BUCKET")
	str(&c.Blob.Region, "S3_REGION")
	str(&c.Blob.Endpoint, "S3_ENDPOINT")
	str(&c.Blob.AccessKey, "S3_ACCESS_KEY")
	str(&c.Blob.SecretKey, "S3_SECRET_KEY")

	str(&c.SMTP.Host, "SMTP_HOST")
	num(&c.SMTP.Port, "SMTP_PORT")
	str(&c.SMTP.User, "SMTP_USER", "FROM_EMAIL")
	str(&c.SMTP.Password, "SMTP_PASSWORD")

	str(&c.Assistant.URL, "ASSISTANT_URL")
	str(&c.Assistant.APIKey, "ASSISTANT_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	dur(&c.Assistant.Timeout, "ASSISTANT_TIMEOUT")
	dur(&c.Assistant.ConversationTTL, "CONVERSATION_TTL")

	return errors.Join(errs...)
}

func (c *Config) finish() error {
	switch c.DBDriver {
	case "sqlite", "pgx":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or pgx, got %q", c.DBDriver)
	}
	switch c.Blob.Backend {
	case "db":
	case "s3":
		if c.Blob.Bucket == "" {
			return errors.New("S3_BUCKET is required when BLOB_BACKEND=s3")
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be db or s3, got %q", c.Blob.Backend)
	}
	if c.CartMaxLineQty < 0 {
		return errors.New("CART_MAX_LINE_QTY must be >= 0")
	}
	if c.SessionSecret == "" {
		// Tokens signed with a random secret do not survive a restart.
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return err
		}
		c.SessionSecret = hex.EncodeToString(b)
	}
	return nil
}
