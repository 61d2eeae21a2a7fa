package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string
	JWTSecret  string

	ServerAddr string
	LogDir     string

	GatewayURL     string
	GatewayAPIKey  string
	GatewayModel   string
	GatewayTimeout time.Duration
	MaxFrameBytes  int

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOSecure    bool

	CLIOwnerID string
}

// LoadConfig reads defaults, then the optional YAML file named by
// MINDMESH_CONFIG, then .env, then the process environment.
func LoadConfig() Config {
	_ = godotenv.Load()

	file, err := readFile(os.Getenv("MINDMESH_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "config: ignoring config file:", err)
	}
	return fromSources(file, os.Getenv)
}

func fromSources(file map[string]string, getenv func(string) string) Config {
	get := func(key, fallback string) string {
		if v := getenv(key); v != "" {
			return v
		}
		if v, ok := file[key]; ok && v != "" {
			return v
		}
		return fallback
	}

	return Config{
		DBUser:     get("DB_USER", ""),
		DBPassword: get("DB_PASSWORD", ""),
		DBHost:     get("DB_HOST", "localhost"),
		DBPort:     get("DB_PORT", "5432"),
		DBName:     get("DB_NAME", "mindmesh"),
		JWTSecret:  get("JWT_SECRET", ""),

		ServerAddr: get("SERVER_ADDR", ":8000"),
		LogDir:     get("LOG_DIR", "./logs"),

		GatewayURL:     get("GATEWAY_URL", "https://ai.gateway.lovable.dev/v1/chat/completions"),
		GatewayAPIKey:  get("GATEWAY_API_KEY", ""),
		GatewayModel:   get("GATEWAY_MODEL", "google/gemini-3-flash-preview"),
		GatewayTimeout: parseDuration(get("GATEWAY_TIMEOUT", ""), 120*time.Second),
		MaxFrameBytes:  parseInt(get("MAX_FRAME_BYTES", ""), 1<<20),

		MinIOEndpoint:  get("MINIO_ENDPOINT", ""),
		MinIOAccessKey: get("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey: get("MINIO_SECRET_KEY", ""),
		MinIOBucket:    get("MINIO_BUCKET", "mindmesh-digests"),
		MinIOSecure:    parseBool(get("MINIO_SECURE", ""), false),

		CLIOwnerID: get("CLI_OWNER_ID", "local-cli"),
	}
}

// readFile loads a flat YAML mapping. Keys are matched case-insensitively
// against the environment variable names.
func readFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw := map[string]string{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[strings.ToUpper(k)] = v
	}
	return out, nil
}

func parseDuration(v string, fallback time.Duration) time.Duration {
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseInt(v string, fallback int) int {
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseBool(v string, fallback bool) bool {
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
