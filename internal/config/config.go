package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const DefaultStableDiffusionURL = "https://stablediffusionapi.com/api/v3/text2img"

type Config struct {
	AppEnv      string
	Address     string
	DatabaseURL string

	// SnapshotPath persists the in-memory store between restarts when set.
	SnapshotPath string

	StableDiffusionAPIKey string
	StableDiffusionURL    string
	FetchHostAllowlist    []string
	UpstreamTimeout       time.Duration

	PublicDir     string
	UploadDir     string
	StorageDriver string

	R2Endpoint        string
	R2Bucket          string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2PublicBaseURL   string

	AllowedOrigins        []string
	GenerateRatePerMinute int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

func Load() Config {
	// Missing .env files are fine.
	_ = godotenv.Load(".env", ".env.local")

	sdURL := getEnv("STABLE_DIFFUSION_API_URL", DefaultStableDiffusionURL)

	return Config{
		AppEnv:       getEnv("APP_ENV", "development"),
		Address:      ":" + getEnv("PORT", "3000"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		SnapshotPath: os.Getenv("STORE_SNAPSHOT_PATH"),

		StableDiffusionAPIKey: strings.TrimSpace(os.Getenv("STABLE_DIFFUSION_API_KEY")),
		StableDiffusionURL:    sdURL,
		FetchHostAllowlist:    buildAllowlist(sdURL, os.Getenv("FETCH_HOST_ALLOWLIST")),
		UpstreamTimeout:       time.Second * time.Duration(getEnvInt("UPSTREAM_TIMEOUT_SECONDS", 60)),

		PublicDir:     getEnv("PUBLIC_DIR", "public"),
		UploadDir:     getEnv("UPLOAD_DIR", "public/uploads"),
		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", "local")),

		R2Endpoint:        os.Getenv("R2_ENDPOINT"),
		R2Bucket:          os.Getenv("R2_BUCKET"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2PublicBaseURL:   strings.TrimRight(os.Getenv("R2_PUBLIC_BASE_URL"), "/"),

		AllowedOrigins:        splitAndClean(os.Getenv("ALLOWED_ORIGINS")),
		GenerateRatePerMinute: getEnvInt("GENERATE_RATE_PER_MINUTE", 30),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 90)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
	}
	return fallback
}

func splitAndClean(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// buildAllowlist always starts with the API host so poll URLs handed back by
// the upstream are accepted without extra configuration.
func buildAllowlist(apiURL, extra string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(host string) {
		host = strings.ToLower(strings.TrimSpace(host))
		if host == "" {
			return
		}
		if _, ok := seen[host]; ok {
			return
		}
		seen[host] = struct{}{}
		out = append(out, host)
	}
	if u, err := url.Parse(apiURL); err == nil {
		add(u.Hostname())
	}
	for _, h := range splitAndClean(extra) {
		add(h)
	}
	return out
}
