package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const DefaultNPI = "1033933064"

type Config struct {
	DefaultNPI         string
	SpecialtyTablePath string
	OutputDir          string
	DBPath             string

	WarehouseDriver     string
	WarehouseTable      string
	WarehouseSQLitePath string
	PostgresDSN         string

	SnowflakeAccount       string
	SnowflakeUser          string
	SnowflakeWarehouse     string
	SnowflakeDatabase      string
	SnowflakeSchema        string
	SnowflakeRole          string
	SnowflakeAuthenticator string
	SnowflakePassword      string

	SnowflakeOAuthClientID     string
	SnowflakeOAuthClientSecret string
	SnowflakeOAuthRefreshToken string
	SnowflakeOAuthTokenURL     string

	RegistryBaseURL      string
	RegistryRateLimitRPS int
	RegistryTimeoutMs    int

	ExportSink             string
	ExportS3Bucket         string
	ExportS3Region         string
	ExportS3Endpoint       string
	ExportS3PathStyle      bool
	ExportS3Prefix         string
	ExportS3PresignMinutes int
	ExportS3AccessKeyID    string
	ExportS3SecretKey      string

	LogLevel string
	LogJSON  bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DefaultNPI:         getEnv("DEFAULT_NPI", DefaultNPI),
		SpecialtyTablePath: getEnv("SPECIALTY_TABLE_PATH", filepath.Join(cwd, "Specialty table.xlsx")),
		OutputDir:          getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		DBPath:             getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),

		WarehouseDriver:     strings.ToLower(strings.TrimSpace(getEnv("WAREHOUSE_DRIVER", "snowflake"))),
		WarehouseTable:      getEnv("WAREHOUSE_TABLE", "merged_provider"),
		WarehouseSQLitePath: getEnv("WAREHOUSE_SQLITE_PATH", filepath.Join(cwd, "data", "warehouse.db")),
		PostgresDSN:         getEnv("POSTGRES_DSN", ""),

		SnowflakeAccount:       getEnv("SNOWFLAKE_ACCOUNT", ""),
		SnowflakeUser:          getEnv("SNOWFLAKE_USER", ""),
		SnowflakeWarehouse:     getEnv("SNOWFLAKE_WAREHOUSE", "USER_QUERY_WH"),
		SnowflakeDatabase:      getEnv("SNOWFLAKE_DATABASE", "CISTERN"),
		SnowflakeSchema:        getEnv("SNOWFLAKE_SCHEMA", "PROVIDER_PREFILL"),
		SnowflakeRole:          getEnv("SNOWFLAKE_ROLE", ""),
		SnowflakeAuthenticator: strings.ToLower(strings.TrimSpace(getEnv("SNOWFLAKE_AUTHENTICATOR", "externalbrowser"))),
		SnowflakePassword:      getEnv("SNOWFLAKE_PASSWORD", ""),

		SnowflakeOAuthClientID:     getEnv("SNOWFLAKE_OAUTH_CLIENT_ID", ""),
		SnowflakeOAuthClientSecret: getEnv("SNOWFLAKE_OAUTH_CLIENT_SECRET", ""),
		SnowflakeOAuthRefreshToken: getEnv("SNOWFLAKE_OAUTH_REFRESH_TOKEN", ""),
		SnowflakeOAuthTokenURL:     getEnv("SNOWFLAKE_OAUTH_TOKEN_URL", ""),

		RegistryBaseURL:      getEnv("NPI_REGISTRY_BASE_URL", "https://npiregistry.cms.hhs.gov/api"),
		RegistryRateLimitRPS: getEnvInt("NPI_REGISTRY_RATE_LIMIT_RPS", 5),
		RegistryTimeoutMs:    getEnvInt("NPI_REGISTRY_TIMEOUT_MS", 30000),

		ExportSink:             strings.ToLower(strings.TrimSpace(getEnv("EXPORT_SINK", "local"))),
		ExportS3Bucket:         getEnv("EXPORT_S3_BUCKET", ""),
		ExportS3Region:         getEnv("EXPORT_S3_REGION", "us-east-1"),
		ExportS3Endpoint:       getEnv("EXPORT_S3_ENDPOINT", ""),
		ExportS3PathStyle:      getEnvBool("EXPORT_S3_PATH_STYLE", false),
		ExportS3Prefix:         getEnv("EXPORT_S3_PREFIX", "exports"),
		ExportS3PresignMinutes: getEnvInt("EXPORT_S3_PRESIGN_MINUTES", 60),
		ExportS3AccessKeyID:    getEnv("EXPORT_S3_ACCESS_KEY_ID", ""),
		ExportS3SecretKey:      getEnv("EXPORT_S3_SECRET_ACCESS_KEY", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogJSON:  getEnvBool("LOG_JSON", false),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

// ResolveNPI trims the user input and falls back to the default NPI when blank.
func (c Config) ResolveNPI(input string) (npi string, usedDefault bool) {
	npi = strings.TrimSpace(input)
	if npi != "" {
		return npi, false
	}
	if strings.TrimSpace(c.DefaultNPI) == "" {
		return DefaultNPI, true
	}
	return strings.TrimSpace(c.DefaultNPI), true
}

// SnowflakeTokenURL returns the configured OAuth token endpoint or the
// account's default one.
func (c Config) SnowflakeTokenURL() string {
	if strings.TrimSpace(c.SnowflakeOAuthTokenURL) != "" {
		return c.SnowflakeOAuthTokenURL
	}
	return fmt.Sprintf("https://%s.snowflakecomputing.com/oauth/token-request", strings.ToLower(c.SnowflakeAccount))
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
