package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

const (
	defaultMaxUploadSize = "5MiB"
	defaultBucket        = "documents"
)

// Config holds application configuration.
type Config struct {
	Env             string   `yaml:"env"`
	Port            string   `yaml:"port"`
	CORSAllowOrigin []string `yaml:"corsAllowOrigins"`

	LogLevel    string `yaml:"logLevel"`
	LogEncoding string `yaml:"logEncoding"`
	LogFile     string `yaml:"logFile"`

	MaxUploadSize    string `yaml:"maxUploadSize"`
	MaxUploadBytes   int64  `yaml:"-"`
	ObjectStoreType  string `yaml:"objectStore"`
	Bucket           string `yaml:"bucket"`
	LocalStoreDir    string `yaml:"localStoreDir"`
	MinioEndpoint    string `yaml:"minioEndpoint"`
	MinioAccessKey   string `yaml:"minioAccessKey"`
	MinioSecretKey   string `yaml:"minioSecretKey"`
	MinioUseSSL      bool   `yaml:"minioUseSSL"`
	MinioRegion      string `yaml:"minioRegion"`
	AWSRegion        string `yaml:"awsRegion"`
	S3Endpoint       string `yaml:"s3Endpoint"`
	S3ForcePathStyle bool   `yaml:"s3ForcePathStyle"`
	S3Prefix         string `yaml:"s3Prefix"`
	S3KMSKeyID       string `yaml:"s3KmsKeyId"`
	S3AccessKeyID    string `yaml:"-"`
	S3SecretKey      string `yaml:"-"`
	GCPProjectID     string `yaml:"gcpProjectId"`

	RepoBackend         string        `yaml:"repoBackend"`
	DatabaseURL         string        `yaml:"databaseUrl"`
	FirestoreCollection string        `yaml:"firestoreCollection"`
	RepoCacheSize       int           `yaml:"repoCacheSize"`
	RepoCacheTTL        time.Duration `yaml:"repoCacheTTL"`
	DBMaxOpenConns      int           `yaml:"dbMaxOpenConns"`
	DBMaxIdleConns      int           `yaml:"dbMaxIdleConns"`
	DBConnMaxLifetime   time.Duration `yaml:"dbConnMaxLifetime"`
	DBConnMaxIdleTime   time.Duration `yaml:"dbConnMaxIdleTime"`
	DBPingTimeout       time.Duration `yaml:"dbPingTimeout"`

	LLMProvider    string        `yaml:"llmProvider"`
	LLMModel       string        `yaml:"llmModel"`
	LLMTimeout     time.Duration `yaml:"llmTimeout"`
	GeminiLocation string        `yaml:"geminiLocation"`
	OpenAIAPIKey   string        `yaml:"-"`

	RedisAddr         string        `yaml:"redisAddr"`
	RedisPassword     string        `yaml:"-"`
	RedisDB           int           `yaml:"redisDB"`
	AutoAnalyze       bool          `yaml:"autoAnalyze"`
	WorkerConcurrency int           `yaml:"workerConcurrency"`
	AnalysisLockTTL   time.Duration `yaml:"analysisLockTTL"`
	QueueMaxRetry     int           `yaml:"queueMaxRetry"`
}

// Default returns the configuration used when nothing else is provided.
func Default() Config {
	return Config{
		Env:                 "dev",
		Port:                "8080",
		CORSAllowOrigin:     []string{"http://localhost:5173"},
		LogLevel:            "info",
		LogEncoding:         "json",
		MaxUploadSize:       defaultMaxUploadSize,
		MaxUploadBytes:      5 * units.MiB,
		ObjectStoreType:     "minio",
		Bucket:              defaultBucket,
		LocalStoreDir:       "./data",
		MinioEndpoint:       "localhost:9000",
		MinioRegion:         "us-east-1",
		RepoBackend:         "memory",
		FirestoreCollection: "documents",
		RepoCacheSize:       0,
		RepoCacheTTL:        5 * time.Minute,
		LLMProvider:         "gemini",
		LLMModel:            "gemini-2.5-flash",
		LLMTimeout:          120 * time.Second,
		GeminiLocation:      "us-central1",
		WorkerConcurrency:   4,
		AnalysisLockTTL:     5 * time.Minute,
		QueueMaxRetry:       3,
	}
}

// Load reads configuration from defaults, an optional YAML file and environment variables.
func Load() (Config, error) {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Env, "ENV")
	setString(&cfg.Port, "PORT")
	if raw, ok := lookup("CORS_ALLOW_ORIGINS"); ok {
		cfg.CORSAllowOrigin = splitAndTrim(raw)
	}
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogEncoding, "LOG_ENCODING")
	setString(&cfg.LogFile, "LOG_FILE")

	setString(&cfg.MaxUploadSize, "MAX_UPLOAD_SIZE")
	setString(&cfg.ObjectStoreType, "OBJECT_STORE")
	setString(&cfg.Bucket, "BUCKET")
	setString(&cfg.LocalStoreDir, "LOCAL_STORE_DIR")
	setString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	setString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.MinioRegion, "MINIO_REGION")
	setString(&cfg.AWSRegion, "AWS_REGION")
	setString(&cfg.S3Endpoint, "S3_ENDPOINT")
	setString(&cfg.S3Prefix, "S3_PREFIX")
	setString(&cfg.S3KMSKeyID, "S3_KMS_KEY_ID")
	setString(&cfg.S3AccessKeyID, "S3_ACCESS_KEY_ID")
	setString(&cfg.S3SecretKey, "S3_SECRET_ACCESS_KEY")
	setString(&cfg.GCPProjectID, "GCP_PROJECT_ID")

	setString(&cfg.RepoBackend, "REPO_BACKEND")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.FirestoreCollection, "FIRESTORE_COLLECTION")

	setString(&cfg.LLMProvider, "LLM_PROVIDER")
	setString(&cfg.LLMModel, "LLM_MODEL")
	setString(&cfg.GeminiLocation, "GEMINI_LOCATION")
	setString(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")

	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")

	bools := map[string]*bool{
		"MINIO_USE_SSL":       &cfg.MinioUseSSL,
		"S3_FORCE_PATH_STYLE": &cfg.S3ForcePathStyle,
		"AUTO_ANALYZE":        &cfg.AutoAnalyze,
	}
	for key, dst := range bools {
		if err := setBool(dst, key); err != nil {
			return err
		}
	}

	ints := map[string]*int{
		"REPO_CACHE_SIZE":    &cfg.RepoCacheSize,
		"REDIS_DB":           &cfg.RedisDB,
		"WORKER_CONCURRENCY": &cfg.WorkerConcurrency,
		"QUEUE_MAX_RETRY":    &cfg.QueueMaxRetry,
		"DB_MAX_OPEN_CONNS":  &cfg.DBMaxOpenConns,
		"DB_MAX_IDLE_CONNS":  &cfg.DBMaxIdleConns,
	}
	for key, dst := range ints {
		if err := setInt(dst, key); err != nil {
			return err
		}
	}

	durations := map[string]*time.Duration{
		"REPO_CACHE_TTL":        &cfg.RepoCacheTTL,
		"LLM_TIMEOUT":           &cfg.LLMTimeout,
		"ANALYSIS_LOCK_TTL":     &cfg.AnalysisLockTTL,
		"DB_CONN_MAX_LIFETIME":  &cfg.DBConnMaxLifetime,
		"DB_CONN_MAX_IDLE_TIME": &cfg.DBConnMaxIdleTime,
		"DB_PING_TIMEOUT":       &cfg.DBPingTimeout,
	}
	for key, dst := range durations {
		if err := setDuration(dst, key); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) normalize() error {
	c.Env = normalizeEnv(c.Env)
	c.ObjectStoreType = normalizeStoreType(c.ObjectStoreType)
	c.RepoBackend = normalizeRepoBackend(c.RepoBackend)
	c.LLMProvider = strings.ToLower(strings.TrimSpace(c.LLMProvider))
	if strings.TrimSpace(c.Bucket) == "" {
		c.Bucket = defaultBucket
	}
	if strings.TrimSpace(c.MaxUploadSize) == "" {
		c.MaxUploadSize = defaultMaxUploadSize
	}

	size, err := units.RAMInBytes(c.MaxUploadSize)
	if err != nil {
		return fmt.Errorf("invalid MAX_UPLOAD_SIZE %q: %w", c.MaxUploadSize, err)
	}
	if size <= 0 {
		return fmt.Errorf("invalid MAX_UPLOAD_SIZE %q: must be positive", c.MaxUploadSize)
	}
	c.MaxUploadBytes = size

	if c.RepoBackend == "postgres" && strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required when REPO_BACKEND=postgres")
	}
	if c.AutoAnalyze && !c.SharedRepo() {
		return fmt.Errorf("AUTO_ANALYZE requires a shared REPO_BACKEND (postgres or firestore), got %s", c.RepoBackend)
	}
	if c.WorkerConcurrency <= 0 {
		c.WorkerConcurrency = 1
	}
	return nil
}

// SharedRepo reports whether documents are visible to other processes.
func (c Config) SharedRepo() bool {
	return c.RepoBackend != "memory"
}

// RedisEnabled reports whether a Redis address has been configured.
func (c Config) RedisEnabled() bool {
	return strings.TrimSpace(c.RedisAddr) != ""
}

func lookup(key string) (string, bool) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	val = strings.TrimSpace(val)
	return val, val != ""
}

func setString(dst *string, key string) {
	if val, ok := lookup(key); ok {
		*dst = val
	}
}

func setBool(dst *bool, key string) error {
	val, ok := lookup(key)
	if !ok {
		return nil
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	*dst = parsed
	return nil
}

func setInt(dst *int, key string) error {
	val, ok := lookup(key)
	if !ok {
		return nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	*dst = parsed
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	val, ok := lookup(key)
	if !ok {
		return nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	*dst = parsed
	return nil
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "gcs":
		return "gcs"
	case "local":
		return "local"
	default:
		return "minio"
	}
}

func normalizeRepoBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "postgres", "pg":
		return "postgres"
	case "firestore":
		return "firestore"
	default:
		return "memory"
	}
}
