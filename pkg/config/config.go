package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	InfluxDB   InfluxDBConfig
	HTTPServer HTTPServerConfig
	Analysis   AnalysisConfig
	Cache      CacheConfig
	Providers  ProvidersConfig
	Factors    FactorsConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Enabled        bool
	Brokers        []string
	TopicEmissions string
	GroupID        string
	NumPartitions  int
	BatchSize      int
	FlushInterval  time.Duration
}

type InfluxDBConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

type HTTPServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (h HTTPServerConfig) Addr() string {
	return fmt.Sprintf(":%d", h.Port)
}

type AnalysisConfig struct {
	ZThreshold           float64
	MinRegressionRecords int
	Trees                int
	Seed                 uint64
}

// CacheBackend selects where cached provider payloads live
type CacheBackend string

const (
	CacheBackendFile  CacheBackend = "file"
	CacheBackendRedis CacheBackend = "redis"
)

type CacheConfig struct {
	TTL      time.Duration
	Backend  CacheBackend
	FilePath string
	RedisKey string
}

type ProvidersConfig struct {
	HTTPTimeout     time.Duration
	BreakerFailures int
	BreakerReset    time.Duration

	GridURL     string
	GridAPIKey  string
	GridCountry string
	GridRegion  string

	AirQualityURL    string
	AirQualityAPIKey string
	Latitude         float64
	Longitude        float64

	NewsURL          string
	NewsAPIKey       string
	NewsMaxArticles  int
	NewsLookbackDays int

	LLMURL    string
	LLMAPIKey string
	LLMModel  string
}

type FactorsConfig struct {
	OverridePath string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "carbon_user"),
			Password: getEnv("DB_PASSWORD", "carbon_pass"),
			DBName:   getEnv("DB_NAME", "carbon_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled:        getEnvAsBool("KAFKA_ENABLED", false),
			Brokers:        strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicEmissions: getEnv("KAFKA_TOPIC_EMISSIONS", "carbon.emissions.recorded"),
			GroupID:        getEnv("KAFKA_GROUP_ID", "emissions-exporter"),
			NumPartitions:  getEnvAsInt("KAFKA_NUM_PARTITIONS", 3),
			BatchSize:      getEnvAsInt("KAFKA_BATCH_SIZE", 100),
			FlushInterval:  getEnvAsDuration("KAFKA_FLUSH_INTERVAL", 5*time.Second),
		},
		InfluxDB: InfluxDBConfig{
			URL:    getEnv("INFLUXDB_URL", "http://localhost:8086"),
			Token:  getEnv("INFLUXDB_TOKEN", ""),
			Org:    getEnv("INFLUXDB_ORG", "carbon"),
			Bucket: getEnv("INFLUXDB_BUCKET", "emissions"),
		},
		HTTPServer: HTTPServerConfig{
			Port:         getEnvAsInt("HTTP_PORT", 8080),
			ReadTimeout:  getEnvAsDuration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getEnvAsDuration("HTTP_WRITE_TIMEOUT", 60*time.Second),
		},
		Analysis: AnalysisConfig{
			ZThreshold:           getEnvAsFloat("ANALYSIS_Z_THRESHOLD", 3.0),
			MinRegressionRecords: getEnvAsInt("ANALYSIS_MIN_REGRESSION_RECORDS", 5),
			Trees:                getEnvAsInt("ANALYSIS_TREES", 100),
			Seed:                 getEnvAsUint64("ANALYSIS_SEED", 0),
		},
		Cache: CacheConfig{
			TTL:      getEnvAsDuration("CACHE_TTL", time.Hour),
			Backend:  CacheBackend(getEnv("CACHE_BACKEND", string(CacheBackendFile))),
			FilePath: getEnv("CACHE_FILE", "data/news_cache.json"),
			RedisKey: getEnv("CACHE_REDIS_KEY", "carbon:news"),
		},
		Providers: ProvidersConfig{
			HTTPTimeout:     getEnvAsDuration("PROVIDER_HTTP_TIMEOUT", 10*time.Second),
			BreakerFailures: getEnvAsInt("PROVIDER_BREAKER_FAILURES", 5),
			BreakerReset:    getEnvAsDuration("PROVIDER_BREAKER_RESET", 30*time.Second),

			GridURL:     getEnv("CARBON_INTERFACE_URL", "https://api.carboninterface.com/v1"),
			GridAPIKey:  getEnv("CARBON_INTERFACE_API_KEY", ""),
			GridCountry: getEnv("GRID_COUNTRY", "US"),
			GridRegion:  getEnv("GRID_REGION", "CA"),

			AirQualityURL:    getEnv("AIRNOW_URL", "https://www.airnowapi.org/aq/observation/latLong/current"),
			AirQualityAPIKey: getEnv("AIRNOW_API_KEY", ""),
			Latitude:         getEnvAsFloat("LOCATION_LATITUDE", 37.7749),
			Longitude:        getEnvAsFloat("LOCATION_LONGITUDE", -122.4194),

			NewsURL:          getEnv("NEWS_API_URL", "https://newsapi.org/v2/everything"),
			NewsAPIKey:       getEnv("NEWS_API_KEY", ""),
			NewsMaxArticles:  getEnvAsInt("NEWS_MAX_ARTICLES", 5),
			NewsLookbackDays: getEnvAsInt("NEWS_LOOKBACK_DAYS", 1),

			LLMURL:    getEnv("OPENAI_URL", "https://api.openai.com/v1"),
			LLMAPIKey: getEnv("OPENAI_API_KEY", ""),
			LLMModel:  getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),
		},
		Factors: FactorsConfig{
			OverridePath: getEnv("EMISSION_FACTORS_FILE", ""),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("CACHE_TTL must be positive, got %s", c.Cache.TTL))
	}
	if c.Cache.Backend != CacheBackendFile && c.Cache.Backend != CacheBackendRedis {
		errs = append(errs, fmt.Errorf("CACHE_BACKEND must be %q or %q, got %q", CacheBackendFile, CacheBackendRedis, c.Cache.Backend))
	}
	if c.Analysis.ZThreshold <= 0 {
		errs = append(errs, fmt.Errorf("ANALYSIS_Z_THRESHOLD must be positive, got %v", c.Analysis.ZThreshold))
	}
	if c.Analysis.MinRegressionRecords < 2 {
		errs = append(errs, fmt.Errorf("ANALYSIS_MIN_REGRESSION_RECORDS must be at least 2, got %d", c.Analysis.MinRegressionRecords))
	}
	if c.Analysis.Trees <= 0 {
		errs = append(errs, fmt.Errorf("ANALYSIS_TREES must be positive, got %d", c.Analysis.Trees))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsUint64(key string, defaultValue uint64) uint64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseUint(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
