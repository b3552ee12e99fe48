// Package config loads catalog settings from an optional YAML file with
// CATALOG_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bart-jansen/opencga/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. CATALOG_STORAGE_DRIVER.
const EnvPrefix = "CATALOG"

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageBlob     = "blob"
	StorageMongo    = "mongo"
)

// ID allocator drivers.
const (
	IDsStore = "store"
	IDsRedis = "redis"
	IDsFile  = "file"
)

// Config is the full catalog configuration.
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	IDs       IDsConfig       `mapstructure:"ids"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Logger    logging.Config  `mapstructure:"logger"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	// Timeout bounds the store calls of one catalog operation.
	Timeout time.Duration `mapstructure:"timeout"`
}

// StorageConfig selects the document store backend.
type StorageConfig struct {
	Driver      string      `mapstructure:"driver"`
	SQLitePath  string      `mapstructure:"sqlite_path"`
	PostgresDSN string      `mapstructure:"postgres_dsn"`
	Mongo       MongoConfig `mapstructure:"mongo"`
	Blob        BlobConfig  `mapstructure:"blob"`
}

// MongoConfig addresses a MongoDB deployment.
type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// BlobConfig parameterizes the blob-backed store.
type BlobConfig struct {
	Driver      string `mapstructure:"driver"`
	Prefix      string `mapstructure:"prefix"`
	FSRoot      string `mapstructure:"fs_root"`
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Region    string `mapstructure:"s3_region"`
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3PathStyle bool   `mapstructure:"s3_path_style"`
}

// IDsConfig selects where entity ids are allocated.
type IDsConfig struct {
	Driver        string `mapstructure:"driver"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
	FileDir       string `mapstructure:"file_dir"`
}

// DirectoryConfig points at the study directory file.
type DirectoryConfig struct {
	Path      string `mapstructure:"path"`
	CacheSize int    `mapstructure:"cache_size"`
}

// MetricsConfig enables the observability exporters. Textfile receives the
// prometheus metrics in text format when the catalog closes; TracePath
// receives one JSON line per span.
type MetricsConfig struct {
	Textfile  string `mapstructure:"textfile"`
	TracePath string `mapstructure:"trace_path"`
}

// Load reads path, or catalog.yaml from ./configs or the working directory
// when path is empty, and applies environment overrides. A missing default
// file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("catalog")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unknown drivers and settings a driver cannot run without.
func (c *Config) Validate() error {
	drivers := []string{StorageMemory, StorageSQLite, StoragePostgres, StorageBlob, StorageMongo}
	if !slices.Contains(drivers, c.Storage.Driver) {
		return fmt.Errorf("storage.driver %q: expected one of %s", c.Storage.Driver, strings.Join(drivers, ", "))
	}
	switch c.IDs.Driver {
	case IDsStore, IDsRedis:
	case IDsFile:
		if c.IDs.FileDir == "" {
			return errors.New("ids.file_dir is required for the file allocator")
		}
	default:
		return fmt.Errorf("ids.driver %q: expected store, redis or file", c.IDs.Driver)
	}
	if c.Storage.Driver == StorageBlob && c.Storage.Blob.Driver == "s3" && c.Storage.Blob.S3Bucket == "" {
		return errors.New("storage.blob.s3_bucket is required for the s3 blob driver")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout %s must not be negative", c.Timeout)
	}
	return nil
}

// Every key needs a default so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.driver", StorageSQLite)
	v.SetDefault("storage.sqlite_path", "catalog.db")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("storage.mongo.database", "catalog")
	v.SetDefault("storage.blob.driver", "fs")
	v.SetDefault("storage.blob.prefix", "")
	v.SetDefault("storage.blob.fs_root", "catalog-data")
	v.SetDefault("storage.blob.s3_bucket", "")
	v.SetDefault("storage.blob.s3_region", "")
	v.SetDefault("storage.blob.s3_endpoint", "")
	v.SetDefault("storage.blob.s3_path_style", false)

	v.SetDefault("ids.driver", IDsStore)
	v.SetDefault("ids.redis_addr", "localhost:6379")
	v.SetDefault("ids.redis_password", "")
	v.SetDefault("ids.redis_db", 0)
	v.SetDefault("ids.redis_prefix", "catalog:ids:")
	v.SetDefault("ids.file_dir", "")

	v.SetDefault("directory.path", "directory.yaml")
	v.SetDefault("directory.cache_size", 128)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output", "stderr")

	v.SetDefault("metrics.textfile", "")
	v.SetDefault("metrics.trace_path", "")

	v.SetDefault("timeout", "30s")
}
