package config

// APIConfig contains all API server configuration.
type APIConfig struct {
	Server     APIServerConfig  `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Projection ProjectionConfig `yaml:"projection,omitempty"`
	Archive    ArchiveConfig    `yaml:"archive,omitempty"`
}

// APIServerConfig contains HTTP server settings.
type APIServerConfig struct {
	Listen      string          `yaml:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled"`
	Ingest  RateLimitTier `yaml:"ingest,omitempty"`
	Read    RateLimitTier `yaml:"read,omitempty"`
}

// RateLimitTier defines request limits for a specific tier.
type RateLimitTier struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty"`
	Postgres PostgresConfig `yaml:"postgres,omitempty"`
}

// SQLiteConfig contains SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty"`
}

// ProjectionConfig configures the background service that keeps the
// keyword latest projection fresh.
type ProjectionConfig struct {
	Enabled         bool   `yaml:"enabled"`
	RefreshInterval string `yaml:"refresh_interval,omitempty"`
}

// ArchiveConfig configures optional report archiving. Only one backend
// (local or S3) may be enabled at a time.
type ArchiveConfig struct {
	Enabled bool                `yaml:"enabled"`
	Local   *LocalArchiveConfig `yaml:"local,omitempty"`
	S3      *S3ArchiveConfig    `yaml:"s3,omitempty"`
}

// LocalArchiveConfig archives report documents to a local directory.
type LocalArchiveConfig struct {
	Path string `yaml:"path"`
}

// S3ArchiveConfig contains S3 settings for report archiving.
type S3ArchiveConfig struct {
	EndpointURL     string `yaml:"endpoint_url,omitempty"`
	Region          string `yaml:"region,omitempty"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
	Prefix          string `yaml:"prefix,omitempty"`
	StorageClass    string `yaml:"storage_class,omitempty"`
	ACL             string `yaml:"acl,omitempty"`
}
