package config

import (
	"os"
	"strings"

	"slowdigest/internal/runinfo"

	"gopkg.in/yaml.v3"
)

// Config captures all runtime options for a digest run.
type Config struct {
	Source    SourceConfig       `yaml:"source"`
	Filters   []string           `yaml:"filters"`
	Normalize bool               `yaml:"normalize"`
	Aggregate bool               `yaml:"aggregate"`
	Order     string             `yaml:"order"`
	Limit     int                `yaml:"limit"`
	Workers   int                `yaml:"workers"`
	Report    ReportConfig       `yaml:"report"`
	Logging   Logging            `yaml:"logging"`
	Storage   StorageConfig      `yaml:"storage"`
	RunInfo   *runinfo.BasicInfo `yaml:"-"`
}

// SourceConfig selects where slow log entries come from. When the MySQL
// source is enabled it wins over the path.
type SourceConfig struct {
	Path  string      `yaml:"path"`
	MySQL MySQLSource `yaml:"mysql"`
}

// MySQLSource reads entries from a live server's mysql.slow_log table
// instead of a log file.
type MySQLSource struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
	Limit   int    `yaml:"limit"`
}

// ReportConfig controls persisted run artifacts. An empty Dir disables
// persistence entirely.
type ReportConfig struct {
	Dir     string `yaml:"dir"`
	Archive bool   `yaml:"archive"`
}

// Logging controls stdout logging behavior.
type Logging struct {
	Verbose bool   `yaml:"verbose"`
	LogFile string `yaml:"log_file"`
}

// StorageConfig holds external storage settings.
type StorageConfig struct {
	S3  S3Config  `yaml:"s3"`
	GCS GCSConfig `yaml:"gcs"`
}

// CloudEnabled reports whether any cloud storage backend is enabled.
func (s StorageConfig) CloudEnabled() bool {
	return s.GCS.Enabled || s.S3.Enabled
}

// S3Config configures S3 uploads (legacy and S3-compatible endpoints).
type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// GCSConfig configures GCS uploads.
type GCSConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	CredentialsFile string `yaml:"credentials_file"`
}

// Load reads configuration from a YAML file. An empty path skips the file
// and yields the built-in defaults.
func Load(path string) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}
	normalizeConfig(&cfg)
	cfg.RunInfo = runinfo.FromEnv()
	return cfg, nil
}

const defaultLimit = 10

func normalizeConfig(cfg *Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Limit < 0 {
		cfg.Limit = 0
	}
	if cfg.Order == "" {
		cfg.Order = "none"
	}
	if cfg.Source.MySQL.Limit < 0 {
		cfg.Source.MySQL.Limit = 0
	}
	if cfg.Source.MySQL.DSN != "" {
		// slow_log lives in the mysql schema.
		cfg.Source.MySQL.DSN = ensureDatabaseInDSN(cfg.Source.MySQL.DSN, "mysql")
	}
	if cfg.Report.Archive && cfg.Report.Dir == "" {
		cfg.Report.Dir = "reports"
	}
}

func ensureDatabaseInDSN(dsn string, dbName string) string {
	if dsn == "" || dbName == "" {
		return dsn
	}
	slash := strings.Index(dsn, "/")
	if slash < 0 {
		return dsn
	}
	query := strings.Index(dsn[slash+1:], "?")
	if query >= 0 {
		query = slash + 1 + query
	}
	afterSlash := dsn[slash+1:]
	if query >= 0 {
		afterSlash = dsn[slash+1 : query]
	}
	if strings.TrimSpace(afterSlash) != "" {
		return dsn
	}
	if query >= 0 {
		return dsn[:slash+1] + dbName + dsn[query:]
	}
	return dsn + dbName
}

func defaultConfig() Config {
	return Config{
		Source: SourceConfig{
			MySQL: MySQLSource{
				DSN: "root:@tcp(127.0.0.1:3306)/",
			},
		},
		Order:   "none",
		Limit:   defaultLimit,
		Workers: 1,
	}
}
