/*
config.go - Application configuration

PURPOSE:
  Loads the server configuration from a YAML file. Values may reference
  environment variables as ${VAR} or ${VAR:default}; a .env file in the
  working directory is loaded first when present.

SECTIONS:
  server     Port, timeouts, CORS origins
  database   SQLite path (":memory:" for throwaway runs)
  logger     zap level/format/output, lumberjack rotation
  auth       JWT secret and token lifetime, bootstrap administrator
  cache      Settings cache: memory or redis
  timesheet  Reference time zone, project visibility, period type
  scheduler  Background period creation
  metrics    Prometheus endpoint

Runtime tunables (date windows, hour limits) are not here: they live in the
system_config table and are edited through the API.

SEE ALSO:
  - cmd/server/main.go: Consumes Config
  - timesheet/settings.go: Runtime tunables
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/warp/timesheet-engine/calendar"
	"github.com/warp/timesheet-engine/timesheet"
)

type (
	Config struct {
		Server    ServerConfig    `yaml:"server"`
		Database  DatabaseConfig  `yaml:"database"`
		Logger    LoggerConfig    `yaml:"logger"`
		Auth      AuthConfig      `yaml:"auth"`
		Cache     CacheConfig     `yaml:"cache"`
		Timesheet TimesheetConfig `yaml:"timesheet"`
		Scheduler SchedulerConfig `yaml:"scheduler"`
		Metrics   MetricsConfig   `yaml:"metrics"`
	}

	ServerConfig struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		IdleTimeout     time.Duration `yaml:"idle_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	}

	DatabaseConfig struct {
		Path string `yaml:"path"`
	}

	// LoggerConfig represents the logger configuration
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`
		Stacktrace bool   `yaml:"stacktrace"` // stacktraces on error level
	}

	AuthConfig struct {
		JWTSecret     string        `yaml:"jwt_secret"`
		TokenDuration time.Duration `yaml:"token_duration"`
		// Bootstrap administrator, created on startup when no user has
		// this email. Empty email disables bootstrapping.
		AdminEmail    string `yaml:"admin_email"`
		AdminPassword string `yaml:"admin_password"`
		AdminName     string `yaml:"admin_name"`
	}

	CacheConfig struct {
		Type  string           `yaml:"type"` // memory, redis
		TTL   time.Duration    `yaml:"ttl"`
		Redis RedisCacheConfig `yaml:"redis"`
	}

	RedisCacheConfig struct {
		Addr     string `yaml:"addr"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	}

	TimesheetConfig struct {
		// TimeZone decides which calendar day "today" is.
		TimeZone          string `yaml:"time_zone"`
		ProjectVisibility string `yaml:"project_visibility"` // area, assignment
		PeriodType        string `yaml:"period_type"`        // biweekly, weekly
	}

	SchedulerConfig struct {
		Enabled  bool          `yaml:"enabled"`
		Interval time.Duration `yaml:"interval"`
	}

	MetricsConfig struct {
		Enabled   bool   `yaml:"enabled"`
		Namespace string `yaml:"namespace"`
	}
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Load reads the YAML file at path, expands environment placeholders,
// applies defaults and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file system.
func Parse(data []byte) (*Config, error) {
	data = resolveEnv(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var envPattern = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// resolveEnv replaces ${VAR} and ${VAR:default} placeholders.
func resolveEnv(content []byte) []byte {
	return envPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		m := envPattern.FindSubmatch(match)
		if value, ok := os.LookupEnv(string(m[1])); ok {
			return []byte(value)
		}
		return m[2]
	})
}

func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}

	if c.Database.Path == "" {
		c.Database.Path = "timesheet.db"
	}

	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "json"
	}
	if c.Logger.Output == "" {
		c.Logger.Output = "stdout"
	}
	if c.Logger.MaxSize == 0 {
		c.Logger.MaxSize = 100
	}
	if c.Logger.MaxBackups == 0 {
		c.Logger.MaxBackups = 3
	}
	if c.Logger.MaxAge == 0 {
		c.Logger.MaxAge = 7
	}

	if c.Auth.TokenDuration == 0 {
		c.Auth.TokenDuration = 24 * time.Hour
	}
	if c.Auth.AdminName == "" {
		c.Auth.AdminName = "Administrator"
	}

	if c.Cache.Type == "" {
		c.Cache.Type = "memory"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 5 * time.Minute
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "timesheet:config:"
	}

	if c.Timesheet.TimeZone == "" {
		c.Timesheet.TimeZone = "UTC"
	}
	if c.Timesheet.ProjectVisibility == "" {
		c.Timesheet.ProjectVisibility = string(timesheet.VisibilityArea)
	}
	if c.Timesheet.PeriodType == "" {
		c.Timesheet.PeriodType = string(calendar.PeriodBiweekly)
	}

	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = time.Hour
	}

	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "timesheet"
	}
}

// Validate rejects unknown enum values and unusable combinations.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch strings.ToLower(c.Logger.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logger.format %q: want json or console", c.Logger.Format))
	}
	switch c.Logger.Output {
	case "stdout":
	case "file":
		if c.Logger.FilePath == "" {
			errs = append(errs, errors.New("logger.file_path is required when output is file"))
		}
	default:
		errs = append(errs, fmt.Errorf("logger.output %q: want stdout or file", c.Logger.Output))
	}
	switch c.Cache.Type {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, errors.New("cache.redis.addr is required when cache type is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.type %q: want memory or redis", c.Cache.Type))
	}
	if _, err := c.Timesheet.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := timesheet.ParseProjectVisibility(c.Timesheet.ProjectVisibility); err != nil {
		errs = append(errs, fmt.Errorf("timesheet.project_visibility: %w", err))
	}
	if _, err := calendar.ParsePeriodType(c.Timesheet.PeriodType); err != nil {
		errs = append(errs, fmt.Errorf("timesheet.period_type: %w", err))
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval < time.Minute {
		errs = append(errs, fmt.Errorf("scheduler.interval %s: must be at least 1m", c.Scheduler.Interval))
	}
	return errors.Join(errs...)
}

// Location loads the reference time zone.
func (t TimesheetConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(t.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("timesheet.time_zone %q: %w", t.TimeZone, err)
	}
	return loc, nil
}

// Policy builds the access policy from the visibility setting.
func (t TimesheetConfig) Policy() timesheet.Policy {
	v, err := timesheet.ParseProjectVisibility(t.ProjectVisibility)
	if err != nil {
		return timesheet.DefaultPolicy()
	}
	return timesheet.Policy{ProjectVisibility: v}
}
