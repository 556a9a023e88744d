package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/text/encoding/htmlindex"

	"mongo2csv/internal/common"
	"mongo2csv/internal/retry"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultConnectRetries = retry.DefaultMaxRetries
	DefaultLogLevel       = "info"
	DefaultOutputEncoding = "utf-8"
	envPrefix             = "MONGO2CSV"
)

// Config holds all configuration for one export run.
type Config struct {
	// MongoDB configuration.
	MongoHost       string
	MongoPort       string
	MongoUser       string
	MongoPassword   string
	MongoDB         string
	MongoCollection string
	PipelineFile    string
	ConnectTimeout  time.Duration
	ConnectRetries  int

	// Output configuration.
	OutputFile     string
	OutputEncoding string
	MetricsFile    string

	// Application configuration.
	LogLevel string
	DryRun   bool
}

// Load fills unset fields from environment variables and the config file.
// Values already set (from positional arguments or flags) are kept.
func (c *Config) Load() error {
	v := viper.New()

	v.SetDefault("connect_timeout", DefaultConnectTimeout)
	v.SetDefault("connect_retries", DefaultConnectRetries)
	v.SetDefault("output_encoding", DefaultOutputEncoding)
	v.SetDefault("log_level", DefaultLogLevel)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	home, err := os.UserHomeDir()
	if err != nil {
		return &common.FileIOError{Op: "get user home dir", Reason: err.Error(), Err: err}
	}
	v.AddConfigPath(filepath.Join(home, ".mongo2csv"))
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine.
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundErr) {
			return &common.FileIOError{Op: "read config file", Reason: err.Error(), Err: err}
		}
	}

	if c.MongoHost == "" {
		c.MongoHost = v.GetString("mongo_host")
	}
	if c.MongoPort == "" {
		c.MongoPort = v.GetString("mongo_port")
	}
	if c.MongoUser == "" {
		c.MongoUser = v.GetString("mongo_user")
	}
	if c.MongoPassword == "" {
		c.MongoPassword = v.GetString("mongo_password")
	}
	if c.MongoDB == "" {
		c.MongoDB = v.GetString("mongo_db")
	}
	if c.MongoCollection == "" {
		c.MongoCollection = v.GetString("mongo_collection")
	}
	if c.PipelineFile == "" {
		c.PipelineFile = v.GetString("pipeline_file")
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = v.GetDuration("connect_timeout")
	}
	// Only flags set retries, so the environment and file always apply here.
	c.ConnectRetries = v.GetInt("connect_retries")
	if c.OutputFile == "" {
		c.OutputFile = v.GetString("output_file")
	}
	if c.OutputEncoding == "" {
		c.OutputEncoding = v.GetString("output_encoding")
	}
	if c.MetricsFile == "" {
		c.MetricsFile = v.GetString("metrics_file")
	}
	if c.LogLevel == "" {
		c.LogLevel = v.GetString("log_level")
	}

	return nil
}

// OverrideConfigWithFlags copies every flag the user explicitly set onto the config.
func (c *Config) OverrideConfigWithFlags(cmd *cobra.Command) error {
	fs := cmd.Flags()
	stringFlags := map[string]*string{
		"mongo-user":       &c.MongoUser,
		"mongo-password":   &c.MongoPassword,
		"mongo-collection": &c.MongoCollection,
		"pipeline-file":    &c.PipelineFile,
		"metrics-file":     &c.MetricsFile,
		"output-encoding":  &c.OutputEncoding,
		"log-level":        &c.LogLevel,
	}
	for name, dst := range stringFlags {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			continue
		}
		val, err := fs.GetString(name)
		if err != nil {
			return &common.ConfigError{Op: "read flag", Reason: name, Err: err}
		}
		*dst = val
	}
	if fs.Lookup("connect-timeout") != nil && fs.Changed("connect-timeout") {
		val, err := fs.GetDuration("connect-timeout")
		if err != nil {
			return &common.ConfigError{Op: "read flag", Reason: "connect-timeout", Err: err}
		}
		c.ConnectTimeout = val
	}
	if fs.Lookup("connect-retries") != nil && fs.Changed("connect-retries") {
		val, err := fs.GetInt("connect-retries")
		if err != nil {
			return &common.ConfigError{Op: "read flag", Reason: "connect-retries", Err: err}
		}
		c.ConnectRetries = val
	}
	return nil
}

// Validate checks that every required field is set and well formed.
func (c *Config) Validate() error {
	if c.MongoHost == "" {
		return &common.ConfigError{Op: "validate", Reason: "mongo host is required"}
	}
	if c.MongoPort == "" {
		return &common.ConfigError{Op: "validate", Reason: "mongo port is required"}
	}
	port, err := strconv.Atoi(c.MongoPort)
	if err != nil {
		return &common.ConfigError{Op: "validate", Reason: fmt.Sprintf("mongo port %q is not a number", c.MongoPort), Err: err}
	}
	if port < 1 || port > 65535 {
		return &common.ConfigError{Op: "validate", Reason: fmt.Sprintf("mongo port %d is out of range", port)}
	}
	if c.MongoUser != "" && c.MongoPassword == "" {
		return &common.ConfigError{Op: "validate", Reason: "mongo password is required when mongo user is set"}
	}
	if c.MongoUser == "" && c.MongoPassword != "" {
		return &common.ConfigError{Op: "validate", Reason: "mongo user is required when mongo password is set"}
	}
	if c.MongoDB == "" {
		return &common.ConfigError{Op: "validate", Reason: "database name is required"}
	}
	if !c.DryRun && c.OutputFile == "" {
		return &common.ConfigError{Op: "validate", Reason: "output file path is required"}
	}
	if c.ConnectTimeout <= 0 {
		return &common.ConfigError{Op: "validate", Reason: "connect timeout must be greater than 0"}
	}
	if c.ConnectRetries < 0 {
		return &common.ConfigError{Op: "validate", Reason: "connect retries must not be negative"}
	}
	if c.OutputEncoding != "" {
		if _, err := htmlindex.Get(c.OutputEncoding); err != nil {
			return &common.ConfigError{Op: "validate", Reason: fmt.Sprintf("unknown output encoding %q", c.OutputEncoding), Err: err}
		}
	}
	if c.LogLevel != "" {
		if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
			return &common.ConfigError{Op: "validate", Reason: fmt.Sprintf("invalid log level %q", c.LogLevel), Err: err}
		}
	}
	return nil
}

func (c *Config) GetMongoHost() string {
	return c.MongoHost
}

func (c *Config) GetMongoPort() string {
	return c.MongoPort
}

func (c *Config) GetMongoDB() string {
	return c.MongoDB
}

func (c *Config) GetMongoCollection() string {
	return c.MongoCollection
}

func (c *Config) GetPipelineFile() string {
	return c.PipelineFile
}

func (c *Config) GetConnectTimeout() time.Duration {
	return c.ConnectTimeout
}

func (c *Config) GetConnectRetries() int {
	return c.ConnectRetries
}

func (c *Config) GetOutputFile() string {
	return c.OutputFile
}

func (c *Config) GetOutputEncoding() string {
	return c.OutputEncoding
}

func (c *Config) GetMetricsFile() string {
	return c.MetricsFile
}

func (c *Config) GetLogLevel() string {
	return c.LogLevel
}

// GetMongoURI builds the connection string. Credentials are escaped.
func (c *Config) GetMongoURI() string {
	u := url.URL{
		Scheme: "mongodb",
		Host:   net.JoinHostPort(c.GetMongoHost(), c.GetMongoPort()),
	}
	// Validate rejects a user without a password.
	if c.MongoUser != "" && c.MongoPassword != "" {
		u.User = url.UserPassword(c.MongoUser, c.MongoPassword)
	}
	return u.String()
}

// RedactedMongoURI is GetMongoURI with the password masked, for logging.
func (c *Config) RedactedMongoURI() string {
	u, err := url.Parse(c.GetMongoURI())
	if err != nil {
		return ""
	}
	return u.Redacted()
}

func (c *Config) SetDryRun(dryRun bool) {
	c.DryRun = dryRun
}
