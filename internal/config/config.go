package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	DefaultRegion              = "us-west-1"
	DefaultListenAddr          = "0.0.0.0:9000"
	DefaultLogFormat           = "text"
	DefaultDataDir             = "./data"
	DefaultMetadataDir         = "./meta"
	DefaultMaxObjectSize       = int64(5 * 1024 * 1024 * 1024) // 5 GiB
	DefaultMaxXMLBodySize      = int64(256 * 1024)             // 256 KiB
	DefaultMaxPolicyBodySize   = int64(20 * 1024)              // 20 KiB, matches AWS bucket policy limit
	DefaultMultipartCleanup    = 3600
	DefaultLifecycleScan       = 3600
	DefaultMultipartStaleAfter = 7 * 24 * 3600 // 7 days
)

// Config holds every tunable the server reads from the environment at
// startup via os.Getenv, validated with Validate before use.
type Config struct {
	BindAddress         string
	DataDir             string
	MetadataDir         string
	Region              string
	Hostname            string
	LogFormat           string
	MaxObjectSize       int64
	MaxXMLBodySize      int64
	MaxPolicyBodySize   int64
	MultipartCleanup    int // seconds; 0 disables
	MultipartStaleAfter int // seconds; age at which an incomplete upload is swept
	LifecycleScan       int // seconds; 0 disables
	CORSOrigins         []string
	AnonymousGlobal     bool
}

func Default() Config {
	return Config{
		BindAddress:       DefaultListenAddr,
		DataDir:           DefaultDataDir,
		MetadataDir:       DefaultMetadataDir,
		Region:            DefaultRegion,
		LogFormat:         DefaultLogFormat,
		MaxObjectSize:     DefaultMaxObjectSize,
		MaxXMLBodySize:    DefaultMaxXMLBodySize,
		MaxPolicyBodySize: DefaultMaxPolicyBodySize,
		MultipartCleanup:    DefaultMultipartCleanup,
		MultipartStaleAfter: DefaultMultipartStaleAfter,
		LifecycleScan:       DefaultLifecycleScan,
	}
}

// Load assembles a Config from the process environment, falling back to
// Default() for anything unset, then validates the result.
func Load() (Config, error) {
	cfg := Default()

	if v := os.Getenv("BIND"); v != "" {
		cfg.BindAddress = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("METADATA_DIR"); v != "" {
		cfg.MetadataDir = v
	}
	if v := os.Getenv("REGION"); v != "" {
		cfg.Region = v
	}
	if v := os.Getenv("HOSTNAME"); v != "" {
		cfg.Hostname = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	var errs []error
	if v := os.Getenv("MAX_OBJECT_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: MAX_OBJECT_SIZE: %w", err))
		} else {
			cfg.MaxObjectSize = n
		}
	}
	if v := os.Getenv("MAX_XML_BODY_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: MAX_XML_BODY_SIZE: %w", err))
		} else {
			cfg.MaxXMLBodySize = n
		}
	}
	if v := os.Getenv("MAX_POLICY_BODY_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: MAX_POLICY_BODY_SIZE: %w", err))
		} else {
			cfg.MaxPolicyBodySize = n
		}
	}
	if v := os.Getenv("MULTIPART_CLEANUP_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: MULTIPART_CLEANUP_INTERVAL: %w", err))
		} else {
			cfg.MultipartCleanup = n
		}
	}
	if v := os.Getenv("MULTIPART_STALE_AFTER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: MULTIPART_STALE_AFTER: %w", err))
		} else {
			cfg.MultipartStaleAfter = n
		}
	}
	if v := os.Getenv("LIFECYCLE_SCAN_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: LIFECYCLE_SCAN_INTERVAL: %w", err))
		} else {
			cfg.LifecycleScan = n
		}
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		for _, origin := range strings.Split(v, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
			}
		}
	}
	if v := os.Getenv("ANONYMOUS_GLOBAL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: ANONYMOUS_GLOBAL: %w", err))
		} else {
			cfg.AnonymousGlobal = b
		}
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.BindAddress == "" {
		errs = append(errs, errors.New("config validation: BIND is required"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("config validation: DATA_DIR is required"))
	}
	if c.MetadataDir == "" {
		errs = append(errs, errors.New("config validation: METADATA_DIR is required"))
	}
	if c.Region == "" {
		errs = append(errs, errors.New("config validation: REGION is required"))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("config validation: LOG_FORMAT must be one of [text json], got %q", c.LogFormat))
	}
	if c.MaxObjectSize <= 0 {
		errs = append(errs, errors.New("config validation: MAX_OBJECT_SIZE must be > 0"))
	}
	if c.MaxXMLBodySize <= 0 {
		errs = append(errs, errors.New("config validation: MAX_XML_BODY_SIZE must be > 0"))
	}
	if c.MaxPolicyBodySize <= 0 {
		errs = append(errs, errors.New("config validation: MAX_POLICY_BODY_SIZE must be > 0"))
	}
	if c.MultipartCleanup < 0 {
		errs = append(errs, errors.New("config validation: MULTIPART_CLEANUP_INTERVAL must be >= 0"))
	}
	if c.MultipartStaleAfter < 0 {
		errs = append(errs, errors.New("config validation: MULTIPART_STALE_AFTER must be >= 0"))
	}
	if c.LifecycleScan < 0 {
		errs = append(errs, errors.New("config validation: LIFECYCLE_SCAN_INTERVAL must be >= 0"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
