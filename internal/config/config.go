package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	// AppName is the application name used for config files and directories
	AppName = "rawcopy"

	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "RAWCOPY"
)

// Config holds the application configuration
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Device     DeviceConfig     `mapstructure:"device"`
	Output     OutputConfig     `mapstructure:"output"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Debug  bool   `mapstructure:"debug"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// DeviceConfig configures raw device access
type DeviceConfig struct {
	// SectorSize overrides the detected physical sector size when non-zero
	SectorSize int `mapstructure:"sector_size"`
	// ImageOffset is the byte offset of the NTFS boot sector inside an image
	ImageOffset int64 `mapstructure:"image_offset"`
	// Partition selects a 1-based partition of a whole-disk image
	Partition int `mapstructure:"partition"`
	// ReadChunkSize caps the size of one device read
	ReadChunkSize int `mapstructure:"read_chunk_size"`
	// ShortReadRetries is the number of retries after a short read
	ShortReadRetries int `mapstructure:"short_read_retries"`
}

// OutputConfig configures the extraction sink
type OutputConfig struct {
	Compression   string `mapstructure:"compression"`
	Hash          string `mapstructure:"hash"`
	Overwrite     bool   `mapstructure:"overwrite"`
	PreserveTimes bool   `mapstructure:"preserve_times"`
}

// ExtractionConfig configures engine behaviour
type ExtractionConfig struct {
	// AllowEncrypted emits the raw ciphertext of EFS encrypted streams
	AllowEncrypted bool `mapstructure:"allow_encrypted"`
}

// New returns a viper instance with defaults, config paths and environment binding
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName(AppName + "-config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/." + AppName)
	v.AddConfigPath("/etc/" + AppName)

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.debug", false)
	v.SetDefault("log.format", "human")
	v.SetDefault("log.file", "")

	v.SetDefault("device.sector_size", 0)
	v.SetDefault("device.image_offset", 0)
	v.SetDefault("device.partition", 0)
	v.SetDefault("device.read_chunk_size", 1<<20)
	v.SetDefault("device.short_read_retries", 1)

	v.SetDefault("output.compression", "none")
	v.SetDefault("output.hash", "")
	v.SetDefault("output.overwrite", false)
	v.SetDefault("output.preserve_times", true)

	v.SetDefault("extraction.allow_encrypted", false)
}

// Load reads the configuration file (explicit path, or the search paths when
// empty) and unmarshals the merged configuration
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration built from defaults only
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.Device.SectorSize != 0 && (c.Device.SectorSize < 512 || c.Device.SectorSize&(c.Device.SectorSize-1) != 0) {
		return fmt.Errorf("device.sector_size must be a power of two >= 512, got %d", c.Device.SectorSize)
	}
	if c.Device.ImageOffset < 0 {
		return fmt.Errorf("device.image_offset must not be negative")
	}
	if c.Device.Partition < 0 {
		return fmt.Errorf("device.partition must not be negative")
	}
	if c.Device.ImageOffset != 0 && c.Device.Partition != 0 {
		return fmt.Errorf("device.image_offset and device.partition are mutually exclusive")
	}
	if c.Device.ReadChunkSize < 4096 {
		return fmt.Errorf("device.read_chunk_size must be at least 4096, got %d", c.Device.ReadChunkSize)
	}
	if c.Device.ShortReadRetries < 0 {
		return fmt.Errorf("device.short_read_retries must not be negative")
	}
	switch strings.ToLower(c.Output.Compression) {
	case "", "none", "gzip", "xz", "bzip2":
	default:
		return fmt.Errorf("unsupported output.compression %q", c.Output.Compression)
	}
	switch strings.ToLower(c.Output.Hash) {
	case "", "md5", "sha1", "sha256", "sha512", "blake2b":
	default:
		return fmt.Errorf("unsupported output.hash %q", c.Output.Hash)
	}
	switch c.Log.Format {
	case "", "human", "json":
	default:
		return fmt.Errorf("unsupported log.format %q", c.Log.Format)
	}
	return nil
}
