// Package config loads gateway configuration from environment variables
// (and, optionally, a YAML file) via viper: a typed Config struct, a
// Default() constructor, and a Load() that binds environment variables
// before unmarshalling.
package config

import (
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable named in the wire contract: packet ceiling,
// watchdog intervals, the STUN/TURN server list, and the destination
// credentials the cloud sinks need.
type Config struct {
	Port                   int      `mapstructure:"port" yaml:"port"`
	AuthKey                string   `mapstructure:"auth_key" yaml:"auth_key"`
	MaxPacketSize          int      `mapstructure:"max_packet_size" yaml:"max_packet_size"`
	ChunkWaitTimeout       int      `mapstructure:"chunk_wait_timeout" yaml:"chunk_wait_timeout"`
	ChunkWaitCheckInterval int      `mapstructure:"chunk_wait_check_interval" yaml:"chunk_wait_check_interval"`
	ICEServers             []string `mapstructure:"ice_servers" yaml:"ice_servers"`
	Debug                  bool     `mapstructure:"debug" yaml:"debug"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	FFmpegBinary    string `mapstructure:"ffmpeg_binary" yaml:"ffmpeg_binary"`
	GStreamerBinary string `mapstructure:"gstreamer_binary" yaml:"gstreamer_binary"`

	S3Bucket           string `mapstructure:"s3_bucket" yaml:"s3_bucket"`
	S3Region           string `mapstructure:"s3_region" yaml:"s3_region"`
	S3AccessKeyID      string `mapstructure:"s3_access_key_id" yaml:"s3_access_key_id"`
	S3SecretAccessKey  string `mapstructure:"s3_secret_access_key" yaml:"s3_secret_access_key"`
	AzureBlobURL       string `mapstructure:"azure_blob_url" yaml:"azure_blob_url"`
	AzureContainer     string `mapstructure:"azure_container" yaml:"azure_container"`
	GCSBucket          string `mapstructure:"gcs_bucket" yaml:"gcs_bucket"`
	GCSCredentialsFile string `mapstructure:"gcs_credentials_file" yaml:"gcs_credentials_file"`
	B2Bucket           string `mapstructure:"b2_bucket" yaml:"b2_bucket"`
	B2AccountID        string `mapstructure:"b2_account_id" yaml:"b2_account_id"`
	B2AppKey           string `mapstructure:"b2_application_key" yaml:"b2_application_key"`
}

// DefaultMaxPacketSize is the hard ceiling on a single framed packet: the
// underlying data channel cannot fragment a larger message.
const DefaultMaxPacketSize = 300 * 1024

func Default() *Config {
	return &Config{
		Port:                   8080,
		MaxPacketSize:          DefaultMaxPacketSize,
		ChunkWaitTimeout:       10,
		ChunkWaitCheckInterval: 1,
		ICEServers:             []string{"stun:stun.l.google.com:19302"},
		LogLevel:               "info",
		LogFormat:              "text",
		FFmpegBinary:           "ffmpeg",
		GStreamerBinary:        "gst-launch-1.0",
	}
}

// Load reads configuration from environment variables (prefix AVGATEWAY_)
// and, if present, a YAML file. Unset fields keep their Default() value.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("avgateway")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/avgateway")
	}

	v.SetEnvPrefix("AVGATEWAY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindLegacyEnvAliases(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(cfg, decodeHook); err != nil {
		return nil, err
	}

	// Validate clamps unsafe values in place and logs a warning for each;
	// none of its findings are fatal, so startup proceeds regardless.
	cfg.Validate()
	return cfg, nil
}

// bindLegacyEnvAliases binds the bare variable names (PORT, AUTH_KEY, ...)
// alongside the AVGATEWAY_-prefixed form, so either convention works
// without requiring callers to rename their environment.
func bindLegacyEnvAliases(v *viper.Viper) {
	aliases := map[string]string{
		"port":                      "PORT",
		"auth_key":                  "AUTH_KEY",
		"max_packet_size":           "MAX_PACKET_SIZE",
		"chunk_wait_timeout":        "CHUNK_WAIT_TIMEOUT",
		"chunk_wait_check_interval": "CHUNK_WAIT_CHECK_INTERVAL",
		"ice_servers":               "ICE_SERVERS",
		"debug":                     "DEBUG",
	}
	for key, env := range aliases {
		_ = v.BindEnv(key, env)
	}
}

// DumpYAML renders the effective configuration as YAML with every secret
// field redacted, for the `config` subcommand and support bundles.
func (c *Config) DumpYAML() ([]byte, error) {
	redacted := *c
	for _, field := range []*string{
		&redacted.AuthKey,
		&redacted.S3SecretAccessKey,
		&redacted.B2AppKey,
	} {
		if *field != "" {
			*field = "<redacted>"
		}
	}
	return yaml.Marshal(&redacted)
}

// ChunkWaitTimeoutDuration returns the configured watchdog threshold as a
// time.Duration.
func (c *Config) ChunkWaitTimeoutDuration() time.Duration {
	return time.Duration(c.ChunkWaitTimeout) * time.Second
}

// ChunkWaitCheckIntervalDuration returns the configured watchdog tick
// interval as a time.Duration.
func (c *Config) ChunkWaitCheckIntervalDuration() time.Duration {
	return time.Duration(c.ChunkWaitCheckInterval) * time.Second
}
