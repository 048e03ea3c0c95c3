package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the crawler reads,
// e.g. CRAWLER_OUTPUT_FILE or CRAWLER_DELAY=500ms.
const EnvPrefix = "CRAWLER"

// Load resolves configuration from defaults, an optional crawler.yaml in the
// working directory (or the file named by CRAWLER_CONFIG_FILE) and CRAWLER_*
// environment variables, in increasing order of precedence.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	explicit := v.GetString("config_file")
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName("crawler")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		BaseURL:          v.GetString("base_url"),
		MaxPages:         v.GetInt("max_pages"),
		Workers:          v.GetInt("workers"),
		Delay:            v.GetDuration("delay"),
		Timeout:          v.GetDuration("timeout"),
		MaxRetries:       v.GetInt("max_retries"),
		RetryBackoff:     v.GetDuration("retry_backoff"),
		RetryBackoffMax:  v.GetDuration("retry_backoff_max"),
		OutputFile:       v.GetString("output_file"),
		OutputFormat:     strings.ToLower(v.GetString("output_format")),
		UserAgent:        v.GetString("user_agent"),
		Verbose:          v.GetBool("verbose"),
		RespectRobotsTxt: v.GetBool("respect_robots_txt"),
		MetricsAddr:      v.GetString("metrics_addr"),
		VisitedCacheSize: v.GetInt("visited_cache_size"),
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("config_file", "")
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("max_pages", d.MaxPages)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("delay", d.Delay)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("max_retries", d.MaxRetries)
	v.SetDefault("retry_backoff", d.RetryBackoff)
	v.SetDefault("retry_backoff_max", d.RetryBackoffMax)
	v.SetDefault("output_file", d.OutputFile)
	v.SetDefault("output_format", d.OutputFormat)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("respect_robots_txt", d.RespectRobotsTxt)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("visited_cache_size", d.VisitedCacheSize)
}
