package serv

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	envPrefix = "QV"

	defaultTimeout        = 12 * time.Second
	defaultPageSize       = 30
	defaultMemoSize       = 256
	defaultTimelineStale  = 10 * time.Minute
	defaultTimelineGC     = 20 * time.Minute
	defaultSearchDebounce = 400 * time.Millisecond
	defaultUserAgent      = "quemvota-client"
)

// Config holds the client configuration
type Config struct {
	AppName   string `mapstructure:"app_name"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format" validate:"omitempty,oneof=console json"`

	API        APIConfig        `mapstructure:"api"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Pagination PaginationConfig `mapstructure:"pagination"`
	Search     SearchConfig     `mapstructure:"search"`

	vi *viper.Viper
	fs afero.Fs
}

// APIConfig configures the upstream HTTP API
type APIConfig struct {
	// BaseURL is required. Trailing slashes are removed.
	BaseURL   string        `mapstructure:"base_url" validate:"required,url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`

	// RateLimit paces outbound requests (requests per second). Zero disables it.
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`
	Burst     int     `mapstructure:"burst"`
}

// CacheConfig sets the lifecycle of cached queries
type CacheConfig struct {
	StaleTime         time.Duration `mapstructure:"stale_time"`
	GCTime            time.Duration `mapstructure:"gc_time"`
	TimelineStaleTime time.Duration `mapstructure:"timeline_stale_time"`
	TimelineGCTime    time.Duration `mapstructure:"timeline_gc_time"`
	MemoSize          int           `mapstructure:"memo_size"`
}

// PaginationConfig sets the page size of paginated lists
type PaginationConfig struct {
	PageSize int `mapstructure:"page_size"`
}

// SearchConfig configures free-text search
type SearchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// ReadInConfig reads in the config file at configFile. A config may name a
// parent with `inherits: <name>`; its values are merged under the child's.
func ReadInConfig(configFile string) (*Config, error) {
	return ReadInConfigFS(configFile, afero.NewOsFs())
}

// ReadInConfigFS is the same as ReadInConfig but it also takes a filesytem as an argument
func ReadInConfigFS(configFile string, fs afero.Fs) (*Config, error) {
	cp := filepath.Dir(configFile)
	vi := newViper(cp, filepath.Base(configFile))
	vi.SetFs(fs)

	if err := vi.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading config %s", configFile)
	}

	if pcf := vi.GetString("inherits"); pcf != "" {
		cf := vi.ConfigFileUsed()
		vi = newViper(cp, pcf)
		vi.SetFs(fs)

		if err := vi.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading inherited config %s", pcf)
		}

		if v := vi.GetString("inherits"); v != "" {
			return nil, fmt.Errorf("inherited config (%s) cannot itself inherit (%s)", pcf, v)
		}

		vi.SetConfigFile(cf)

		if err := vi.MergeInConfig(); err != nil {
			return nil, errors.Wrapf(err, "merging config %s", cf)
		}
	}

	c, err := newConfig(vi)
	if err != nil {
		return nil, err
	}
	c.fs = fs
	return c, nil
}

// NewConfig returns a config holding only defaults and environment
// overrides. Used when no config file is given.
func NewConfig() (*Config, error) {
	return newConfig(newViper("", ""))
}

func newConfig(vi *viper.Viper) (*Config, error) {
	c := &Config{vi: vi}

	if err := vi.Unmarshal(c, viper.DecodeHook(decodeHook())); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	return c, nil
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

func newViper(configPath, configFile string) *viper.Viper {
	vi := viper.New()

	vi.SetEnvPrefix(envPrefix)
	vi.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vi.AutomaticEnv()

	setDefaults(vi)

	if configFile != "" {
		if filepath.Ext(configFile) != "" {
			vi.SetConfigFile(filepath.Join(configPath, configFile))
		} else {
			vi.SetConfigName(configFile)
		}
	}

	if configPath != "" {
		vi.AddConfigPath(configPath)
	}
	vi.AddConfigPath("./config")

	return vi
}

// setDefaults registers every key so environment overrides apply even when
// the config file omits them.
func setDefaults(vi *viper.Viper) {
	vi.SetDefault("app_name", "quemvota")
	vi.SetDefault("log_level", "info")
	vi.SetDefault("log_format", "console")

	vi.SetDefault("api.base_url", "")
	vi.SetDefault("api.timeout", defaultTimeout)
	vi.SetDefault("api.user_agent", defaultUserAgent)
	vi.SetDefault("api.rate_limit", 0)
	vi.SetDefault("api.burst", 1)

	vi.SetDefault("cache.stale_time", 5*time.Minute)
	vi.SetDefault("cache.gc_time", 10*time.Minute)
	vi.SetDefault("cache.timeline_stale_time", defaultTimelineStale)
	vi.SetDefault("cache.timeline_gc_time", defaultTimelineGC)
	vi.SetDefault("cache.memo_size", defaultMemoSize)

	vi.SetDefault("pagination.page_size", defaultPageSize)
	vi.SetDefault("search.debounce", defaultSearchDebounce)
}

var validate = validator.New()

// Validate checks required values and normalizes the rest in place.
func (c *Config) Validate() error {
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")

	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("api.base_url must be an http(s) url: %q", c.API.BaseURL)
	}

	if c.API.Timeout <= 0 {
		c.API.Timeout = defaultTimeout
	}
	if c.API.Burst < 1 {
		c.API.Burst = 1
	}

	if c.Cache.StaleTime <= 0 {
		c.Cache.StaleTime = 5 * time.Minute
	}
	if c.Cache.GCTime <= 0 {
		c.Cache.GCTime = 10 * time.Minute
	}
	if c.Cache.TimelineStaleTime <= 0 {
		c.Cache.TimelineStaleTime = defaultTimelineStale
	}
	if c.Cache.TimelineGCTime <= 0 {
		c.Cache.TimelineGCTime = defaultTimelineGC
	}
	if c.Cache.MemoSize <= 0 {
		c.Cache.MemoSize = defaultMemoSize
	}

	c.Pagination.PageSize = clampLimit(c.Pagination.PageSize, defaultPageSize)

	if c.Search.Debounce <= 0 {
		c.Search.Debounce = defaultSearchDebounce
	}
	return nil
}

// ConfigFile returns the path of the config file in use, if any.
func (c *Config) ConfigFile() string {
	if c.vi == nil {
		return ""
	}
	return c.vi.ConfigFileUsed()
}

// Watch reloads the config file whenever it changes on disk and passes the
// new, validated config to fn. Invalid edits are logged and ignored.
func (c *Config) Watch(log *zap.Logger, fn func(*Config)) {
	if c.vi == nil || c.vi.ConfigFileUsed() == "" {
		return
	}

	c.vi.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		nc, err := c.reload()
		if err == nil {
			err = nc.Validate()
		}
		if err != nil {
			log.Warn("ignoring config change", zap.String("file", e.Name), zap.Error(err))
			return
		}
		log.Info("config reloaded", zap.String("file", e.Name))
		fn(nc)
	})
	c.vi.WatchConfig()
}

// reload reads the config file again, repeating the merge with its
// inherited parent.
func (c *Config) reload() (*Config, error) {
	if c.fs == nil || c.ConfigFile() == "" {
		return newConfig(c.vi)
	}
	nc, err := ReadInConfigFS(c.ConfigFile(), c.fs)
	if err != nil {
		return nil, err
	}
	nc.vi = c.vi
	return nc, nil
}
