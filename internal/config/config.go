package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths    PathsConfig  `mapstructure:"paths"`
	Engine   EngineConfig `mapstructure:"engine"`
	Server   ServerConfig `mapstructure:"server"`
	LogLevel string       `mapstructure:"log_level"`
}

type PathsConfig struct {
	ModelPath  string   `mapstructure:"model_path"`
	BundleDirs []string `mapstructure:"bundle_dirs"`
	TempDir    string   `mapstructure:"temp_dir"`
}

type EngineConfig struct {
	Backend          string `mapstructure:"backend"`
	LibraryPath      string `mapstructure:"library_path"`
	LibraryVersion   string `mapstructure:"library_version"`
	StatusConvention string `mapstructure:"status_convention"`
	PoolSize         int    `mapstructure:"pool_size"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	Workers         int    `mapstructure:"workers"`
	MaxTextBytes    int    `mapstructure:"max_text_bytes"`
	MaxIDs          int    `mapstructure:"max_ids"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			ModelPath:  "models/tokenizer.model",
			BundleDirs: []string{"models", "."},
			TempDir:    "",
		},
		Engine: EngineConfig{
			Backend:          BackendAuto,
			LibraryPath:      "",
			LibraryVersion:   "",
			StatusConvention: "zero",
			PoolSize:         1,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			Workers:         4,
			MaxTextBytes:    64 << 10,
			MaxIDs:          16384,
			RequestTimeout:  10,
			ShutdownTimeout: 30,
		},
		LogLevel: "info",
	}
}

// flagKeys maps command line flags onto config keys.
var flagKeys = []struct {
	flag string
	key  string
}{
	{"model", "paths.model_path"},
	{"bundle-dir", "paths.bundle_dirs"},
	{"temp-dir", "paths.temp_dir"},
	{"backend", "engine.backend"},
	{"library", "engine.library_path"},
	{"library-version", "engine.library_version"},
	{"status-convention", "engine.status_convention"},
	{"pool-size", "engine.pool_size"},
	{"listen-addr", "server.listen_addr"},
	{"workers", "server.workers"},
	{"max-text-bytes", "server.max_text_bytes"},
	{"max-ids", "server.max_ids"},
	{"request-timeout", "server.request_timeout"},
	{"shutdown-timeout", "server.shutdown_timeout"},
	{"log-level", "log_level"},
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("model", defaults.Paths.ModelPath, "Path to SentencePiece .model file")
	fs.StringSlice("bundle-dir", defaults.Paths.BundleDirs, "Directories searched for bundled models")
	fs.String("temp-dir", defaults.Paths.TempDir, "Directory for temporary model files (default: system temp dir)")
	fs.String("backend", defaults.Engine.Backend, "Engine backend: auto|native|go")
	fs.String("library", defaults.Engine.LibraryPath, "Path to the native SentencePiece C API shared library")
	fs.String("library-version", defaults.Engine.LibraryVersion, "Expected native library version")
	fs.String("status-convention", defaults.Engine.StatusConvention, "Engine status meaning success: zero|nonzero")
	fs.Int("pool-size", defaults.Engine.PoolSize, "Number of independent engine handles")
	fs.String("listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("workers", defaults.Server.Workers, "Max concurrent HTTP tokenization requests")
	fs.Int("max-text-bytes", defaults.Server.MaxTextBytes, "Max text size accepted by POST /encode")
	fs.Int("max-ids", defaults.Server.MaxIDs, "Max ids accepted by POST /decode")
	fs.Int("request-timeout", defaults.Server.RequestTimeout, "Seconds a request waits for a free engine (0 = no limit)")
	fs.Int("shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown drain period in seconds")
	fs.String("log-level", defaults.LogLevel, "Log level: debug|info|warn|error")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("SPM")
	replacer := strings.NewReplacer("-", "_", ".", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("engine.library_path", "SPM_LIBRARY_PATH", "SPM_ENGINE_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind library env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("spm")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, fk := range flagKeys {
		f := fs.Lookup(fk.flag)
		if f == nil {
			continue
		}

		if err := v.BindPFlag(fk.key, f); err != nil {
			return fmt.Errorf("bind flag --%s: %w", fk.flag, err)
		}
	}

	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.model_path", c.Paths.ModelPath)
	v.SetDefault("paths.bundle_dirs", c.Paths.BundleDirs)
	v.SetDefault("paths.temp_dir", c.Paths.TempDir)
	v.SetDefault("engine.backend", c.Engine.Backend)
	v.SetDefault("engine.library_path", c.Engine.LibraryPath)
	v.SetDefault("engine.library_version", c.Engine.LibraryVersion)
	v.SetDefault("engine.status_convention", c.Engine.StatusConvention)
	v.SetDefault("engine.pool_size", c.Engine.PoolSize)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.max_ids", c.Server.MaxIDs)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("log_level", c.LogLevel)
}

// Validate reports settings the engine layer cannot work with.
func (c Config) Validate() error {
	if _, err := NormalizeBackend(c.Engine.Backend); err != nil {
		return err
	}

	if _, err := NormalizeStatusConvention(c.Engine.StatusConvention); err != nil {
		return err
	}

	if c.Engine.PoolSize < 1 {
		return fmt.Errorf("engine pool size must be >= 1, got %d", c.Engine.PoolSize)
	}

	if c.Server.RequestTimeout < 0 {
		return fmt.Errorf("server request timeout must be >= 0, got %d", c.Server.RequestTimeout)
	}

	return nil
}
