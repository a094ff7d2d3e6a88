package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"server"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Redis struct {
		Addr     string        `mapstructure:"addr"`
		Password string        `mapstructure:"password"`
		DB       int           `mapstructure:"db"`
		TTL      time.Duration `mapstructure:"ttl"`
	} `mapstructure:"redis"`
	Postgres struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"postgres"`
	SQLite struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"sqlite"`
	Quiz struct {
		TTL  time.Duration `mapstructure:"ttl"`
		File string        `mapstructure:"file"`
	} `mapstructure:"quiz"`
	Session struct {
		DefaultTimeLimit int           `mapstructure:"default_time_limit"`
		TickInterval     time.Duration `mapstructure:"tick_interval"`
		SubmitTimeout    time.Duration `mapstructure:"submit_timeout"`
	} `mapstructure:"session"`
	Grading struct {
		HighScoreThreshold float64 `mapstructure:"high_score_threshold"`
		LevelStep          int     `mapstructure:"level_step"`
		LeaderboardSize    int     `mapstructure:"leaderboard_size"`
	} `mapstructure:"grading"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"port":       "server.port",
	"log-level":  "log.level",
	"log-format": "log.format",
	"quiz-file":  "quiz.file",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 10*time.Minute)
	v.SetDefault("postgres.url", "")
	v.SetDefault("sqlite.path", "")
	v.SetDefault("quiz.ttl", 10*time.Minute)
	v.SetDefault("quiz.file", "")
	v.SetDefault("session.default_time_limit", 30)
	v.SetDefault("session.tick_interval", time.Second)
	v.SetDefault("session.submit_timeout", 10*time.Second)
	v.SetDefault("grading.high_score_threshold", 80.0)
	v.SetDefault("grading.level_step", 3)
	v.SetDefault("grading.leaderboard_size", 10)
}

// Load reads the YAML config at path, then applies QUIZ_* environment
// variables and any flags that were set. A missing file is not an error.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("QUIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := Config{}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else {
			cfg.File = v.ConfigFileUsed()
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
