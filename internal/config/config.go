package config

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/spf13/viper"

	"mini-spark-range/internal/common"
)

// Config agrupa la configuracion del proceso.
type Config struct {
	Executor ExecutorConfig `mapstructure:"executor"`
	Log      LogConfig      `mapstructure:"log"`
}

type ExecutorConfig struct {
	Threads int `mapstructure:"threads"`
	// MemoryLimitBytes acota lo que asigna el partitioner por llamada; <= 0 es sin limite
	MemoryLimitBytes int64 `mapstructure:"memory_limit_bytes"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func DefaultConfig() *Config {
	return &Config{
		Executor: ExecutorConfig{Threads: common.DefaultThreads},
		Log:      LogConfig{Level: "info"},
	}
}

// Load lee config.yaml del directorio actual (si existe) y las variables de
// entorno con prefijo RANGEPART, donde '.' pasa a ser '_'. Por ejemplo
// "executor.threads" se lee de RANGEPART_EXECUTOR_THREADS.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("RANGEPART")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if cfg.Executor.Threads <= 0 {
		cfg.Executor.Threads = common.DefaultThreads
	}
	if _, err := cfg.Log.SlogLevel(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SlogLevel traduce Level (debug, info, warn, error) a slog.Level.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level invalido %q: %w", c.Level, err)
	}
	return level, nil
}

// bindEnvs registra cada clave de cfg para que viper la busque en el
// entorno al hacer Unmarshal.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
