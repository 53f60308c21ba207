package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"hyperkv/pkg/config"
)

// initConfig загружает конфиг из файла YAML. Если файл не найден, возвращается config.Default().
// Отсутствующие в файле поля берутся из config.Default().
func initConfig(path string) (config.Config, error) {
	cfg := config.Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("config file not found, using default config", "path", path)
			return applyEnv(cfg), nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	return applyEnv(cfg), nil
}

// applyEnv - переменные окружения перекрывают файл
func applyEnv(cfg config.Config) config.Config {
	if v := os.Getenv("HYPERKV_ZK_SERVERS"); v != "" {
		cfg.ZooKeeper.Servers = strings.Split(v, ",")
	}
	if v := os.Getenv("HYPERKV_NODE_ADDR"); v != "" {
		cfg.Node.Addr = v
	}
	return cfg
}

// initLogger настраивает глобальный slog.Logger (JSON или текстовый).
func initLogger(cfg *config.Config) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Logger.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{AddSource: true, Level: level}

	var handler slog.Handler
	if cfg.Logger.JSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", "level", level.String(), "json", cfg.Logger.JSON)
}
