package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Config - корневая структура конфигурации демона topod

type Config struct {
	Logger    LoggerConfig    `yaml:"logger"`
	Server    ServerConfig    `yaml:"http-server"`
	Node      NodeConfig      `yaml:"node"`
	ZooKeeper ZooKeeperConfig `yaml:"zookeeper"`
	Store     StoreConfig     `yaml:"store"`
	History   HistoryConfig   `yaml:"history"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type ServerConfig struct {
	Port              int           `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// NodeConfig identifies the local instance. Addr is compared with chain
// members to tell local routes from remote ones.
type NodeConfig struct {
	Addr string `yaml:"addr"`
}

type ZooKeeperConfig struct {
	Servers        []string      `yaml:"servers"`
	ConfigPath     string        `yaml:"config_path"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type HistoryConfig struct {
	// snapshots kept in memory for /topology/{version}
	Retain int `yaml:"retain"`
	// versions kept on disk
	Persist uint64 `yaml:"persist"`
}

// Default returns a baseline development config.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level: "DEBUG",
			JSON:  false,
		},
		Server: ServerConfig{
			Port:              8080,
			ReadHeaderTimeout: time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		Node: NodeConfig{
			Addr: "127.0.0.1:2012",
		},
		ZooKeeper: ZooKeeperConfig{
			Servers:        []string{"127.0.0.1:2181"},
			ConfigPath:     "/hyperkv/config",
			SessionTimeout: 5 * time.Second,
			ConnectTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Path: "./data/topology",
		},
		History: HistoryConfig{
			Retain:  8,
			Persist: 64,
		},
	}
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	switch strings.ToUpper(c.Logger.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Logger.Level)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: http port %d out of range", c.Server.Port)
	}
	if _, err := netip.ParseAddrPort(c.Node.Addr); err != nil {
		return fmt.Errorf("config: node addr: %w", err)
	}
	if len(c.ZooKeeper.Servers) == 0 {
		return errors.New("config: no zookeeper servers")
	}
	if !strings.HasPrefix(c.ZooKeeper.ConfigPath, "/") {
		return fmt.Errorf("config: zookeeper path %q is not absolute", c.ZooKeeper.ConfigPath)
	}
	if c.Store.Path == "" {
		return errors.New("config: store path is empty")
	}
	if c.History.Retain < 1 {
		return fmt.Errorf("config: history retain %d must be positive", c.History.Retain)
	}
	return nil
}
