package config

import (
	"log"

	"gopkg.in/yaml.v3"

	"milestone-service/pkg/config"
)

type Config struct {
	DB     config.DBConfig     `yaml:"db"`
	MQ     config.MQConfig     `yaml:"mq"`
	Redis  config.RedisConfig  `yaml:"redis"`
	JWT    config.JWTConfig    `yaml:"jwt"`
	Server config.ServerConfig `yaml:"server"`
	Escrow config.EscrowConfig `yaml:"escrow"`

	Outbox struct {
		MaxRetries      int `yaml:"max_retries"`
		IntervalSeconds int `yaml:"interval_seconds"`
		BatchSize       int `yaml:"batch_size"`
	} `yaml:"outbox"`

	Notifier struct {
		QueueName       string `yaml:"queue_name"`
		RoutingKey      string `yaml:"routing_key"`
		DedupeTTLSecond int    `yaml:"dedupe_ttl_seconds"`
	} `yaml:"notifier"`
}

func Load() *Config {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var cfg Config
	cfgData, err := yaml.Marshal(cfgMap)
	if err != nil {
		log.Fatalf("failed to marshal config: %v", err)
	}
	if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideEscrowFromEnv(&cfg.Escrow)

	if cfg.Outbox.MaxRetries == 0 {
		cfg.Outbox.MaxRetries = 5
	}
	if cfg.Outbox.IntervalSeconds == 0 {
		cfg.Outbox.IntervalSeconds = 5
	}
	if cfg.Outbox.BatchSize == 0 {
		cfg.Outbox.BatchSize = 100
	}
	if cfg.Notifier.QueueName == "" {
		cfg.Notifier.QueueName = "milestone.notifications.q"
	}
	if cfg.Notifier.RoutingKey == "" {
		cfg.Notifier.RoutingKey = "milestone.*"
	}
	if cfg.Notifier.DedupeTTLSecond == 0 {
		cfg.Notifier.DedupeTTLSecond = 600
	}

	return &cfg
}
