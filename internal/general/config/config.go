package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string // YAML key: "database"
	}
	RabbitMQ struct {
		Host     string
		Port     int
		User     string
		Password string
	}
	Redis struct {
		Host string
		Port int
		DB   int
	}
	WebSocket struct {
		Port int
	}
	Services struct {
		BookingServicePort int
		AdminServicePort   int
	}
	JWT struct {
		SecretKey string `yaml:"secret_key"`
	}
}

// LoadFromFile reads the YAML config, applies defaults, and validates it.
func LoadFromFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := parseYAML(file, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// RedisAddr returns the host:port of the Redis instance backing thread slots.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func defaultStr(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func defaultInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func (c *Config) applyDefaults() {
	defaultStr(&c.Database.Host, "localhost")
	defaultInt(&c.Database.Port, 5432)

	defaultStr(&c.RabbitMQ.Host, "localhost")
	defaultInt(&c.RabbitMQ.Port, 5672)

	defaultStr(&c.Redis.Host, "localhost")
	defaultInt(&c.Redis.Port, 6379)

	defaultInt(&c.WebSocket.Port, 8080)
	defaultInt(&c.Services.BookingServicePort, 3000)
	defaultInt(&c.Services.AdminServicePort, 3004)

	// deployments without an explicit key get a random one: tokens then die
	// with the process, which is the safe failure mode
	if c.JWT.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		c.JWT.SecretKey = base64.StdEncoding.EncodeToString(key)
	}
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

// validate collects every problem rather than stopping at the first, so one
// failed boot names all the config mistakes.
func (c *Config) validate() error {
	var problems []string

	if !validPort(c.Database.Port) {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.name is required")
	}

	if !validPort(c.RabbitMQ.Port) {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}
	if c.RabbitMQ.Password == "" {
		problems = append(problems, "rabbitmq.password is required")
	}

	if !validPort(c.Redis.Port) {
		problems = append(problems, "redis.port must be in 1..65535")
	}
	if c.Redis.DB < 0 || c.Redis.DB > 15 {
		problems = append(problems, "redis.db must be in 0..15")
	}

	if !validPort(c.WebSocket.Port) {
		problems = append(problems, "websocket.port must be in 1..65535")
	}
	if !validPort(c.Services.BookingServicePort) {
		problems = append(problems, "services.booking_service must be in 1..65535")
	}
	if !validPort(c.Services.AdminServicePort) {
		problems = append(problems, "services.admin_service must be in 1..65535")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
