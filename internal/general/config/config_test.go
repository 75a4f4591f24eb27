package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
database:
  host: db.internal   # primary
  port: 5433
  user: guardline
  password: "s3cret"
  database: guardline

rabbitmq:
  host: mq.internal
  port: 5672
  user: guardline
  password: 'mq-pass'

redis:
  host: cache.internal
  port: 6380
  db: 2

websocket:
  port: 8090

services:
  booking_service: 3001
  admin_service: 3005

jwt:
  secret_key: "super-secret"
`

func TestLoadFromFile(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Database.Host != "db.internal" || cfg.Database.Port != 5433 {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if cfg.Database.Password != "s3cret" {
		t.Fatalf("quotes not stripped: %q", cfg.Database.Password)
	}
	if cfg.RabbitMQ.Password != "mq-pass" {
		t.Fatalf("single quotes not stripped: %q", cfg.RabbitMQ.Password)
	}
	if cfg.Redis.DB != 2 || cfg.RedisAddr() != "cache.internal:6380" {
		t.Fatalf("redis = %+v addr %q", cfg.Redis, cfg.RedisAddr())
	}
	if cfg.Services.BookingServicePort != 3001 || cfg.Services.AdminServicePort != 3005 {
		t.Fatalf("services = %+v", cfg.Services)
	}
	if cfg.JWT.SecretKey != "super-secret" {
		t.Fatalf("jwt secret = %q", cfg.JWT.SecretKey)
	}
}

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	minimal := `
database:
  user: guardline
  password: pw
  database: guardline

rabbitmq:
  user: guardline
  password: pw
`
	cfg, err := LoadFromFile(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Database.Host != "localhost" || cfg.Database.Port != 5432 {
		t.Fatalf("database defaults = %+v", cfg.Database)
	}
	if cfg.Redis.Port != 6379 {
		t.Fatalf("redis default port = %d", cfg.Redis.Port)
	}
	if cfg.Services.BookingServicePort != 3000 || cfg.Services.AdminServicePort != 3004 {
		t.Fatalf("service port defaults = %+v", cfg.Services)
	}
	if cfg.JWT.SecretKey == "" {
		t.Fatal("missing jwt secret was not generated")
	}
}

func TestLoadFromFileRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "unknown section",
			body: "mailer:\n  host: x\n",
			want: "unknown top-level key",
		},
		{
			name: "unknown key",
			body: "database:\n  hostname: x\n",
			want: "unknown key in database",
		},
		{
			name: "duplicate section",
			body: "redis:\n  port: 6379\nredis:\n  port: 6380\n",
			want: "duplicate",
		},
		{
			name: "key without section",
			body: "  port: 6379\n",
			want: "key without a section",
		},
		{
			name: "non-integer port",
			body: "database:\n  port: many\n",
			want: "database.port must be int",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want substring %q", err, tc.want)
			}
		})
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	body := `
database:
  user: guardline
  password: pw
  database: guardline

rabbitmq:
  user: guardline
  password: pw

redis:
  db: 99
`
	_, err := LoadFromFile(writeConfig(t, body))
	if err == nil || !strings.Contains(err.Error(), "redis.db must be in 0..15") {
		t.Fatalf("err = %v, want redis.db range problem", err)
	}
}
