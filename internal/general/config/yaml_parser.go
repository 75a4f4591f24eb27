package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// setter assigns one "key: value" scalar into cfg.
type setter func(cfg *Config, val string, lineNo int) error

func strSetter(assign func(*Config, string)) setter {
	return func(cfg *Config, val string, _ int) error {
		assign(cfg, resolveScalar(val))
		return nil
	}
}

func intSetter(field string, assign func(*Config, int)) setter {
	return func(cfg *Config, val string, lineNo int) error {
		n, err := strconv.Atoi(resolveScalar(val))
		if err != nil {
			return fmt.Errorf("line %d: %s must be int: %v", lineNo, field, err)
		}
		assign(cfg, n)
		return nil
	}
}

// sections is the full two-level schema of config.yaml. Anything outside it
// is a config mistake and fails the parse.
var sections = map[string]map[string]setter{
	"database": {
		"host":     strSetter(func(c *Config, v string) { c.Database.Host = v }),
		"port":     intSetter("database.port", func(c *Config, v int) { c.Database.Port = v }),
		"user":     strSetter(func(c *Config, v string) { c.Database.User = v }),
		"password": strSetter(func(c *Config, v string) { c.Database.Password = v }),
		"database": strSetter(func(c *Config, v string) { c.Database.Name = v }),
	},
	"rabbitmq": {
		"host":     strSetter(func(c *Config, v string) { c.RabbitMQ.Host = v }),
		"port":     intSetter("rabbitmq.port", func(c *Config, v int) { c.RabbitMQ.Port = v }),
		"user":     strSetter(func(c *Config, v string) { c.RabbitMQ.User = v }),
		"password": strSetter(func(c *Config, v string) { c.RabbitMQ.Password = v }),
	},
	"redis": {
		"host": strSetter(func(c *Config, v string) { c.Redis.Host = v }),
		"port": intSetter("redis.port", func(c *Config, v int) { c.Redis.Port = v }),
		"db":   intSetter("redis.db", func(c *Config, v int) { c.Redis.DB = v }),
	},
	"websocket": {
		"port": intSetter("websocket.port", func(c *Config, v int) { c.WebSocket.Port = v }),
	},
	"services": {
		"booking_service": intSetter("services.booking_service", func(c *Config, v int) { c.Services.BookingServicePort = v }),
		"admin_service":   intSetter("services.admin_service", func(c *Config, v int) { c.Services.AdminServicePort = v }),
	},
	"jwt": {
		"secret_key": strSetter(func(c *Config, v string) { c.JWT.SecretKey = v }),
	},
}

// parseYAML parses the specific two-level mapping used by config.yaml. It is
// deliberately not a general YAML parser: flat sections of scalars are all
// the config needs.
func parseYAML(r io.Reader, cfg *Config) error {
	scanner := bufio.NewScanner(r)

	var (
		curName string
		curKeys map[string]setter
		lineNo  int
	)
	seen := map[string]bool{}

	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()

		if i := strings.IndexByte(raw, '#'); i >= 0 {
			raw = raw[:i]
		}
		line := strings.TrimRight(raw, " \t\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}

		// unindented lines open a section
		if line[0] != ' ' && line[0] != '\t' {
			name := strings.TrimSuffix(strings.TrimSpace(line), ":")
			keys, ok := sections[name]
			if !ok {
				return fmt.Errorf("line %d: unknown top-level key %q", lineNo, name)
			}
			if seen[name] {
				return fmt.Errorf("line %d: duplicate %q section", lineNo, name)
			}
			seen[name] = true
			curName, curKeys = name, keys
			continue
		}

		if curKeys == nil {
			return fmt.Errorf("line %d: key without a section", lineNo)
		}

		trim := strings.TrimSpace(line)
		colon := strings.IndexByte(trim, ':')
		if colon <= 0 {
			return fmt.Errorf("line %d: expected 'key: value'", lineNo)
		}
		key := strings.TrimSpace(trim[:colon])
		val := strings.TrimSpace(trim[colon+1:])

		set, ok := curKeys[key]
		if !ok {
			return fmt.Errorf("line %d: unknown key in %s: %q", lineNo, curName, key)
		}
		if err := set(cfg, val, lineNo); err != nil {
			return err
		}
	}

	return scanner.Err()
}

// resolveScalar trims whitespace and strips surrounding quotes, so values
// like jwt.secret_key are never stored with the quotes attached.
func resolveScalar(s string) string {
	s = strings.TrimSpace(s)

	n := len(s)
	if n >= 2 && ((s[0] == '"' && s[n-1] == '"') || (s[0] == '\'' && s[n-1] == '\'')) {
		if unq, err := strconv.Unquote(s); err == nil {
			return unq
		}
		// mismatched escapes; strip the quotes and keep the raw middle
		return s[1 : n-1]
	}
	return s
}
