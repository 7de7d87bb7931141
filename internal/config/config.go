// config реализует конфигурацию user-intake: загрузка из YAML/ENV с предсказуемым приоритетом.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

// Config — корневая конфигурация сервиса.
// Приоритет источников:
//  1. явный путь, переданный в MustLoad/Load;
//  2. переменная окружения CONFIG_PATH;
//  3. файл ./local.yaml из рабочей директории;
//  4. переменные окружения.
type Config struct {
	Env         string            `yaml:"env" env:"ENV" env-default:"local"`
	HTTP        HTTPConfig        `yaml:"http"`
	DB          DBConfig          `yaml:"db"`
	Auth        AuthConfig        `yaml:"auth"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
	Timeouts    TimeoutConfig     `yaml:"timeouts"`
}

// HTTPConfig — публичный HTTP-сервер.
type HTTPConfig struct {
	Host     string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	BasePath string `yaml:"base_path" env:"HTTP_BASE_PATH" env-default:"/api"`
	// Верхняя граница тела запроса в байтах.
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"HTTP_MAX_BODY_BYTES" env-default:"1048576"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// DBConfig — документное хранилище записей пользователей.
// Запись адресуется парой (Database, Collection); для postgres Collection — имя таблицы.
type DBConfig struct {
	Driver     string `yaml:"driver" env:"DB_DRIVER" env-default:"mongo"`
	Endpoint   string `yaml:"endpoint" env:"DB_ENDPOINT"`
	Username   string `yaml:"username" env:"DB_USERNAME"`
	AccessKey  string `yaml:"access_key" env:"DB_ACCESS_KEY"`
	Database   string `yaml:"database" env:"DB_DATABASE_NAME" env-default:"intake"`
	Collection string `yaml:"collection" env:"DB_COLLECTION_NAME" env-default:"users"`
}

// AuthConfig — проверка bearer-токенов.
// Нужен хотя бы один источник ключей: общий секрет (HS256) или JWKS провайдера.
type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
	JWKSURL     string        `yaml:"jwks_url" env:"AUTH_JWKS_URL"`
	Issuer      string        `yaml:"issuer" env:"AUTH_ISSUER"`
	Audience    []string      `yaml:"audience" env:"AUTH_AUDIENCE" env-separator:","`
	Leeway      time.Duration `yaml:"leeway" env:"AUTH_LEEWAY" env-default:"5s"`
	JWKSRefresh time.Duration `yaml:"jwks_refresh" env:"AUTH_JWKS_REFRESH" env-default:"5m"`
}

// IdempotencyConfig — защита от повторной записи одинакового запроса (Redis).
// По умолчанию выключена: повторный запрос создаёт новую запись.
type IdempotencyConfig struct {
	Enabled  bool          `yaml:"enabled" env:"IDEMPOTENCY_ENABLED" env-default:"false"`
	RedisURL string        `yaml:"redis_url" env:"IDEMPOTENCY_REDIS_URL"`
	TTL      time.Duration `yaml:"ttl" env:"IDEMPOTENCY_TTL" env-default:"24h"`
	Prefix   string        `yaml:"prefix" env:"IDEMPOTENCY_PREFIX" env-default:"intake:idem:"`
}

// TimeoutConfig — дедлайны запроса и внешних вызовов.
type TimeoutConfig struct {
	Service  time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"15s"`
	Store    time.Duration `yaml:"store" env:"STORE_TIMEOUT" env-default:"5s"`
	Auth     time.Duration `yaml:"auth" env:"AUTH_TIMEOUT" env-default:"3s"`
	Shutdown time.Duration `yaml:"shutdown" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// После чтения файла накладываем ENV-переменные поверх значений из YAML.
func Load(path string) (*Config, error) {
	var cfg Config

	// чтение файла + overlay ENV.
	tryRead := func(p string) error {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return fmt.Errorf("failed to overlay env: %w", err)
		}

		return nil
	}

	switch {
	case path != "":
		if err := tryRead(path); err != nil {
			return nil, err
		}
	case os.Getenv("CONFIG_PATH") != "":
		if err := tryRead(os.Getenv("CONFIG_PATH")); err != nil {
			return nil, err
		}
	default:
		if _, err := os.Stat("local.yaml"); err == nil {
			if err := tryRead("local.yaml"); err != nil {
				return nil, err
			}
		} else if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
		}
	}

	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) normalize() {
	c.DB.Driver = strings.ToLower(strings.TrimSpace(c.DB.Driver))
	c.HTTP.BasePath = strings.TrimRight(strings.TrimSpace(c.HTTP.BasePath), "/")

	aud := c.Auth.Audience[:0]
	for _, a := range c.Auth.Audience {
		if a = strings.TrimSpace(a); a != "" {
			aud = append(aud, a)
		}
	}
	c.Auth.Audience = aud
}

// validate — базовая валидация значений.
func (c *Config) validate() error {
	switch c.DB.Driver {
	case DriverMongo, DriverPostgres:
	default:
		return fmt.Errorf("db.driver must be %q or %q, got %q", DriverMongo, DriverPostgres, c.DB.Driver)
	}

	if c.DB.Endpoint == "" {
		return fmt.Errorf("db.endpoint is required")
	}

	if c.DB.Database == "" || c.DB.Collection == "" {
		return fmt.Errorf("db.database and db.collection are required")
	}

	if c.Auth.JWTSecret == "" && c.Auth.JWKSURL == "" {
		return fmt.Errorf("auth: jwt_secret or jwks_url is required")
	}

	if c.Auth.Leeway < 0 {
		return fmt.Errorf("auth.leeway must be >= 0")
	}

	if c.Auth.JWKSURL != "" && c.Auth.JWKSRefresh <= 0 {
		return fmt.Errorf("auth.jwks_refresh must be > 0")
	}

	if c.Idempotency.Enabled {
		if c.Idempotency.RedisURL == "" {
			return fmt.Errorf("idempotency.redis_url is required when idempotency is enabled")
		}

		if c.Idempotency.TTL <= 0 {
			return fmt.Errorf("idempotency.ttl must be > 0")
		}
	}

	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("http.max_body_bytes must be > 0")
	}

	if c.Timeouts.Service <= 0 || c.Timeouts.Store <= 0 || c.Timeouts.Auth <= 0 || c.Timeouts.Shutdown <= 0 {
		return fmt.Errorf("timeouts must be > 0")
	}

	return nil
}
