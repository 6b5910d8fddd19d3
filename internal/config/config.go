package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"opaca-backend/internal/schema"
)

type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Database  DatabaseConfig `mapstructure:"database"`
	JWTSecret string         `mapstructure:"jwt_secret"`
	Auth      AuthConfig     `mapstructure:"auth"`
	ServerURL string         `mapstructure:"server_url"`
	Admin     AdminConfig    `mapstructure:"admin"`

	// Declarative content model for the shipped server binary. Embedders
	// construct collections in code instead (hooks are not expressible here).
	Collections []schema.Collection            `mapstructure:"collections"`
	Globals     []schema.Global                `mapstructure:"globals"`
	Roles       map[string]map[string][]string `mapstructure:"roles"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig tunes token lifetimes. Zero means the built-in default.
type AuthConfig struct {
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
}

type AdminConfig struct {
	UserCollection string `mapstructure:"user_collection" json:"userCollection,omitempty"`
	DisableAdmin   bool   `mapstructure:"disable_admin" json:"disableAdmin,omitempty"`
	Route          string `mapstructure:"route" json:"route,omitempty"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // "sqlite" or "postgres"
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // SQLite database file
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "postgres" {
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			d.User, d.Password, d.Host, d.Port, d.Name)
	}
	return d.Path
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver != "postgres"
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../..")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.pool_size", 10)
	viper.SetDefault("database.path", "./data/opaca.db")
	viper.SetDefault("jwt_secret", "changeme-secret")
	viper.SetDefault("auth.access_ttl", "15m")
	viper.SetDefault("auth.refresh_ttl", "168h")
	viper.SetDefault("server_url", "http://localhost:8080")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
