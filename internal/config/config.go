package config

import (
	"strings"
	"time"

	"github.com/roadworks/authd/params"
	"github.com/spf13/viper"
)

const (
	DefaultListenAddr = ":3000"
)

type MySQLConfig struct {
	Dsn             string `mapstructure:"dsn"`
	TablePrefix     string `mapstructure:"tablePrefix"`
	MaxIdleConns    int    `mapstructure:"maxIdleConns"`
	MaxOpenConns    int    `mapstructure:"maxOpenConns"`
	ConnMaxIdleTime int    `mapstructure:"connMaxIdleTime"`
	ConnMaxLifetime int    `mapstructure:"connMaxLifetime"`
}

type RedisConfig struct {
	URL         string `mapstructure:"url"`
	PoolSize    int    `mapstructure:"poolSize"`
	ClusterMode bool   `mapstructure:"clusterMode"`
}

// PolicyConfig only seeds the policy row on first boot; the row in the
// database is the source of truth afterwards.
type PolicyConfig struct {
	MaxAttempts     int           `mapstructure:"maxAttempts"`
	SessionLifetime time.Duration `mapstructure:"sessionLifetime"`
}

type FirebaseConfig struct {
	CredentialsFile string        `mapstructure:"credentialsFile"`
	CallTimeout     time.Duration `mapstructure:"callTimeout"`
	WatchInterval   time.Duration `mapstructure:"watchInterval"`
	WatchEnabled    bool          `mapstructure:"watchEnabled"`
}

type Config struct {
	Debug         bool           `mapstructure:"debug"`
	ListenAddr    string         `mapstructure:"listenAddr"`
	AllowOrigins  []string       `mapstructure:"allowOrigins"`
	SweepInterval time.Duration  `mapstructure:"sweepInterval"`
	MySQL         MySQLConfig    `mapstructure:"mysql"`
	Redis         RedisConfig    `mapstructure:"redis"`
	Policy        PolicyConfig   `mapstructure:"policy"`
	Firebase      FirebaseConfig `mapstructure:"firebase"`
}

func (c *Config) Sanitize() error {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = params.SessionSweepInterval
	}
	if c.Policy.MaxAttempts == 0 {
		c.Policy.MaxAttempts = params.DefaultMaxAttempts
	}
	if c.Policy.SessionLifetime == 0 {
		c.Policy.SessionLifetime = params.DefaultSessionLifetime
	}
	if c.Firebase.CallTimeout == 0 {
		c.Firebase.CallTimeout = params.IdentityCallTimeout
	}
	if c.Firebase.WatchInterval == 0 {
		c.Firebase.WatchInterval = params.IdentityWatchInterval
	}
	return nil
}

func LoadConfig(filename string) (*Config, error) {
	viper.SetConfigFile(filename)
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Sanitize(); err != nil {
		return nil, err
	}
	return &config, nil
}
