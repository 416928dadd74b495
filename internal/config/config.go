package config

import (
	"os"
	"time"

	"github.com/go-yaml/yaml"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Config struct {
	Server Server `yaml:"server"`
	Auth   Auth   `yaml:"auth"`
	Write  Write  `yaml:"write"`
	Cache  Cache  `yaml:"cache"`
	Log    Log    `yaml:"log"`
}

type Server struct {
	Listen        string `yaml:"listen"`
	PostgresDsn   string `yaml:"postgresDsn"`
	ReplicaDsn    string `yaml:"replicaDsn"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisDB       int    `yaml:"redisDB"`
	MemcachedAddr string `yaml:"memcachedAddr"`
	EnableTrace   bool   `yaml:"enableTrace"`
	TraceEndpoint string `yaml:"traceEndpoint"`
}

type Auth struct {
	JwtSecret string `yaml:"jwtSecret"`
	// role assigned to authenticated callers whose token carries none
	DefaultRole string `yaml:"defaultRole"`
}

type Write struct {
	StorageAttempts int           `yaml:"storageAttempts"`
	ConfirmAttempts int           `yaml:"confirmAttempts"`
	ConfirmTimeout  time.Duration `yaml:"confirmTimeout"`
	BackoffInitial  time.Duration `yaml:"backoffInitial"`
}

type Cache struct {
	TTL time.Duration `yaml:"ttl"`
}

type Log struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Load reads the yaml file at path, then applies a .env file (if present)
// and PORTFOLIO_* environment variables on top. An empty path skips the file.
func Load(path string) (Config, error) {
	var config Config

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "open config")
		}
		defer file.Close()

		err = yaml.NewDecoder(file).Decode(&config)
		if err != nil {
			return Config{}, errors.Wrap(err, "decode config")
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrap(err, "load .env")
	}
	applyEnv(&config)
	applyDefaults(&config)

	return config, nil
}

func applyEnv(c *Config) {
	overrides := map[string]*string{
		"PORTFOLIO_LISTEN":         &c.Server.Listen,
		"PORTFOLIO_POSTGRES_DSN":   &c.Server.PostgresDsn,
		"PORTFOLIO_REPLICA_DSN":    &c.Server.ReplicaDsn,
		"PORTFOLIO_REDIS_ADDR":     &c.Server.RedisAddr,
		"PORTFOLIO_MEMCACHED_ADDR": &c.Server.MemcachedAddr,
		"PORTFOLIO_JWT_SECRET":     &c.Auth.JwtSecret,
	}
	for key, dst := range overrides {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
}

func applyDefaults(c *Config) {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8000"
	}
	if c.Auth.DefaultRole == "" {
		c.Auth.DefaultRole = "editor"
	}
	if c.Write.StorageAttempts <= 0 {
		c.Write.StorageAttempts = 3
	}
	if c.Write.ConfirmAttempts <= 0 {
		c.Write.ConfirmAttempts = 3
	}
	if c.Write.ConfirmTimeout <= 0 {
		c.Write.ConfirmTimeout = 3 * time.Second
	}
	if c.Write.BackoffInitial <= 0 {
		c.Write.BackoffInitial = 50 * time.Millisecond
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
