package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrMissingIdentifier = errors.New("missing required configuration")

// maxNodeID is the largest snowflake node id (10 bits).
const maxNodeID = 1023

type Config struct {
	AppEnv       string `mapstructure:"APP_ENV"`
	AppName      string `mapstructure:"APP_NAME"`
	AppVersion   string `mapstructure:"APP_VERSION"`
	AppNamespace string `mapstructure:"APP_NAMESPACE"`
	AppNodeID    int64  `mapstructure:"APP_NODE_ID"`
	TLS          struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"`
		Insecure bool   `mapstructure:"INSECURE"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Grpc struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"GRPC_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		Metrics        bool   `mapstructure:"METRICS"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Store struct {
		JobsTable       string `mapstructure:"JOBS_TABLE"`
		ExecutionsTable string `mapstructure:"EXECUTIONS_TABLE"`
	} `mapstructure:"STORE"`
	Completion struct {
		Endpoint        string        `mapstructure:"ENDPOINT"`
		Timeout         time.Duration `mapstructure:"TIMEOUT"`
		DefaultMaxTurns int           `mapstructure:"DEFAULT_MAX_TURNS"`
	} `mapstructure:"COMPLETION"`
	Executor struct {
		TaskType    string        `mapstructure:"TASK_TYPE"`
		Queue       string        `mapstructure:"QUEUE"`
		Concurrency int           `mapstructure:"CONCURRENCY"`
		LeaseTTL    time.Duration `mapstructure:"LEASE_TTL"`
	} `mapstructure:"EXECUTOR"`
	Retry struct {
		BaseMinutes int `mapstructure:"BASE_MINUTES"`
		CapMinutes  int `mapstructure:"CAP_MINUTES"`
	} `mapstructure:"RETRY"`
	Trigger struct {
		SyncInterval     time.Duration `mapstructure:"SYNC_INTERVAL"`
		ReconcileOnStart bool          `mapstructure:"RECONCILE_ON_START"`
		ReconcileWorkers int           `mapstructure:"RECONCILE_WORKERS"`
	} `mapstructure:"TRIGGER"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

// SetDefaults registers the tunables that have a sensible value. Identifiers
// that name external resources have no default and are checked by Validate.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "promptcron")
	v.SetDefault("APP_NODE_ID", 1)
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 330*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("GRPC_SERVER.ADDR", "9090")
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("OTEL.PROTOCOL", "grpc")
	v.SetDefault("OTEL.INSECURE", true)
	v.SetDefault("COMPLETION.TIMEOUT", 300*time.Second)
	v.SetDefault("COMPLETION.DEFAULT_MAX_TURNS", 10)
	v.SetDefault("EXECUTOR.CONCURRENCY", 10)
	v.SetDefault("RETRY.BASE_MINUTES", 30)
	v.SetDefault("RETRY.CAP_MINUTES", 240)
	v.SetDefault("TRIGGER.SYNC_INTERVAL", time.Minute)
	v.SetDefault("TRIGGER.RECONCILE_ON_START", true)
	v.SetDefault("TRIGGER.RECONCILE_WORKERS", 4)

	// keys without a default are only visible to Unmarshal once bound
	for _, key := range []string{
		"STORE.JOBS_TABLE",
		"STORE.EXECUTIONS_TABLE",
		"COMPLETION.ENDPOINT",
		"EXECUTOR.TASK_TYPE",
		"EXECUTOR.QUEUE",
		"EXECUTOR.LEASE_TTL",
		"DATABASE.HOST",
		"DATABASE.PORT",
		"DATABASE.DBNAME",
		"DATABASE.USER",
		"DATABASE.PASSWORD",
		"REDIS.ADDR",
		"REDIS.PASSWORD",
		"OTEL.ADDR",
		"PYROSCOPE.ADDR",
	} {
		_ = v.BindEnv(key)
	}
}

func LoadConfig(p Params) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		zap.L().Info("config.yaml not found, using environment only")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if p.Vault != nil {
		if err := overlaySecrets(context.Background(), p.Vault, &cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func overlaySecrets(ctx context.Context, client *vault.Client, cfg *Config) error {
	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		return fmt.Errorf("read secrets from vault: %w", err)
	}
	zap.L().Info("Success Get Secret")

	get := func(key string) string {
		if val, ok := secret.Data.Data[key].(string); ok {
			return val
		}
		return ""
	}

	if v := get("postgres_user"); v != "" {
		cfg.Database.User = v
	}
	if v := get("postgres_password"); v != "" {
		cfg.Database.Password = v
	}
	if v := get("redis_password"); v != "" {
		cfg.Redis.Password = v
	}
	return nil
}

// Validate fails when an identifier the scheduler cannot run without is empty.
func (c *Config) Validate() error {
	missing := []string{}
	check := func(key, val string) {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, key)
		}
	}

	check("STORE.JOBS_TABLE", c.Store.JobsTable)
	check("STORE.EXECUTIONS_TABLE", c.Store.ExecutionsTable)
	check("COMPLETION.ENDPOINT", c.Completion.Endpoint)
	check("EXECUTOR.TASK_TYPE", c.Executor.TaskType)
	check("EXECUTOR.QUEUE", c.Executor.Queue)

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingIdentifier, strings.Join(missing, ", "))
	}
	if c.Completion.Timeout <= 0 {
		return fmt.Errorf("%w: COMPLETION.TIMEOUT must be positive", ErrMissingIdentifier)
	}
	if c.Retry.BaseMinutes <= 0 || c.Retry.CapMinutes < c.Retry.BaseMinutes {
		return fmt.Errorf("%w: RETRY.BASE_MINUTES and RETRY.CAP_MINUTES out of range", ErrMissingIdentifier)
	}
	if c.AppNodeID < 0 || c.AppNodeID > maxNodeID {
		return fmt.Errorf("%w: APP_NODE_ID must be between 0 and %d", ErrMissingIdentifier, maxNodeID)
	}
	// a lease shorter than the call would expire while the job is still running
	if c.Executor.LeaseTTL > 0 && c.Executor.LeaseTTL <= c.Completion.Timeout {
		return fmt.Errorf("%w: EXECUTOR.LEASE_TTL %s must exceed COMPLETION.TIMEOUT %s",
			ErrMissingIdentifier, c.Executor.LeaseTTL, c.Completion.Timeout)
	}
	return nil
}
