package config

import (
	"context"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	_ "github.com/spf13/viper/remote"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	config       = viper.New()
	configHolder atomic.Value
	backend      = "consul"
	backendAddr  = "127.0.0.1:8500"
	backendPath  = "development" // e.g., app/<env>/<service_name>
	configType   = "yaml"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	NodeID     int64  `mapstructure:"NODE_ID"`
	Otel       struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		AutoMigrate    bool   `mapstructure:"AUTO_MIGRATE"`
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
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
	Minio struct {
		Endpoint   string `mapstructure:"ENDPOINT"`
		AccessKey  string `mapstructure:"ACCESS_KEY"`
		SecretKey  string `mapstructure:"SECRET_KEY"`
		Secure     bool   `mapstructure:"SECURE"`
		BucketName string `mapstructure:"BUCKET_NAME"`
	} `mapstructure:"MINIO"`
	Ranking Ranking `mapstructure:"RANKING"`
}

// Ranking holds the batch processing knobs. Zero values are replaced by ApplyDefaults.
type Ranking struct {
	CashbackLimit     int           `mapstructure:"CASHBACK_LIMIT"`
	CashbackParallel  bool          `mapstructure:"CASHBACK_PARALLEL"`
	RankingLimit      int           `mapstructure:"RANKING_LIMIT"`
	RankingParallel   bool          `mapstructure:"RANKING_PARALLEL"`
	ParallelWorkers   int           `mapstructure:"PARALLEL_WORKERS"`
	MilestoneLimit    int           `mapstructure:"MILESTONE_LIMIT"`
	MilestoneWorkers  int           `mapstructure:"MILESTONE_WORKERS"`
	MilestoneMaxRows  int           `mapstructure:"MILESTONE_MAX_ROWS"`
	MilestoneMaxRetry int           `mapstructure:"MILESTONE_MAX_RETRY"`
	DailyLimitEnabled bool          `mapstructure:"DAILY_LIMIT_ENABLED"`
	DailyLimitWorkers int           `mapstructure:"DAILY_LIMIT_WORKERS"`
	RedisSyncEnabled  bool          `mapstructure:"REDIS_SYNC_ENABLED"`
	RedisSyncTTL      time.Duration `mapstructure:"REDIS_SYNC_TTL"`
	SnapshotEnabled   bool          `mapstructure:"SNAPSHOT_ENABLED"`
	MaxRunDuration    time.Duration `mapstructure:"MAX_RUN_DURATION"`
	ScheduleHour      int           `mapstructure:"SCHEDULE_HOUR"`
	ScheduleMinute    int           `mapstructure:"SCHEDULE_MINUTE"`
	UpdateUser        string        `mapstructure:"UPDATE_USER"`
}

func (r *Ranking) ApplyDefaults() {
	if r.CashbackLimit <= 0 {
		r.CashbackLimit = 1000
	}
	if r.RankingLimit <= 0 {
		r.RankingLimit = 5000
	}
	if r.ParallelWorkers <= 0 {
		r.ParallelWorkers = 4
	}
	if r.MilestoneLimit <= 0 {
		r.MilestoneLimit = 1000
	}
	if r.MilestoneWorkers <= 0 {
		r.MilestoneWorkers = 4
	}
	if r.MilestoneMaxRetry <= 0 {
		r.MilestoneMaxRetry = 3
	}
	if r.DailyLimitWorkers <= 0 {
		r.DailyLimitWorkers = 2
	}
	if r.RedisSyncTTL <= 0 {
		r.RedisSyncTTL = 24 * time.Hour
	}
	if r.MaxRunDuration <= 0 {
		r.MaxRunDuration = 4 * time.Hour
	}
	if r.ScheduleHour < 0 || r.ScheduleHour > 23 {
		r.ScheduleHour = 1
	}
	if r.ScheduleMinute < 0 || r.ScheduleMinute > 59 {
		r.ScheduleMinute = 0
	}
	if r.UpdateUser == "" {
		r.UpdateUser = "cashback-ranking"
	}
}

var Module = fx.Module("config", fx.Provide(LoadConfig))
var RemoteModule = fx.Module("remote.config", fx.Provide(LoadRemote))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func LoadConfig(p Params) *Config {

	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		os.Exit(1)
	}
	cfg.Ranking.ApplyDefaults()

	if p.Vault != nil {
		applySecrets(p.Vault, &cfg)
	}

	return &cfg
}

func LoadRemote(p Params) *Config {
	if p.Vault == nil {
		zap.L().Error("vault can't provide")
		os.Exit(1)
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		backend = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_ADDR"); ok {
		backendAddr = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_PATH"); ok {
		backendPath = v
	}

	config.SetConfigType(configType)
	if err := config.AddRemoteProvider(backend, backendAddr, backendPath); err != nil {
		os.Exit(1)
	}

	if err := config.ReadRemoteConfig(); err != nil {
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		os.Exit(1)
	}
	cfg.Ranking.ApplyDefaults()
	configHolder.Store(&cfg)

	go func() {
		for {
			time.Sleep(time.Second * 5)

			if err := config.WatchRemoteConfig(); err != nil {
				zap.L().Error("unable to read remote config", zap.Error(err))
				continue
			}

			// only the processing knobs are hot-reloaded; connections keep their startup values
			var newcfg Config
			if err := config.Unmarshal(&newcfg); err != nil {
				continue
			}
			newcfg.Ranking.ApplyDefaults()
			configHolder.Store(&newcfg)
		}
	}()

	applySecrets(p.Vault, &cfg)

	return &cfg
}

// Current returns the most recent remote snapshot, falling back to base.
func Current(base *Config) *Config {
	if v, ok := configHolder.Load().(*Config); ok && v != nil {
		return v
	}
	return base
}

func applySecrets(client *vault.Client, cfg *Config) {
	ctx := context.Background()

	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		zap.L().Error("failed get secret from vault", zap.Error(err))
		os.Exit(1)
	}
	zap.L().Info("Success Get Secret")

	get := func(key string) string {
		if val, ok := secret.Data.Data[key].(string); ok {
			return val
		}
		return ""
	}

	cfg.Database.User = get("postgres_user")
	cfg.Database.Password = get("postgres_password")
	cfg.Redis.Password = get("redis_password")
	cfg.Minio.AccessKey = get("minio_access_key")
	cfg.Minio.SecretKey = get("minio_secret_key")
	cfg.Flagsmith.ApiKey = get("flagsmith_api_key")
}
