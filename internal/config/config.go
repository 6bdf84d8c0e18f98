package config

import (
	"context"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	StorageDriver     string        `env:"STORAGE_DRIVER,default=postgres"`
	DBHost            string        `env:"DB_HOST,default=localhost"`
	DBPort            int           `env:"DB_PORT,default=5432"`
	DBUser            string        `env:"DB_USER,default=postgres"`
	DBPassword        string        `env:"DB_PASSWORD"`
	DBName            string        `env:"DB_NAME,default=postgres"`
	DBSSLMode         string        `env:"DB_SSLMODE,default=disable"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=10"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=25"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`
	DBAutoMigrate     bool          `env:"DB_AUTO_MIGRATE,default=true"`

	HTTPAddr            string        `env:"HTTP_ADDR,default=:8080"`
	HTTPRequestTimeout  time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=60s"`
	HTTPShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT,default=15s"`
	CORSAllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS"`
	InternalAPIKey      string        `env:"INTERNAL_API_KEY"`
	FrontendURL         string        `env:"FRONTEND_URL,default=https://thehub.app"`

	ResendAPIKey string `env:"RESEND_API_KEY"`
	FromEmail    string `env:"FROM_EMAIL,default=deals@thehub.app"`

	TelegramBotToken    string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramAPIEndpoint string `env:"TELEGRAM_API_ENDPOINT,default=https://api.telegram.org/bot%s/%s"`
	TelegramBotPolling  bool   `env:"TELEGRAM_BOT_POLLING,default=false"`
	TelegramPollTimeout int    `env:"TELEGRAM_POLL_TIMEOUT,default=60"`

	ChannelHTTPTimeout time.Duration `env:"CHANNEL_HTTP_TIMEOUT,default=10s"`

	SchedulerInterval time.Duration     `env:"SCHEDULER_INTERVAL,default=5m"`
	HotDealMinScore   int               `env:"HOT_DEAL_MIN_SCORE,default=60"`
	HotDealWindow     time.Duration     `env:"HOT_DEAL_WINDOW,default=10m"`
	HotDealLimit      int               `env:"HOT_DEAL_LIMIT,default=50"`
	SeenCacheSize     int               `env:"SEEN_CACHE_SIZE,default=10000"`
	ListingTables     map[string]string `env:"LISTING_TABLES,default=watches:watch_listings,sneakers:sneaker_listings,cars:car_listings"`

	QueueInterval   time.Duration `env:"QUEUE_INTERVAL,default=30s"`
	QueueBatchSize  int           `env:"QUEUE_BATCH_SIZE,default=100"`
	DeliveryPacing  time.Duration `env:"DELIVERY_PACING,default=100ms"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL,default=24h"`
	QueueRetention  time.Duration `env:"QUEUE_RETENTION,default=720h"`

	QuietHoursTZ string `env:"QUIET_HOURS_TZ,default=Local"`
	LogLevel     string `env:"LOG_LEVEL,default=info"`
}

// Load reads an optional .env file and then the process environment.
func Load(ctx context.Context) (Config, error) {
	_ = godotenv.Load()
	return LoadWith(ctx, envconfig.OsLookuper())
}

func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.QuietHoursTZ)
}

// ListingCategories returns the configured listing categories.
func (c Config) ListingCategories() []string {
	categories := make([]string, 0, len(c.ListingTables))
	for category := range c.ListingTables {
		categories = append(categories, category)
	}
	return categories
}
