package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig

	Uploads      UploadsConfig
	Drive        DriveConfig
	Mail         MailConfig
	LeaveWebhook LeaveWebhookConfig
	Ingress      IngressConfig
	Covers       CoversConfig
	Duty         DutyConfig
	Reminder     ReminderConfig
	Catalog      CatalogConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// UploadsConfig controls local attachment staging.
type UploadsConfig struct {
	BaseDir          string
	MaxFileSizeBytes int64
}

// DriveConfig carries the OAuth client used for drive archival and mail.
type DriveConfig struct {
	TenantID      string
	ClientID      string
	TokenCacheDir string
	RootFolder    string
	ShareWith     []string
	Timeout       time.Duration
}

// MailConfig names the sender profile and recipient sets.
type MailConfig struct {
	SenderProfile   string
	AdminRecipients []string
	GradeRecipients map[string][]string
	Timeout         time.Duration
}

// LeaveWebhookConfig configures outbound leave-approval emission.
type LeaveWebhookConfig struct {
	URL     string
	Secret  string
	Timeout time.Duration
}

// IngressConfig guards the inbound leave-approval endpoint.
type IngressConfig struct {
	Secret string
}

// CoversConfig tunes the cover assignment engine.
type CoversConfig struct {
	ForwardURL     string
	ForwardSecret  string
	ForwardTimeout time.Duration
	MaxPerDay      int
	ExcludedSlugs  []string
}

// DutyConfig points at the external availability API.
type DutyConfig struct {
	AvailabilityURL     string
	AvailabilityToken   string
	AvailabilityTimeout time.Duration
}

// ReminderConfig drives the sick-leave attachment reminder worker.
type ReminderConfig struct {
	Enabled  bool
	Interval time.Duration
}

// CatalogConfig tunes schedule catalog caching.
type CatalogConfig struct {
	SourcePath string
	CacheTTL   time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxUpload := v.GetInt64("UPLOADS_MAX_FILE_SIZE")
	if maxUpload <= 0 {
		maxUpload = 10 * 1024 * 1024
	}
	cfg.Uploads = UploadsConfig{
		BaseDir:          v.GetString("UPLOADS_BASE_DIR"),
		MaxFileSizeBytes: maxUpload,
	}

	cfg.Drive = DriveConfig{
		TenantID:      v.GetString("DRIVE_TENANT_ID"),
		ClientID:      v.GetString("DRIVE_CLIENT_ID"),
		TokenCacheDir: v.GetString("DRIVE_TOKEN_CACHE_DIR"),
		RootFolder:    v.GetString("DRIVE_ROOT_FOLDER"),
		ShareWith:     splitAndTrim(v.GetString("DRIVE_SHARE_WITH")),
		Timeout:       parseDuration(v.GetString("DRIVE_TIMEOUT"), 30*time.Second),
	}

	cfg.Mail = MailConfig{
		SenderProfile:   v.GetString("MAIL_SENDER_PROFILE"),
		AdminRecipients: splitAndTrim(v.GetString("MAIL_ADMIN_RECIPIENTS")),
		GradeRecipients: parseGradeRecipients(v.GetString("MAIL_GRADE_RECIPIENTS")),
		Timeout:         parseDuration(v.GetString("MAIL_TIMEOUT"), 30*time.Second),
	}

	cfg.LeaveWebhook = LeaveWebhookConfig{
		URL:     v.GetString("LEAVE_APPROVAL_WEBHOOK_URL"),
		Secret:  v.GetString("LEAVE_APPROVAL_WEBHOOK_SECRET"),
		Timeout: parseDuration(v.GetString("LEAVE_APPROVAL_WEBHOOK_TIMEOUT"), 10*time.Second),
	}

	cfg.Ingress = IngressConfig{Secret: v.GetString("LEAVE_WEBHOOK_SECRET")}

	maxPerDay := v.GetInt("COVERS_MAX_PER_DAY")
	if maxPerDay <= 0 {
		maxPerDay = 2
	}
	cfg.Covers = CoversConfig{
		ForwardURL:     v.GetString("COVERS_FORWARD_URL"),
		ForwardSecret:  v.GetString("COVERS_FORWARD_SECRET"),
		ForwardTimeout: parseDuration(v.GetString("COVERS_FORWARD_TIMEOUT"), 10*time.Second),
		MaxPerDay:      maxPerDay,
		ExcludedSlugs:  splitAndTrim(v.GetString("COVERS_EXCLUDED_SLUGS")),
	}

	cfg.Duty = DutyConfig{
		AvailabilityURL:     v.GetString("DUTY_AVAILABILITY_URL"),
		AvailabilityToken:   v.GetString("DUTY_AVAILABILITY_TOKEN"),
		AvailabilityTimeout: parseDuration(v.GetString("DUTY_AVAILABILITY_TIMEOUT"), 5*time.Second),
	}

	cfg.Reminder = ReminderConfig{
		Enabled:  v.GetBool("ENABLE_ATTACHMENT_REMINDERS"),
		Interval: parseDuration(v.GetString("ATTACHMENT_REMINDER_INTERVAL"), time.Hour),
	}

	cfg.Catalog = CatalogConfig{
		SourcePath: v.GetString("SCHEDULE_SOURCE_PATH"),
		CacheTTL:   parseDuration(v.GetString("SCHEDULE_CACHE_TTL"), 5*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "school_ops")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("UPLOADS_BASE_DIR", "./uploads")
	v.SetDefault("UPLOADS_MAX_FILE_SIZE", 10*1024*1024)

	v.SetDefault("DRIVE_TENANT_ID", "")
	v.SetDefault("DRIVE_CLIENT_ID", "")
	v.SetDefault("DRIVE_TOKEN_CACHE_DIR", "./tokens")
	v.SetDefault("DRIVE_ROOT_FOLDER", "Sick Leave Documents")
	v.SetDefault("DRIVE_SHARE_WITH", "")
	v.SetDefault("DRIVE_TIMEOUT", "30s")

	v.SetDefault("MAIL_SENDER_PROFILE", "absence")
	v.SetDefault("MAIL_ADMIN_RECIPIENTS", "")
	v.SetDefault("MAIL_GRADE_RECIPIENTS", "")
	v.SetDefault("MAIL_TIMEOUT", "30s")

	v.SetDefault("LEAVE_APPROVAL_WEBHOOK_URL", "")
	v.SetDefault("LEAVE_APPROVAL_WEBHOOK_SECRET", "")
	v.SetDefault("LEAVE_APPROVAL_WEBHOOK_TIMEOUT", "10s")
	v.SetDefault("LEAVE_WEBHOOK_SECRET", "")

	v.SetDefault("COVERS_FORWARD_URL", "")
	v.SetDefault("COVERS_FORWARD_SECRET", "")
	v.SetDefault("COVERS_FORWARD_TIMEOUT", "10s")
	v.SetDefault("COVERS_MAX_PER_DAY", 2)
	v.SetDefault("COVERS_EXCLUDED_SLUGS", "")

	v.SetDefault("DUTY_AVAILABILITY_URL", "")
	v.SetDefault("DUTY_AVAILABILITY_TOKEN", "")
	v.SetDefault("DUTY_AVAILABILITY_TIMEOUT", "5s")

	v.SetDefault("ENABLE_ATTACHMENT_REMINDERS", true)
	v.SetDefault("ATTACHMENT_REMINDER_INTERVAL", "1h")

	v.SetDefault("SCHEDULE_SOURCE_PATH", "./data/schedule.csv")
	v.SetDefault("SCHEDULE_CACHE_TTL", "5m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// parseGradeRecipients parses "10:lead10@x;a@x,11:lead11@x" into a map keyed
// by grade. The key "ALL" acts as the fallback recipient list.
func parseGradeRecipients(raw string) map[string][]string {
	if raw == "" {
		return nil
	}
	result := make(map[string][]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			continue
		}
		grade := strings.TrimSpace(parts[0])
		var emails []string
		for _, email := range strings.Split(parts[1], ";") {
			email = strings.TrimSpace(email)
			if email != "" {
				emails = append(emails, email)
			}
		}
		if grade != "" && len(emails) > 0 {
			result[grade] = emails
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
