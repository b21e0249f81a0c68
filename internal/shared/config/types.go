package config

import (
	"fmt"
	"time"
)

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`

	// AllowedOrigins lists the UI origins allowed to call the API.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig describes the backend data service store. Driver is
// "mysql" in production and "sqlite" for local runs.
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	SQLitePath      string `mapstructure:"sqlite_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&collation=utf8mb4_general_ci&parseTime=true&loc=UTC",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type BizConfig struct {
	Timezone string `mapstructure:"timezone"`
}

// ReconcileConfig tunes the reconciliation engine.
type ReconcileConfig struct {
	SuppressionTTLSeconds       int `mapstructure:"suppression_ttl_seconds"`
	FetchPageSize               int `mapstructure:"fetch_page_size"`
	BulkInsertDelayMs           int `mapstructure:"bulk_insert_delay_ms"`
	OverdueCheckIntervalSeconds int `mapstructure:"overdue_check_interval_seconds"`
	OverdueAlertCooldownMinutes int `mapstructure:"overdue_alert_cooldown_minutes"`
}

func (r *ReconcileConfig) SuppressionTTL() time.Duration {
	return time.Duration(r.SuppressionTTLSeconds) * time.Second
}

func (r *ReconcileConfig) BulkInsertDelay() time.Duration {
	return time.Duration(r.BulkInsertDelayMs) * time.Millisecond
}

func (r *ReconcileConfig) OverdueCheckInterval() time.Duration {
	return time.Duration(r.OverdueCheckIntervalSeconds) * time.Second
}

func (r *ReconcileConfig) OverdueAlertCooldown() time.Duration {
	return time.Duration(r.OverdueAlertCooldownMinutes) * time.Minute
}

// QueueConfig selects where the bulk insert queue is persisted.
type QueueConfig struct {
	Backend  string `mapstructure:"backend"`
	FilePath string `mapstructure:"file_path"`
}
