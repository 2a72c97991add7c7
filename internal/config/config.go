package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	MQTT struct {
		Broker      string
		Username    string
		Password    string
		ClientID    string
		TopicPrefix string
	}
	Kafka struct {
		Broker         string
		TelemetryTopic string
		EventsTopic    string
		GroupID        string
	}
	DB struct {
		DSN string
	}
	API struct {
		Port     string
		BasePath string
	}
	Logging struct {
		Dir   string
		Level string
	}
	StateAPI struct {
		BaseURL string
		Token   string
		RPS     int
	}
	Telegram struct {
		BotToken  string
		ChatID    int64
		RateLimit int
	}
	Email struct {
		SMTPServer string
		SMTPPort   int
		Username   string
		Password   string
		To         []string
	}
	Notification struct {
		QueueSize  int
		MaxWorkers int
		MinLevel   string
	}
	Fleet struct {
		RegistryFile string
		Devices      []string
	}
	Engine struct {
		QueueSize          int
		PollInterval       time.Duration
		SweepInterval      time.Duration
		TaskTimeout        time.Duration
		ArrivalThreshold   float64
		CollisionThreshold float64
		ClimatePolicy      string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	// MQTT settings
	cfg.MQTT.Broker = os.Getenv("MQTT_BROKER")
	cfg.MQTT.Username = os.Getenv("MQTT_USERNAME")
	cfg.MQTT.Password = os.Getenv("MQTT_PASSWORD")
	cfg.MQTT.ClientID = os.Getenv("MQTT_CLIENT_ID")
	cfg.MQTT.TopicPrefix = os.Getenv("MQTT_TOPIC_PREFIX")

	// Kafka settings
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.TelemetryTopic = os.Getenv("KAFKA_TELEMETRY_TOPIC")
	cfg.Kafka.EventsTopic = os.Getenv("KAFKA_EVENTS_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	// Database DSN
	cfg.DB.DSN = os.Getenv("DB_DSN")

	// API settings
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	// Actuator/state API
	cfg.StateAPI.BaseURL = os.Getenv("STATE_API_URL")
	cfg.StateAPI.Token = os.Getenv("STATE_API_TOKEN")
	if rps, err := strconv.Atoi(os.Getenv("STATE_API_RPS")); err == nil {
		cfg.StateAPI.RPS = rps
	}

	// Alert forwarding
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if id, err := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64); err == nil {
		cfg.Telegram.ChatID = id
	}
	if rl, err := strconv.Atoi(os.Getenv("TELEGRAM_RATE_LIMIT")); err == nil {
		cfg.Telegram.RateLimit = rl
	}
	cfg.Email.SMTPServer = os.Getenv("EMAIL_SMTP_SERVER")
	if p, err := strconv.Atoi(os.Getenv("EMAIL_SMTP_PORT")); err == nil {
		cfg.Email.SMTPPort = p
	}
	cfg.Email.Username = os.Getenv("EMAIL_USERNAME")
	cfg.Email.Password = os.Getenv("EMAIL_PASSWORD")
	cfg.Email.To = splitList(os.Getenv("EMAIL_TO"))

	if qs, err := strconv.Atoi(os.Getenv("NOTIFY_QUEUE_SIZE")); err == nil {
		cfg.Notification.QueueSize = qs
	}
	if mw, err := strconv.Atoi(os.Getenv("NOTIFY_MAX_WORKERS")); err == nil {
		cfg.Notification.MaxWorkers = mw
	}
	cfg.Notification.MinLevel = os.Getenv("NOTIFY_MIN_LEVEL")

	// Fleet registry
	cfg.Fleet.RegistryFile = os.Getenv("FLEET_REGISTRY_FILE")
	cfg.Fleet.Devices = splitList(os.Getenv("FLEET_DEVICES"))

	// Engine settings
	if qs, err := strconv.Atoi(os.Getenv("QUEUE_SIZE")); err == nil {
		cfg.Engine.QueueSize = qs
	}
	cfg.Engine.PollInterval = durationEnv("POLL_INTERVAL")
	cfg.Engine.SweepInterval = durationEnv("SWEEP_INTERVAL")
	cfg.Engine.TaskTimeout = durationEnv("TASK_TIMEOUT")
	if v, err := strconv.ParseFloat(os.Getenv("ARRIVAL_THRESHOLD_M"), 64); err == nil {
		cfg.Engine.ArrivalThreshold = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("COLLISION_THRESHOLD_M"), 64); err == nil {
		cfg.Engine.CollisionThreshold = v
	}
	cfg.Engine.ClimatePolicy = os.Getenv("CLIMATE_POLICY")

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// Validate reports every missing required setting at once.
func Validate(cfg Config) error {
	missing := []string{}
	if cfg.MQTT.Broker == "" && cfg.Kafka.Broker == "" {
		missing = append(missing, "MQTT_BROKER or KAFKA_BROKER")
	}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configurations: %v", missing)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "fleet-service"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "fleet"
	}
	if cfg.Kafka.TelemetryTopic == "" {
		cfg.Kafka.TelemetryTopic = "fleet_telemetry"
	}
	if cfg.Kafka.EventsTopic == "" {
		cfg.Kafka.EventsTopic = "fleet_events"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "fleet-service"
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.StateAPI.RPS == 0 {
		cfg.StateAPI.RPS = 5
	}
	if cfg.Telegram.RateLimit == 0 {
		cfg.Telegram.RateLimit = 1
	}
	if cfg.Notification.QueueSize == 0 {
		cfg.Notification.QueueSize = 100
	}
	if cfg.Notification.MaxWorkers == 0 {
		cfg.Notification.MaxWorkers = 2
	}
	if cfg.Notification.MinLevel == "" {
		cfg.Notification.MinLevel = "critical"
	}
	if cfg.Engine.QueueSize == 0 {
		cfg.Engine.QueueSize = 1024
	}
	if cfg.Engine.PollInterval == 0 {
		cfg.Engine.PollInterval = 10 * time.Second
	}
	if cfg.Engine.SweepInterval == 0 {
		cfg.Engine.SweepInterval = 30 * time.Second
	}
	if cfg.Engine.TaskTimeout == 0 {
		cfg.Engine.TaskTimeout = 5 * time.Minute
	}
	if cfg.Engine.ArrivalThreshold == 0 {
		cfg.Engine.ArrivalThreshold = 3
	}
	if cfg.Engine.CollisionThreshold == 0 {
		cfg.Engine.CollisionThreshold = 1.5
	}
	if cfg.Engine.ClimatePolicy == "" {
		cfg.Engine.ClimatePolicy = "literal"
	}
}

func durationEnv(key string) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return 0
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
