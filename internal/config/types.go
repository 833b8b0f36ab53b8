package config

import "time"

type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway" json:"gateway"`
	USSD      USSDConfig      `yaml:"ussd" json:"ussd"`
	SMS       SMSConfig       `yaml:"sms" json:"sms"`
	Data      DataConfig      `yaml:"data" json:"data"`
	Outbox    OutboxConfig    `yaml:"outbox" json:"outbox"`
	Transport TransportConfig `yaml:"transport" json:"transport"`
	Alerts    AlertsConfig    `yaml:"alerts" json:"alerts"`
}

type GatewayConfig struct {
	Port int        `yaml:"port" json:"port"`
	Auth AuthConfig `yaml:"auth" json:"auth"`
}

type AuthConfig struct {
	Token string `yaml:"token" json:"token"`
}

// USSDConfig tunes the session engine. TTL is carrier-dependent; most
// networks drop a silent USSD session within 90-180 seconds, so the store
// must not outlive the carrier's own view of the session.
type USSDConfig struct {
	SessionTTL    Duration `yaml:"sessionTTL" json:"sessionTTL"`
	SweepInterval Duration `yaml:"sweepInterval" json:"sweepInterval"`
	MenuPath      string   `yaml:"menuPath" json:"menuPath"` // empty = built-in menu
}

type SMSConfig struct {
	// SenderID is the origin address stamped on outbound replies.
	SenderID string `yaml:"senderId" json:"senderId"`
}

type DataConfig struct {
	BaseURL string   `yaml:"baseURL" json:"baseURL"`
	APIKey  string   `yaml:"apiKey" json:"apiKey"`
	Timeout Duration `yaml:"timeout" json:"timeout"`
}

type OutboxConfig struct {
	MaxAttempts      int      `yaml:"maxAttempts" json:"maxAttempts"`
	BackoffBase      Duration `yaml:"backoffBase" json:"backoffBase"`
	BackoffCap       Duration `yaml:"backoffCap" json:"backoffCap"`
	DispatchInterval Duration `yaml:"dispatchInterval" json:"dispatchInterval"`
}

type TransportConfig struct {
	Mode    string   `yaml:"mode" json:"mode"` // "http" | "log"
	URL     string   `yaml:"url" json:"url"`
	APIKey  string   `yaml:"apiKey" json:"apiKey"`
	Timeout Duration `yaml:"timeout" json:"timeout"`
}

type AlertsConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Schedule string `yaml:"schedule" json:"schedule"` // cron expression, with seconds field
}

// Duration is a time.Duration that round-trips through YAML as "90s" strings.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Port: 19700,
		},
		USSD: USSDConfig{
			SessionTTL:    Duration(120 * time.Second),
			SweepInterval: Duration(30 * time.Second),
		},
		SMS: SMSConfig{
			SenderID: "AGROGRAM",
		},
		Data: DataConfig{
			BaseURL: "http://localhost:8000/api",
			Timeout: Duration(400 * time.Millisecond),
		},
		Outbox: OutboxConfig{
			MaxAttempts:      5,
			BackoffBase:      Duration(2 * time.Second),
			BackoffCap:       Duration(2 * time.Minute),
			DispatchInterval: Duration(1 * time.Second),
		},
		Transport: TransportConfig{
			Mode:    "log",
			Timeout: Duration(5 * time.Second),
		},
		Alerts: AlertsConfig{
			Enabled:  true,
			Schedule: "0 0 7 * * *", // daily, 07:00
		},
	}
}
