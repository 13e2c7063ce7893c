// Package config loads runtime configuration for the hawachat CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Environment, after loading an optional .env file.
//  4. Command-line flags.
//
// Supported flags
//
//	-a string   address:port of the store server
//	-i int      online status check interval (seconds)
//	-m string   store mode: remote or local
//	-f string   local SQLite database file
//	-k string   Gemini API key (empty runs the assistant in development mode)
//	-l string   log level
package config

import "time"

const (
	StoreModeRemote = "remote"
	StoreModeLocal  = "local"
)

// Operator is a built-in staff account. Logging in with its phone yields
// its fixed id and the admin role.
type Operator struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Avatar string `json:"avatar"`
	Status string `json:"status"`
	Bio    string `json:"bio"`
}

// Config holds runtime settings for the CLI.
type Config struct {
	ServerEndpointAddr  string        `envconfig:"HAWACHAT_SERVER_ADDR"`
	OnlineCheckInterval time.Duration `envconfig:"HAWACHAT_ONLINE_CHECK_INTERVAL"`
	StoreMode           string        `envconfig:"HAWACHAT_STORE_MODE"`
	LocalDBPath         string        `envconfig:"HAWACHAT_LOCAL_DB"`

	DeliveredDelay time.Duration `envconfig:"HAWACHAT_DELIVERED_DELAY"`
	ReadDelay      time.Duration `envconfig:"HAWACHAT_READ_DELAY"`

	GeminiAPIKey     string        `envconfig:"GEMINI_API_KEY"`
	GeminiBaseURL    string        `envconfig:"GEMINI_BASE_URL"`
	GeminiTextModel  string        `envconfig:"GEMINI_TEXT_MODEL"`
	GeminiImageModel string        `envconfig:"GEMINI_IMAGE_MODEL"`
	GeminiTimeout    time.Duration `envconfig:"GEMINI_TIMEOUT"`

	AssistantName  string `envconfig:"HAWACHAT_ASSISTANT_NAME"`
	AssistantLabel string `envconfig:"HAWACHAT_ASSISTANT_LABEL"`
	// AssistantFallback is posted when the assistant gateway fails; empty
	// means failures stay silent.
	AssistantFallback string `envconfig:"HAWACHAT_ASSISTANT_FALLBACK"`

	// VerifierPhone is the only account allowed to toggle verification.
	VerifierPhone string     `envconfig:"HAWACHAT_VERIFIER_PHONE"`
	Operators     []Operator `ignored:"true"`

	LogLevel string `envconfig:"LOG_LEVEL"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.OnlineCheckInterval = 3 * time.Second
	c.StoreMode = StoreModeRemote
	c.LocalDBPath = "hawachat.db"
	c.DeliveredDelay = 300 * time.Millisecond
	c.ReadDelay = 800 * time.Millisecond
	c.GeminiTimeout = 60 * time.Second
	c.AssistantName = "Hawa Sawa Assistant"
	c.AssistantLabel = "AI bot"
	c.VerifierPhone = "01111973405"
	c.Operators = []Operator{
		{ID: "u_support", Name: "Technical Support", Phone: "911", Avatar: "🎧", Status: "Here to help 📞", Bio: "Official support channel."},
		{ID: "u_dev", Name: "Developer", Phone: "01111973405", Avatar: "👑", Status: "System developer 👑", Bio: "Maintainer of hawachat."},
	}
	c.LogLevel = "warn"
}

// OperatorPhones lists the phones of all configured operators.
func (c *Config) OperatorPhones() []string {
	out := make([]string, 0, len(c.Operators))
	for _, o := range c.Operators {
		out = append(out, o.Phone)
	}
	return out
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON, the environment and command-line flags. Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
