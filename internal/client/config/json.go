package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/hawachat/internal/flagx"
	"github.com/dmitrijs2005/hawachat/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Intervals
// are timex.Duration, so "3s" and integer nanoseconds both work. Missing
// keys leave the runtime Config untouched.
type JsonConfig struct {
	ServerEndpointAddr  string         `json:"server_endpoint_addr"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	StoreMode           string         `json:"store_mode"`
	LocalDBPath         string         `json:"local_db_path"`
	DeliveredDelay      timex.Duration `json:"delivered_delay"`
	ReadDelay           timex.Duration `json:"read_delay"`
	GeminiAPIKey        string         `json:"gemini_api_key"`
	GeminiBaseURL       string         `json:"gemini_base_url"`
	GeminiTextModel     string         `json:"gemini_text_model"`
	GeminiImageModel    string         `json:"gemini_image_model"`
	GeminiTimeout       timex.Duration `json:"gemini_timeout"`
	AssistantName       string         `json:"assistant_name"`
	AssistantLabel      string         `json:"assistant_label"`
	AssistantFallback   string         `json:"assistant_fallback"`
	VerifierPhone       string         `json:"verifier_phone"`
	Operators           []Operator     `json:"operators"`
	LogLevel            string         `json:"log_level"`
}

// parseJson overlays cfg with values from the file named by -c/-config.
// Read or unmarshal errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.ServerEndpointAddr, jc.ServerEndpointAddr)
	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	setString(&cfg.StoreMode, jc.StoreMode)
	setString(&cfg.LocalDBPath, jc.LocalDBPath)
	setDuration(&cfg.DeliveredDelay, jc.DeliveredDelay)
	setDuration(&cfg.ReadDelay, jc.ReadDelay)
	setString(&cfg.GeminiAPIKey, jc.GeminiAPIKey)
	setString(&cfg.GeminiBaseURL, jc.GeminiBaseURL)
	setString(&cfg.GeminiTextModel, jc.GeminiTextModel)
	setString(&cfg.GeminiImageModel, jc.GeminiImageModel)
	setDuration(&cfg.GeminiTimeout, jc.GeminiTimeout)
	setString(&cfg.AssistantName, jc.AssistantName)
	setString(&cfg.AssistantLabel, jc.AssistantLabel)
	setString(&cfg.AssistantFallback, jc.AssistantFallback)
	setString(&cfg.VerifierPhone, jc.VerifierPhone)
	if jc.Operators != nil {
		cfg.Operators = jc.Operators
	}
	setString(&cfg.LogLevel, jc.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration > 0 {
		*dst = v.Duration
	}
}
