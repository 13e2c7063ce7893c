// Package gateway talks to the Gemini generateContent REST API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/hawachat/internal/logging"
)

const (
	DefaultBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	DefaultTextModel  = "gemini-3-flash-preview"
	DefaultImageModel = "gemini-2.5-flash-image"

	// DevReply and DevImage are returned when no API key is configured.
	DevReply = "Hi! I'm the hawachat assistant. How can I help you today?"
	DevImage = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

	SystemInstruction = "You are the hawachat assistant. Reply in the user's language in a friendly tone. " +
		"If the user asks for a picture, start your reply with [IMAGE_GEN] followed by a precise English description. " +
		"Example: [IMAGE_GEN] A futuristic city at night."
)

var ErrEmptyResponse = errors.New("gemini returned no content")

type Config struct {
	APIKey          string
	BaseURL         string
	TextModel       string
	ImageModel      string
	Temperature     float64
	MaxOutputTokens int
	Timeout         time.Duration
}

// Gemini implements the assistant gateway. Without an API key it runs in
// development mode and answers with canned data.
type Gemini struct {
	cfg  Config
	http *http.Client
	log  logging.Logger
}

func NewGemini(cfg Config, log logging.Logger) *Gemini {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.TextModel == "" {
		cfg.TextModel = DefaultTextModel
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = DefaultImageModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.8
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = 1000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Gemini{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.With("module", "gemini"),
	}
}

// DevMode reports whether requests are answered locally.
func (g *Gemini) DevMode() bool {
	return g.cfg.APIKey == ""
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content *content `json:"content"`
	} `json:"candidates"`
}

// Reply asks the text model for an answer to prompt.
func (g *Gemini) Reply(ctx context.Context, prompt string) (string, error) {
	if g.DevMode() {
		g.log.Debug(ctx, "dev mode reply")
		return DevReply, nil
	}

	req := generateRequest{
		Contents:          []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		SystemInstruction: &content{Parts: []part{{Text: SystemInstruction}}},
		GenerationConfig:  &generationConfig{Temperature: g.cfg.Temperature, MaxOutputTokens: g.cfg.MaxOutputTokens},
	}

	resp, err := g.generate(ctx, g.cfg.TextModel, req)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, p := range firstParts(resp) {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

// GenerateImage returns the first inline image as a data URI. Failures are
// logged and reported as an empty payload.
func (g *Gemini) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if g.DevMode() {
		g.log.Debug(ctx, "dev mode image")
		return DevImage, nil
	}

	req := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	}

	resp, err := g.generate(ctx, g.cfg.ImageModel, req)
	if err != nil {
		g.log.Error(ctx, "image generation failed", "error", err)
		return "", nil
	}

	for _, p := range firstParts(resp) {
		if p.InlineData != nil && p.InlineData.Data != "" {
			mime := p.InlineData.MimeType
			if mime == "" {
				mime = "image/png"
			}
			return "data:" + mime + ";base64," + p.InlineData.Data, nil
		}
	}
	g.log.Warn(ctx, "image response carried no inline data")
	return "", nil
}

func (g *Gemini) generate(ctx context.Context, model string, body generateRequest) (*generateResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(g.cfg.BaseURL, "/"), url.PathEscape(model), url.QueryEscape(g.cfg.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	defer res.Body.Close()

	slurp, err := io.ReadAll(io.LimitReader(res.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("gemini read: %w", err)
	}
	if res.StatusCode/100 != 2 {
		return nil, fmt.Errorf("gemini status %d: %s", res.StatusCode, strings.TrimSpace(string(slurp)))
	}

	var out generateResponse
	if err := json.Unmarshal(slurp, &out); err != nil {
		return nil, fmt.Errorf("gemini decode: %w", err)
	}
	return &out, nil
}

func firstParts(r *generateResponse) []part {
	if r == nil || len(r.Candidates) == 0 || r.Candidates[0].Content == nil {
		return nil
	}
	return r.Candidates[0].Content.Parts
}
