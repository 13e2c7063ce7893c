package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dmitrijs2005/hawachat/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, h http.HandlerFunc) *Gemini {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewGemini(Config{APIKey: "k", BaseURL: srv.URL}, logging.Nop())
}

func TestDevMode(t *testing.T) {
	g := NewGemini(Config{}, logging.Nop())
	require.True(t, g.DevMode())

	txt, err := g.Reply(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, DevReply, txt)

	img, err := g.GenerateImage(context.Background(), "cat")
	require.NoError(t, err)
	assert.Equal(t, DevImage, img)
}

func TestReply_SendsPromptAndSystemInstruction(t *testing.T) {
	var got generateRequest
	g := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/models/"+DefaultTextModel+":generateContent", r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))

		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"[IMAGE_GEN] "},{"text":"a red cube"}]}}]}`)
	})

	txt, err := g.Reply(context.Background(), "draw a cube")
	require.NoError(t, err)
	assert.Equal(t, "[IMAGE_GEN] a red cube", txt)

	require.Len(t, got.Contents, 1)
	assert.Equal(t, "draw a cube", got.Contents[0].Parts[0].Text)
	require.NotNil(t, got.SystemInstruction)
	assert.Contains(t, got.SystemInstruction.Parts[0].Text, "[IMAGE_GEN]")
	assert.Equal(t, 0.8, got.GenerationConfig.Temperature)
	assert.Equal(t, 1000, got.GenerationConfig.MaxOutputTokens)
}

func TestReply_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"non 2xx", http.StatusTooManyRequests, `{"error":"quota"}`},
		{"malformed", http.StatusOK, `{`},
		{"no candidates", http.StatusOK, `{"candidates":[]}`},
		{"empty text", http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":""}]}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := g.Reply(context.Background(), "hi")
			assert.Error(t, err)
		})
	}
}

func TestGenerateImage(t *testing.T) {
	g := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/"+DefaultImageModel+":generateContent", r.URL.Path)
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"here"},{"inlineData":{"mimeType":"image/jpeg","data":"QUJD"}}]}}]}`)
	})

	img, err := g.GenerateImage(context.Background(), "a red cube")
	require.NoError(t, err)
	assert.Equal(t, "data:image/jpeg;base64,QUJD", img)
}

func TestGenerateImage_AbsentPayload(t *testing.T) {
	for _, body := range []string{`{"candidates":[{"content":{"parts":[{"text":"no"}]}}]}`, `oops`} {
		g := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, body)
		})

		img, err := g.GenerateImage(context.Background(), "x")
		require.NoError(t, err)
		assert.Empty(t, img)
	}

	g := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	img, err := g.GenerateImage(context.Background(), "x")
	require.NoError(t, err)
	assert.Empty(t, img)
}
