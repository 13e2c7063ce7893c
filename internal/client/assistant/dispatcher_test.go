package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dmitrijs2005/hawachat/internal/client/lifecycle"
	"github.com/dmitrijs2005/hawachat/internal/logging"
	"github.com/dmitrijs2005/hawachat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	reply    string
	replyErr error
	image    string
	imageErr error

	imagePrompts []string
}

func (g *fakeGateway) Reply(ctx context.Context, prompt string) (string, error) {
	return g.reply, g.replyErr
}

func (g *fakeGateway) GenerateImage(ctx context.Context, prompt string) (string, error) {
	g.imagePrompts = append(g.imagePrompts, prompt)
	return g.image, g.imageErr
}

type fakeSubmitter struct {
	drafts []models.Draft
	err    error
}

func (s *fakeSubmitter) Submit(ctx context.Context, d models.Draft) (lifecycle.Result, error) {
	if s.err != nil {
		return lifecycle.Result{}, s.err
	}
	s.drafts = append(s.drafts, d)
	return lifecycle.Result{Kind: lifecycle.KindCommitted, ID: "m1"}, nil
}

type composingRecorder struct {
	lifecycle.NopNotifier
	mu     sync.Mutex
	events []bool
	peers  []string
}

func (c *composingRecorder) ComposingChanged(peer string, on bool) {
	c.mu.Lock()
	c.events = append(c.events, on)
	c.peers = append(c.peers, peer)
	c.mu.Unlock()
}

func newDispatcher(gw *fakeGateway, cfg Config) (*Dispatcher, *fakeSubmitter, *composingRecorder) {
	sub := &fakeSubmitter{}
	rec := &composingRecorder{}
	return NewDispatcher(gw, sub, rec, logging.Nop(), cfg), sub, rec
}

func TestDispatch_ImageMarkerRoutesToImagePath(t *testing.T) {
	gw := &fakeGateway{reply: "[IMAGE_GEN] a red cube", image: "data:image/png;base64,AA=="}
	d, sub, rec := newDispatcher(gw, Config{})

	res, ok := d.Dispatch(context.Background(), "u_1", "draw me a red cube")

	require.True(t, ok)
	assert.True(t, res.Committed())
	assert.Equal(t, []string{"a red cube"}, gw.imagePrompts)
	require.Len(t, sub.drafts, 1)
	assert.Equal(t, models.Draft{
		From:       "ai",
		To:         "u_1",
		Text:       DefaultImageCaption,
		Type:       models.MessageTypeImage,
		Attachment: "data:image/png;base64,AA==",
		IsRead:     true,
	}, sub.drafts[0])
	assert.Equal(t, []bool{true, false}, rec.events)
	assert.Equal(t, []string{"ai", "ai"}, rec.peers)
}

func TestDispatch_PlainTextEmitsOneAIMessage(t *testing.T) {
	gw := &fakeGateway{reply: "hello"}
	d, sub, rec := newDispatcher(gw, Config{})

	_, ok := d.Dispatch(context.Background(), "u_1", "hi")

	require.True(t, ok)
	assert.Empty(t, gw.imagePrompts)
	require.Len(t, sub.drafts, 1)
	assert.Equal(t, models.Draft{From: "ai", To: "u_1", Text: "hello", Type: models.MessageTypeAI, IsRead: true}, sub.drafts[0])
	assert.False(t, sub.drafts[0].Track, "replies are not status-tracked")
	assert.Equal(t, []bool{true, false}, rec.events)
}

func TestDispatch_SilentOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		gw         *fakeGateway
		imageCalls int
	}{
		{"text gateway error", &fakeGateway{replyErr: errors.New("quota")}, 0},
		{"image gateway error", &fakeGateway{reply: "[IMAGE_GEN] cat", imageErr: errors.New("quota")}, 1},
		{"empty image payload", &fakeGateway{reply: "[IMAGE_GEN] cat"}, 1},
		{"marker without prompt", &fakeGateway{reply: "[IMAGE_GEN]  "}, 0},
		{"blank text reply", &fakeGateway{reply: "   "}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &fakeSubmitter{}
			if tt.name == "blank text reply" {
				sub.err = lifecycle.ErrEmptyBody
			}
			rec := &composingRecorder{}
			d := NewDispatcher(tt.gw, sub, rec, logging.Nop(), Config{})

			_, ok := d.Dispatch(context.Background(), "u_1", "prompt")

			assert.False(t, ok)
			assert.Empty(t, sub.drafts)
			assert.Len(t, tt.gw.imagePrompts, tt.imageCalls)
			assert.Equal(t, []bool{true, false}, rec.events, "composing must be switched off on every path")
		})
	}
}

func TestDispatch_FallbackOnGatewayError(t *testing.T) {
	gw := &fakeGateway{replyErr: errors.New("quota")}
	d, sub, _ := newDispatcher(gw, Config{Fallback: "Sorry, try again later."})

	_, ok := d.Dispatch(context.Background(), "u_1", "hi")

	require.True(t, ok)
	require.Len(t, sub.drafts, 1)
	assert.Equal(t, "Sorry, try again later.", sub.drafts[0].Text)
	assert.Equal(t, models.MessageTypeAI, sub.drafts[0].Type)
}

func TestDispatch_CustomIdentityAndCaption(t *testing.T) {
	gw := &fakeGateway{reply: "[IMAGE_GEN] x", image: "https://img"}
	d, sub, _ := newDispatcher(gw, Config{AssistantID: "bot", ImageCaption: "Here:"})

	_, ok := d.Dispatch(context.Background(), "u_1", "x")
	require.True(t, ok)
	assert.Equal(t, "bot", sub.drafts[0].From)
	assert.Equal(t, "Here:", sub.drafts[0].Text)
	assert.Equal(t, "bot", d.AssistantID())
}

func TestHandle_WrapsGatewayError(t *testing.T) {
	boom := errors.New("boom")
	d, _, _ := newDispatcher(&fakeGateway{replyErr: boom}, Config{})

	_, err := d.Handle(context.Background(), "x")
	assert.ErrorIs(t, err, boom)

	d, _, _ = newDispatcher(&fakeGateway{reply: "ok"}, Config{})
	r, err := d.Handle(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, TextReply{Body: "ok"}, r)
}
