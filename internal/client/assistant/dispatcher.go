package assistant

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/hawachat/internal/client/lifecycle"
	"github.com/dmitrijs2005/hawachat/internal/common"
	"github.com/dmitrijs2005/hawachat/internal/logging"
	"github.com/dmitrijs2005/hawachat/internal/models"
)

const DefaultImageCaption = "Image generated successfully:"

// Gateway is the model backend. GenerateImage returns an empty payload
// when the model produced nothing usable.
type Gateway interface {
	Reply(ctx context.Context, prompt string) (string, error)
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// Submitter is the part of the lifecycle engine the dispatcher writes through.
type Submitter interface {
	Submit(ctx context.Context, d models.Draft) (lifecycle.Result, error)
}

type Config struct {
	// AssistantID authors the replies. Defaults to common.AssistantID.
	AssistantID  string
	ImageCaption string
	// Fallback, when set, is sent as a text reply after a gateway error.
	Fallback string
}

type Dispatcher struct {
	gw       Gateway
	sub      Submitter
	notifier lifecycle.Notifier
	log      logging.Logger
	cfg      Config
}

func NewDispatcher(gw Gateway, sub Submitter, notifier lifecycle.Notifier, log logging.Logger, cfg Config) *Dispatcher {
	if cfg.AssistantID == "" {
		cfg.AssistantID = common.AssistantID
	}
	if cfg.ImageCaption == "" {
		cfg.ImageCaption = DefaultImageCaption
	}
	if notifier == nil {
		notifier = lifecycle.NopNotifier{}
	}
	return &Dispatcher{gw: gw, sub: sub, notifier: notifier, log: log.With("module", "assistant"), cfg: cfg}
}

// AssistantID returns the account replies are sent from.
func (d *Dispatcher) AssistantID() string {
	return d.cfg.AssistantID
}

// Handle asks the gateway for a reply to prompt and routes it.
func (d *Dispatcher) Handle(ctx context.Context, prompt string) (Reply, error) {
	text, err := d.gw.Reply(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("assistant reply: %w", err)
	}
	return ParseReply(text), nil
}

// Dispatch answers prompt from senderID and reports the emitted reply, if
// any. Failures are logged, never returned: the sender simply gets no
// answer. The composing indicator is on for the whole call.
func (d *Dispatcher) Dispatch(ctx context.Context, senderID, prompt string) (lifecycle.Result, bool) {
	d.notifier.ComposingChanged(d.cfg.AssistantID, true)
	defer d.notifier.ComposingChanged(d.cfg.AssistantID, false)

	reply, err := d.Handle(ctx, prompt)
	if err != nil {
		d.log.Error(ctx, "gateway text call failed", "to", senderID, "error", err)
		return d.fallback(ctx, senderID)
	}

	switch r := reply.(type) {
	case ImageReply:
		return d.dispatchImage(ctx, senderID, r.Prompt)
	case TextReply:
		return d.submit(ctx, models.Draft{
			From:   d.cfg.AssistantID,
			To:     senderID,
			Text:   r.Body,
			Type:   models.MessageTypeAI,
			IsRead: true,
		})
	}
	return lifecycle.Result{}, false
}

func (d *Dispatcher) dispatchImage(ctx context.Context, senderID, prompt string) (lifecycle.Result, bool) {
	if prompt == "" {
		d.log.Warn(ctx, "image request without prompt", "to", senderID)
		return lifecycle.Result{}, false
	}

	payload, err := d.gw.GenerateImage(ctx, prompt)
	if err != nil {
		d.log.Error(ctx, "gateway image call failed", "to", senderID, "error", err)
		return d.fallback(ctx, senderID)
	}
	if payload == "" {
		d.log.Warn(ctx, "image generation returned nothing", "to", senderID)
		return lifecycle.Result{}, false
	}

	return d.submit(ctx, models.Draft{
		From:       d.cfg.AssistantID,
		To:         senderID,
		Text:       d.cfg.ImageCaption,
		Type:       models.MessageTypeImage,
		Attachment: payload,
		IsRead:     true,
	})
}

func (d *Dispatcher) fallback(ctx context.Context, senderID string) (lifecycle.Result, bool) {
	if d.cfg.Fallback == "" {
		return lifecycle.Result{}, false
	}
	return d.submit(ctx, models.Draft{
		From:   d.cfg.AssistantID,
		To:     senderID,
		Text:   d.cfg.Fallback,
		Type:   models.MessageTypeAI,
		IsRead: true,
	})
}

func (d *Dispatcher) submit(ctx context.Context, draft models.Draft) (lifecycle.Result, bool) {
	res, err := d.sub.Submit(ctx, draft)
	if err != nil {
		d.log.Error(ctx, "assistant reply rejected", "to", draft.To, "type", draft.Type, "error", err)
		return lifecycle.Result{}, false
	}
	return res, true
}
