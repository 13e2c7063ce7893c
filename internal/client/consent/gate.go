// Package consent decides how much of a contact's phone number a viewer
// may see and records one-way disclosure grants.
package consent

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrijs2005/hawachat/internal/common"
	"github.com/dmitrijs2005/hawachat/internal/logging"
	"github.com/dmitrijs2005/hawachat/internal/models"
	"github.com/dmitrijs2005/hawachat/internal/store"
)

const (
	DefaultMask           = "****"
	DefaultVisiblePrefix  = 3
	DefaultVisibleSuffix  = 3
	DefaultAssistantLabel = "AI bot"
)

// Config tunes masking. Zero values fall back to the defaults above;
// AssistantPhone defaults to common.AssistantPhone.
type Config struct {
	OperatorPhones []string
	AssistantPhone string
	AssistantLabel string
	Mask           string
	VisiblePrefix  int
	VisibleSuffix  int
}

type Gate struct {
	users     store.IdentityStore
	log       logging.Logger
	operators map[string]struct{}
	cfg       Config
}

func NewGate(users store.IdentityStore, cfg Config, log logging.Logger) *Gate {
	if cfg.AssistantPhone == "" {
		cfg.AssistantPhone = common.AssistantPhone
	}
	if cfg.AssistantLabel == "" {
		cfg.AssistantLabel = DefaultAssistantLabel
	}
	if cfg.Mask == "" {
		cfg.Mask = DefaultMask
	}
	if cfg.VisiblePrefix <= 0 {
		cfg.VisiblePrefix = DefaultVisiblePrefix
	}
	if cfg.VisibleSuffix <= 0 {
		cfg.VisibleSuffix = DefaultVisibleSuffix
	}

	ops := make(map[string]struct{}, len(cfg.OperatorPhones))
	for _, p := range cfg.OperatorPhones {
		ops[p] = struct{}{}
	}

	return &Gate{users: users, log: log.With("module", "consent"), operators: ops, cfg: cfg}
}

// IsOperator reports whether u logs in with an operator phone.
func (g *Gate) IsOperator(u models.User) bool {
	_, ok := g.operators[u.Phone]
	return ok
}

// ResolvePhone returns the phone string viewer may see for contact.
// Rules apply in order: operators see everything, the assistant shows a
// fixed label, consented viewers see the raw number, everyone else gets a
// masked one.
func (g *Gate) ResolvePhone(viewer, contact models.User) string {
	switch {
	case g.IsOperator(viewer):
		return contact.Phone
	case contact.Phone == g.cfg.AssistantPhone:
		return g.cfg.AssistantLabel
	case contact.HasConsented(viewer.ID):
		return contact.Phone
	}
	return g.mask(contact.Phone)
}

// mask keeps the first and last few runes. Numbers too short to keep both
// ends apart are masked entirely, one '*' per rune.
func (g *Gate) mask(phone string) string {
	r := []rune(phone)
	if len(r) < g.cfg.VisiblePrefix+g.cfg.VisibleSuffix {
		return strings.Repeat("*", len(r))
	}
	return string(r[:g.cfg.VisiblePrefix]) + g.cfg.Mask + string(r[len(r)-g.cfg.VisibleSuffix:])
}

// GrantConsent lets viewerID see contactID's raw phone from now on.
// Granting twice stores nothing new.
func (g *Gate) GrantConsent(ctx context.Context, contactID, viewerID string) (models.User, error) {
	if viewerID == "" {
		return models.User{}, fmt.Errorf("%w: empty viewer id", common.ErrorValidation)
	}

	contact, err := g.users.GetUser(ctx, contactID)
	if err != nil {
		return models.User{}, err
	}

	updated, changed := contact.WithConsent(viewerID)
	if !changed {
		return contact, nil
	}

	if err := g.users.PutUser(ctx, updated); err != nil {
		g.log.Error(ctx, "grant consent failed", "contact", contactID, "viewer", viewerID, "error", err)
		return models.User{}, err
	}
	g.log.Info(ctx, "consent granted", "contact", contactID, "viewer", viewerID)
	return updated, nil
}

// Operators returns the configured operator phones, sorted.
func (g *Gate) Operators() []string {
	out := make([]string, 0, len(g.operators))
	for p := range g.operators {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}
