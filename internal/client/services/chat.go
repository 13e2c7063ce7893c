// Package services holds the client's application facade. ChatService
// ties the consent gate, the message lifecycle engine and the assistant
// dispatcher to one logged-in participant.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/hawachat/internal/client/assistant"
	"github.com/dmitrijs2005/hawachat/internal/client/config"
	"github.com/dmitrijs2005/hawachat/internal/client/consent"
	"github.com/dmitrijs2005/hawachat/internal/client/lifecycle"
	"github.com/dmitrijs2005/hawachat/internal/common"
	"github.com/dmitrijs2005/hawachat/internal/logging"
	"github.com/dmitrijs2005/hawachat/internal/models"
	"github.com/dmitrijs2005/hawachat/internal/store"
)

const (
	DefaultUserName   = "New user"
	DefaultUserStatus = "Available ✅"
)

var (
	ErrEmptyPhone     = fmt.Errorf("%w: phone is required", common.ErrorValidation)
	ErrNotLoggedIn    = fmt.Errorf("%w: not logged in", common.ErrorUnauthorized)
	ErrUnknownCommand = fmt.Errorf("%w: unknown command", common.ErrorValidation)
)

// Authenticator is implemented by stores that need a session token.
type Authenticator interface {
	Login(ctx context.Context, id, phone string) error
	Logout()
}

// Pinger is implemented by stores that can lose connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Option func(*lifecycle.Options)

// WithScheduler replaces the timer used for delivered/read transitions.
func WithScheduler(s lifecycle.Scheduler) Option {
	return func(o *lifecycle.Options) { o.Scheduler = s }
}

type ChatService struct {
	cfg        *config.Config
	store      store.Store
	engine     *lifecycle.Engine
	gate       *consent.Gate
	dispatcher *assistant.Dispatcher
	log        logging.Logger
	now        func() time.Time

	builtins   []models.User
	autoRead   map[string]struct{}
	operators  map[string]config.Operator
	dispatches sync.WaitGroup

	mu      sync.RWMutex
	current *models.User
	unwatch store.Unsubscribe
}

func NewChatService(st store.Store, gw assistant.Gateway, notifier lifecycle.Notifier, cfg *config.Config, log logging.Logger, opts ...Option) *ChatService {
	if notifier == nil {
		notifier = lifecycle.NopNotifier{}
	}

	s := &ChatService{
		cfg:       cfg,
		store:     st,
		log:       log.With("module", "chat"),
		now:       time.Now,
		autoRead:  map[string]struct{}{common.AssistantID: {}},
		operators: make(map[string]config.Operator, len(cfg.Operators)),
	}
	s.builtins = s.builtinUsers()
	for _, op := range cfg.Operators {
		s.operators[op.Phone] = op
		s.autoRead[op.ID] = struct{}{}
	}

	lo := lifecycle.Options{
		DeliveredDelay: cfg.DeliveredDelay,
		ReadDelay:      cfg.ReadDelay,
		AutoReadRecipient: func(to string) bool {
			_, ok := s.autoRead[to]
			return ok
		},
		Notifier: notifier,
	}
	for _, opt := range opts {
		opt(&lo)
	}

	s.engine = lifecycle.NewEngine(st, log, lo)
	s.gate = consent.NewGate(st, consent.Config{
		OperatorPhones: cfg.OperatorPhones(),
		AssistantLabel: cfg.AssistantLabel,
	}, log)
	s.dispatcher = assistant.NewDispatcher(gw, s.engine, notifier, log, assistant.Config{
		Fallback: cfg.AssistantFallback,
	})
	return s
}

func (s *ChatService) builtinUsers() []models.User {
	now := s.now()
	out := []models.User{{
		ID:         common.AssistantID,
		Name:       s.cfg.AssistantName,
		Phone:      common.AssistantPhone,
		IsOnline:   true,
		LastSeen:   now,
		Status:     "Always active ✨",
		Bio:        "Your smart assistant, powered by Gemini.",
		Avatar:     "🤖",
		Role:       models.RoleAI,
		IsVerified: true,
	}}
	for _, op := range s.cfg.Operators {
		out = append(out, models.User{
			ID:         op.ID,
			Name:       op.Name,
			Phone:      op.Phone,
			IsOnline:   true,
			LastSeen:   now,
			Status:     op.Status,
			Bio:        op.Bio,
			Avatar:     op.Avatar,
			Role:       models.RoleAdmin,
			IsVerified: true,
		})
	}
	return out
}

// Engine exposes the lifecycle engine for read-only views.
func (s *ChatService) Engine() *lifecycle.Engine { return s.engine }

// Current returns the logged-in user.
func (s *ChatService) Current() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return models.User{}, false
	}
	return s.current.Clone(), true
}

func (s *ChatService) currentUser() (models.User, error) {
	u, ok := s.Current()
	if !ok {
		return models.User{}, ErrNotLoggedIn
	}
	return u, nil
}

// Login opens a session for phone. Operator phones map to their fixed
// accounts. A returning user keeps consents and verification. Store
// failures are logged and the session opens anyway.
func (s *ChatService) Login(ctx context.Context, phone, name string) (models.User, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return models.User{}, ErrEmptyPhone
	}
	name = strings.TrimSpace(name)

	u := models.User{
		ID:       "u_" + phone,
		Name:     DefaultUserName,
		Phone:    phone,
		IsOnline: true,
		LastSeen: s.now(),
		Status:   DefaultUserStatus,
		Role:     models.RoleUser,
	}
	if op, ok := s.operators[phone]; ok {
		u.ID = op.ID
		u.Name = op.Name
		u.Role = models.RoleAdmin
		u.IsVerified = true
		u.Bio = op.Bio
		u.Status = op.Status
	}
	if name != "" {
		u.Name = name
	}
	u.Avatar = firstRune(u.Name)
	if op, ok := s.operators[phone]; ok && name == "" && op.Avatar != "" {
		u.Avatar = op.Avatar
	}

	if a, ok := s.store.(Authenticator); ok {
		if err := a.Login(ctx, u.ID, phone); err != nil {
			s.log.Error(ctx, "store login failed", "id", u.ID, "error", err)
		}
	}

	if prev, err := s.store.GetUser(ctx, u.ID); err == nil {
		u.ConsentedViewers = prev.ConsentedViewers
		u.IsVerified = u.IsVerified || prev.IsVerified
		if u.Bio == "" {
			u.Bio = prev.Bio
		}
	} else if !errors.Is(err, common.ErrorNotFound) {
		s.log.Warn(ctx, "load existing user failed", "id", u.ID, "error", err)
	}

	if err := s.store.PutUser(ctx, u); err != nil {
		s.log.Error(ctx, "save user failed", "id", u.ID, "error", err)
	}
	if err := s.store.UpdatePresence(ctx, u.ID, true); err != nil {
		s.log.Warn(ctx, "presence update failed", "id", u.ID, "error", err)
	}

	s.mu.Lock()
	cur := u.Clone()
	s.current = &cur
	s.mu.Unlock()

	s.engine.Start(ctx)
	s.watch(ctx, u.ID)

	s.log.Info(ctx, "logged in", "id", u.ID, "role", u.Role)
	return u, nil
}

// watch keeps the current user record in sync with the store.
func (s *ChatService) watch(ctx context.Context, id string) {
	unwatch, err := s.store.SubscribeUser(ctx, id, func(u *models.User) {
		if u == nil {
			return
		}
		s.mu.Lock()
		if s.current != nil && s.current.ID == u.ID {
			c := u.Clone()
			s.current = &c
		}
		s.mu.Unlock()
	})
	if err != nil {
		s.log.Warn(ctx, "watch current user failed", "id", id, "error", err)
		return
	}

	s.mu.Lock()
	prev := s.unwatch
	s.unwatch = unwatch
	s.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// Logout marks the user offline and stops the streams. Scheduled status
// transitions and in-flight assistant replies may still land.
func (s *ChatService) Logout(ctx context.Context) error {
	s.mu.Lock()
	cur := s.current
	unwatch := s.unwatch
	s.current = nil
	s.unwatch = nil
	s.mu.Unlock()

	if cur == nil {
		return nil
	}

	if err := s.store.UpdatePresence(ctx, cur.ID, false); err != nil {
		s.log.Warn(ctx, "presence update failed", "id", cur.ID, "error", err)
	}
	s.engine.Stop()
	if unwatch != nil {
		unwatch()
	}
	if a, ok := s.store.(Authenticator); ok {
		a.Logout()
	}

	s.log.Info(ctx, "logged out", "id", cur.ID)
	return nil
}

// Directory lists built-in accounts first, then store users; the first
// record per id wins. A stored copy of a built-in account replaces the
// fixed one. A store failure yields just the built-ins.
func (s *ChatService) Directory(ctx context.Context) []models.User {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		s.log.Warn(ctx, "list users failed", "error", err)
		users = nil
	}
	stored := make(map[string]models.User, len(users))
	for _, u := range users {
		if _, ok := stored[u.ID]; !ok {
			stored[u.ID] = u
		}
	}

	out := make([]models.User, 0, len(s.builtins)+len(users))
	seen := make(map[string]struct{})
	for _, u := range s.builtins {
		seen[u.ID] = struct{}{}
		if su, ok := stored[u.ID]; ok {
			out = append(out, su)
			continue
		}
		out = append(out, u.Clone())
	}
	for _, u := range users {
		if _, ok := seen[u.ID]; ok {
			continue
		}
		seen[u.ID] = struct{}{}
		out = append(out, u)
	}
	return out
}

func (s *ChatService) builtin(id string) (models.User, bool) {
	for _, u := range s.builtins {
		if u.ID == id {
			return u.Clone(), true
		}
	}
	return models.User{}, false
}

// Lookup finds a user in the store, falling back to the built-in
// accounts when the store has no record.
func (s *ChatService) Lookup(ctx context.Context, id string) (models.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		if b, ok := s.builtin(id); ok {
			return b, nil
		}
	}
	return u, err
}

// Send submits a text message with delivery tracking. A committed message
// to the assistant triggers a reply in the background.
func (s *ChatService) Send(ctx context.Context, to, text string) (lifecycle.Result, error) {
	cur, err := s.currentUser()
	if err != nil {
		return lifecycle.Result{}, err
	}

	res, err := s.engine.Submit(ctx, models.Draft{
		From:  cur.ID,
		To:    to,
		Text:  text,
		Type:  models.MessageTypeText,
		Track: true,
	})
	if err != nil {
		return res, err
	}

	if res.Committed() && to == s.dispatcher.AssistantID() {
		s.dispatches.Add(1)
		go func() {
			defer s.dispatches.Done()
			s.dispatcher.Dispatch(context.WithoutCancel(ctx), cur.ID, text)
		}()
	}
	return res, nil
}

// SendImage submits an image message. dataURI carries the payload.
func (s *ChatService) SendImage(ctx context.Context, to, caption, dataURI string) (lifecycle.Result, error) {
	cur, err := s.currentUser()
	if err != nil {
		return lifecycle.Result{}, err
	}

	return s.engine.Submit(ctx, models.Draft{
		From:       cur.ID,
		To:         to,
		Text:       caption,
		Type:       models.MessageTypeImage,
		Attachment: dataURI,
		Track:      true,
	})
}

// Conversation returns the view between the current user and peerID.
func (s *ChatService) Conversation(peerID string) []models.Message {
	cur, ok := s.Current()
	if !ok {
		return []models.Message{}
	}
	return s.engine.ConversationView(cur.ID, peerID)
}

// ContactPhone returns the phone the current user may see for peerID.
func (s *ChatService) ContactPhone(ctx context.Context, peerID string) (string, error) {
	cur, err := s.currentUser()
	if err != nil {
		return "", err
	}
	contact, err := s.Lookup(ctx, peerID)
	if err != nil {
		return "", err
	}
	return s.gate.ResolvePhone(cur, contact), nil
}

// RequestPhone records that peerID's phone is disclosed to the current user.
// A built-in account without a stored record is saved first.
func (s *ChatService) RequestPhone(ctx context.Context, peerID string) (models.User, error) {
	cur, err := s.currentUser()
	if err != nil {
		return models.User{}, err
	}
	if _, err := s.store.GetUser(ctx, peerID); errors.Is(err, common.ErrorNotFound) {
		if b, ok := s.builtin(peerID); ok {
			if err := s.store.PutUser(ctx, b); err != nil {
				return models.User{}, err
			}
		}
	}
	return s.gate.GrantConsent(ctx, peerID, cur.ID)
}

// Resume reopens the live streams after connectivity returns. A healthy
// message stream is kept; the current user watch is always reopened.
func (s *ChatService) Resume(ctx context.Context) {
	cur, ok := s.Current()
	if !ok {
		return
	}
	s.engine.Start(ctx)
	s.watch(ctx, cur.ID)
}

// ToggleVerification flips userID's verified flag. Only the verifier
// account may do this.
func (s *ChatService) ToggleVerification(ctx context.Context, userID string) (models.User, error) {
	cur, err := s.currentUser()
	if err != nil {
		return models.User{}, err
	}
	if cur.Phone != s.cfg.VerifierPhone {
		return models.User{}, fmt.Errorf("%w: verification is restricted", common.ErrorUnauthorized)
	}

	target, err := s.Lookup(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	target.IsVerified = !target.IsVerified
	if err := s.store.PutUser(ctx, target); err != nil {
		return models.User{}, err
	}

	s.log.Info(ctx, "verification toggled", "id", userID, "verified", target.IsVerified)
	return target, nil
}

// Console runs a developer console line: "verify <phone>", "logout" or
// "clear". It returns a short human-readable outcome.
func (s *ChatService) Console(ctx context.Context, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", ErrUnknownCommand
	}

	switch fields[0] {
	case "verify":
		if len(fields) < 2 {
			return "", fmt.Errorf("%w: usage: verify <phone>", common.ErrorValidation)
		}
		for _, u := range s.Directory(ctx) {
			if u.Phone != fields[1] {
				continue
			}
			updated, err := s.ToggleVerification(ctx, u.ID)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s verified=%t", updated.ID, updated.IsVerified), nil
		}
		return "", fmt.Errorf("%w: no user with phone %s", common.ErrorNotFound, fields[1])
	case "logout":
		return "logged out", s.Logout(ctx)
	case "clear":
		s.engine.ClearLocal()
		return "cleared", nil
	}
	return "", ErrUnknownCommand
}

// Ping reports store reachability. Stores without a connection are
// always reachable.
func (s *ChatService) Ping(ctx context.Context) error {
	if p, ok := s.store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Wait blocks until background replies and scheduled transitions finish.
func (s *ChatService) Wait() {
	s.dispatches.Wait()
	s.engine.Wait()
}

func firstRune(s string) string {
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return ""
	}
	return string(r)
}
