package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/hawachat/internal/client/assistant"
	"github.com/dmitrijs2005/hawachat/internal/client/client"
	"github.com/dmitrijs2005/hawachat/internal/client/config"
	"github.com/dmitrijs2005/hawachat/internal/client/gateway"
	"github.com/dmitrijs2005/hawachat/internal/client/services"
	"github.com/dmitrijs2005/hawachat/internal/logging"
	"github.com/dmitrijs2005/hawachat/internal/store"
	"github.com/dmitrijs2005/hawachat/internal/store/sqlstore"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// openStore builds the message store selected by config. Tests replace it.
var openStore = func(ctx context.Context, c *config.Config, log logging.Logger) (store.Store, error) {
	if c.StoreMode == config.StoreModeLocal {
		return sqlstore.Open(ctx, sqlstore.DialectSQLite, c.LocalDBPath, log)
	}
	return client.NewGRPCClient(c.ServerEndpointAddr, log)
}

type App struct {
	config *config.Config
	chat   *services.ChatService
	store  store.Store
	log    logging.Logger
	out    io.Writer
	input  *bufio.Scanner

	mu   sync.RWMutex
	mode Mode
	peer string
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	log := logging.NewText(os.Stderr, logging.ParseLevel(c.LogLevel))

	st, err := openStore(ctx, c, log)
	if err != nil {
		log.Error(ctx, "error opening store", "mode", c.StoreMode, "error", err)
		return nil, err
	}

	gw := gateway.NewGemini(gateway.Config{
		APIKey:     c.GeminiAPIKey,
		BaseURL:    c.GeminiBaseURL,
		TextModel:  c.GeminiTextModel,
		ImageModel: c.GeminiImageModel,
		Timeout:    c.GeminiTimeout,
	}, log)
	if gw.DevMode() {
		log.Warn(ctx, "no Gemini API key, assistant runs in development mode")
	}

	return newApp(c, st, gw, log, os.Stdin, os.Stdout), nil
}

func newApp(c *config.Config, st store.Store, gw assistant.Gateway, log logging.Logger, in io.Reader, out io.Writer) *App {
	a := &App{
		config: c,
		store:  st,
		log:    log,
		out:    out,
		input:  bufio.NewScanner(in),
	}
	a.chat = services.NewChatService(st, gw, &printNotifier{app: a}, c, log)
	return a
}

// setMode switches the mode and returns the previous one.
func (a *App) setMode(mode Mode) Mode {
	a.mu.Lock()
	prev := a.mode
	a.mode = mode
	a.mu.Unlock()
	if prev != mode {
		a.printf("Switched to %s mode\n", mode)
	}
	return prev
}

func (a *App) currentMode() Mode {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.mode
}

func (a *App) openPeer() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.peer
}

func (a *App) setPeer(id string) {
	a.mu.Lock()
	a.peer = id
	a.mu.Unlock()
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// Run starts the REPL and blocks until the user exits or ctx is done.
func (a *App) Run(ctx context.Context) {
	defer func() {
		_ = a.chat.Logout(context.WithoutCancel(ctx))
		a.chat.Wait()
		if err := a.store.Close(); err != nil {
			a.log.Warn(ctx, "closing store", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	a.printf("Welcome to Hawa Sawa (type 'help' for commands)\n")
	runREPL(ctx, a, a.getStatus, a.input, isInteractive())
}

func (a *App) isLoggedIn() bool {
	_, ok := a.chat.Current()
	return ok
}

// checkOnline pings the store and reopens the live streams when the
// connection comes back.
func (a *App) checkOnline(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := a.chat.Ping(pctx); err != nil {
		a.setMode(ModeOffline)
		return
	}
	if a.setMode(ModeOnline) == ModeOffline {
		a.chat.Resume(ctx)
	}
}

func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	a.checkOnline(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) getStatus() string {
	s := ""
	if u, ok := a.chat.Current(); ok {
		s = u.Name + " "
	}
	if p := a.openPeer(); p != "" {
		s = s + "@" + p + " "
	}
	if m := a.currentMode(); m != "" {
		s = s + string(m)
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}
