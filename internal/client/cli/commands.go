package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/hawachat/internal/client/lifecycle"
	"github.com/dmitrijs2005/hawachat/internal/common"
)

var ErrNoConversation = fmt.Errorf("%w: no conversation open, use open <id>", common.ErrorValidation)

func (a *App) Login(ctx context.Context) error {
	phone, err := GetSimpleText(a.input, "Phone number", a.out)
	if err != nil {
		return err
	}
	// A missing name line keeps the default.
	name, _ := GetSimpleText(a.input, "Display name (empty for default)", a.out)

	u, err := a.chat.Login(ctx, phone, name)
	if err != nil {
		return err
	}
	a.setPeer("")
	a.printf("Logged in as %s (%s)\n", u.Name, u.ID)
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	a.setPeer("")
	if err := a.chat.Logout(ctx); err != nil {
		return err
	}
	a.printf("Logged out\n")
	return nil
}

func (a *App) Users(ctx context.Context) error {
	cur, _ := a.chat.Current()
	for _, u := range a.chat.Directory(ctx) {
		if u.ID == cur.ID {
			continue
		}
		presence := "offline"
		if u.IsOnline {
			presence = "online"
		}
		a.printf("%-16s %s %s (%s)\n", u.ID, u.Avatar, u.Name, presence)
	}
	return nil
}

func (a *App) Open(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: usage: open <id>", common.ErrorValidation)
	}
	u, err := a.chat.Lookup(ctx, args[0])
	if err != nil {
		return err
	}
	a.setPeer(u.ID)
	a.printf("Chatting with %s %s\n", u.Avatar, u.Name)
	return a.History(ctx)
}

func (a *App) requirePeer() (string, error) {
	p := a.openPeer()
	if p == "" {
		return "", ErrNoConversation
	}
	return p, nil
}

func (a *App) reportSend(res lifecycle.Result) {
	if res.Committed() {
		a.printf("sent ✓\n")
		return
	}
	a.printf("could not reach the store, message kept locally (%s)\n", res.Kind)
}

func (a *App) Send(ctx context.Context, text string) error {
	peer, err := a.requirePeer()
	if err != nil {
		return err
	}
	res, err := a.chat.Send(ctx, peer, text)
	if err != nil {
		return err
	}
	a.reportSend(res)
	return nil
}

func (a *App) SendImage(ctx context.Context, args []string) error {
	peer, err := a.requirePeer()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("%w: usage: sendimg <file> [caption]", common.ErrorValidation)
	}
	uri, err := LoadImage(args[0])
	if err != nil {
		return err
	}
	res, err := a.chat.SendImage(ctx, peer, strings.Join(args[1:], " "), uri)
	if err != nil {
		return err
	}
	a.reportSend(res)
	return nil
}

func (a *App) History(ctx context.Context) error {
	peer, err := a.requirePeer()
	if err != nil {
		return err
	}
	cur, _ := a.chat.Current()

	msgs := a.chat.Conversation(peer)
	a.printf("%s\n", strings.Repeat("-", min(terminalWidth(), 80)))
	if len(msgs) == 0 {
		a.printf("no messages yet\n")
		return nil
	}
	for _, m := range msgs {
		line := formatMessage(m, cur.ID)
		if lifecycle.IsLocal(m.ID) {
			line += "  (not sent)"
		}
		a.printf("%s\n", line)
	}
	return nil
}

// target returns the explicit id argument or the open conversation.
func (a *App) target(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	return a.requirePeer()
}

func (a *App) Info(ctx context.Context, args []string) error {
	id, err := a.target(args)
	if err != nil {
		return err
	}
	u, err := a.chat.Lookup(ctx, id)
	if err != nil {
		return err
	}
	phone, err := a.chat.ContactPhone(ctx, id)
	if err != nil {
		return err
	}
	a.printf("%s\n", formatUser(u, phone))
	return nil
}

// Phone asks for a contact's phone. Disclosure is granted immediately and
// stays in place.
func (a *App) Phone(ctx context.Context, args []string) error {
	id, err := a.target(args)
	if err != nil {
		return err
	}
	if _, err := a.chat.RequestPhone(ctx, id); err != nil {
		return err
	}
	phone, err := a.chat.ContactPhone(ctx, id)
	if err != nil {
		return err
	}
	a.printf("%s: %s\n", id, phone)
	return nil
}

func (a *App) Verify(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: usage: verify <phone>", common.ErrorValidation)
	}
	return a.Console(ctx, "verify "+args[0])
}

func (a *App) Console(ctx context.Context, line string) error {
	out, err := a.chat.Console(ctx, line)
	if err != nil {
		return err
	}
	if strings.TrimSpace(line) == "logout" {
		a.setPeer("")
	}
	a.printf("%s\n", out)
	return nil
}

func (a *App) Clear(ctx context.Context) error {
	return a.Console(ctx, "clear")
}
