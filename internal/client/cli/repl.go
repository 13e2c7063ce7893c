package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	Users(ctx context.Context) error
	Open(ctx context.Context, args []string) error
	Send(ctx context.Context, text string) error
	SendImage(ctx context.Context, args []string) error
	History(ctx context.Context) error
	Info(ctx context.Context, args []string) error
	Phone(ctx context.Context, args []string) error
	Verify(ctx context.Context, args []string) error
	Console(ctx context.Context, line string) error
	Clear(ctx context.Context) error
	Logout(ctx context.Context) error
}

// runREPL reads commands line by line and dispatches them to a. The loop
// exits on EOF, on "exit" or "quit", or when ctx is done. The prompt is
// only printed for interactive input.
//
//	Not logged in:
//	  help, login, exit | quit
//
//	Logged in:
//	  users              list the directory
//	  open <id>          open a conversation
//	  send <text>        send to the open conversation (also: s <text>)
//	  sendimg <file> [caption]
//	  history            show the open conversation
//	  info [id]          contact card
//	  phone [id]         reveal your phone to a contact
//	  verify <phone>     toggle verification (verifier only)
//	  console <line>     developer console
//	  clear              drop local-only messages
//	  logout
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner, interactive bool) {
	for {
		if ctx.Err() != nil {
			return
		}
		if interactive {
			fmt.Printf("hawa %s> ", statusFn())
		}
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]
		args := parts[1:]
		rest := strings.TrimSpace(strings.TrimPrefix(line, cmd))

		if cmd == "exit" || cmd == "quit" {
			printlnFn("Bye!")
			return
		}
		if cmd == "help" {
			if a.isLoggedIn() {
				printlnFn("Available commands: users, open, (s)end, sendimg, history, info, phone, verify, console, clear, logout, exit")
			} else {
				printlnFn("Available commands: login, exit")
			}
			continue
		}
		if cmd != "login" && !a.isLoggedIn() {
			printlnFn("Please login first")
			continue
		}

		var err error
		switch cmd {
		case "login":
			err = a.Login(ctx)
		case "users":
			err = a.Users(ctx)
		case "open":
			err = a.Open(ctx, args)
		case "s", "send":
			err = a.Send(ctx, rest)
		case "sendimg":
			err = a.SendImage(ctx, args)
		case "history":
			err = a.History(ctx)
		case "info":
			err = a.Info(ctx, args)
		case "phone":
			err = a.Phone(ctx, args)
		case "verify":
			err = a.Verify(ctx, args)
		case "console":
			err = a.Console(ctx, rest)
		case "clear":
			err = a.Clear(ctx)
		case "logout":
			err = a.Logout(ctx)
		default:
			printlnFn("Unknown command:", cmd)
		}
		if err != nil {
			printlnFn("Error:", err)
		}
	}
}
