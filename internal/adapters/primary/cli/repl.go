package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// execIface is the command surface the REPL dispatches to.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Status(ctx context.Context) error
	ResetPassword(ctx context.Context) error
	SendVerification(ctx context.Context) error
	WaitVerified(ctx context.Context) error
	Profile(ctx context.Context) error
	SetProfile(ctx context.Context) error
	Delete(ctx context.Context) error
}

// runREPL reads one command per line and dispatches it until EOF, "exit",
// or ctx is done.
//
//	Signed out: register, login, reset-password, exit
//	Signed in:  status, profile, set-profile, send-verification,
//	            wait-verified, reset-password, delete, logout, exit
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, w io.Writer) {
	for {
		if ctx.Err() != nil {
			return
		}

		fmt.Fprintf(w, "accounts %s> ", statusFn())
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			fmt.Fprintln(w)
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		var cmdErr error
		switch cmd := parts[0]; cmd {
		case "help":
			if a.isLoggedIn() {
				fmt.Fprintln(w, "Available commands: status, profile, set-profile, send-verification, wait-verified, reset-password, delete, logout, exit")
			} else {
				fmt.Fprintln(w, "Available commands: register, login, reset-password, exit")
			}
		case "register":
			cmdErr = a.Register(ctx)
		case "login":
			cmdErr = a.Login(ctx)
		case "logout":
			cmdErr = a.Logout(ctx)
		case "status":
			cmdErr = a.Status(ctx)
		case "reset-password":
			cmdErr = a.ResetPassword(ctx)
		case "send-verification":
			cmdErr = a.SendVerification(ctx)
		case "wait-verified":
			cmdErr = a.WaitVerified(ctx)
		case "profile":
			cmdErr = a.Profile(ctx)
		case "set-profile":
			cmdErr = a.SetProfile(ctx)
		case "delete":
			cmdErr = a.Delete(ctx)
		case "exit", "quit":
			fmt.Fprintln(w, "Bye!")
			return
		default:
			fmt.Fprintln(w, "Unknown command:", cmd)
		}

		if cmdErr != nil {
			fmt.Fprintln(w, describe(cmdErr))
		}
	}
}
