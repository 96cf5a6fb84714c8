package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/stackbridge/bridge"
	"github.com/caffeineduck/stackbridge/cipher"
	"github.com/caffeineduck/stackbridge/wire"
)

var errQuit = errors.New("quit")

const replHelp = `Commands:
  status                   Show the session state
  signin <key> <identity> <hub-url>
  signout
  get <path>               Read a file
  put <path> <text...>     Write a text file
  lookup <username>        Resolve a profile
  encrypt <text...>        Encrypt with the app key
  decrypt <cipher-json>    Decrypt with the app key
  help
  exit | quit`

func newReplCmd(g *globalFlags) *cobra.Command {
	var historyFile string
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive shell over one bridge",
		Long: `Start an interactive shell that keeps one bridge initialized between
commands, so pending state and the session survive across lines.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)

Type 'help' for commands, 'exit' or 'quit' to end the session, or press Ctrl+D.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if historyFile == "" {
				home, _ := os.UserHomeDir()
				historyFile = filepath.Join(home, ".stackbridge_history")
			}

			ctx := cmd.Context()
			s, err := g.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			rl, err := readline.NewEx(&readline.Config{
				Prompt:            "> ",
				HistoryFile:       historyFile,
				HistoryLimit:      1000,
				InterruptPrompt:   "^C",
				EOFPrompt:         "exit",
				HistorySearchFold: true,
				Stdout:            cmd.OutOrStdout(),
				Stderr:            cmd.ErrOrStderr(),
			})
			if err != nil {
				return fmt.Errorf("initializing readline: %w", err)
			}
			defer rl.Close()

			fmt.Fprintln(cmd.ErrOrStderr(), "stackbridge repl (type 'help' for commands, Ctrl+D to exit)")
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					continue
				}
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}
				err = evalLine(ctx, s, line, cmd.OutOrStdout())
				if errors.Is(err, errQuit) {
					return nil
				}
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
				}
			}
		},
	}
	cmd.Flags().StringVar(&historyFile, "history", "", "History file path (default: ~/.stackbridge_history)")
	return cmd
}

// evalLine runs one shell command against the session's host. It returns
// errQuit on exit.
func evalLine(ctx context.Context, s *session, line string, out io.Writer) error {
	h := s.host
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	verb, args := fields[0], fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), verb))

	switch verb {
	case "exit", "quit":
		return errQuit
	case "help":
		fmt.Fprintln(out, replHelp)
		return nil
	case "status":
		rep, err := status(ctx, h)
		if err != nil {
			return err
		}
		return printJSON(out, rep)
	case "signin":
		if len(args) != 3 {
			return errors.New("usage: signin <key> <identity> <hub-url>")
		}
		req := wire.SignInRequest{Domain: s.cfg.AppDomain, AppPrivateKey: args[0], IdentityAddress: args[1], HubURL: args[2]}
		if err := h.SignIn(ctx, req); err != nil {
			return err
		}
		fmt.Fprintf(out, "signed in as %s\n", args[1])
		return nil
	case "signout":
		if err := h.SignUserOut(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "signed out")
		return nil
	case "get":
		if len(args) != 1 {
			return errors.New("usage: get <path>")
		}
		content, err := h.GetFile(ctx, args[0], wire.GetFileOptions{})
		if err != nil {
			return err
		}
		if content.IsBinary() {
			fmt.Fprintf(out, "<%d bytes>\n", content.Len())
			return nil
		}
		fmt.Fprintln(out, content.String())
		return nil
	case "put":
		if len(args) < 2 {
			return errors.New("usage: put <path> <text...>")
		}
		text := strings.TrimSpace(strings.TrimPrefix(rest, args[0]))
		url, err := h.PutFile(ctx, args[0], bridge.Text(text), wire.PutFileOptions{})
		if err != nil {
			return err
		}
		fmt.Fprintln(out, url)
		return nil
	case "lookup":
		if len(args) != 1 {
			return errors.New("usage: lookup <username>")
		}
		profile, err := h.LookupProfile(ctx, args[0], "")
		if err != nil {
			return err
		}
		return printJSON(out, profile)
	case "encrypt":
		if rest == "" {
			return errors.New("usage: encrypt <text...>")
		}
		c, err := h.EncryptContent(ctx, bridge.Text(rest), wire.CryptoOptions{}).Get()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, c.JSON())
		return nil
	case "decrypt":
		c, err := cipher.Parse([]byte(rest))
		if err != nil {
			return err
		}
		content, err := h.DecryptContent(ctx, c, wire.CryptoOptions{})
		if err != nil {
			return err
		}
		fmt.Fprintln(out, content.String())
		return nil
	default:
		return fmt.Errorf("unknown command %q (try 'help')", verb)
	}
}
