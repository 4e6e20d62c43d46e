package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/peerchat/chat-client/internal/chat"
	"github.com/peerchat/chat-client/internal/metrics"
	"github.com/peerchat/chat-client/internal/session"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat",
	Long: `Start an interactive chat session.

Commands:
  /list          refresh and show conversations
  /open <userId> open the conversation with a user
  /close         leave the open conversation
  /users         list discoverable users
  /quit          exit
Any other line is sent to the open conversation.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().String("email", "", "Log in with this email instead of stored credentials")
	chatCmd.Flags().String("password", "", "Password for --email")
	chatCmd.Flags().String("with", "", "Open the conversation with this user id on start")
}

func runChat(cmd *cobra.Command, args []string) error {
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	with, _ := cmd.Flags().GetString("with")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		var err error
		if email != "" {
			err = a.ctrl.Login(ctx, email, password)
		} else {
			err = a.resume(ctx)
		}
		if err != nil {
			return err
		}

		a.out.interactive.Store(true)
		a.out.conversations(a.ctrl.View().Conversations())
		if with != "" {
			if err := a.ctrl.OpenConversationWith(ctx, with); err != nil {
				return err
			}
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		g, ctx := errgroup.WithContext(ctx)

		if a.cfg.MetricsAddr != "" {
			srv := &http.Server{
				Addr:              a.cfg.MetricsAddr,
				Handler:           metrics.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			g.Go(func() error {
				log.Info().Str("addr", srv.Addr).Msg("metrics listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
				defer stop()
				return srv.Shutdown(shutdownCtx)
			})
		}

		g.Go(func() error {
			defer cancel()
			return repl(ctx, a, cmd.InOrStdin())
		})
		return g.Wait()
	})
}

// repl reads commands until /quit, end of input or ctx is done.
func repl(ctx context.Context, a *app, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		quit, err := execute(ctx, a, line)
		if quit {
			return nil
		}
		if err != nil {
			if a.ctrl.State() != session.StateActive {
				return err
			}
			a.out.println("!", err)
		}
	}
}

func execute(ctx context.Context, a *app, line string) (quit bool, err error) {
	if !strings.HasPrefix(line, "/") {
		if _, open := a.ctrl.View().ActiveConversation(); !open {
			a.out.println("no open conversation; use /open <userId>")
			return false, nil
		}
		err := a.ctrl.Send(line)
		if errors.Is(err, chat.ErrNotConnected) {
			// Kept locally; the printer already reported it.
			return false, nil
		}
		return false, err
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/list":
		if err := a.ctrl.RefreshConversations(ctx); err != nil {
			return false, err
		}
		a.out.conversations(a.ctrl.View().Conversations())
	case "/open":
		if arg == "" {
			a.out.println("usage: /open <userId>")
			return false, nil
		}
		return false, a.ctrl.OpenConversationWith(ctx, arg)
	case "/close":
		a.ctrl.CloseConversation()
	case "/users":
		users, err := a.ctrl.ListUsers(ctx)
		if err != nil {
			return false, err
		}
		a.out.users(users)
	default:
		a.out.println("unknown command", name)
	}
	return false, nil
}
