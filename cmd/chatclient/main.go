package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chatclient",
	Short: "Terminal client for peer-to-peer chat",
	Long: `chatclient talks to the chat backend over REST and a STOMP push channel.

Credentials are kept in Redis when REDIS_ADDR is set, so "login" in one
invocation carries over to the next. Without Redis pass --email and
--password to "chat".

Examples:
  chatclient login --email ann@example.com --password secret
  chatclient users
  chatclient chat
  chatclient chat --with 42`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(followCmd)
	rootCmd.AddCommand(unfollowCmd)
	rootCmd.AddCommand(chatCmd)

	rootCmd.PersistentFlags().String("env-file", ".env", "Optional dotenv file")
}
