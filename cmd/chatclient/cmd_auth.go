package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/peerchat/chat-client/internal/chat"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the credentials",
	RunE:  runLogin,
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and log in",
	RunE:  runRegister,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored credentials",
	RunE:  runLogout,
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().String("email", "", "Account email")
		c.Flags().String("password", "", "Account password")
		_ = c.MarkFlagRequired("email")
		_ = c.MarkFlagRequired("password")
	}
	registerCmd.Flags().String("name", "", "Display name")
	_ = registerCmd.MarkFlagRequired("name")
}

func runLogin(cmd *cobra.Command, args []string) error {
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.ctrl.Login(ctx, email, password); err != nil {
			return err
		}
		a.out.println("logged in as", a.ctrl.UserID())
		return nil
	})
}

func runRegister(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.ctrl.Register(ctx, name, email, password); err != nil {
			return err
		}
		a.out.println("registered and logged in as", a.ctrl.UserID())
		return nil
	})
}

func runLogout(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		err := a.ctrl.Resume(ctx)
		switch {
		case errors.Is(err, chat.ErrNotAuthenticated):
			a.out.println("not logged in")
			return nil
		case errors.Is(err, chat.ErrAuthExpired):
			// Resume already discarded the credentials.
			a.out.println("logged out")
			return nil
		case err != nil:
			return fmt.Errorf("logout: %w", err)
		}
		if err := a.ctrl.Logout(ctx); err != nil {
			return err
		}
		a.out.println("logged out")
		return nil
	})
}
