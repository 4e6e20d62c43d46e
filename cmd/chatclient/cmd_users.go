package main

import (
	"context"

	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List discoverable users",
	RunE:  runUsers,
}

var followCmd = &cobra.Command{
	Use:   "follow [userId]",
	Short: "Follow a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runFollow,
}

var unfollowCmd = &cobra.Command{
	Use:   "unfollow [userId]",
	Short: "Unfollow a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnfollow,
}

func runUsers(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.resume(ctx); err != nil {
			return err
		}
		users, err := a.ctrl.ListUsers(ctx)
		if err != nil {
			return err
		}
		a.out.users(users)
		return nil
	})
}

func runFollow(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.resume(ctx); err != nil {
			return err
		}
		if err := a.ctrl.Follow(ctx, args[0]); err != nil {
			return err
		}
		a.out.println("following", args[0])
		return nil
	})
}

func runUnfollow(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.resume(ctx); err != nil {
			return err
		}
		if err := a.ctrl.Unfollow(ctx, args[0]); err != nil {
			return err
		}
		a.out.println("unfollowed", args[0])
		return nil
	})
}
