package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iota-uz/bothub/modules/core/infrastructure/persistence"
	"github.com/iota-uz/bothub/modules/core/services"
	"github.com/iota-uz/bothub/pkg/composables"
	"github.com/iota-uz/bothub/pkg/configuration"
)

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage the users bots are shared with",
	}
	cmd.AddCommand(newUsersEnsureCmd())
	return cmd
}

func newUsersEnsureCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Create a user unless one with the email exists and print its uid",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf := configuration.Use()
			defer conf.Unload()
			if conf.Database.Driver != "postgres" {
				return fmt.Errorf("users need DB_DRIVER=postgres, got %q", conf.Database.Driver)
			}
			pool, err := connectDB(cmd.Context(), conf)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := services.NewUserService(persistence.NewUserRepository(), composables.InTx)
			u, created, err := svc.Ensure(composables.WithPool(cmd.Context(), pool), email)
			if err != nil {
				return err
			}
			state := "existing"
			if created {
				state = "created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", u.UID(), u.Email(), state)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "user email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
