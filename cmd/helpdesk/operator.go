package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liliang-cn/helpdesk/internal/auth"
	"github.com/liliang-cn/helpdesk/internal/config"
	"github.com/liliang-cn/helpdesk/internal/repository"
	"github.com/liliang-cn/helpdesk/internal/service"
)

func operatorCMD(cfgPath *string) *cobra.Command {
	var operator = &cobra.Command{
		Use:   "operator",
		Short: "Manage operator accounts",
	}

	var password, displayName string
	var add = &cobra.Command{
		Use:   "add <username>",
		Short: "Create an operator account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}

			db, err := repository.NewDB(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			svc := service.NewOperatorService(
				repository.NewOperatorRepository(db),
				auth.NewJWTManager([]byte(cfg.Operator.JWTSecret), cfg.Operator.TokenTTL),
				nil,
			)
			op, err := svc.AddOperator(cmd.Context(), args[0], password, displayName)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "operator %q created\n", op.Username)
			return nil
		},
	}
	add.Flags().StringVarP(&password, "password", "p", "", "password (at least 8 characters)")
	add.Flags().StringVar(&displayName, "name", "", "display name shown in notifications")
	add.MarkFlagRequired("password")

	operator.AddCommand(add)
	return operator
}
