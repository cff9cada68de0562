package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAccountsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List configured platform accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			if len(cfg.Accounts) == 0 {
				fmt.Fprintln(stdout, "No accounts configured")
				return nil
			}
			rows := make([][]string, 0, len(cfg.Accounts))
			for _, account := range cfg.Accounts {
				rows = append(rows, []string{
					account.Name,
					account.AccountID,
					yesNo(account.Enabled),
					yesNo(account.ClientID != "" && account.ClientSecret != ""),
				})
			}
			table := renderTable(
				[]string{"Name", "Account ID", "Enabled", "Credentials"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			)
			fmt.Fprintln(stdout, table)
			return nil
		},
	}
}
