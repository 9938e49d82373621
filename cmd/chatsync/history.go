package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/workspace-chat/backend/internal/client"
	"github.com/workspace-chat/backend/internal/config"
	"github.com/workspace-chat/backend/internal/model"
)

func init() {
	historyCmd.Flags().Int("page", 1, "page number, 1 is the newest")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history <workspace>",
	Short: "Print one page of a workspace's history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		page, _ := cmd.Flags().GetInt("page")

		logger := config.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, false)
		principal := &model.Principal{UserID: cfg.UserID, Name: cfg.UserName, Token: cfg.Token}
		api := client.New(cfg.ServerURL, principal, client.WithLogger(logger))

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		result, err := api.FetchHistory(ctx, args[0], page, cfg.PageSize)
		if err != nil {
			return err
		}

		p := newPrinter(cmd.OutOrStdout())
		for _, msg := range result.Messages {
			p.message(msg)
		}
		p.pagination(result.Pagination)
		return nil
	},
}
