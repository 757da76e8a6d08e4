package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rs/dnscache"
	"github.com/spf13/cobra"

	"github.com/switchboard-ai/switchboard/internal/app"
	"github.com/switchboard-ai/switchboard/internal/audit"
	"github.com/switchboard-ai/switchboard/internal/circuitbreaker"
	"github.com/switchboard-ai/switchboard/internal/cost"
	"github.com/switchboard-ai/switchboard/internal/ratelimit"
	"github.com/switchboard-ai/switchboard/internal/retry"
	"github.com/switchboard-ai/switchboard/internal/router"
	"github.com/switchboard-ai/switchboard/internal/worker"
)

func newChatCmd() *cobra.Command {
	var tool, project, conversation string
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send one message through the routing engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			registry := app.BuildRegistry(cfg, &dnscache.Resolver{})
			auditLog := audit.NewLogger(log, store)
			costs := cost.NewTracker(log, store)
			contexts, err := newContextManager(cfg, store, log)
			if err != nil {
				return err
			}
			var toolLimits *ratelimit.Registry
			if cfg.API.ToolRateLimitPerMinute > 0 {
				toolLimits = ratelimit.NewRegistry(int64(cfg.API.ToolRateLimitPerMinute))
			}
			orch := app.New(app.Options{
				Log:      log,
				Registry: registry,
				Router:   router.New(cfg.Routing.Rules(), cfg.Routing.DefaultTool),
				Contexts: contexts,
				Breakers: circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig()),
				Retry:    retry.DefaultPolicy(),
				Costs:    costs,
				Audit:    auditLog,
				Limits:   toolLimits,
			})

			// Flush buffered audit and cost writes before exit.
			runCtx, cancelRun := context.WithCancel(context.Background())
			runDone := make(chan struct{})
			go func() {
				_ = worker.NewRunner(auditLog, costs).Run(runCtx)
				close(runDone)
			}()
			defer func() {
				cancelRun()
				<-runDone
			}()

			res, err := orch.Chat(cmd.Context(), app.ChatRequest{
				Message:        args[0],
				Tool:           tool,
				ProjectID:      project,
				ConversationID: conversation,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "[%s, conversation %s]\n", res.Response.Tool, res.ConversationID)
			fmt.Fprintln(cmd.OutOrStdout(), res.Response.Content)
			return nil
		},
	}
	cmd.Flags().StringVar(&tool, "tool", "", "force a specific tool instead of routing")
	cmd.Flags().StringVar(&project, "project", "", "project id for context grouping")
	cmd.Flags().StringVar(&conversation, "conversation", "", "continue an existing conversation")
	return cmd
}

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List configured tools and their availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			newLogger(cfg)
			registry := app.BuildRegistry(cfg, &dnscache.Resolver{})

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TOOL\tAVAILABLE\tSTREAMING\tCONTEXT TOKENS")
			for _, a := range registry.All() {
				caps := a.Capabilities()
				fmt.Fprintf(w, "%s\t%t\t%t\t%d\n",
					a.Name(), a.IsAvailable(ctx), caps.SupportsStreaming, caps.MaxContextTokens)
			}
			return w.Flush()
		},
	}
}
