package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mkarras/foreman/internal/orchestrator"
	"github.com/mkarras/foreman/internal/worker"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive mode with a delegating lead coordinator",
	Long: `Start an interactive session with the lead coordinator.

The lead streams its replies and can delegate background subtasks to
role-specialized subagents with the delegate_task tool. Subagent results
are fed back to the lead, which delegates further or answers directly.

Commands:
  /cancel   Abort the in-flight turn and discard pending subagents
  /reset    Drop the lead conversation and start fresh
  /quit     Exit`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, router, err := newClient(cfg)
	if err != nil {
		return err
	}

	catalog := worker.NewCatalog(cfg.Workers)
	orch := orchestrator.New(client, router, catalog, nil,
		orchestrator.WithLogger(newDebugLogger()),
		orchestrator.WithTimeouts(cfg.Timeouts.Agent, cfg.Timeouts.Chat),
		orchestrator.WithLeadModel(cfg.Lead.Model),
		orchestrator.WithPollInterval(cfg.Lead.PollInterval),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go printChatEvents(orch.Events())

	fmt.Printf("foreman chat — known roles: %s\n", strings.Join(catalog.Roles(), ", "))
	fmt.Println("Type a request, or /quit to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	prompt := color.New(color.FgYellow, color.Bold)
	for {
		prompt.Print("> ")
		if !scanner.Scan() {
			orch.Cancel()
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			orch.Cancel()
			return nil
		case "/cancel":
			orch.Cancel()
			fmt.Println("Cancelled.")
			continue
		case "/reset":
			orch.Reset()
			fmt.Println("Conversation reset.")
			continue
		}

		if _, err := orch.SendMessage(ctx, line); err != nil {
			switch {
			case errors.Is(err, orchestrator.ErrBusy):
				fmt.Println("A turn is already in flight; /cancel to abort it.")
			case errors.Is(err, context.Canceled):
				fmt.Println("\nTurn cancelled.")
			default:
				fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
			}
		} else {
			// The reply text already streamed via lead_delta events.
			fmt.Println()
		}
	}
}

// printChatEvents streams lead deltas inline and prints delegation
// lifecycle notices on their own lines.
func printChatEvents(events <-chan orchestrator.Event) {
	role := color.New(color.FgCyan)
	for ev := range events {
		switch ev.Type {
		case orchestrator.EventLeadDelta:
			fmt.Print(ev.Delta)
		case orchestrator.EventSubagentSpawned:
			fmt.Printf("\n%s delegated to %s: %s\n", color.YellowString("→"), role.Sprint(ev.Role), ev.Message)
		case orchestrator.EventSubagentRetrying:
			fmt.Printf("%s %s failed, retrying\n", color.YellowString("↻"), role.Sprint(ev.Role))
		case orchestrator.EventSubagentCompleted:
			mark := color.GreenString("✓")
			if ev.Status != "success" {
				mark = color.RedString("✗")
			}
			fmt.Printf("%s %s finished\n", mark, role.Sprint(ev.Role))
		case orchestrator.EventLeadError:
			fmt.Printf("\n%s %v\n", color.RedString("Error:"), ev.Error)
		}
	}
}
