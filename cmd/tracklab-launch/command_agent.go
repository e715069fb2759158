package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	agentQueues     []string
	agentMaxJobs    int
	agentHealthPort int
)

var agentCmd = &cobra.Command{
	Use:   "agent ENTITY PROJECT",
	Short: "Run the launch agent",
	Long: "Poll the TrackLab run queues for ENTITY/PROJECT and dispatch each queued run spec\n" +
		"through the resolve → load → submit pipeline. The agent runs until interrupted or\n" +
		"until the service rejects its credentials.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAgent(args[0], args[1])
	},
}

func registerAgentCommand(root *cobra.Command) {
	root.AddCommand(agentCmd)

	agentCmd.Flags().StringSliceVarP(&agentQueues, "queue", "q", nil, "Queue name to poll (repeatable; defaults to 'default')")
	agentCmd.Flags().IntVar(&agentMaxJobs, "max-jobs", 0, "Maximum concurrent dispatched runs (overrides config)")
	agentCmd.Flags().IntVar(&agentHealthPort, "health-port", 0, "Port for the agent health endpoint (overrides config)")
}

func runAgent(entity, project string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = a.Agent(ctx, entity, project, agentQueues, agentMaxJobs, agentHealthPort)
	if errors.Is(err, context.Canceled) {
		// Operator interrupt is a clean shutdown.
		return nil
	}
	return err
}
