package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tracklab/launch/internal/launch"
	"github.com/tracklab/launch/internal/launcherr"
)

var (
	runEntryPoint string
	runVersion    string
	runParams     map[string]string
	runDockerArgs map[string]string
	runName       string
	runResource   string
	runProject    string
	runEntity     string
	runImage      string
	runAsync      bool
)

var runCmd = &cobra.Command{
	Use:   "run URI",
	Short: "Launch a project and wait for it to finish",
	Long: "Resolve the project at URI (a local directory or a git repository), submit it to the\n" +
		"selected backend, and block until the run reaches a terminal state. Interrupting the\n" +
		"wait cancels the active run before the interrupt propagates.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(args[0])
	},
}

func registerRunCommand(root *cobra.Command) {
	root.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runEntryPoint, "entry-point", "e", "", "Entry point name or script path within the project")
	runCmd.Flags().StringVar(&runVersion, "version", "", "Commit hash or branch name for git projects")
	runCmd.Flags().StringToStringVarP(&runParams, "param", "P", nil, "Entry point parameter as name=value (repeatable)")
	runCmd.Flags().StringToStringVar(&runDockerArgs, "docker-arg", nil, "Docker argument as name=value (repeatable)")
	runCmd.Flags().StringVar(&runName, "name", "", "Experiment name for the launched run")
	runCmd.Flags().StringVarP(&runResource, "resource", "r", "local", "Execution backend for the run")
	runCmd.Flags().StringVar(&runProject, "project", "", "Target project for the launched run")
	runCmd.Flags().StringVar(&runEntity, "entity", "", "Target entity for the launched run")
	runCmd.Flags().StringVar(&runImage, "docker-image", "", "Docker image for container and cluster backends")
	runCmd.Flags().BoolVar(&runAsync, "async", false, "Do not block on run completion (not supported; fails fast)")
}

func runOnce(uri string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := a.Launch(ctx, launch.Options{
		URI:           uri,
		EntryPoint:    runEntryPoint,
		Version:       runVersion,
		Parameters:    runParams,
		DockerArgs:    runDockerArgs,
		Name:          runName,
		Resource:      runResource,
		TargetProject: runProject,
		TargetEntity:  runEntity,
		DockerImage:   runImage,
		Synchronous:   !runAsync,
	})
	if errors.Is(err, launcherr.ErrInterrupted) {
		// The run was already cancelled; surface the interrupt as a plain
		// non-zero exit.
		return fmt.Errorf("run cancelled: %w", err)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Run %s succeeded\n", handle.ID())
	return nil
}
