package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tracklab/launch/internal/spec"
)

var (
	pushQueue      string
	pushEntryPoint string
	pushVersion    string
	pushParams     map[string]string
	pushResource   string
	pushProject    string
	pushEntity     string
	pushImage      string
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Interact with run queues",
}

var queuePushCmd = &cobra.Command{
	Use:   "push URI",
	Short: "Push a run spec onto a run queue",
	Long: "Build a run spec for the project at URI and enqueue it for a launch agent to pick\n" +
		"up. Transport failures are reported but do not produce a non-zero exit.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return pushSpec(args[0])
	},
}

func registerQueueCommand(root *cobra.Command) {
	root.AddCommand(queueCmd)
	queueCmd.AddCommand(queuePushCmd)

	queuePushCmd.Flags().StringVarP(&pushQueue, "queue", "q", "default", "Run queue to push onto")
	queuePushCmd.Flags().StringVarP(&pushEntryPoint, "entry-point", "e", "", "Entry point name or script path within the project")
	queuePushCmd.Flags().StringVar(&pushVersion, "version", "", "Commit hash or branch name for git projects")
	queuePushCmd.Flags().StringToStringVarP(&pushParams, "param", "P", nil, "Entry point parameter as name=value (repeatable)")
	queuePushCmd.Flags().StringVarP(&pushResource, "resource", "r", "local", "Execution backend for the run")
	queuePushCmd.Flags().StringVar(&pushProject, "project", "", "Target project for the launched run")
	queuePushCmd.Flags().StringVar(&pushEntity, "entity", "", "Target entity for the launched run")
	queuePushCmd.Flags().StringVar(&pushImage, "docker-image", "", "Docker image for container and cluster backends")
}

func pushSpec(uri string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	runSpec, err := spec.New(spec.Options{
		URI:           uri,
		EntryPoint:    pushEntryPoint,
		Version:       pushVersion,
		Parameters:    pushParams,
		Resource:      pushResource,
		TargetProject: pushProject,
		TargetEntity:  pushEntity,
		DockerImage:   pushImage,
	})
	if err != nil {
		return err
	}

	res := a.Push(context.Background(), pushQueue, runSpec)
	if res == nil {
		fmt.Println("Push failed; see log output for details.")
		return nil
	}

	fmt.Printf("Pushed to queue %s (item %s)\n", res.Queue, res.ItemID)
	return nil
}
