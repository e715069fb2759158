package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tracklab/launch/internal/app"
)

var (
	configPath string
	baseURL    string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "tracklab-launch",
	Short: "Launch TrackLab runs locally, in containers, or on a cluster",
	Long: "tracklab-launch resolves a project (local path or git repository) into a runnable\n" +
		"specification, submits it to an execution backend, and supervises it to completion.\n" +
		"It also runs the launch agent, which dispatches queued run specs from the TrackLab service.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to launch.hcl or a directory of .hcl files")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "TrackLab service base URL (overrides config and TRACKLAB_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level: 'debug', 'info', 'warn', or 'error'")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log output format: 'text' or 'json'")

	registerRunCommand(rootCmd)
	registerAgentCommand(rootCmd)
	registerQueueCommand(rootCmd)
}

// newApp builds the App shared by all commands from the persistent flags.
func newApp() (*app.App, error) {
	return app.New(os.Stderr, app.Config{
		ConfigPath: configPath,
		BaseURL:    baseURL,
		LogLevel:   logLevel,
		LogFormat:  logFormat,
	})
}

// defaultConfigPath points at launch.hcl in the working directory when it
// exists, and is otherwise empty so defaults apply.
func defaultConfigPath() string {
	if _, err := os.Stat("launch.hcl"); err == nil {
		return "launch.hcl"
	}
	return ""
}
