package cli

import (
	"github.com/spf13/cobra"

	"ghbridge/internal/config"
)

var (
	version = "dev"
	commit  = "none"
)

type rootFlags struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "ghbridge",
		Short: "Forward GitHub notifications to a push endpoint",
		Long: "ghbridge polls the GitHub notifications API and forwards every new unread " +
			"notification to a registered push endpoint (UnifiedPush or any HTTP receiver).",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotenv(flags.envFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags)
		},
	}
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to a JSON or YAML config file")
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newPollOnceCmd(flags))
	cmd.AddCommand(newStateCmd(flags))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// NewRootCmdForTest returns the root command for testing.
func NewRootCmdForTest() *cobra.Command {
	return newRootCmd()
}

func Execute() error {
	return newRootCmd().Execute()
}
