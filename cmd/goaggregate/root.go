package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fxsml/goaggregate/config"
)

// BuildCli creates the root command. All file access goes through fs.
func BuildCli(fs afero.Fs) *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "goaggregate <command>",
		Short: "Correlates and aggregates messages flowing through NATS, RabbitMQ or Kafka.",
		Long: `Correlates and aggregates messages flowing through NATS, RabbitMQ or Kafka.

Examples:
  Run all aggregations of a definition file
    goaggregate run -f aggregations.yaml --broker nats://localhost:4222
  Check a definition file
    goaggregate validate -f aggregations.yaml`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newRunCommand(fs),
		newValidateCommand(fs),
		newKeysCommand(fs),
	)
	return root
}

// fileFlag registers the definition file flag shared by all commands.
func fileFlag(flags *pflag.FlagSet, path *string) {
	flags.StringVarP(path, "file", "f", "aggregations.yaml", "Aggregation definition file")
}

func loader() config.Loader {
	if prefix := os.Getenv("GOAGGREGATE_ENV_PREFIX"); prefix != "" {
		return config.Loader{Prefix: prefix}
	}
	return config.Loader{}
}

func newValidateCommand(fs afero.Fs) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:     "validate",
		Short:   "Compiles every aggregation of a definition file",
		Example: "goaggregate validate -f aggregations.yaml",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := config.ReadFile(fs, path)
			if err != nil {
				return err
			}
			l := loader()
			for _, d := range f.Aggregations {
				if _, err := d.Compile(l); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", d.Name)
			}
			return nil
		},
	}
	fileFlag(cmd.Flags(), &path)
	return cmd
}

func newKeysCommand(fs afero.Fs) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:     "keys",
		Short:   "Lists the environment variables that override each aggregation",
		Example: "goaggregate keys -f aggregations.yaml",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := config.ReadFile(fs, path)
			if err != nil {
				return err
			}
			l := loader()
			for _, d := range f.Aggregations {
				fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", d.Name)
				for _, k := range l.Keys(d.Name, aggregateConfigShape) {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				for _, k := range l.Keys(pipeStage(d.Name), pipeConfigShape) {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
			}
			return nil
		},
	}
	fileFlag(cmd.Flags(), &path)
	return cmd
}
