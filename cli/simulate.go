package cli

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/absmach/fedlearn/pkg/fl"
	"github.com/absmach/fedlearn/simulation"
	"github.com/spf13/cobra"
)

const envConfigFile = "FL_CONFIG_FILE"

func NewSimulateCmd() *cobra.Command {
	var (
		flags     runFlags
		clients   int
		source    string
		outputDir string
		noDP      bool
		logLevel  string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run an in-process federation",
		Long: `Partition a dataset across in-process clients and train them with the
coordinator, without any network. Without a source the dataset is synthetic.

Examples:
  # Three clients on synthetic data
  fedlearn-cli simulate --clients 3 --rounds 5

  # Heart-disease data, history and model written to ./out
  fedlearn-cli simulate --source processed.cleveland.data --output ./out`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			if flags.configFile == "" {
				flags.configFile = os.Getenv(envConfigFile)
			}
			cfg, err := flags.load()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			if clients > 0 {
				cfg.Dataset.Clients = clients
			}
			if source != "" {
				cfg.Dataset.Source = source
			}
			if noDP {
				cfg.Privacy.Enabled = false
			}

			var level slog.Level
			if err := level.UnmarshalText([]byte(logLevel)); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// An interrupted simulation still reports the rounds it finished.
			res, err := simulation.Run(ctx, cfg, logger)
			if err != nil && ctx.Err() == nil {
				logErrorCmd(*cmd, err)

				return
			}

			if outputDir != "" {
				if err := export(outputDir, res); err != nil {
					logErrorCmd(*cmd, err)

					return
				}
			}
			logJSONCmd(*cmd, res)
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&clients, "clients", 0, "number of simulated clients")
	cmd.Flags().StringVar(&source, "source", "", "dataset file or URL; synthetic data when empty")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "directory for the exported history and model")
	cmd.Flags().BoolVar(&noDP, "no-dp", false, "train without differential privacy")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level")

	return cmd
}

func export(dir string, res simulation.Result) error {
	exporter, err := fl.NewExporter(dir)
	if err != nil {
		return err
	}
	if err := exporter.SaveHistory(res.RunID, res.History); err != nil {
		return err
	}
	if res.Parameters == nil {
		return nil
	}

	return exporter.SaveModel(res.RunID, res.Parameters)
}
