package cli

import (
	"strconv"

	"github.com/absmach/fedlearn"
	"github.com/absmach/fedlearn/pkg/fl"
	"github.com/spf13/cobra"
)

var (
	defOffset uint64 = 0
	defLimit  uint64 = 10
)

// runFlags override the run configuration file.
type runFlags struct {
	configFile string
	name       string
	rounds     int
	minClients int
	selection  string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configFile, "config", "c", "", "TOML run configuration file")
	cmd.Flags().StringVar(&f.name, "name", "", "run name")
	cmd.Flags().IntVar(&f.rounds, "rounds", 0, "number of rounds")
	cmd.Flags().IntVar(&f.minClients, "min-clients", 0, "minimum clients per round")
	cmd.Flags().StringVar(&f.selection, "selection", "", "client selection strategy (random, round_robin)")
}

func (f *runFlags) load() (fedlearn.Config, error) {
	cfg := fedlearn.DefaultConfig()
	if f.configFile != "" {
		loaded, err := fedlearn.LoadConfig(f.configFile)
		if err != nil {
			return fedlearn.Config{}, err
		}
		cfg = *loaded
	}
	if f.name != "" {
		cfg.Coordinator.Name = f.name
	}
	if f.rounds > 0 {
		cfg.Coordinator.NumRounds = f.rounds
	}
	if f.minClients > 0 {
		cfg.Coordinator.MinClients = f.minClients
	}
	if f.selection != "" {
		cfg.Coordinator.Selection = f.selection
	}

	return cfg, cfg.Validate()
}

func NewRunsCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "runs [start|view|list|stop|history|params]",
		Short: "Training runs manager",
		Long:  `Start, inspect and stop federated training runs.`,
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start run",
		Long: `Start a training run over the registered clients.

Examples:
  # Start a run with the default configuration
  fedlearn-cli runs start

  # Start a run from a configuration file with 10 rounds
  fedlearn-cli runs start --config fedlearn.toml --rounds 10`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			cfg, err := flags.load()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			rc, err := cfg.RunConfig()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			run, err := flsdk.StartRun(rc)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, run)
		},
	}
	flags.register(startCmd)

	viewCmd := &cobra.Command{
		Use:   "view <id>",
		Short: "View run",
		Long:  `View run status and progress.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			run, err := flsdk.GetRun(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, run)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list [offset] [limit]",
		Short: "List runs",
		Long:  `List runs, newest first.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) > 2 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			offset, limit := defOffset, defLimit
			var err error
			if len(args) > 0 {
				if offset, err = strconv.ParseUint(args[0], 10, 64); err != nil {
					logErrorCmd(*cmd, err)

					return
				}
			}
			if len(args) > 1 {
				if limit, err = strconv.ParseUint(args[1], 10, 64); err != nil {
					logErrorCmd(*cmd, err)

					return
				}
			}

			page, err := flsdk.ListRuns(offset, limit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop <id>",
		Short: "Stop run",
		Long:  `Cancel an active run and wait for it to finish.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			run, err := flsdk.StopRun(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, run)
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Run history",
		Long:  `Show the summary of every recorded round.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			history, err := flsdk.GetHistory(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, history)
		},
	}

	paramsCmd := &cobra.Command{
		Use:   "params <id>",
		Short: "Global parameters",
		Long:  `Show the latest global parameters of a run.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			cp, err := flsdk.GetParameters(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, paramsSummary(cp))
		},
	}

	cmd.AddCommand(startCmd, viewCmd, listCmd, stopCmd, historyCmd, paramsCmd)

	return cmd
}

type tensorSummary struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data,omitempty"`
}

// paramsSummary keeps small tensors whole and reports only the shape of
// large ones.
func paramsSummary(cp fl.Checkpoint) any {
	const maxValues = 32

	tensors := make([]tensorSummary, len(cp.Parameters))
	for i, t := range cp.Parameters {
		tensors[i].Shape = t.Shape
		if len(t.Data) <= maxValues {
			tensors[i].Data = t.Data
		}
	}

	return struct {
		RunID      string          `json:"run_id"`
		RoundIndex int             `json:"round_index"`
		NumValues  int             `json:"num_values"`
		Tensors    []tensorSummary `json:"tensors"`
	}{cp.RunID, cp.RoundIndex, cp.Parameters.NumValues(), tensors}
}
