package main

import (
	"log"
	"time"

	"github.com/absmach/fedlearn/cli"
	"github.com/absmach/fedlearn/pkg/sdk"
	"github.com/spf13/cobra"
)

func main() {
	var (
		coordinatorURL  string
		tlsVerification bool
		timeout         time.Duration
	)

	rootCmd := &cobra.Command{
		Use:   "fedlearn-cli",
		Short: "Federated learning CLI",
		Long:  `fedlearn-cli manages clients and training runs on a coordinator, and runs local simulations.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			sdkConf := sdk.Config{
				CoordinatorURL:  coordinatorURL,
				TLSVerification: tlsVerification,
				Timeout:         timeout,
			}
			s := sdk.NewSDK(sdkConf)
			cli.SetSDK(s)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&coordinatorURL, "coordinator-url", "u", cli.DefCoordinatorURL, "coordinator URL")
	rootCmd.PersistentFlags().BoolVar(&tlsVerification, "tls-verification", cli.DefTLSVerification, "verify the coordinator TLS certificate")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", time.Minute, "request timeout")

	rootCmd.AddCommand(
		cli.NewClientsCmd(),
		cli.NewRunsCmd(),
		cli.NewWatchCmd(),
		cli.NewSimulateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
