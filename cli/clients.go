package cli

import (
	"github.com/absmach/fedlearn/pkg/sdk"
	"github.com/spf13/cobra"
)

const (
	DefCoordinatorURL  = "http://localhost:7070"
	DefMQTTURL         = "tcp://localhost:1883"
	DefTLSVerification = false
)

var flsdk sdk.SDK

func SetSDK(s sdk.SDK) {
	flsdk = s
}

func NewClientsCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "clients [register|list|remove]",
		Short: "Clients manager",
		Long:  `Register, list and remove training clients.`,
	}

	registerCmd := &cobra.Command{
		Use:   "register <address>",
		Short: "Register client",
		Long: `Register a client serving the training API.

Examples:
  fedlearn-cli clients register http://10.0.0.5:9100 --name edge-01`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			c, err := flsdk.RegisterClient(sdk.Client{
				Name:    name,
				Address: args[0],
			})
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, c)
		},
	}
	registerCmd.Flags().StringVar(&name, "name", "", "client name, generated when empty")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List clients",
		Long:  `List registered clients, including excluded ones.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			page, err := flsdk.ListClients()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove client",
		Long:  `Remove client.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			if err := flsdk.RemoveClient(args[0]); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logOKCmd(*cmd)
		},
	}

	cmd.AddCommand(registerCmd, listCmd, removeCmd)

	return cmd
}
