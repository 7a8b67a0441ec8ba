package configkey

import (
	"github.com/ValentinKolb/dCfg/cmd/util"
	"github.com/ValentinKolb/dCfg/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcClient client.IConfigKeyClient

	// ConfigKeyCommands represents the config-key command group
	ConfigKeyCommands = &cobra.Command{
		Use:               "config-key",
		Short:             "Perform config-key operations",
		PersistentPreRunE: setupConfigKeyClient,
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if rpcClient != nil {
				_ = rpcClient.Close()
			}
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common RPC flags to the config-key command
	util.SetupRPCClientFlags(ConfigKeyCommands)
	ConfigKeyCommands.PersistentFlags().Int("shard", 100, util.WrapString("ID of the shard to connect to"))

	// Add subcommands
	ConfigKeyCommands.AddCommand(getCmd)
	ConfigKeyCommands.AddCommand(putCmd)
	ConfigKeyCommands.AddCommand(delCmd)
	ConfigKeyCommands.AddCommand(existsCmd)
	ConfigKeyCommands.AddCommand(listCmd)
	ConfigKeyCommands.AddCommand(dumpCmd)
	ConfigKeyCommands.AddCommand(perfTestCmd)
}

// setupConfigKeyClient initializes the RPC client
func setupConfigKeyClient(cmd *cobra.Command, _ []string) error {
	var err error
	rpcClient, err = util.NewClient(cmd)
	return err
}
