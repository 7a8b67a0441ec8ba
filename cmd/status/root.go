package status

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dCfg/cmd/util"
	"github.com/spf13/cobra"
)

// StatusCmd prints the status of the node the request reaches
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print role, epoch and engine information of a node",
	Args:  cobra.NoArgs,
	RunE:  run,
}

func init() {
	cobra.OnInitialize(util.InitClientConfig)

	util.SetupRPCClientFlags(StatusCmd)
	StatusCmd.PersistentFlags().Int("shard", 100, util.WrapString("ID of the shard to connect to"))
}

func run(cmd *cobra.Command, _ []string) error {
	c, err := util.NewClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	status, err := c.Status()
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
