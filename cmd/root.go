package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dCfg/cmd/configkey"
	"github.com/ValentinKolb/dCfg/cmd/device"
	"github.com/ValentinKolb/dCfg/cmd/serve"
	"github.com/ValentinKolb/dCfg/cmd/status"
	"github.com/ValentinKolb/dCfg/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dcfg",
		Short: "quorum-coordinated config-key service",
		Long: fmt.Sprintf(`dCfg (v%s)

A config-key service written in Go. Every write is committed through a
quorum (local or RAFT replicated via dragonboat) before it is applied,
followers forward writes to the current leader.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dCfg",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dCfg v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(configkey.ConfigKeyCommands)
	RootCmd.AddCommand(device.DeviceCommands)
	RootCmd.AddCommand(status.StatusCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "http", util.WrapString("transport to use (http, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
