package device

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/ValentinKolb/dCfg/cmd/util"
	"github.com/ValentinKolb/dCfg/rpc/client"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	rpcClient client.IConfigKeyClient

	// DeviceCommands represents the device command group
	DeviceCommands = &cobra.Command{
		Use:               "device",
		Short:             "Create or destroy the dm-crypt secret of a device",
		PersistentPreRunE: setupDeviceClient,
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if rpcClient != nil {
				_ = rpcClient.Close()
			}
		},
	}

	createCmd = &cobra.Command{
		Use:   "create [uuid] [id] [secret]",
		Short: "Bind a secret to a device (the secret can be read from a file with --secret-file)",
		Args:  cobra.RangeArgs(2, 3),
		RunE:  runCreate,
	}

	destroyCmd = &cobra.Command{
		Use:   "destroy [uuid] [id]",
		Short: "Remove the secret and every key of a device",
		Args:  cobra.ExactArgs(2),
		RunE:  runDestroy,
	}
)

func init() {
	cobra.OnInitialize(util.InitClientConfig)

	util.SetupRPCClientFlags(DeviceCommands)
	DeviceCommands.PersistentFlags().Int("shard", 100, util.WrapString("ID of the shard to connect to"))

	createCmd.Flags().String("secret-file", "", util.WrapString("Read the secret from this file ('-' for stdin)"))

	DeviceCommands.AddCommand(createCmd)
	DeviceCommands.AddCommand(destroyCmd)
}

func setupDeviceClient(cmd *cobra.Command, _ []string) error {
	var err error
	rpcClient, err = util.NewClient(cmd)
	return err
}

func runCreate(cmd *cobra.Command, args []string) error {
	device, id, err := parseDevice(args)
	if err != nil {
		return err
	}

	secretFile, _ := cmd.Flags().GetString("secret-file")
	var secret []byte
	switch {
	case len(args) == 3 && secretFile != "":
		return fmt.Errorf("either pass a secret or a secret file, not both")
	case len(args) == 3:
		secret = []byte(args[2])
	case secretFile == "-":
		secret, err = io.ReadAll(os.Stdin)
	case secretFile != "":
		secret, err = os.ReadFile(secretFile)
	default:
		return fmt.Errorf("no secret given")
	}
	if err != nil {
		return fmt.Errorf("failed to read secret: %w", err)
	}

	reply, err := rpcClient.CreateDevice(device, id, secret)
	return printReply(reply, err)
}

func runDestroy(_ *cobra.Command, args []string) error {
	device, id, err := parseDevice(args)
	if err != nil {
		return err
	}

	reply, err := rpcClient.DestroyDevice(device, id)
	return printReply(reply, err)
}

// parseDevice validates the uuid and id arguments
func parseDevice(args []string) (string, int64, error) {
	u, err := uuid.Parse(args[0])
	if err != nil {
		return "", 0, fmt.Errorf("invalid device uuid %q: %w", args[0], err)
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || id < 0 {
		return "", 0, fmt.Errorf("invalid device id %q", args[1])
	}
	return u.String(), id, nil
}

func printReply(reply client.Reply, err error) error {
	if err != nil {
		return err
	}
	if !reply.OK() {
		return reply.Err()
	}
	fmt.Println(reply.Status)
	return nil
}
