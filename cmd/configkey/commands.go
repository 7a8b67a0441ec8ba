package configkey

import (
	"fmt"
	"io"
	"os"

	"github.com/ValentinKolb/dCfg/cmd/util"
	"github.com/ValentinKolb/dCfg/rpc/client"
	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Get the value stored under a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := rpcClient.Get(args[0])
			if err != nil {
				return err
			}
			if !reply.OK() {
				return reply.Err()
			}
			out, _ := cmd.Flags().GetString("output")
			return writeData(out, reply)
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Store a value under a key (the value can be read from a file with -i)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, _ := cmd.Flags().GetString("input")

			var value []byte
			switch {
			case len(args) == 2 && in != "":
				return fmt.Errorf("either pass a value or an input file, not both")
			case len(args) == 2:
				value = []byte(args[1])
			case in == "-":
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("failed to read value from stdin: %w", err)
				}
				value = data
			case in != "":
				data, err := os.ReadFile(in)
				if err != nil {
					return fmt.Errorf("failed to read value: %w", err)
				}
				value = data
			}

			reply, err := rpcClient.Put(args[0], value)
			return printReply(reply, err)
		},
	}
	delCmd = &cobra.Command{
		Use:     "del [key]",
		Aliases: []string{"rm"},
		Short:   "Delete a key",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := rpcClient.Delete(args[0])
			return printReply(reply, err)
		},
	}
	existsCmd = &cobra.Command{
		Use:   "exists [key]",
		Short: "Check whether a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := rpcClient.Exists(args[0])
			return printReply(reply, err)
		},
	}
	listCmd = &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all keys as json array",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := rpcClient.List()
			if err != nil {
				return err
			}
			if !reply.OK() {
				return reply.Err()
			}
			return writeData("", reply)
		},
	}
	dumpCmd = &cobra.Command{
		Use:   "dump [prefix]",
		Short: "Dump all entries (optionally only those whose key starts with prefix) as json object",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			reply, err := rpcClient.Dump(prefix)
			if err != nil {
				return err
			}
			if !reply.OK() {
				return reply.Err()
			}
			return writeData("", reply)
		},
	}
)

func init() {
	getCmd.Flags().StringP("output", "o", "", util.WrapString("Write the value to this file instead of stdout"))
	putCmd.Flags().StringP("input", "i", "", util.WrapString("Read the value from this file ('-' for stdin)"))
}

// printReply prints the status of a reply and turns failures into an error
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

// writeData writes the data of a reply to path (stdout if empty) and its status to stderr
func writeData(path string, reply client.Reply) error {
	fmt.Fprintln(os.Stderr, reply.Status)
	if path == "" {
		_, err := os.Stdout.Write(reply.Data)
		if err == nil && len(reply.Data) > 0 && reply.Data[len(reply.Data)-1] != '\n' {
			fmt.Println()
		}
		return err
	}
	return os.WriteFile(path, reply.Data, 0o600)
}
