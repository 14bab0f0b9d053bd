package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sweeney/bootkey/internal/gpio"
)

func init() {
	rootCmd.AddCommand(getCmd)
}

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current level of the boot key line",
	Long:  "Read the boot key line once without waiting for an edge and print its level.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		chip := gpio.NewRealChip(rootOpts.Chip, gpio.DefaultConsumer)
		return printLevel(cmd.OutOrStdout(), chip, rootOpts.Line)
	},
}

func printLevel(w io.Writer, chip gpio.Acquirer, offset int) error {
	line, err := chip.Acquire(offset)
	if err != nil {
		return fmt.Errorf("request line %d: %w", offset, err)
	}
	defer line.Close()

	v, err := line.Value()
	if err != nil {
		return fmt.Errorf("read line %d: %w", offset, err)
	}
	fmt.Fprintln(w, v)
	return nil
}
