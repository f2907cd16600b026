package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

var rootCmd = &cobra.Command{
	Use:   "labmill",
	Short: "Labmill drives a gantry-based lab automation rig",
	Long: `Labmill loads a machine description, a calibrated deck, an instrument
board and a protocol document, validates them against the machine's
working volume, and executes the protocol on a GRBL-style controller.`,
	SilenceUsage: true,
}

// Execute runs the root command and maps any error onto exit code 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Document paths, shared by validate and run.
	rootCmd.PersistentFlags().String("machine", "configs/machine.yaml", "Machine document path")
	rootCmd.PersistentFlags().String("deck", "configs/deck.yaml", "Deck document path")
	rootCmd.PersistentFlags().String("board", "configs/board.yaml", "Instrument board document path")
	rootCmd.PersistentFlags().String("protocol", "configs/protocol.yaml", "Protocol document path")
	rootCmd.PersistentFlags().String("planner", "optimized", "Motion planning policy (naive or optimized)")
}

// docPaths holds the four document paths read from the command flags.
type docPaths struct {
	machine  string
	deck     string
	board    string
	protocol string
}

func pathsFromFlags(cmd *cobra.Command) docPaths {
	machine, _ := cmd.Flags().GetString("machine")
	deckPath, _ := cmd.Flags().GetString("deck")
	board, _ := cmd.Flags().GetString("board")
	protocolPath, _ := cmd.Flags().GetString("protocol")
	return docPaths{machine: machine, deck: deckPath, board: board, protocol: protocolPath}
}
