package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mofcat/labmill-core/internal/bounds"
	"github.com/mofcat/labmill-core/internal/deck"
	"github.com/mofcat/labmill-core/internal/geometry"
	"github.com/mofcat/labmill-core/internal/instruments"
	"github.com/mofcat/labmill-core/internal/machine"
	"github.com/mofcat/labmill-core/internal/planner"
	"github.com/mofcat/labmill-core/internal/protocol"
)

var errValidationFailed = errors.New("validation failed")

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the lab setup without touching hardware",
	Long: `Loads the machine, deck, board and protocol documents, checks every
labware cell and instrument position against the machine's working
volume, and dry-compiles the protocol. Exits 1 if any check fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := pathsFromFlags(cmd)
		plannerKind, _ := cmd.Flags().GetString("planner")

		_, _, err := runValidation(paths, plannerKind)
		return err
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// setup holds the four loaded and individually validated documents.
type setup struct {
	machine  machine.Config
	deck     *deck.Deck
	board    *instruments.Board
	protocol *protocol.Protocol
}

// loadSetup loads the four documents, printing one report line per
// stage. Loading stops at the first broken document.
func loadSetup(paths docPaths) (*setup, error) {
	s := &setup{}

	cyan.Printf("[1/4] machine    %s\n", paths.machine)
	mcfg, err := machine.Load(paths.machine)
	if err != nil {
		return nil, err
	}
	s.machine = mcfg
	v := mcfg.WorkingVolume
	fmt.Printf("      controller %s, homing %s, safe height %.1f (%s)\n",
		mcfg.Address, mcfg.Homing, mcfg.SafeHeight, mcfg.SafeSide)
	fmt.Printf("      working volume x[%.1f, %.1f] y[%.1f, %.1f] z[%.1f, %.1f]\n",
		v.XMin, v.XMax, v.YMin, v.YMax, v.ZMin, v.ZMax)

	cyan.Printf("[2/4] deck       %s\n", paths.deck)
	d, err := deck.Load(paths.deck)
	if err != nil {
		return nil, err
	}
	s.deck = d
	for _, name := range d.Names() {
		lw, _ := d.Labware(name)
		fmt.Printf("      %s: %s, %d cell(s)\n", name, lw.Kind(), len(lw.Cells()))
	}

	cyan.Printf("[3/4] board      %s\n", paths.board)
	b, err := instruments.LoadBoard(paths.board)
	if err != nil {
		return nil, err
	}
	s.board = b
	for _, name := range b.Names() {
		m, _ := b.Mount(name)
		fmt.Printf("      %s: %s, offset (%.1f, %.1f, %.1f)\n",
			name, m.Type, m.Offset.DX, m.Offset.DY, m.Offset.DZ)
	}

	cyan.Printf("[4/4] protocol   %s\n", paths.protocol)
	p, err := protocol.Load(paths.protocol)
	if err != nil {
		return nil, err
	}
	s.protocol = p
	fmt.Printf("      %s: %d action(s)\n", p.Name, len(p.Actions))

	return s, nil
}

// runValidation loads the documents, checks bounds, and dry-compiles
// the protocol from the machine origin. It prints the full report and
// returns errValidationFailed (wrapped) when any check fails.
func runValidation(paths docPaths, plannerKind string) (*setup, []protocol.Step, error) {
	s, err := loadSetup(paths)
	if err != nil {
		red.Println("FAIL")
		return nil, nil, err
	}

	policy, err := plannerPolicy(plannerKind)
	if err != nil {
		red.Println("FAIL")
		return nil, nil, err
	}

	violations := bounds.ValidateDeck(s.machine.WorkingVolume, s.deck)
	violations = append(violations,
		bounds.ValidateInstrumentPositions(s.machine.WorkingVolume, s.deck, s.board.Offsets())...)
	if len(violations) > 0 {
		for _, viol := range violations {
			red.Printf("      %s\n", viol.String())
		}
		red.Println("FAIL")
		return nil, nil, fmt.Errorf("%w: %d bounds violation(s)", errValidationFailed, len(violations))
	}
	fmt.Println("      bounds: all positions inside the working volume")

	steps, err := protocol.Compile(s.protocol, s.deck, s.board, s.machine, policy, geometry.Point3D{})
	if err != nil {
		red.Println("FAIL")
		return nil, nil, fmt.Errorf("%w: %v", errValidationFailed, err)
	}
	moves, captures := 0, 0
	for _, st := range steps {
		if st.Kind == protocol.StepMove {
			moves++
		} else {
			captures++
		}
	}
	fmt.Printf("      compile: %d step(s) (%d move, %d capture)\n", len(steps), moves, captures)

	green.Println("PASS")
	return s, steps, nil
}

func plannerPolicy(kind string) (planner.Policy, error) {
	k, err := planner.ParseKind(kind)
	if err != nil {
		return planner.Policy{}, err
	}
	return planner.Policy{Kind: k}, nil
}
