// Command fsmdot renders a YAML state machine definition as Graphviz DOT.
//
//	fsmdot -i machine.yaml -o machine.dot --active connecting --key
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/librescoot/statemachine"
	"github.com/librescoot/statemachine/fsmconfig"
	"github.com/librescoot/statemachine/graph"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "fsmdot: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("fsmdot", pflag.ContinueOnError)
	input := flags.StringP("input", "i", "", "YAML definition to render (required)")
	output := flags.StringP("output", "o", "", "write DOT here instead of stdout")
	active := flags.String("active", "", "state to highlight")
	key := flags.Bool("key", false, "append a legend")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return fmt.Errorf("--input is required")
	}

	f, err := fsmconfig.Load(*input)
	if err != nil {
		return err
	}
	// Rendering only reads the tables, so actions are stubbed and the
	// machine is never started.
	actions := make(map[string]statemachine.Action)
	for _, t := range f.Transitions {
		if t.Action != "" {
			actions[t.Action] = func(*statemachine.Context) {}
		}
	}
	def, err := f.Definition(fsmconfig.Bindings{Actions: actions})
	if err != nil {
		return err
	}
	m, err := def.Build()
	if err != nil {
		return err
	}
	defer m.Stop()

	opts := []graph.Option{graph.WithKey(*key)}
	if f.Name != "" {
		opts = append(opts, graph.WithName(f.Name))
	}
	if *active != "" {
		opts = append(opts, graph.WithActive(statemachine.StateID(*active)))
	}

	w := stdout
	if *output != "" {
		file, err := os.Create(*output)
		if err != nil {
			return err
		}
		defer file.Close()
		w = file
	}
	return graph.WriteDOT(w, m, opts...)
}
