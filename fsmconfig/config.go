// Package fsmconfig loads state machine definitions from YAML.
//
// A file names states, transitions and timeouts by id. Behaviour is
// attached in code through Bindings: hooks by state id and actions by
// name.
package fsmconfig

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/librescoot/statemachine"
)

var (
	ErrUnknownAction   = errors.New("unknown action")
	ErrInvalidDuration = errors.New("invalid duration")
)

// File is the root of a YAML definition.
type File struct {
	Name        string       `yaml:"name"`
	Strict      bool         `yaml:"strict"`
	Start       string       `yaml:"start"`
	States      []State      `yaml:"states"`
	Transitions []Transition `yaml:"transitions"`
	Timeouts    []Timeout    `yaml:"timeouts"`
}

// State declares a state.
type State struct {
	ID    string `yaml:"id"`
	Group string `yaml:"group,omitempty"`
}

// Transition declares a transition. Action refers to Bindings.Actions
// and Args are passed to it.
type Transition struct {
	From   string `yaml:"from"`
	Event  string `yaml:"event"`
	To     string `yaml:"to"`
	Action string `yaml:"action,omitempty"`
	Args   []any  `yaml:"args,omitempty"`
}

// Timeout declares a state timeout. After uses time.ParseDuration
// syntax ("500ms", "5s").
type Timeout struct {
	State string `yaml:"state"`
	Event string `yaml:"event"`
	After string `yaml:"after"`
}

// Bindings attaches code to the ids used in a File.
type Bindings struct {
	Hooks   map[statemachine.StateID]statemachine.Hooks
	Actions map[string]statemachine.Action
}

// Parse decodes a YAML definition. Unknown fields are rejected.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}
	return &f, nil
}

// Load reads and parses a YAML definition file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Options returns the machine options the file implies.
func (f *File) Options() []statemachine.MachineOption {
	opts := []statemachine.MachineOption{statemachine.WithStrictEvents(f.Strict)}
	if f.Name != "" {
		opts = append(opts, statemachine.WithName(f.Name))
	}
	return opts
}

// Definition converts the file into a Definition, resolving hooks and
// actions from b. States without bound hooks get none.
func (f *File) Definition(b Bindings) (*statemachine.Definition, error) {
	def := statemachine.NewDefinition()

	for _, s := range f.States {
		id := statemachine.StateID(s.ID)
		opts := []statemachine.StateOption{statemachine.WithGroup(s.Group)}
		if h, ok := b.Hooks[id]; ok {
			opts = append(opts, statemachine.WithHooks(h))
		}
		def.State(id, opts...)
	}

	var errs []error
	for _, t := range f.Transitions {
		var opts []statemachine.TransitionOption
		if t.Action != "" {
			fn, ok := b.Actions[t.Action]
			if !ok {
				errs = append(errs, fmt.Errorf("transition %s --%s--> %s: %w %q", t.From, t.Event, t.To, ErrUnknownAction, t.Action))
				continue
			}
			opts = append(opts, statemachine.WithAction(fn, t.Args...))
		}
		def.Transition(statemachine.StateID(t.From), statemachine.EventID(t.Event), statemachine.StateID(t.To), opts...)
	}

	for _, to := range f.Timeouts {
		d, err := time.ParseDuration(to.After)
		if err != nil {
			errs = append(errs, fmt.Errorf("timeout on %s: %w %q", to.State, ErrInvalidDuration, to.After))
			continue
		}
		def.Timeout(statemachine.StateID(to.State), statemachine.EventID(to.Event), d)
	}

	if f.Start != "" {
		def.Initial(statemachine.StateID(f.Start))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return def, nil
}

// Build is Definition followed by Build with the file's options and
// any extra options appended.
func (f *File) Build(b Bindings, opts ...statemachine.MachineOption) (*statemachine.Machine, error) {
	def, err := f.Definition(b)
	if err != nil {
		return nil, err
	}
	return def.Build(append(f.Options(), opts...)...)
}
