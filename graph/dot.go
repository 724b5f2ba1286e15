// Package graph renders state machines as Graphviz DOT.
package graph

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/librescoot/statemachine"
)

// Source is the read-only view of a machine the exporter needs.
// *statemachine.Machine implements it.
type Source interface {
	States() []statemachine.StateInfo
	Transitions() []statemachine.TransitionInfo
	Timeouts() []statemachine.TimeoutInfo
	StartState() statemachine.StateID
	ActiveState() statemachine.StateID
}

type options struct {
	name       string
	active     statemachine.StateID
	key        bool
	stateLabel func(statemachine.StateID) string
	eventLabel func(statemachine.EventID) string
}

// Option configures WriteDOT.
type Option func(*options)

// WithName sets the digraph name, which is also printed as the graph
// label.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithActive highlights id instead of the source's active state.
func WithActive(id statemachine.StateID) Option {
	return func(o *options) {
		o.active = id
	}
}

// WithKey appends a legend explaining the node and edge styles.
func WithKey(show bool) Option {
	return func(o *options) {
		o.key = show
	}
}

// WithStateLabel maps state ids to the labels drawn on their nodes.
// Node ids in the output stay the state ids.
func WithStateLabel(fn func(statemachine.StateID) string) Option {
	return func(o *options) {
		o.stateLabel = fn
	}
}

// WithEventLabel maps event ids to the labels drawn on edges.
func WithEventLabel(fn func(statemachine.EventID) string) Option {
	return func(o *options) {
		o.eventLabel = fn
	}
}

// Styles shared by the graph and its key.
const (
	startAttrs   = ", peripheries=2"
	activeAttrs  = ", style=\"rounded,filled\", fillcolor=lightgreen"
	timeoutAttrs = ", color=darkslategray, fontcolor=darkslategray"
)

const key = `  subgraph "cluster___key" {
    label="Key";
    "__key_start" [label="Start"` + startAttrs + `];
    "__key_active" [label="Active"` + activeAttrs + `];
    "__key_src1" [label="Source"];
    "__key_dst1" [label="Target"];
    "__key_src1" -> "__key_dst1" [label="event"];
    "__key_src2" [label="Source"];
    "__key_dst2" [label="Target"];
    "__key_src2" -> "__key_dst2" [label="event /"];
    "__key_src3" [label="Source"];
    "__key_dst3" [label="Target"];
    "__key_src3" -> "__key_dst3" [label="timeout [after]"` + timeoutAttrs + `];
  }
`

// WriteDOT writes src as a DOT digraph. States of the same non-default
// group are drawn in a cluster, the start state has a double border,
// timeout transitions are labelled with their duration and the active
// state is filled. Output is sorted and therefore stable.
func WriteDOT(w io.Writer, src Source, opts ...Option) error {
	o := options{
		name:       "statemachine",
		active:     src.ActiveState(),
		stateLabel: func(id statemachine.StateID) string { return string(id) },
		eventLabel: func(ev statemachine.EventID) string { return string(ev) },
	}
	for _, opt := range opts {
		opt(&o)
	}

	timeouts := make(map[statemachine.StateID]statemachine.TimeoutInfo)
	for _, to := range src.Timeouts() {
		timeouts[to.State] = to
	}

	groups := make(map[string][]statemachine.StateID)
	for _, s := range src.States() {
		groups[s.Group] = append(groups[s.Group], s.ID)
	}
	names := make([]string, 0, len(groups))
	for g := range groups {
		names = append(names, g)
	}
	sort.Strings(names)

	start := src.StartState()

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "digraph %s {\n", strconv.Quote(o.name))
	fmt.Fprintf(bw, "  label=%s;\n", strconv.Quote(o.name))
	bw.WriteString("  labelloc=t;\n")
	bw.WriteString("  rankdir=LR;\n")
	bw.WriteString("  node [shape=box, style=rounded, fontsize=10];\n")
	bw.WriteString("  edge [fontsize=9];\n")

	if start != "" {
		bw.WriteString("  __start [shape=point];\n")
		fmt.Fprintf(bw, "  __start -> %s;\n", strconv.Quote(string(start)))
	}

	for _, g := range names {
		ids := groups[g]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		indent := "  "
		if g != statemachine.DefaultGroup {
			fmt.Fprintf(bw, "  subgraph %s {\n", strconv.Quote("cluster_"+g))
			fmt.Fprintf(bw, "    label=%s;\n", strconv.Quote(g))
			indent = "    "
		}
		for _, id := range ids {
			attrs := ""
			if id == start {
				attrs += startAttrs
			}
			if id == o.active {
				attrs += activeAttrs
			}
			fmt.Fprintf(bw, "%s%s [label=%s%s];\n", indent,
				strconv.Quote(string(id)), strconv.Quote(o.stateLabel(id)), attrs)
		}
		if g != statemachine.DefaultGroup {
			bw.WriteString("  }\n")
		}
	}

	edges := src.Transitions()
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].Event < edges[j].Event
	})
	for _, e := range edges {
		label := o.eventLabel(e.Event)
		attrs := ""
		if to, ok := timeouts[e.From]; ok && to.Event == e.Event {
			label = fmt.Sprintf("%s [%s]", label, to.After)
			attrs = timeoutAttrs
		}
		if e.HasAction {
			label += " /"
		}
		fmt.Fprintf(bw, "  %s -> %s [label=%s%s];\n",
			strconv.Quote(string(e.From)), strconv.Quote(string(e.To)), strconv.Quote(label), attrs)
	}

	if o.key {
		bw.WriteString(key)
	}

	bw.WriteString("}\n")
	return bw.Flush()
}
