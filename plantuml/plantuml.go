// Package plantuml renders state hierarchies and observed transitions as
// PlantUML state diagrams.
//
// The engine itself never imports this package; hosts feed a Diagram from a
// strata.Recorder (or any record source) and hand the output to PlantUML
// tooling. Rendering is deterministic: states and edges are sorted, so the
// same inputs always produce byte-identical output.
package plantuml

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/strata"
)

type edgeKey struct {
	from, to string
}

// Diagram accumulates states, parent links and transition edges. State
// identifiers are rendered with fmt.Sprint; keep them PlantUML-safe
// (no spaces) for directly usable output.
type Diagram[S comparable] struct {
	states     map[string]struct{}
	parents    map[string]string
	edges      map[edgeKey]string
	current    string
	hasCurrent bool
}

// New creates an empty diagram.
func New[S comparable]() *Diagram[S] {
	return &Diagram[S]{
		states:  make(map[string]struct{}),
		parents: make(map[string]string),
		edges:   make(map[edgeKey]string),
	}
}

// FromRecords builds a diagram from observer records. Each record becomes an
// edge labeled with its trigger; delegation hops keep their "super:" labels.
// When resolve is non-nil, every state appearing in a record gets its direct
// parent link drawn.
func FromRecords[S comparable](records []strata.TransitionRecord[S], resolve strata.SuperstateFunc[S]) *Diagram[S] {
	d := New[S]()
	for _, rec := range records {
		d.AddEdge(rec.From, rec.To, rec.Trigger)
	}
	if resolve != nil {
		endpoints := make(map[S]struct{}, len(records)*2)
		for _, rec := range records {
			endpoints[rec.From] = struct{}{}
			endpoints[rec.To] = struct{}{}
		}
		for s := range endpoints {
			if parent, ok := resolve(s); ok {
				d.SetParent(s, parent)
			}
		}
	}
	return d
}

// AddState declares a state so it appears even with no edges touching it.
func (d *Diagram[S]) AddState(s S) *Diagram[S] {
	d.states[fmt.Sprint(s)] = struct{}{}
	return d
}

// SetParent draws child -up-> parent.
func (d *Diagram[S]) SetParent(child, parent S) *Diagram[S] {
	c, p := fmt.Sprint(child), fmt.Sprint(parent)
	d.parents[c] = p
	d.states[c] = struct{}{}
	d.states[p] = struct{}{}
	return d
}

// AddEdge draws from --> to with an optional label. Re-adding an edge
// replaces its label.
func (d *Diagram[S]) AddEdge(from, to S, label string) *Diagram[S] {
	f, t := fmt.Sprint(from), fmt.Sprint(to)
	d.edges[edgeKey{from: f, to: t}] = label
	d.states[f] = struct{}{}
	d.states[t] = struct{}{}
	return d
}

// SetCurrent marks s with the <<Current>> stereotype.
func (d *Diagram[S]) SetCurrent(s S) *Diagram[S] {
	d.current = fmt.Sprint(s)
	d.hasCurrent = true
	d.states[d.current] = struct{}{}
	return d
}

// Render produces the diagram source: header, parent links, transition
// edges, isolated states, current marker.
func (d *Diagram[S]) Render() string {
	var b strings.Builder
	b.WriteString("@startuml\n")
	b.WriteString("skinparam state {\n")
	b.WriteString("  BackgroundColor<<Current>> YellowGreen\n")
	b.WriteString("}\n")

	seen := make(map[string]bool)

	children := make([]string, 0, len(d.parents))
	for c := range d.parents {
		children = append(children, c)
	}
	sort.Strings(children)
	for _, c := range children {
		p := d.parents[c]
		fmt.Fprintf(&b, "%s -up-> %s : parent\n", c, p)
		seen[c] = true
		seen[p] = true
	}

	keys := make([]edgeKey, 0, len(d.edges))
	for k := range d.edges {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].from != keys[j].from {
			return keys[i].from < keys[j].from
		}
		return keys[i].to < keys[j].to
	})
	for _, k := range keys {
		if label := d.edges[k]; label != "" {
			fmt.Fprintf(&b, "%s --> %s : %s\n", k.from, k.to, label)
		} else {
			fmt.Fprintf(&b, "%s --> %s\n", k.from, k.to)
		}
		seen[k.from] = true
		seen[k.to] = true
	}

	isolated := make([]string, 0)
	for s := range d.states {
		if !seen[s] {
			isolated = append(isolated, s)
		}
	}
	sort.Strings(isolated)
	for _, s := range isolated {
		fmt.Fprintf(&b, "state %s\n", s)
	}

	if d.hasCurrent {
		fmt.Fprintf(&b, "state %s <<Current>>\n", d.current)
	}

	b.WriteString("@enduml\n")
	return b.String()
}
