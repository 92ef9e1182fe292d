// Package domain holds the typed resource graph the invocation fabric runs
// against: functions, queues, buckets, event buses, and the bindings between
// them. Types in this package are pure data — parsing a template into a
// graph lives in package config; running the graph lives in the invoker and
// the event-source packages.
package domain

import (
	"fmt"
	"sort"
)

// ResourceGraph is the materialized, typed representation of a template's
// resources and the bindings between them. It is produced once by
// config.ParseTemplates (or loaded verbatim from the CONFIG environment
// variable) and then shared read-only by the invoker and every source.
type ResourceGraph struct {
	Functions []*Function  `yaml:"functions"`
	Queues    []*Queue     `yaml:"queues"`
	Buckets   []*Bucket    `yaml:"buckets"`
	Buses     []*EventBus  `yaml:"buses"`
	Rules     []*EventRule `yaml:"rules"`

	warnings []Warning
}

// Warning is a non-fatal diagnostic raised while materializing a resource.
// The original implementation logged these with tracing::warn! and moved
// on; callers here can still print them, but a single bad sub-field never
// aborts the whole graph.
type Warning struct {
	Resource string
	Reason   string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Resource, w.Reason)
}

// Warn records a non-fatal diagnostic against the graph.
func (g *ResourceGraph) Warn(resource, reason string) {
	g.warnings = append(g.warnings, Warning{Resource: resource, Reason: reason})
}

// Warnings returns every diagnostic collected while materializing the graph.
func (g *ResourceGraph) Warnings() []Warning {
	return g.warnings
}

// FunctionByName returns the function with the given logical name, or nil.
func (g *ResourceGraph) FunctionByName(name string) *Function {
	for _, f := range g.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// QueueByName returns the queue with the given logical name, or nil.
func (g *ResourceGraph) QueueByName(name string) *Queue {
	for _, q := range g.Queues {
		if q.Name == name {
			return q
		}
	}
	return nil
}

// BucketByName returns the bucket with the given logical name, or nil.
func (g *ResourceGraph) BucketByName(name string) *Bucket {
	for _, b := range g.Buckets {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// BusByName returns the event bus with the given logical name, or nil.
func (g *ResourceGraph) BusByName(name string) *EventBus {
	for _, b := range g.Buses {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// RuleByName returns the event rule with the given logical name, or nil.
func (g *ResourceGraph) RuleByName(name string) *EventRule {
	for _, r := range g.Rules {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// APIRoutes returns every (function, binding) pair whose binding is an
// ApiRoute, in canonical order: sorted by function name, then by the order
// the bindings were declared on that function. This canonicalizes the "first
// match wins" ambiguity the spec leaves open for overlapping routes (see
// DESIGN.md's Open Question decision) so route matching is stable across
// restarts regardless of map/template iteration order.
func (g *ResourceGraph) APIRoutes() []RouteEntry {
	names := make([]string, 0, len(g.Functions))
	byName := make(map[string]*Function, len(g.Functions))
	for _, f := range g.Functions {
		names = append(names, f.Name)
		byName[f.Name] = f
	}
	sort.Strings(names)

	var out []RouteEntry
	for _, name := range names {
		fn := byName[name]
		for _, ev := range fn.Events {
			if ev.Kind == BindingAPIRoute && ev.API != nil {
				out = append(out, RouteEntry{Function: fn, Binding: ev.API})
			}
		}
	}
	return out
}

// RouteEntry pairs an owning function with one of its compiled API routes.
type RouteEntry struct {
	Function *Function
	Binding  *APIRouteBinding
}
