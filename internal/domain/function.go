package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// PackageType mirrors AWS::Serverless::Function's PackageType property.
// The fabric only ever deals with container images — the function code
// itself is opaque.
type PackageType string

const (
	PackageTypeImage PackageType = "Image"
)

// Function is a single deployable unit: a container image plus the event
// sources bound to it.
type Function struct {
	Name        string            `yaml:"name"`
	Image       string            `yaml:"image"`
	PackageType PackageType       `yaml:"package_type"`
	EnvVars     map[string]string `yaml:"env_vars,omitempty"`
	Events      []EventBinding    `yaml:"events,omitempty"`
}

// AddEvent appends a binding to the function's event list, preserving
// declaration order — route-matching order and round-trip fidelity both
// depend on this order being stable.
func (f *Function) AddEvent(b EventBinding) {
	f.Events = append(f.Events, b)
}

// BindingKind tags the variant carried by an EventBinding.
type BindingKind string

const (
	BindingAPIRoute      BindingKind = "api_route"
	BindingQueueConsumer BindingKind = "queue_consumer"
	BindingBusTarget     BindingKind = "bus_target"
)

// EventBinding is the tagged union described in spec §3: a function may be
// triggered by an API route, a queue, or an event-bus rule. Exactly one of
// API/Queue/Bus is populated, selected by Kind.
type EventBinding struct {
	Name  string               `yaml:"name"`
	Kind  BindingKind          `yaml:"kind"`
	API   *APIRouteBinding     `yaml:"api,omitempty"`
	Queue *QueueConsumerBinding `yaml:"queue,omitempty"`
	Bus   *BusTargetBinding    `yaml:"bus,omitempty"`
}

// APIRouteBinding binds a function to one HTTP route. Regex is compiled
// once at graph-materialization time (see CompileRoute) and reused for
// every request; recompiling per-request is the performance trap spec §9
// calls out explicitly.
type APIRouteBinding struct {
	Path     string `yaml:"path"`
	Method   string `yaml:"method"`
	BasePath string `yaml:"base_path,omitempty"`

	// APILogicalName is the declaring AWS::Serverless::Api resource's
	// logical name, kept so config.ParseTemplates can attach a
	// BasePathMapping's BasePath after all resources have been indexed.
	// It plays no role in matching.
	APILogicalName string `yaml:"api_logical_name,omitempty"`

	regex *regexp.Regexp
}

// QueueConsumerBinding binds a function to a queue's message batches.
type QueueConsumerBinding struct {
	QueueName string `yaml:"queue_name"`
}

// BusTargetBinding binds a function to an event-bus rule's matches.
// (Lambda-as-bus-target is declared but not yet dispatched — see
// bussource, which currently only dispatches to queue targets.)
type BusTargetBinding struct {
	RuleName string `yaml:"rule_name"`
}

// pathParamPattern matches SAM-style path parameter segments: {name} and
// the greedy variant {name+}.
var pathParamPattern = regexp.MustCompile(`\{([^}]+)\}`)

// CompileRoute turns a SAM path template plus an optional base path into an
// anchored regular expression, storing it on the binding. {name} segments
// become named captures matching a single path segment; {name+} segments
// become greedy captures spanning slashes. Composition with the base path
// is `^/<base_path><path>$`; without one it is `^<path>$`.
func (b *APIRouteBinding) CompileRoute() error {
	replaced := pathParamPattern.ReplaceAllStringFunc(b.Path, func(seg string) string {
		name := seg[1 : len(seg)-1]
		if strings.HasSuffix(name, "+") {
			return fmt.Sprintf("(?P<%s>.*)", name[:len(name)-1])
		}
		return fmt.Sprintf("(?P<%s>[^/]+)", name)
	})

	var pattern string
	if b.BasePath != "" {
		pattern = fmt.Sprintf("^/%s%s$", strings.Trim(b.BasePath, "/"), replaced)
	} else {
		pattern = fmt.Sprintf("^%s$", replaced)
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("compile route %q (base_path=%q): %w", b.Path, b.BasePath, err)
	}
	b.regex = re
	return nil
}

// Regex returns the compiled route pattern. CompileRoute must have been
// called first (config.ParseTemplates and config.LoadGraphFromEnv both do
// this during materialization).
func (b *APIRouteBinding) Regex() *regexp.Regexp {
	return b.regex
}

// MatchesMethod reports whether the binding accepts the given HTTP method.
// "ANY" matches every method; otherwise the match is an exact,
// case-insensitive comparison.
func (b *APIRouteBinding) MatchesMethod(method string) bool {
	if strings.EqualFold(b.Method, "ANY") {
		return true
	}
	return strings.EqualFold(b.Method, method)
}
