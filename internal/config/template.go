// Package config turns one or more SAM/CloudFormation-style YAML templates
// into a domain.ResourceGraph, and loads/saves the ambient runtime options
// the invoker and the event sources share.
//
// # Materialization
//
// ParseTemplates runs the multi-pass algorithm the original implementation
// used (sam-e-types' cloudformation::resource module): first every resource
// is indexed by logical name without interpreting its Type; second, each
// resource is materialized into its typed domain object, resolving any
// !Ref/!GetAtt intrinsic (or passing a plain string through) against the
// logical-name index; third, AWS::ApiGateway::BasePathMapping resources are
// applied to the API routes of the Api they target; fourth, every event
// rule's targets are resolved against the now-complete set of Queues and
// Functions, since a rule may be declared before the resource it targets,
// and every function's SQS and EventBridgeRule bindings are checked against
// the declared Queues and Rules.
// The last two passes exist because their inputs can only be resolved once
// every other resource has already been materialized.
//
// Parsing is tolerant: an unsupported resource Type, a malformed
// sub-property, or a dangling reference is recorded as a domain.Warning on
// the graph and that one resource (or one event on a function) is skipped —
// it never aborts the whole template (spec §4.1).
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sam-e/fabric/internal/domain"
)

type rawTemplate struct {
	Resources map[string]rawResource `yaml:"Resources"`
}

type rawResource struct {
	Type       string    `yaml:"Type"`
	Properties yaml.Node `yaml:"Properties"`
}

// ParseTemplates reads and merges every template at paths into a single
// ResourceGraph. Resources are merged by logical name across files in the
// order given; a later file's resource with the same logical name replaces
// an earlier one, matching how `sam local` treats `--template` overlays.
func ParseTemplates(paths []string) (*domain.ResourceGraph, error) {
	merged := make(map[string]rawResource)
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", p, err)
		}
		var t rawTemplate
		if err := yaml.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", p, err)
		}
		for name, res := range t.Resources {
			merged[name] = res
		}
	}
	return materialize(merged), nil
}

func materialize(merged map[string]rawResource) *domain.ResourceGraph {
	graph := &domain.ResourceGraph{}

	apiLogicalNames := make(map[string]bool)
	for name, res := range merged {
		if domain.ResourceType(res.Type) == domain.ResourceTypeAPI {
			apiLogicalNames[name] = true
		}
	}

	for name, res := range merged {
		switch domain.ResourceType(res.Type) {
		case domain.ResourceTypeFunction:
			fn := materializeFunction(graph, name, res.Properties)
			graph.Functions = append(graph.Functions, fn)
		case domain.ResourceTypeQueue:
			graph.Queues = append(graph.Queues, &domain.Queue{Name: name})
		case domain.ResourceTypeBucket:
			graph.Buckets = append(graph.Buckets, materializeBucket(graph, name, res.Properties))
		case domain.ResourceTypeEventBus:
			graph.Buses = append(graph.Buses, &domain.EventBus{Name: name})
		case domain.ResourceTypeEventRule:
			graph.Rules = append(graph.Rules, materializeRule(graph, name, res.Properties))
		case domain.ResourceTypeAPI, domain.ResourceTypeBasePathMapping:
			// Api resources carry no state of their own beyond identity
			// (tracked via apiLogicalNames); BasePathMapping is resolved
			// in the third pass, once every Api and Function exists.
		default:
			graph.Warn(name, fmt.Sprintf("unsupported resource type %q, skipping", res.Type))
		}
	}

	applyBasePathMappings(graph, merged, apiLogicalNames)
	resolveRuleTargets(graph)
	for _, fn := range graph.Functions {
		kept := fn.Events[:0]
		for _, ev := range fn.Events {
			switch {
			case ev.Kind == domain.BindingQueueConsumer && graph.QueueByName(ev.Queue.QueueName) == nil:
				graph.Warn(fmt.Sprintf("%s/%s", fn.Name, ev.Name), fmt.Sprintf("Queue %q is not declared, skipping", ev.Queue.QueueName))
			case ev.Kind == domain.BindingBusTarget && graph.RuleByName(ev.Bus.RuleName) == nil:
				graph.Warn(fmt.Sprintf("%s/%s", fn.Name, ev.Name), fmt.Sprintf("Rule %q is not declared, skipping", ev.Bus.RuleName))
			default:
				kept = append(kept, ev)
			}
		}
		fn.Events = kept
	}
	return graph
}

type functionProps struct {
	PackageType string   `yaml:"PackageType"`
	ImageUri    string   `yaml:"ImageUri"`
	Environment *struct {
		Variables map[string]string `yaml:"Variables"`
	} `yaml:"Environment"`
	Events map[string]rawEvent `yaml:"Events"`
}

type rawEvent struct {
	Type       string    `yaml:"Type"`
	Properties yaml.Node `yaml:"Properties"`
}

func materializeFunction(graph *domain.ResourceGraph, name string, propsNode yaml.Node) *domain.Function {
	var props functionProps
	if err := propsNode.Decode(&props); err != nil {
		graph.Warn(name, fmt.Sprintf("invalid Properties: %v", err))
		return &domain.Function{Name: name, PackageType: domain.PackageTypeImage}
	}

	fn := &domain.Function{
		Name:        name,
		Image:       props.ImageUri,
		PackageType: domain.PackageType(props.PackageType),
	}
	if fn.PackageType == "" {
		fn.PackageType = domain.PackageTypeImage
	}
	if props.Environment != nil {
		fn.EnvVars = props.Environment.Variables
	}

	for evName, ev := range props.Events {
		binding, err := materializeEvent(evName, ev)
		if err != nil {
			graph.Warn(fmt.Sprintf("%s/%s", name, evName), err.Error())
			continue
		}
		if binding != nil {
			fn.AddEvent(*binding)
		}
	}
	return fn
}

func materializeEvent(name string, ev rawEvent) (*domain.EventBinding, error) {
	switch ev.Type {
	case "Api":
		var props struct {
			Path      string  `yaml:"Path"`
			Method    string  `yaml:"Method"`
			RestApiId cfValue `yaml:"RestApiId"`
		}
		if err := ev.Properties.Decode(&props); err != nil {
			return nil, fmt.Errorf("invalid Api event: %w", err)
		}
		if props.Path == "" || props.Method == "" {
			return nil, fmt.Errorf("Api event missing Path or Method")
		}
		binding := &domain.APIRouteBinding{
			Path:           props.Path,
			Method:         strings.ToUpper(props.Method),
			APILogicalName: props.RestApiId.LogicalName(),
		}
		if err := binding.CompileRoute(); err != nil {
			return nil, err
		}
		return &domain.EventBinding{Name: name, Kind: domain.BindingAPIRoute, API: binding}, nil

	case "SQS":
		var props struct {
			Queue cfValue `yaml:"Queue"`
		}
		if err := ev.Properties.Decode(&props); err != nil {
			return nil, fmt.Errorf("invalid SQS event: %w", err)
		}
		queueName := props.Queue.LogicalName()
		if queueName == "" {
			return nil, fmt.Errorf("SQS event Queue is required")
		}
		return &domain.EventBinding{
			Name: name, Kind: domain.BindingQueueConsumer,
			Queue: &domain.QueueConsumerBinding{QueueName: queueName},
		}, nil

	case "EventBridgeRule":
		var props struct {
			RuleName string `yaml:"RuleName"`
		}
		if err := ev.Properties.Decode(&props); err != nil {
			return nil, fmt.Errorf("invalid EventBridgeRule event: %w", err)
		}
		if props.RuleName == "" {
			return nil, fmt.Errorf("EventBridgeRule event missing RuleName")
		}
		return &domain.EventBinding{
			Name: name, Kind: domain.BindingBusTarget,
			Bus: &domain.BusTargetBinding{RuleName: props.RuleName},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported event type %q", ev.Type)
	}
}

func materializeBucket(graph *domain.ResourceGraph, name string, propsNode yaml.Node) *domain.Bucket {
	var props struct {
		NotificationConfiguration *struct {
			LambdaConfigurations []struct {
				Function cfValue `yaml:"Function"`
			} `yaml:"LambdaConfigurations"`
			QueueConfigurations []struct {
				Queue cfValue `yaml:"Queue"`
			} `yaml:"QueueConfigurations"`
		} `yaml:"NotificationConfiguration"`
	}
	if err := propsNode.Decode(&props); err != nil {
		graph.Warn(name, fmt.Sprintf("invalid Properties: %v", err))
		return &domain.Bucket{Name: name}
	}

	b := &domain.Bucket{Name: name}
	if props.NotificationConfiguration != nil {
		for _, lc := range props.NotificationConfiguration.LambdaConfigurations {
			fnName := lc.Function.LogicalName()
			if fnName == "" {
				graph.Warn(name, "LambdaConfiguration Function is required, skipping")
				continue
			}
			b.Triggers.Lambdas = append(b.Triggers.Lambdas, fnName)
		}
		for _, qc := range props.NotificationConfiguration.QueueConfigurations {
			qName := qc.Queue.LogicalName()
			if qName == "" {
				graph.Warn(name, "QueueConfiguration Queue is required, skipping")
				continue
			}
			b.Triggers.Queues = append(b.Triggers.Queues, qName)
		}
	}
	return b
}

func materializeRule(graph *domain.ResourceGraph, name string, propsNode yaml.Node) *domain.EventRule {
	var props struct {
		EventBusName cfValue `yaml:"EventBusName"`
		EventPattern *struct {
			Source     []string `yaml:"source"`
			DetailType []string `yaml:"detail-type"`
		} `yaml:"EventPattern"`
		Targets []struct {
			Arn cfValue `yaml:"Arn"`
		} `yaml:"Targets"`
	}
	if err := propsNode.Decode(&props); err != nil {
		graph.Warn(name, fmt.Sprintf("invalid Properties: %v", err))
		return &domain.EventRule{Name: name}
	}

	rule := &domain.EventRule{Name: name, BusName: props.EventBusName.LogicalName()}
	if props.EventPattern != nil {
		rule.Source = props.EventPattern.Source
		rule.DetailType = props.EventPattern.DetailType
	}
	for _, t := range props.Targets {
		targetName := t.Arn.LogicalName()
		if targetName == "" {
			graph.Warn(name, "Target Arn must resolve to a logical resource name, skipping")
			continue
		}
		// Kind is resolved later, by resolveRuleTargets, once every Queue
		// and Function in the template has been materialized; QueueName
		// holds the raw target name as a placeholder until then.
		rule.Targets = append(rule.Targets, domain.RuleTarget{QueueName: targetName})
	}
	return rule
}

// resolveRuleTargets fixes up every rule target's Kind and QueueName/
// Function fields by looking the raw target name up against the fully
// materialized graph. It must run after every Queue and Function resource
// has been added to the graph, since a rule can be declared before (or
// after) the resource it targets in the template's Resources map.
func resolveRuleTargets(graph *domain.ResourceGraph) {
	for _, rule := range graph.Rules {
		resolved := rule.Targets[:0]
		for _, t := range rule.Targets {
			targetName := t.QueueName
			switch {
			case graph.QueueByName(targetName) != nil:
				resolved = append(resolved, domain.RuleTarget{Kind: domain.TargetQueue, QueueName: targetName})
			case graph.FunctionByName(targetName) != nil:
				// A function target is recorded but not yet dispatched,
				// matching the S3 source's lambda-target warn-and-skip.
				resolved = append(resolved, domain.RuleTarget{Kind: domain.TargetFunction, Function: targetName})
			default:
				graph.Warn(rule.Name, fmt.Sprintf("Target %q does not resolve to a declared Queue or Function, skipping", targetName))
			}
		}
		rule.Targets = resolved
	}
}

func applyBasePathMappings(graph *domain.ResourceGraph, merged map[string]rawResource, apiLogicalNames map[string]bool) {
	basePathByAPI := make(map[string]string)
	for name, res := range merged {
		if domain.ResourceType(res.Type) != domain.ResourceTypeBasePathMapping {
			continue
		}
		var props struct {
			BasePath  string  `yaml:"BasePath"`
			RestApiId cfValue `yaml:"RestApiId"`
		}
		if err := res.Properties.Decode(&props); err != nil {
			graph.Warn(name, fmt.Sprintf("invalid BasePathMapping: %v", err))
			continue
		}
		apiName := props.RestApiId.LogicalName()
		if apiName == "" || !apiLogicalNames[apiName] {
			graph.Warn(name, fmt.Sprintf("RestApiId %q does not resolve to a declared Api", apiName))
			continue
		}
		basePathByAPI[apiName] = props.BasePath
	}

	if len(basePathByAPI) == 0 {
		return
	}

	for _, fn := range graph.Functions {
		for i := range fn.Events {
			ev := &fn.Events[i]
			if ev.Kind != domain.BindingAPIRoute || ev.API == nil {
				continue
			}
			bp, ok := basePathByAPI[ev.API.APILogicalName]
			if !ok {
				continue
			}
			ev.API.BasePath = bp
			if err := ev.API.CompileRoute(); err != nil {
				graph.Warn(fn.Name, fmt.Sprintf("recompile route after base path mapping: %v", err))
			}
		}
	}
}
