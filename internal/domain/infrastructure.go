package domain

// ResourceType enumerates the CloudFormation/SAM resource Type strings this
// fabric recognizes. The template parser's materialization switch and its
// BasePathMapping pass (internal/config) share this list as one source of
// truth, instead of each hand-maintaining its own set of string literals.
type ResourceType string

const (
	ResourceTypeFunction        ResourceType = "AWS::Serverless::Function"
	ResourceTypeQueue           ResourceType = "AWS::SQS::Queue"
	ResourceTypeBucket          ResourceType = "AWS::S3::Bucket"
	ResourceTypeEventBus        ResourceType = "AWS::Events::EventBus"
	ResourceTypeEventRule       ResourceType = "AWS::Events::Rule"
	ResourceTypeAPI             ResourceType = "AWS::Serverless::Api"
	ResourceTypeBasePathMapping ResourceType = "AWS::ApiGateway::BasePathMapping"
)

// Recognized reports whether t is one of the resource types this fabric
// materializes or defers (as opposed to an unsupported type that only ever
// produces a Warning).
func (t ResourceType) Recognized() bool {
	switch t {
	case ResourceTypeFunction, ResourceTypeQueue, ResourceTypeBucket,
		ResourceTypeEventBus, ResourceTypeEventRule, ResourceTypeAPI, ResourceTypeBasePathMapping:
		return true
	default:
		return false
	}
}

// Triggers lists the downstream targets a bucket or queue fans out to when
// it receives a message/notification.
type Triggers struct {
	Lambdas []string `yaml:"lambdas,omitempty"`
	Queues  []string `yaml:"queues,omitempty"`
}

// Queue is a declared SQS-style queue. URL is populated at runtime once the
// queue source has confirmed (or created) it against the backing queue
// service — it starts empty straight out of template parsing.
type Queue struct {
	Name     string   `yaml:"name"`
	URL      string   `yaml:"url,omitempty"`
	Triggers Triggers `yaml:"triggers,omitempty"`
}

// Bucket is a declared S3-style bucket. Notification configuration is
// flattened into Triggers at parse time.
type Bucket struct {
	Name     string   `yaml:"name"`
	Triggers Triggers `yaml:"triggers,omitempty"`
}

// EventBus is a declared event bus. It carries no state beyond identity;
// rules subscribe to it by name.
type EventBus struct {
	Name string `yaml:"name"`
}

// EventRule is a declared event-bus rule: a source/detail-type predicate
// plus the targets to dispatch matching entries to.
type EventRule struct {
	Name       string       `yaml:"name"`
	BusName    string       `yaml:"bus_name"`
	Source     []string     `yaml:"source,omitempty"`
	DetailType []string     `yaml:"detail_type,omitempty"`
	Targets    []RuleTarget `yaml:"targets,omitempty"`
}

// RuleTargetKind tags the transport an event rule dispatches matched
// entries over. Only TargetQueue is currently dispatched (see bussource);
// TargetFunction is reserved, matching the S3 source's lambda-target warn-
// and-skip behavior.
type RuleTargetKind string

const (
	TargetQueue    RuleTargetKind = "queue"
	TargetFunction RuleTargetKind = "function"
)

// RuleTarget is one destination an EventRule dispatches matched entries to.
type RuleTarget struct {
	Kind      RuleTargetKind `yaml:"kind"`
	QueueName string         `yaml:"queue_name,omitempty"`
	Function  string         `yaml:"function,omitempty"`
}

// Matches reports whether an entry with the given source and detail type
// satisfies the rule's predicate. An empty Source/DetailType list matches
// anything, per spec §4.6. The richer structural `detail` predicate is
// deliberately not evaluated here — deferred, per spec §9.
func (r *EventRule) Matches(source, detailType string) bool {
	if len(r.Source) > 0 && !contains(r.Source, source) {
		return false
	}
	if len(r.DetailType) > 0 && !contains(r.DetailType, detailType) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
