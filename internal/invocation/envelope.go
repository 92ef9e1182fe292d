package invocation

// GatewayRequestIdentity mirrors aws_lambda_events::apigw::ApiGatewayRequestIdentity,
// trimmed to the fields the fabric actually fabricates (spec §4.4).
type GatewayRequestIdentity struct {
	SourceIP  string `json:"sourceIp"`
	UserAgent string `json:"userAgent,omitempty"`
}

// GatewayRequestContext mirrors aws_lambda_events::apigw::ApiGatewayProxyRequestContext,
// trimmed to the fields the fabric fabricates.
type GatewayRequestContext struct {
	AccountID  string                 `json:"accountId"`
	APIID      string                 `json:"apiId"`
	Stage      string                 `json:"stage"`
	RequestID  string                 `json:"requestId"`
	Protocol   string                 `json:"protocol"`
	HTTPMethod string                 `json:"httpMethod"`
	Path       string                 `json:"path"`
	Identity   GatewayRequestIdentity `json:"identity"`
}

// GatewayRequest is the request envelope the API source synthesizes and the
// function runtime receives verbatim from /next (spec §4.4).
type GatewayRequest struct {
	Path                  string                `json:"path"`
	Resource              string                `json:"resource"`
	PathParameters        map[string]string     `json:"pathParameters"`
	QueryStringParameters map[string]string     `json:"queryStringParameters,omitempty"`
	HTTPMethod            string                `json:"httpMethod"`
	Headers               map[string]string     `json:"headers"`
	Body                  string                `json:"body,omitempty"`
	IsBase64Encoded       bool                  `json:"isBase64Encoded"`
	RequestContext        GatewayRequestContext `json:"requestContext"`
}

// GatewayResponse mirrors aws_lambda_events::apigw::ApiGatewayProxyResponse:
// the shape a function runtime posts back to /response, and the shape the
// API source's waiter receives.
type GatewayResponse struct {
	StatusCode      int               `json:"statusCode"`
	Headers         map[string]string `json:"headers,omitempty"`
	Body            string            `json:"body,omitempty"`
	IsBase64Encoded bool              `json:"isBase64Encoded,omitempty"`
}

// QueueMessage mirrors aws_lambda_events::sqs::SqsMessage, trimmed to the
// fields the queue source populates.
type QueueMessage struct {
	MessageID      string            `json:"messageId"`
	ReceiptHandle  string            `json:"receiptHandle"`
	Body           string            `json:"body"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	MD5OfBody      string            `json:"md5OfBody,omitempty"`
	EventSource    string            `json:"eventSource"`
	EventSourceARN string            `json:"eventSourceARN,omitempty"`
	AWSRegion      string            `json:"awsRegion,omitempty"`
}

// QueueEvent mirrors aws_lambda_events::sqs::SqsEvent: the batch payload a
// queue source forwards to /invoke and a function runtime receives from
// /next (spec §4.5).
type QueueEvent struct {
	Records []QueueMessage `json:"Records"`
}

// BusEvent is the canonical event-bridge-event shape the bus source
// dispatches to a queue target: id, detail_type, source, account, time,
// region, resources, detail (spec §4.6).
type BusEvent struct {
	ID         string   `json:"id"`
	DetailType string   `json:"detail-type"`
	Source     string   `json:"source"`
	Account    string   `json:"account,omitempty"`
	Time       string   `json:"time,omitempty"`
	Region     string   `json:"region,omitempty"`
	Resources  []string `json:"resources,omitempty"`
	Detail     string   `json:"detail"`
}
