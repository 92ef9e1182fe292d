package queuesource

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSBackend is the primary Backend, talking to a real (or
// locally-emulated) SQS endpoint. Grounded in the original implementation's
// queue source, which always used SQS and relied entirely on
// AWS_ENDPOINT_URL/SQS_ENDPOINT_URL to redirect that traffic to a local
// service during development.
type SQSBackend struct {
	client *sqs.Client
}

// NewSQSBackend loads the default AWS config (respecting
// AWS_ENDPOINT_URL/AWS_ENDPOINT_URL_SQS, AWS_REGION, and credentials env vars)
// and returns a Backend backed by it.
func NewSQSBackend(ctx context.Context) (*SQSBackend, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &SQSBackend{client: sqs.NewFromConfig(cfg)}, nil
}

func (b *SQSBackend) EnsureQueue(ctx context.Context, queueName string) (string, error) {
	got, err := b.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: &queueName})
	if err == nil {
		return *got.QueueUrl, nil
	}

	created, err := b.client.CreateQueue(ctx, &sqs.CreateQueueInput{QueueName: &queueName})
	if err != nil {
		return "", fmt.Errorf("create queue %s: %w", queueName, err)
	}
	return *created.QueueUrl, nil
}

func (b *SQSBackend) Enqueue(ctx context.Context, address, body string) error {
	_, err := b.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &address,
		MessageBody: &body,
	})
	return err
}

func (b *SQSBackend) Receive(ctx context.Context, address string, maxMessages int) ([]Message, error) {
	out, err := b.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &address,
		MaxNumberOfMessages: int32(maxMessages),
		WaitTimeSeconds:     0,
		AttributeNames:      []types.QueueAttributeName{types.QueueAttributeNameAll},
	})
	if err != nil {
		return nil, err
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, Message{
			ID:            derefString(m.MessageId),
			ReceiptHandle: derefString(m.ReceiptHandle),
			Body:          derefString(m.Body),
		})
	}
	return msgs, nil
}

func (b *SQSBackend) Delete(ctx context.Context, address string, msg Message) error {
	_, err := b.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &address,
		ReceiptHandle: &msg.ReceiptHandle,
	})
	return err
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
