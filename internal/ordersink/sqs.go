package ordersink

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/goccy/go-json"

	"github.com/mmynk/grouporder/internal/models"
)

// SQSAPI is the subset of the SQS client used by the sink.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQS enqueues finalized orders on a FIFO queue consumed by the Order
// Service. The group order ID is used as both message group and
// deduplication ID, so a retried close cannot enqueue the order twice.
type SQS struct {
	client   SQSAPI
	queueURL string
}

var _ Sink = (*SQS)(nil)

// NewSQS returns a sink bound to queueURL.
func NewSQS(client SQSAPI, queueURL string) *SQS {
	return &SQS{client: client, queueURL: queueURL}
}

// NewSQSClient loads the default AWS configuration for region.
func NewSQSClient(ctx context.Context, region string) (*sqs.Client, error) {
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return sqs.NewFromConfig(cfg), nil
}

// SubmitOrder sends the finalized order and returns its order ID.
func (s *SQS) SubmitOrder(ctx context.Context, order *models.FinalizedOrder) (string, error) {
	orderID := OrderIDFor(order.GroupOrderID)

	body, err := json.Marshal(NewPayload(orderID, order))
	if err != nil {
		return "", fmt.Errorf("failed to encode order: %w", err)
	}

	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               sdkaws.String(s.queueURL),
		MessageBody:            sdkaws.String(string(body)),
		MessageGroupId:         sdkaws.String(order.GroupOrderID),
		MessageDeduplicationId: sdkaws.String(order.GroupOrderID),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"order_id": {
				DataType:    sdkaws.String("String"),
				StringValue: sdkaws.String(orderID),
			},
			"creator_id": {
				DataType:    sdkaws.String("String"),
				StringValue: sdkaws.String(order.CreatorID),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return orderID, nil
}
