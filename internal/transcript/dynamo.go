package transcript

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoStore keeps transcripts in a DynamoDB table keyed by "video_id".
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

type transcriptItem struct {
	VideoID    string `dynamodbav:"video_id"`
	Transcript string `dynamodbav:"transcript"`
	UpdatedAt  int64  `dynamodbav:"updated_at"` // Unix timestamp
}

// NewDynamoStore loads AWS configuration from the environment.
func NewDynamoStore(ctx context.Context, tableName string) (*DynamoStore, error) {
	if tableName == "" {
		return nil, errors.New("DYNAMODB_TABLE is required")
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &DynamoStore{client: dynamodb.NewFromConfig(cfg), tableName: tableName}, nil
}

func (s *DynamoStore) itemKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"video_id": &types.AttributeValueMemberS{Value: id},
	}
}

func (s *DynamoStore) Lookup(ctx context.Context, id string) (string, bool) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.itemKey(id),
	})
	if err != nil {
		return miss("dynamodb", id, err)
	}
	if result.Item == nil {
		return "", false
	}

	var item transcriptItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return miss("dynamodb", id, fmt.Errorf("%w: %v", ErrCorrupt, err))
	}
	if item.VideoID != id || item.Transcript == "" {
		return miss("dynamodb", id, fmt.Errorf("%w: malformed item", ErrCorrupt))
	}
	return item.Transcript, true
}

func (s *DynamoStore) Store(ctx context.Context, id, text string) error {
	av, err := attributevalue.MarshalMap(transcriptItem{
		VideoID:    id,
		Transcript: text,
		UpdatedAt:  time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put item: %w", err)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.itemKey(id),
	})
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return nil
}
