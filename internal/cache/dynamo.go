package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoAPI is the subset of the DynamoDB client DynamoStore needs.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// kvItem is one DynamoDB record. expiresAt is the table's TTL attribute, so
// DynamoDB eventually deletes entries nobody reads again.
type kvItem struct {
	PK        string `dynamodbav:"PK"`
	Value     []byte `dynamodbav:"value"`
	ExpiresAt int64  `dynamodbav:"expiresAt,omitempty"`
}

// DynamoStore implements Store on a DynamoDB table with a string partition
// key named PK. It is shared by every Lambda instance, so an invalidation in
// one is seen by all.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table.
func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

func (s *DynamoStore) keyAttr(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: key},
	}
}

func (s *DynamoStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       s.keyAttr(key),
	})
	if err != nil {
		return nil, false, fmt.Errorf("GetItem PK=%s: %w", key, err)
	}
	if out.Item == nil {
		return nil, false, nil
	}
	var item kvItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, false, fmt.Errorf("unmarshal PK=%s: %w", key, err)
	}
	return item.Value, true, nil
}

func (s *DynamoStore) Set(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	item := kvItem{PK: key, Value: value}
	if !expiresAt.IsZero() {
		item.ExpiresAt = expiresAt.Unix()
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      av,
	}); err != nil {
		return fmt.Errorf("PutItem PK=%s: %w", key, err)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, key string) error {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.tableName,
		Key:       s.keyAttr(key),
	}); err != nil {
		return fmt.Errorf("DeleteItem PK=%s: %w", key, err)
	}
	return nil
}

// Keys scans the table projecting only the partition key.
func (s *DynamoStore) Keys(ctx context.Context) ([]string, error) {
	input := &dynamodb.ScanInput{
		TableName:            &s.tableName,
		ProjectionExpression: aws.String("PK"),
	}

	var keys []string
	// Handle pagination; DynamoDB returns up to 1MB per Scan call.
	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Scan %s: %w", s.tableName, err)
		}
		for _, raw := range out.Items {
			var item kvItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				log.Warn().Err(err).Msg("Skipping unreadable cache key")
				continue
			}
			keys = append(keys, item.PK)
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return keys, nil
}
