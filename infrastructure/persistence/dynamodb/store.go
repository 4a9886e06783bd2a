package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"fluent-backend/application/ports"
)

// API is the subset of the DynamoDB client used by Store
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// blobItem is the DynamoDB item layout of one stored value
type blobItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	Value      []byte `dynamodbav:"Value"`
	UpdatedAt  string `dynamodbav:"UpdatedAt"`
}

// Store is a BlobStore that keeps each key as one item of a single table
type Store struct {
	client    API
	tableName string
	namespace string
	logger    *zap.Logger
}

// NewStore creates a DynamoDB-backed store
func NewStore(client API, tableName, namespace string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client:    client,
		tableName: tableName,
		namespace: namespace,
		logger:    logger,
	}
}

func (s *Store) primaryKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("NS#%s", s.namespace)},
		"SK": &types.AttributeValueMemberS{Value: fmt.Sprintf("KEY#%s", key)},
	}
}

// Get returns the value stored under key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	proj := expression.NamesList(expression.Name("Value"))
	expr, err := expression.NewBuilder().WithProjection(proj).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build projection: %w", err)
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:                aws.String(s.tableName),
		Key:                      s.primaryKey(key),
		ProjectionExpression:     expr.Projection(),
		ExpressionAttributeNames: expr.Names(),
		ConsistentRead:           aws.Bool(true),
	})
	if err != nil {
		return nil, s.classify("get", key, err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("dynamodb get %q: %w", key, ports.ErrNotFound)
	}

	var item blobItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return item.Value, nil
}

// Put overwrites the item for key
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	item := blobItem{
		PK:         fmt.Sprintf("NS#%s", s.namespace),
		SK:         fmt.Sprintf("KEY#%s", key),
		EntityType: "BLOB",
		Value:      value,
		UpdatedAt:  time.Now().UTC().Format(time.RFC3339),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	}); err != nil {
		return s.classify("put", key, err)
	}

	s.logger.Debug("Stored blob",
		zap.String("namespace", s.namespace),
		zap.String("key", key),
		zap.Int("bytes", len(value)),
	)
	return nil
}

// Delete removes the item for key
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.primaryKey(key),
	}); err != nil {
		return s.classify("delete", key, err)
	}
	return nil
}

// classify annotates AWS API errors with their error code
func (s *Store) classify(op, key string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		s.logger.Warn("DynamoDB request failed",
			zap.String("operation", op),
			zap.String("key", key),
			zap.String("code", apiErr.ErrorCode()),
			zap.String("fault", apiErr.ErrorFault().String()),
		)
		return fmt.Errorf("dynamodb %s %q (%s): %w", op, key, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("dynamodb %s %q: %w", op, key, err)
}
