// Package ddb persists tracker cursors in DynamoDB.
//
// DynamoDB conditional writes give the monotonic-advance guarantee across
// concurrent pipeline runners: a stale writer attempting to move a cursor
// backwards fails its condition instead of undoing progress. Table schema:
//
//   - Partition key: source_id (string)
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name fuzzyfeed-cursors \
//	  --attribute-definitions AttributeName=source_id,AttributeType=S \
//	  --key-schema AttributeName=source_id,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
package ddb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/fuzzyfeed/track"
)

// Client is the interface for the DynamoDB operations used by the store.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// CursorStore implements track.CursorStore on a DynamoDB table.
type CursorStore struct {
	client    Client
	tableName string
}

var _ track.CursorStore = (*CursorStore)(nil)

// NewCursorStore creates a cursor store over the given table.
func NewCursorStore(client Client, tableName string) *CursorStore {
	return &CursorStore{
		client:    client,
		tableName: tableName,
	}
}

// Load reads the cursor for a source.
func (s *CursorStore) Load(ctx context.Context, sourceID string) (track.Cursor, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			"source_id": &types.AttributeValueMemberS{Value: sourceID},
		},
	})
	if err != nil {
		return track.Cursor{}, false, fmt.Errorf("ddb: load cursor: %w", err)
	}
	if out.Item == nil {
		return track.Cursor{}, false, nil
	}

	cursor, err := decodeItem(out.Item)
	if err != nil {
		return track.Cursor{}, false, fmt.Errorf("ddb: decode cursor for %s: %w", sourceID, err)
	}
	return cursor, true, nil
}

// Save advances the cursor with a conditional write: it succeeds only if
// no cursor exists yet or the stored publish time is not newer.
func (s *CursorStore) Save(ctx context.Context, sourceID string, cursor track.Cursor) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"source_id":    &types.AttributeValueMemberS{Value: sourceID},
			"version":      &types.AttributeValueMemberS{Value: cursor.Version},
			"published_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(cursor.PublishedAt.UnixNano(), 10)},
			"updated_at":   &types.AttributeValueMemberN{Value: strconv.FormatInt(cursor.UpdatedAt.UnixNano(), 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(source_id) OR published_at <= :p"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberN{Value: strconv.FormatInt(cursor.PublishedAt.UnixNano(), 10)},
		},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return fmt.Errorf("%w: %s", track.ErrCursorRewind, sourceID)
		}
		return fmt.Errorf("ddb: save cursor: %w", err)
	}
	return nil
}

// Reset removes the cursor item.
func (s *CursorStore) Reset(ctx context.Context, sourceID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"source_id": &types.AttributeValueMemberS{Value: sourceID},
		},
	})
	if err != nil {
		return fmt.Errorf("ddb: reset cursor: %w", err)
	}
	return nil
}

func decodeItem(item map[string]types.AttributeValue) (track.Cursor, error) {
	var cursor track.Cursor

	if v, ok := item["version"].(*types.AttributeValueMemberS); ok {
		cursor.Version = v.Value
	}
	published, err := numAttr(item, "published_at")
	if err != nil {
		return track.Cursor{}, err
	}
	cursor.PublishedAt = time.Unix(0, published).UTC()

	updated, err := numAttr(item, "updated_at")
	if err != nil {
		return track.Cursor{}, err
	}
	cursor.UpdatedAt = time.Unix(0, updated).UTC()

	return cursor, nil
}

func numAttr(item map[string]types.AttributeValue, name string) (int64, error) {
	n, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("missing numeric attribute %q", name)
	}
	return strconv.ParseInt(n.Value, 10, 64)
}
