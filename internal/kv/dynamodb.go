package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// item is the DynamoDB row shape: PK/SK identify the entry directly for
// Get/Delete, GSI1PK/GSI1SK back the due-listing query (GSI1PK holds the
// fixed group prefix, GSI1SK the zero-padded due time so a numeric range
// query sorts correctly as a string comparison), and ExpiresAt is the
// table's native TTL attribute.
type item struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	GSI1PK    string `dynamodbav:"GSI1PK"`
	GSI1SK    string `dynamodbav:"GSI1SK"`
	Data      []byte `dynamodbav:"Data"`
	ExpiresAt int64  `dynamodbav:"ExpiresAt,omitempty"`
}

const itemSK = "ITEM"

// DynamoDBStore is the production Store, backed by a single DynamoDB
// table with a GSI named "GSI1" on (GSI1PK, GSI1SK).
type DynamoDBStore struct {
	client    *dynamodb.Client
	tableName string
	gsiName   string
}

// NewDynamoDBStore creates a store against tableName, loading AWS config
// the same way internal/storage.NewAWSStorage does: a default config,
// optionally pinned to a named shared-config profile. endpoint overrides
// the service endpoint for local development against dynamodb-local; an
// empty endpoint uses AWS's default resolution.
func NewDynamoDBStore(ctx context.Context, tableName, region, profile, endpoint string) (*DynamoDBStore, error) {
	var cfg aws.Config
	var err error
	if profile != "" {
		cfg, err = config.LoadDefaultConfig(ctx, config.WithRegion(region), config.WithSharedConfigProfile(profile))
	} else {
		cfg, err = config.LoadDefaultConfig(ctx, config.WithRegion(region))
	}
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &DynamoDBStore{
		client:    client,
		tableName: tableName,
		gsiName:   "GSI1",
	}, nil
}

func (s *DynamoDBStore) Put(ctx context.Context, key, groupPrefix string, dueAt time.Time, value []byte, ttl time.Duration) error {
	row := item{
		PK:        key,
		SK:        itemSK,
		GSI1PK:    groupPrefix,
		GSI1SK:    dueSortKey(dueAt),
		Data:      value,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}
	av, err := attributevalue.MarshalMap(row)
	if err != nil {
		return fmt.Errorf("kv: marshal item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("kv: put item: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: key},
			"SK": &types.AttributeValueMemberS{Value: itemSK},
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("kv: get item: %w", err)
	}
	if result.Item == nil {
		return nil, false, nil
	}
	var row item
	if err := attributevalue.UnmarshalMap(result.Item, &row); err != nil {
		return nil, false, fmt.Errorf("kv: unmarshal item: %w", err)
	}
	return row.Data, true, nil
}

func (s *DynamoDBStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: key},
			"SK": &types.AttributeValueMemberS{Value: itemSK},
		},
	})
	if err != nil {
		return fmt.Errorf("kv: delete item: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) ListDue(ctx context.Context, groupPrefix string, before time.Time, pageSize, maxPages int) ([]Item, error) {
	var out []Item
	var startKey map[string]types.AttributeValue

	for page := 0; page < maxPages; page++ {
		// ProjectionType KEYS_ONLY on GSI1: a due-listing scan only needs
		// PK and GSI1SK, not the full item body — callers load the value
		// with a separate Get.
		result, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			IndexName:              aws.String(s.gsiName),
			KeyConditionExpression: aws.String("GSI1PK = :pfx AND GSI1SK <= :cutoff"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pfx":    &types.AttributeValueMemberS{Value: groupPrefix},
				":cutoff": &types.AttributeValueMemberS{Value: dueSortKey(before)},
			},
			ScanIndexForward:  aws.Bool(true),
			Limit:             aws.Int32(int32(pageSize)),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("kv: query due items: %w", err)
		}

		for _, av := range result.Items {
			var row item
			if err := attributevalue.UnmarshalMap(av, &row); err != nil {
				continue
			}
			out = append(out, Item{Key: row.PK, DueAt: dueFromSortKey(row.GSI1SK)})
		}

		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		startKey = result.LastEvaluatedKey
	}

	return out, nil
}

// dueSortKey renders a time as a zero-padded decimal Unix timestamp so
// GSI1SK orders and range-compares correctly as a plain string.
func dueSortKey(t time.Time) string {
	return fmt.Sprintf("%020d", t.Unix())
}

func dueFromSortKey(s string) time.Time {
	var sec int64
	if _, err := fmt.Sscanf(s, "%d", &sec); err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
