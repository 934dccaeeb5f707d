package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	sentinelerrors "github.com/aureus-sentinel/bridge/errors"
	"github.com/aureus-sentinel/bridge/types"
)

// dynamoDBAPI defines the DynamoDB operations used by DynamoDBStore.
// Interface seam for testing with mock implementations.
type dynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoDBStore implements Store using AWS DynamoDB.
//
// Table schema assumptions (created externally):
//   - Partition key: chain_id (String) — all entries share one partition
//     per Chain instance so Query can return them in sequence order.
//   - Sort key: sequence (Number).
type DynamoDBStore struct {
	client    dynamoDBAPI
	tableName string
	chainID   string
}

// NewDynamoDBStore creates a DynamoDBStore using the given AWS config.
// chainID partitions multiple independent chains within one table (for
// example one per deployment environment).
func NewDynamoDBStore(cfg aws.Config, tableName, chainID string) *DynamoDBStore {
	return &DynamoDBStore{client: dynamodb.NewFromConfig(cfg), tableName: tableName, chainID: chainID}
}

func newDynamoDBStoreWithClient(client dynamoDBAPI, tableName, chainID string) *DynamoDBStore {
	return &DynamoDBStore{client: client, tableName: tableName, chainID: chainID}
}

// dynamoItem is the DynamoDB item shape for one audit entry. PayloadJSON
// and MetadataJSON hold the entry's map fields pre-serialized, since
// DynamoDB's attribute value model does not round-trip arbitrary JSON
// maps (numeric types, nil handling) as cleanly as our own codec does.
type dynamoItem struct {
	ChainID      string `dynamodbav:"chain_id"`
	Sequence     uint64 `dynamodbav:"sequence"`
	Timestamp    string `dynamodbav:"timestamp"`
	Action       string `dynamodbav:"action"`
	PayloadJSON  string `dynamodbav:"payload_json"`
	MetadataJSON string `dynamodbav:"metadata_json"`
	PreviousHash string `dynamodbav:"previous_hash"`
	Hash         string `dynamodbav:"hash"`
}

func entryToItem(chainID string, entry types.AuditEntry) (*dynamoItem, error) {
	payloadJSON, err := json.Marshal(entry.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return &dynamoItem{
		ChainID:      chainID,
		Sequence:     entry.Sequence,
		Timestamp:    entry.Timestamp.Format(time.RFC3339Nano),
		Action:       entry.Action,
		PayloadJSON:  string(payloadJSON),
		MetadataJSON: string(metadataJSON),
		PreviousHash: entry.PreviousHash,
		Hash:         entry.Hash,
	}, nil
}

func itemToEntry(item *dynamoItem) (types.AuditEntry, error) {
	var payload map[string]any
	if item.PayloadJSON != "" {
		if err := json.Unmarshal([]byte(item.PayloadJSON), &payload); err != nil {
			return types.AuditEntry{}, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	var metadata map[string]string
	if item.MetadataJSON != "" && item.MetadataJSON != "null" {
		if err := json.Unmarshal([]byte(item.MetadataJSON), &metadata); err != nil {
			return types.AuditEntry{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	ts, err := time.Parse(time.RFC3339Nano, item.Timestamp)
	if err != nil {
		return types.AuditEntry{}, fmt.Errorf("parse timestamp: %w", err)
	}
	return types.AuditEntry{
		Sequence:     item.Sequence,
		Timestamp:    ts,
		Action:       item.Action,
		Payload:      payload,
		Metadata:     metadata,
		PreviousHash: item.PreviousHash,
		Hash:         item.Hash,
	}, nil
}

// Append writes entry as a new item. A condition expression rejects a
// duplicate sequence number outright rather than silently overwriting a
// chain entry.
func (s *DynamoDBStore) Append(ctx context.Context, entry types.AuditEntry) error {
	item, err := entryToItem(s.chainID, entry)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(sequence)"),
	})
	if err != nil {
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "PutItem")
	}
	return nil
}

// Last queries for the highest sequence number in the chain's partition.
func (s *DynamoDBStore) Last(ctx context.Context) (types.AuditEntry, bool, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("chain_id = :cid"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":cid": &ddbtypes.AttributeValueMemberS{Value: s.chainID},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return types.AuditEntry{}, false, sentinelerrors.WrapDynamoDBError(err, s.tableName, "Query")
	}
	if len(out.Items) == 0 {
		return types.AuditEntry{}, false, nil
	}
	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Items[0], &item); err != nil {
		return types.AuditEntry{}, false, fmt.Errorf("unmarshal item: %w", err)
	}
	entry, err := itemToEntry(&item)
	if err != nil {
		return types.AuditEntry{}, false, err
	}
	return entry, true, nil
}

// Walk queries the chain's partition in ascending sequence order and
// invokes fn for every item with sequence >= from, paginating as needed.
func (s *DynamoDBStore) Walk(ctx context.Context, from uint64, fn func(types.AuditEntry) error) error {
	var startKey map[string]ddbtypes.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("chain_id = :cid AND sequence >= :from"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":cid":  &ddbtypes.AttributeValueMemberS{Value: s.chainID},
				":from": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", from)},
			},
			ScanIndexForward:  aws.Bool(true),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return sentinelerrors.WrapDynamoDBError(err, s.tableName, "Query")
		}
		for _, rawItem := range out.Items {
			var item dynamoItem
			if err := attributevalue.UnmarshalMap(rawItem, &item); err != nil {
				return fmt.Errorf("unmarshal item: %w", err)
			}
			entry, err := itemToEntry(&item)
			if err != nil {
				return err
			}
			if err := fn(entry); err != nil {
				return err
			}
		}
		if out.LastEvaluatedKey == nil {
			return nil
		}
		startKey = out.LastEvaluatedKey
	}
}
