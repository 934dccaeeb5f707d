package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/aureus-sentinel/bridge/fault"
	"github.com/aureus-sentinel/bridge/types"
)

// FaultSeamRecord and FaultSeamHistory are the fault-injector seam names
// for the memory profiler's DynamoDB calls.
const (
	FaultSeamRecord  = "dynamodb.record"
	FaultSeamHistory = "dynamodb.history"
)

// dynamoDBAPI defines the DynamoDB operations used by DynamoDBStore.
type dynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoDBStore implements Store using AWS DynamoDB.
//
// Table schema assumptions (created externally):
//   - Partition key: actor (String)
//   - Sort key: occurred_at (String, RFC3339Nano) so Query can range over
//     the recent window without a secondary index.
type DynamoDBStore struct {
	client    dynamoDBAPI
	tableName string
	faults    *fault.Injector
}

// NewDynamoDBStore creates a DynamoDBStore using the given AWS config.
func NewDynamoDBStore(cfg aws.Config, tableName string) *DynamoDBStore {
	return &DynamoDBStore{client: dynamodb.NewFromConfig(cfg), tableName: tableName}
}

func newDynamoDBStoreWithClient(client dynamoDBAPI, tableName string) *DynamoDBStore {
	return &DynamoDBStore{client: client, tableName: tableName}
}

// WithFaults wires a fault.Injector into this store's DynamoDB call
// seams for chaos testing. A nil Injector (the default) is a no-op.
func (s *DynamoDBStore) WithFaults(inj *fault.Injector) *DynamoDBStore {
	s.faults = inj
	return s
}

type dynamoOutcomeItem struct {
	Actor      string `dynamodbav:"actor"`
	OccurredAt string `dynamodbav:"occurred_at"`
	Tool       string `dynamodbav:"tool"`
	RiskBand   string `dynamodbav:"risk_band"`
	Approved   bool   `dynamodbav:"approved"`
	TTL        int64  `dynamodbav:"ttl"`
}

// Record writes one completed execution. TTL is set 90 days out so old
// history ages out of the table automatically; RiskProfile windows are
// always far shorter than that.
func (s *DynamoDBStore) Record(ctx context.Context, outcome Outcome) error {
	item := dynamoOutcomeItem{
		Actor:      outcome.Actor,
		OccurredAt: outcome.OccurredAt.Format(time.RFC3339Nano),
		Tool:       outcome.Tool,
		RiskBand:   string(outcome.RiskBand),
		Approved:   outcome.Approved,
		TTL:        outcome.OccurredAt.Add(90 * 24 * time.Hour).Unix(),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("memory: marshal outcome: %w", err)
	}
	_, err = fault.Execute(ctx, s.faults, FaultSeamRecord, func(ctx context.Context) (*dynamodb.PutItemOutput, error) {
		return s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.tableName), Item: av})
	})
	if err != nil {
		return fmt.Errorf("memory: put item: %w", err)
	}
	return nil
}

// History queries outcomes for actor with occurred_at within window.
func (s *DynamoDBStore) History(ctx context.Context, actor string, window time.Duration) ([]Outcome, error) {
	cutoff := time.Now().Add(-window).Format(time.RFC3339Nano)
	out, err := fault.Execute(ctx, s.faults, FaultSeamHistory, func(ctx context.Context) (*dynamodb.QueryOutput, error) {
		return s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("actor = :a AND occurred_at >= :since"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":a":     &ddbtypes.AttributeValueMemberS{Value: actor},
				":since": &ddbtypes.AttributeValueMemberS{Value: cutoff},
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("memory: query history: %w", err)
	}

	outcomes := make([]Outcome, 0, len(out.Items))
	for _, rawItem := range out.Items {
		var item dynamoOutcomeItem
		if err := attributevalue.UnmarshalMap(rawItem, &item); err != nil {
			return nil, fmt.Errorf("memory: unmarshal item: %w", err)
		}
		occurredAt, err := time.Parse(time.RFC3339Nano, item.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("memory: parse occurred_at: %w", err)
		}
		outcomes = append(outcomes, Outcome{
			Actor:      item.Actor,
			Tool:       item.Tool,
			RiskBand:   types.RiskBand(item.RiskBand),
			Approved:   item.Approved,
			OccurredAt: occurredAt,
		})
	}
	return outcomes, nil
}
