package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/voxline/relay/internal/types"
)

// DynamoDBStore implements Store using AWS DynamoDB
type DynamoDBStore struct {
	client *dynamodb.Client
	config DynamoConfig
	logger zerolog.Logger
}

// NewDynamoDBStore creates a new DynamoDB store
func NewDynamoDBStore(ctx context.Context, cfg DynamoConfig, logger zerolog.Logger) (*DynamoDBStore, error) {
	var client *dynamodb.Client

	if cfg.Mode == DynamoModeLocal {
		// For local mode, build the client directly without LoadDefaultConfig.
		// LoadDefaultConfig probes the EC2 IMDS endpoint which hangs on EC2
		// instances when static credentials are intended.
		client = dynamodb.New(dynamodb.Options{
			Region:       cfg.Region,
			BaseEndpoint: aws.String(cfg.Endpoint),
			Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = dynamodb.NewFromConfig(awsCfg)
	}

	store := &DynamoDBStore{
		client: client,
		config: cfg,
		logger: logger,
	}

	// Create tables in local mode
	if cfg.Mode == DynamoModeLocal {
		if err := CreateTablesIfNotExist(ctx, client, cfg, logger); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("region", cfg.Region).
		Msg("DynamoDB store initialized")

	return store, nil
}

func (s *DynamoDBStore) SaveCallRecord(ctx context.Context, record types.CallRecord) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal call record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.CallsTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save call record: %w", err)
	}
	return nil
}

// FindMostRecentCall queries the newest call records for a tenant and takes
// the first one matching the caller. A GSI on CallerID would avoid the
// filtered query; call volume per tenant makes this acceptable.
func (s *DynamoDBStore) FindMostRecentCall(ctx context.Context, tenantID, callerID string) (*types.CallRecord, error) {
	keyCond := expression.Key("TenantID").Equal(expression.Value(tenantID))
	filter := expression.Name("CallerID").Equal(expression.Value(callerID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.CallsTable),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(50),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query call records: %w", err)
	}
	if len(result.Items) == 0 {
		return nil, nil
	}

	var record types.CallRecord
	if err := attributevalue.UnmarshalMap(result.Items[0], &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal call record: %w", err)
	}
	return &record, nil
}

func (s *DynamoDBStore) SaveCallSummary(ctx context.Context, tenantID, sortKey, summary string) error {
	update := expression.Set(expression.Name("Summary"), expression.Value(summary))
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.config.CallsTable),
		Key: map[string]dbtypes.AttributeValue{
			"TenantID": &dbtypes.AttributeValueMemberS{Value: tenantID},
			"SK":       &dbtypes.AttributeValueMemberS{Value: sortKey},
		},
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return fmt.Errorf("failed to save call summary: %w", err)
	}
	return nil
}

// UpsertCustomer finds or creates the customer record for a caller. The
// conditional write makes concurrent upserts for the same caller converge on
// one record.
func (s *DynamoDBStore) UpsertCustomer(ctx context.Context, tenantID, callerID string) (string, error) {
	newID := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339)

	update := expression.
		Set(expression.Name("CustomerID"), expression.IfNotExists(expression.Name("CustomerID"), expression.Value(newID))).
		Set(expression.Name("CreatedAt"), expression.IfNotExists(expression.Name("CreatedAt"), expression.Value(now)))
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return "", fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.config.CustomersTable),
		Key: map[string]dbtypes.AttributeValue{
			"TenantID": &dbtypes.AttributeValueMemberS{Value: tenantID},
			"CallerID": &dbtypes.AttributeValueMemberS{Value: callerID},
		},
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              dbtypes.ReturnValueAllNew,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upsert customer: %w", err)
	}

	var customer types.Customer
	if err := attributevalue.UnmarshalMap(result.Attributes, &customer); err != nil {
		return "", fmt.Errorf("failed to unmarshal customer: %w", err)
	}
	return customer.CustomerID, nil
}

func (s *DynamoDBStore) LinkCustomerToCall(ctx context.Context, tenantID, sortKey, customerID string) error {
	update := expression.Set(expression.Name("CustomerID"), expression.Value(customerID))
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.config.CallsTable),
		Key: map[string]dbtypes.AttributeValue{
			"TenantID": &dbtypes.AttributeValueMemberS{Value: tenantID},
			"SK":       &dbtypes.AttributeValueMemberS{Value: sortKey},
		},
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return fmt.Errorf("failed to link customer to call: %w", err)
	}
	return nil
}

// LinkRecentMessages associates unlinked messages created for the caller
// within the window. The messages table sort key is CreatedAt#MessageID, so
// the window becomes a key range condition.
func (s *DynamoDBStore) LinkRecentMessages(ctx context.Context, tenantID, callerID string, window time.Duration, callID string) (int, error) {
	cutoff := time.Now().UTC().Add(-window).Format(time.RFC3339)

	keyCond := expression.Key("TenantID").Equal(expression.Value(tenantID)).
		And(expression.Key("SK").GreaterThanEqual(expression.Value(cutoff)))
	filter := expression.Name("CallerID").Equal(expression.Value(callerID)).
		And(expression.Or(
			expression.AttributeNotExists(expression.Name("CallID")),
			expression.Name("CallID").Equal(expression.Value("")),
		))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithFilter(filter).Build()
	if err != nil {
		return 0, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.MessagesTable),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to query messages: %w", err)
	}

	linked := 0
	for _, item := range result.Items {
		var msg types.Message
		if err := attributevalue.UnmarshalMap(item, &msg); err != nil {
			s.logger.Error().Err(err).Msg("failed to unmarshal message, skipping")
			continue
		}

		update := expression.Set(expression.Name("CallID"), expression.Value(callID))
		updExpr, err := expression.NewBuilder().WithUpdate(update).Build()
		if err != nil {
			return linked, fmt.Errorf("failed to build expression: %w", err)
		}

		_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(s.config.MessagesTable),
			Key: map[string]dbtypes.AttributeValue{
				"TenantID": &dbtypes.AttributeValueMemberS{Value: tenantID},
				"SK":       &dbtypes.AttributeValueMemberS{Value: msg.SortKey},
			},
			UpdateExpression:          updExpr.Update(),
			ExpressionAttributeNames:  updExpr.Names(),
			ExpressionAttributeValues: updExpr.Values(),
		})
		if err != nil {
			s.logger.Error().Err(err).Str("message_id", msg.MessageID).Msg("failed to link message")
			continue
		}
		linked++
	}
	return linked, nil
}

func (s *DynamoDBStore) ListCallRecords(ctx context.Context, tenantID string, limit int) ([]types.CallRecord, error) {
	keyCond := expression.Key("TenantID").Equal(expression.Value(tenantID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.CallsTable),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query call records: %w", err)
	}

	var records []types.CallRecord
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal call records: %w", err)
	}
	return records, nil
}

// NewStore creates the appropriate store based on configuration
func NewStore(ctx context.Context, logger zerolog.Logger) (Store, error) {
	cfg := LoadDynamoConfig()

	switch cfg.Mode {
	case DynamoModeLocal, DynamoModeAWS:
		return NewDynamoDBStore(ctx, cfg, logger)
	default:
		logger.Info().Msg("DynamoDB disabled (DYNAMO_MODE=none), using in-memory store")
		return NewMemoryStore(), nil
	}
}
