package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/brelok-the-pok/summary-bot/internal/domain"
)

const (
	pkPrefixUser = "USER#"
	skPrefixMsg  = "MSG#"
	userIndex    = "byUser"

	// createdAtLayout is fixed width so string comparison orders instants.
	createdAtLayout = "2006-01-02T15:04:05.000000000Z"
	tableWaitLimit  = 2 * time.Minute
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// DynamoStore keeps message records in a single DynamoDB table keyed by
// partition (user and day) and message id.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	now       Clock

	tableMu    sync.RWMutex
	tableReady bool
}

// NewDynamoStore creates a DynamoDB-backed MessageStore.
func NewDynamoStore(api dynamodbAPI, tableName string, now Clock) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if now == nil {
		now = time.Now
	}
	return &DynamoStore{api: api, tableName: tableName, now: now}, nil
}

// recordIDSpace namespaces item ids derived from the natural key.
var recordIDSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("summary-bot/user_messages"))

// recordID derives the item id from the natural key, so replacing an item
// keeps its id.
func recordID(pk, sk string) string {
	return uuid.NewSHA1(recordIDSpace, []byte(pk+"|"+sk)).String()
}

// partitionPK returns the partition key for a user's day.
func partitionPK(userID, day string) string {
	return pkPrefixUser + userID + "#DAY#" + day
}

// msgSK returns the sort key for a platform message id.
func msgSK(messageID int64) string {
	return fmt.Sprintf("%s%020d", skPrefixMsg, messageID)
}

func (c *DynamoStore) Close() {}

func (c *DynamoStore) Ping(ctx context.Context) error {
	_, err := c.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(c.tableName)})
	if err != nil {
		return fmt.Errorf("repository: Ping: %w", err)
	}
	return nil
}

// Insert writes rec under its natural key, replacing any previous item.
func (c *DynamoStore) Insert(ctx context.Context, rec domain.Record) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", fmt.Errorf("repository: Insert: %w", err)
	}
	if rec.MessageID < 0 {
		return "", errors.New("repository: Insert: message id must not be negative")
	}
	if err := c.ensureTable(ctx); err != nil {
		return "", fmt.Errorf("repository: Insert: %w", err)
	}

	rec.ID = recordID(partitionPK(rec.UserID, rec.Day), msgSK(rec.MessageID))
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      recordItem(rec),
	})
	if err != nil {
		return "", fmt.Errorf("repository: Insert: %w", err)
	}
	return rec.ID, nil
}

// ListByUserDay queries one partition and orders it by created_at.
func (c *DynamoStore) ListByUserDay(ctx context.Context, userID, day string) ([]domain.Record, error) {
	if err := validatePartition(userID, day); err != nil {
		return nil, fmt.Errorf("repository: ListByUserDay: %w", err)
	}
	if err := c.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("repository: ListByUserDay: %w", err)
	}

	recs, err := c.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: partitionPK(userID, day)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: ListByUserDay: %w", err)
	}
	return recs, nil
}

// ListContentByUserDay projects the partition to canonical content.
func (c *DynamoStore) ListContentByUserDay(ctx context.Context, userID, day string) ([]string, error) {
	recs, err := c.ListByUserDay(ctx, userID, day)
	if err != nil {
		return nil, fmt.Errorf("repository: ListContentByUserDay: %w", err)
	}
	return domain.Contents(recs), nil
}

// Exists counts at most one item of the partition.
func (c *DynamoStore) Exists(ctx context.Context, userID, day string) (bool, error) {
	if err := validatePartition(userID, day); err != nil {
		return false, fmt.Errorf("repository: Exists: %w", err)
	}
	if err := c.ensureTable(ctx); err != nil {
		return false, fmt.Errorf("repository: Exists: %w", err)
	}

	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: partitionPK(userID, day)},
		},
		Select:         types.SelectCount,
		Limit:          aws.Int32(1),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("repository: Exists query: %w", err)
	}
	return out != nil && out.Count > 0, nil
}

// ListByUserRange reads the user index between two days inclusive.
func (c *DynamoStore) ListByUserRange(ctx context.Context, userID, startDay, endDay string) ([]domain.Record, error) {
	if err := validateRange(userID, startDay, endDay); err != nil {
		return nil, fmt.Errorf("repository: ListByUserRange: %w", err)
	}
	if err := c.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("repository: ListByUserRange: %w", err)
	}

	recs, err := c.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		IndexName:              aws.String(userIndex),
		KeyConditionExpression: aws.String("userId = :uid AND #day BETWEEN :start AND :end"),
		ExpressionAttributeNames: map[string]string{
			"#day": "day",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid":   &types.AttributeValueMemberS{Value: userID},
			":start": &types.AttributeValueMemberS{Value: startDay},
			":end":   &types.AttributeValueMemberS{Value: endDay},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("repository: ListByUserRange: %w", err)
	}
	return recs, nil
}

// PruneOlderThan scans for items created before the cutoff and deletes them.
// Each delete re-checks the cutoff so an item refreshed meanwhile survives.
func (c *DynamoStore) PruneOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	cutoff, err := pruneCutoff(c.now(), retentionDays)
	if err != nil {
		return 0, fmt.Errorf("repository: PruneOlderThan: %w", err)
	}
	if err := c.ensureTable(ctx); err != nil {
		return 0, fmt.Errorf("repository: PruneOlderThan: %w", err)
	}
	cutoffAttr := &types.AttributeValueMemberS{Value: cutoff.Format(createdAtLayout)}

	var deleted int64
	var startKey map[string]types.AttributeValue
	for {
		out, err := c.api.Scan(ctx, &dynamodb.ScanInput{
			TableName:            aws.String(c.tableName),
			FilterExpression:     aws.String("createdAt < :cutoff"),
			ProjectionExpression: aws.String("PK, SK"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":cutoff": cutoffAttr,
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return deleted, fmt.Errorf("repository: PruneOlderThan scan: %w", err)
		}

		for _, item := range out.Items {
			_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName:           aws.String(c.tableName),
				Key:                 map[string]types.AttributeValue{"PK": item["PK"], "SK": item["SK"]},
				ConditionExpression: aws.String("createdAt < :cutoff"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":cutoff": cutoffAttr,
				},
			})
			var condErr *types.ConditionalCheckFailedException
			if errors.As(err, &condErr) {
				continue
			}
			if err != nil {
				return deleted, fmt.Errorf("repository: PruneOlderThan delete: %w", err)
			}
			deleted++
		}

		if len(out.LastEvaluatedKey) == 0 {
			return deleted, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func (c *DynamoStore) queryAll(ctx context.Context, in *dynamodb.QueryInput) ([]domain.Record, error) {
	var recs []domain.Record
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		for _, item := range out.Items {
			rec, err := itemToRecord(item)
			if err != nil {
				return nil, fmt.Errorf("unmarshal: %w", err)
			}
			recs = append(recs, rec)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}

	sortRecords(recs)
	if recs == nil {
		recs = []domain.Record{}
	}
	return recs, nil
}

// sortRecords orders by created_at with the platform message id as tiebreak.
func sortRecords(recs []domain.Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].MessageID < recs[j].MessageID
	})
}

// ensureTable creates the table on first use when it does not exist yet.
func (c *DynamoStore) ensureTable(ctx context.Context) error {
	c.tableMu.RLock()
	if c.tableReady {
		c.tableMu.RUnlock()
		return nil
	}
	c.tableMu.RUnlock()

	c.tableMu.Lock()
	defer c.tableMu.Unlock()
	if c.tableReady {
		return nil
	}

	_, err := c.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(c.tableName)})
	var notFound *types.ResourceNotFoundException
	switch {
	case err == nil:
		c.tableReady = true
		return nil
	case !errors.As(err, &notFound):
		return fmt.Errorf("describe table: %w", err)
	}

	_, err = c.api.CreateTable(ctx, createTableInput(c.tableName))
	var inUse *types.ResourceInUseException
	if err != nil && !errors.As(err, &inUse) {
		return fmt.Errorf("create table: %w", err)
	}

	waiter := dynamodb.NewTableExistsWaiter(c.api)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(c.tableName)}, tableWaitLimit); err != nil {
		return fmt.Errorf("wait for table: %w", err)
	}
	c.tableReady = true
	return nil
}

func createTableInput(tableName string) *dynamodb.CreateTableInput {
	return &dynamodb.CreateTableInput{
		TableName:   aws.String(tableName),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("PK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("SK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("userId"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("day"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("PK"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("SK"), KeyType: types.KeyTypeRange},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(userIndex),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("userId"), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String("day"), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
	}
}

func recordItem(rec domain.Record) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":          &types.AttributeValueMemberS{Value: partitionPK(rec.UserID, rec.Day)},
		"SK":          &types.AttributeValueMemberS{Value: msgSK(rec.MessageID)},
		"id":          &types.AttributeValueMemberS{Value: rec.ID},
		"userId":      &types.AttributeValueMemberS{Value: rec.UserID},
		"messageId":   &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.MessageID, 10)},
		"day":         &types.AttributeValueMemberS{Value: rec.Day},
		"timestamp":   &types.AttributeValueMemberS{Value: rec.Timestamp},
		"messageType": &types.AttributeValueMemberS{Value: string(rec.Type)},
		"createdAt":   &types.AttributeValueMemberS{Value: rec.CreatedAt.UTC().Format(createdAtLayout)},
	}
	switch rec.Type {
	case domain.MessageTypeText:
		item["textContent"] = &types.AttributeValueMemberS{Value: rec.TextContent}
	default:
		item["s3Key"] = &types.AttributeValueMemberS{Value: rec.S3Key}
		item["transcription"] = &types.AttributeValueMemberS{Value: rec.Transcription}
	}
	return item
}

// itemToRecord converts a DynamoDB attribute map to a Record. Items written
// before messageType existed decode as voice messages.
func itemToRecord(item map[string]types.AttributeValue) (domain.Record, error) {
	userID, err := strAttr(item, "userId")
	if err != nil {
		return domain.Record{}, err
	}
	day, err := strAttr(item, "day")
	if err != nil {
		return domain.Record{}, err
	}
	messageID, err := intAttr(item, "messageId")
	if err != nil {
		return domain.Record{}, err
	}
	rawCreated, err := strAttr(item, "createdAt")
	if err != nil {
		return domain.Record{}, err
	}
	createdAt, err := time.Parse(createdAtLayout, rawCreated)
	if err != nil {
		return domain.Record{}, fmt.Errorf("repository: parse attribute %q: %w", "createdAt", err)
	}
	rawType, _ := strAttr(item, "messageType") // absent on legacy items
	mt, err := domain.ParseMessageType(rawType)
	if err != nil {
		return domain.Record{}, err
	}

	id, _ := strAttr(item, "id")
	timestamp, _ := strAttr(item, "timestamp")
	textContent, _ := strAttr(item, "textContent")
	s3Key, _ := strAttr(item, "s3Key")
	transcription, _ := strAttr(item, "transcription")

	return domain.Record{
		ID:            id,
		UserID:        userID,
		MessageID:     messageID,
		Day:           day,
		Timestamp:     timestamp,
		Type:          mt,
		TextContent:   textContent,
		S3Key:         s3Key,
		Transcription: transcription,
		CreatedAt:     createdAt,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
