package es

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/google/uuid"
	"github.com/indebted-modules/cfg"
)

// NewDynamoDriver creates a new DynamoDriver
func NewDynamoDriver(tableName string) *DynamoDriver {
	return &DynamoDriver{
		Client:    dynamodb.New(cfg.Sess),
		TableName: tableName,
	}
}

// MaxDynamoAppend is the most events one DynamoDB append can write, the item limit of
// a write transaction
const MaxDynamoAppend = 100

// DynamoDriver stores events in a DynamoDB table keyed by AggregateID and EventVersion.
// An append writes at most MaxDynamoAppend events.
type DynamoDriver struct {
	Client        dynamodbiface.DynamoDBAPI
	TableName     string
	PageSize      int64
	Reconstitutor *Reconstitutor
}

// Read all events by aggregate ID, one query page at a time
func (d *DynamoDriver) Read(ctx context.Context, aggregateID uuid.UUID) (Iterator, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.TableName),
		ConsistentRead:         aws.Bool(true),
		KeyConditionExpression: aws.String("AggregateID = :key"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":key": {S: aws.String(aggregateID.String())},
		},
	}
	if d.PageSize > 0 {
		input.Limit = aws.Int64(d.PageSize)
	}
	return NewIterator(ctx, &dynamoCursor{client: d.Client, input: input}, d.Reconstitutor), nil
}

// ReadAll is not supported: a table scan has no append order
func (d *DynamoDriver) ReadAll(_ context.Context) (Iterator, error) {
	return nil, fmt.Errorf("dynamodb read all: %w", ErrNotSupported)
}

// Append all events into DynamoDB in a single transaction
func (d *DynamoDriver) Append(ctx context.Context, aggregateID uuid.UUID, expected ExpectedVersion, events []*Event) error {
	if len(events) == 0 {
		return nil
	}
	if len(events) > MaxDynamoAppend {
		return fmt.Errorf("dynamodb append of %d events exceeds %d: %w", len(events), MaxDynamoAppend, ErrNotSupported)
	}

	current, err := d.currentVersion(ctx, aggregateID)
	if err != nil {
		return err
	}
	if err := expected.Check(current); err != nil {
		return err
	}

	stamp(aggregateID, current, events)
	items := []*dynamodb.TransactWriteItem{}
	for _, event := range events {
		item := map[string]*dynamodb.AttributeValue{
			"EventID":      {S: aws.String(event.ID)},
			"EventName":    {S: aws.String(event.Type)},
			"AggregateID":  {S: aws.String(aggregateID.String())},
			"EventVersion": {N: aws.String(strconv.FormatInt(event.Version, 10))},
			"EventDate":    {S: aws.String(time.Now().UTC().Format(time.RFC3339Nano))},
		}

		data, err := encodeDocument(event.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode data of event %s: %w", event.ID, err)
		}
		if data != nil {
			item["Data"] = &dynamodb.AttributeValue{S: aws.String(string(data))}
		}
		metadata, err := encodeDocument(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata of event %s: %w", event.ID, err)
		}
		if metadata != nil {
			item["Metadata"] = &dynamodb.AttributeValue{S: aws.String(string(metadata))}
		}

		items = append(items, &dynamodb.TransactWriteItem{
			Put: &dynamodb.Put{
				TableName:           aws.String(d.TableName),
				ConditionExpression: aws.String("attribute_not_exists(EventVersion)"),
				Item:                item,
			},
		})
	}

	_, err = d.Client.TransactWriteItemsWithContext(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeTransactionCanceledException {
			return conflict("aggregate %s: %s", aggregateID, aerr.Message())
		}
		return fmt.Errorf("failed to write events: %w", err)
	}

	return nil
}

func (d *DynamoDriver) currentVersion(ctx context.Context, aggregateID uuid.UUID) (int64, error) {
	out, err := d.Client.QueryWithContext(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.TableName),
		ConsistentRead:         aws.Bool(true),
		KeyConditionExpression: aws.String("AggregateID = :key"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":key": {S: aws.String(aggregateID.String())},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int64(1),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to check current version: %w", err)
	}
	if len(out.Items) == 0 {
		return 0, nil
	}
	return strconv.ParseInt(aws.StringValue(out.Items[0]["EventVersion"].N), 10, 64)
}

// dynamoCursor pages through a query lazily and can start over from the first page
type dynamoCursor struct {
	client  dynamodbiface.DynamoDBAPI
	input   *dynamodb.QueryInput
	items   []map[string]*dynamodb.AttributeValue
	pos     int
	lastKey map[string]*dynamodb.AttributeValue
	started bool
	done    bool
}

func (c *dynamoCursor) Fetch(ctx context.Context) (*RawEvent, error) {
	for c.pos >= len(c.items) {
		if c.done {
			return nil, nil
		}
		if err := c.load(ctx); err != nil {
			return nil, err
		}
	}

	item := c.items[c.pos]
	c.pos++
	return toRawEvent(item)
}

func (c *dynamoCursor) load(ctx context.Context) error {
	input := *c.input
	if c.started {
		input.ExclusiveStartKey = c.lastKey
	}
	c.started = true

	out, err := c.client.QueryWithContext(ctx, &input)
	if err != nil {
		return fmt.Errorf("failed to query events: %w", err)
	}
	c.items = out.Items
	c.pos = 0
	c.lastKey = out.LastEvaluatedKey
	c.done = len(out.LastEvaluatedKey) == 0
	return nil
}

func (c *dynamoCursor) Rewind(_ context.Context) error {
	c.items = nil
	c.pos = 0
	c.lastKey = nil
	c.started = false
	c.done = false
	return nil
}

func (c *dynamoCursor) Close() error {
	c.items = nil
	return nil
}

func toRawEvent(item map[string]*dynamodb.AttributeValue) (*RawEvent, error) {
	raw := &RawEvent{
		ID:          stringAttribute(item, "EventID"),
		Type:        stringAttribute(item, "EventName"),
		AggregateID: stringAttribute(item, "AggregateID"),
	}
	if data := stringAttribute(item, "Data"); data != "" {
		raw.Data = []byte(data)
	}
	if metadata := stringAttribute(item, "Metadata"); metadata != "" {
		raw.Metadata = []byte(metadata)
	}

	var err error
	if version, ok := item["EventVersion"]; ok {
		raw.Version, err = strconv.ParseInt(aws.StringValue(version.N), 10, 64)
		if err != nil {
			return nil, malformed(raw, fmt.Errorf("invalid event version: %w", err))
		}
	}
	raw.Occurred, err = parseEventDate(stringAttribute(item, "EventDate"))
	if err != nil {
		return nil, malformed(raw, err)
	}
	return raw, nil
}

func stringAttribute(item map[string]*dynamodb.AttributeValue, name string) string {
	value, ok := item[name]
	if !ok || value == nil {
		return ""
	}
	return aws.StringValue(value.S)
}
