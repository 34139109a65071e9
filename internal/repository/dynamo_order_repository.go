package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fjod/storefront/internal/domain"
)

const (
	gsi1Name    = "GSI1"
	metadataSK  = "METADATA"
	orderPrefix = "ORDER#"
	sessionPfx  = "SESSION#"
)

type DynamoOrderRepository struct {
	client    *dynamodb.Client
	tableName string
}

type orderRecord struct {
	PK        string            `dynamodbav:"PK"`
	SK        string            `dynamodbav:"SK"`
	GSI1PK    string            `dynamodbav:"GSI1PK"`
	GSI1SK    string            `dynamodbav:"GSI1SK"`
	OrderID   string            `dynamodbav:"order_id"`
	Session   string            `dynamodbav:"session_key"`
	Total     string            `dynamodbav:"total"`
	Items     []orderItemRecord `dynamodbav:"items"`
	Customer  domain.Customer   `dynamodbav:"customer"`
	CreatedAt time.Time         `dynamodbav:"created_at"`
}

type orderItemRecord struct {
	ProductID string `dynamodbav:"product_id"`
	Name      string `dynamodbav:"name"`
	Price     string `dynamodbav:"price"`
	Quantity  int    `dynamodbav:"quantity"`
}

// NewDynamoDBClient loads the default AWS configuration. A non-empty endpoint
// points the client at DynamoDB Local with static dummy credentials.
func NewDynamoDBClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if endpoint != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func NewDynamoOrderRepository(client *dynamodb.Client, tableName string) *DynamoOrderRepository {
	return &DynamoOrderRepository{
		client:    client,
		tableName: tableName,
	}
}

// EnsureTable creates the orders table and its session index when missing.
func (r *DynamoOrderRepository) EnsureTable(ctx context.Context) error {
	_, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(r.tableName)})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("describe table: %w", err)
	}

	_, err = r.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(r.tableName),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("PK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("SK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("GSI1PK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("GSI1SK"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("PK"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("SK"), KeyType: types.KeyTypeRange},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{{
			IndexName: aws.String(gsi1Name),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("GSI1PK"), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String("GSI1SK"), KeyType: types.KeyTypeRange},
			},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		}},
	})
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	waiter := dynamodb.NewTableExistsWaiter(r.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(r.tableName)}, time.Minute); err != nil {
		return fmt.Errorf("wait for table: %w", err)
	}
	return nil
}

func (r *DynamoOrderRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	av, err := attributevalue.MarshalMap(newOrderRecord(order))
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("failed to put item: %w", err)
	}

	return nil
}

func (r *DynamoOrderRepository) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: orderPrefix + id.String()},
			"SK": &types.AttributeValueMemberS{Value: metadataSK},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrOrderNotFound
	}

	var rec orderRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return rec.toDomain()
}

func (r *DynamoOrderRepository) ListOrdersBySession(ctx context.Context, sessionKey string) ([]*domain.Order, error) {
	paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(gsi1Name),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: sessionPfx + sessionKey},
		},
		ScanIndexForward: aws.Bool(false),
	})

	orders := []*domain.Order{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query orders: %w", err)
		}
		var recs []orderRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &recs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal orders: %w", err)
		}
		for _, rec := range recs {
			order, err := rec.toDomain()
			if err != nil {
				return nil, err
			}
			orders = append(orders, order)
		}
	}
	return orders, nil
}

func newOrderRecord(order *domain.Order) orderRecord {
	rec := orderRecord{
		PK:        orderPrefix + order.ID.String(),
		SK:        metadataSK,
		GSI1PK:    sessionPfx + order.SessionKey,
		GSI1SK:    orderPrefix + order.CreatedAt.UTC().Format(time.RFC3339Nano),
		OrderID:   order.ID.String(),
		Session:   order.SessionKey,
		Total:     order.Total.StringFixed(2),
		Items:     make([]orderItemRecord, len(order.Items)),
		Customer:  order.Customer,
		CreatedAt: order.CreatedAt,
	}
	for i, item := range order.Items {
		rec.Items[i] = orderItemRecord{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price.String(),
			Quantity:  item.Quantity,
		}
	}
	return rec
}

func (rec orderRecord) toDomain() (*domain.Order, error) {
	id, err := uuid.Parse(rec.OrderID)
	if err != nil {
		return nil, fmt.Errorf("parse order id %q: %w", rec.OrderID, err)
	}
	total, err := decimal.NewFromString(rec.Total)
	if err != nil {
		return nil, fmt.Errorf("parse total %q: %w", rec.Total, err)
	}

	order := &domain.Order{
		ID:         id,
		SessionKey: rec.Session,
		Total:      total,
		Items:      make([]domain.OrderItem, len(rec.Items)),
		Customer:   rec.Customer,
		CreatedAt:  rec.CreatedAt,
	}
	for i, item := range rec.Items {
		price, err := decimal.NewFromString(item.Price)
		if err != nil {
			return nil, fmt.Errorf("parse item price %q: %w", item.Price, err)
		}
		order.Items[i] = domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     price,
			Quantity:  item.Quantity,
		}
	}
	return order, nil
}
