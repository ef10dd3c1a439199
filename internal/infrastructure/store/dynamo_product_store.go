package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/example/stock-ledger/internal/domain/product"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoProductStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoProductStore stores one item per product, keyed by "id".
// Quantity swaps are conditional writes on the stored quantity.
type DynamoProductStore struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

// dynamoProduct is the DynamoDB item structure
type dynamoProduct struct {
	ID          string `dynamodbav:"id"`
	Name        string `dynamodbav:"name"`
	Description string `dynamodbav:"description"`
	Category    string `dynamodbav:"category"`
	Price       string `dynamodbav:"price"`
	Quantity    int    `dynamodbav:"quantity"`
	Version     int64  `dynamodbav:"version"`
	CreatedAt   string `dynamodbav:"created_at"`
	UpdatedAt   string `dynamodbav:"updated_at"`
}

func NewDynamoProductStore(client DynamoAPI, tableName string) *DynamoProductStore {
	return &DynamoProductStore{
		client:    client,
		tableName: tableName,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func toDynamoProduct(p product.Product) dynamoProduct {
	return dynamoProduct{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Price:       p.Price.String(),
		Quantity:    p.Quantity,
		Version:     p.Version,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func (dp dynamoProduct) toProduct() (product.Product, error) {
	price, err := decimal.NewFromString(dp.Price)
	if err != nil {
		return product.Product{}, fmt.Errorf("invalid price %q for product %s: %w", dp.Price, dp.ID, err)
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, dp.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339Nano, dp.UpdatedAt)

	return product.Product{
		ID:          dp.ID,
		Name:        dp.Name,
		Description: dp.Description,
		Category:    dp.Category,
		Price:       price,
		Quantity:    dp.Quantity,
		Version:     dp.Version,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

func unmarshalProduct(item map[string]types.AttributeValue) (product.Product, error) {
	var dp dynamoProduct
	if err := attributevalue.UnmarshalMap(item, &dp); err != nil {
		return product.Product{}, fmt.Errorf("failed to unmarshal product: %w", err)
	}
	return dp.toProduct()
}

func (s *DynamoProductStore) key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

func isConditionFailed(err error) (*types.ConditionalCheckFailedException, bool) {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return ccf, true
	}
	return nil, false
}

func (s *DynamoProductStore) Get(ctx context.Context, id string) (product.Product, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return product.Product{}, unavailable("get product", err)
	}
	if result.Item == nil {
		return product.Product{}, product.ErrNotFound
	}
	return unmarshalProduct(result.Item)
}

func (s *DynamoProductStore) List(ctx context.Context) ([]product.Product, error) {
	products := []product.Product{}

	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:      aws.String(s.tableName),
		ConsistentRead: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, unavailable("scan products", err)
		}
		for _, item := range page.Items {
			p, err := unmarshalProduct(item)
			if err != nil {
				return nil, err
			}
			products = append(products, p)
		}
	}

	sort.SliceStable(products, func(i, j int) bool {
		return products[i].CreatedAt.Before(products[j].CreatedAt)
	})
	return products, nil
}

func (s *DynamoProductStore) Create(ctx context.Context, p product.Product) (product.Product, error) {
	if err := p.Validate(); err != nil {
		return product.Product{}, err
	}

	now := s.now()
	p.ID = uuid.New().String()
	p.Version = 1
	p.CreatedAt = now
	p.UpdatedAt = now

	av, err := attributevalue.MarshalMap(toDynamoProduct(p))
	if err != nil {
		return product.Product{}, fmt.Errorf("failed to marshal product: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return product.Product{}, unavailable("put product", err)
	}
	return p, nil
}

func (s *DynamoProductStore) UpdateDetails(ctx context.Context, id string, d product.Details) (product.Product, error) {
	if err := d.Validate(); err != nil {
		return product.Product{}, err
	}
	p := product.Product{}.WithDetails(d)

	result, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 s.key(id),
		ConditionExpression: aws.String("attribute_exists(id)"),
		UpdateExpression:    aws.String("SET #name = :name, description = :description, category = :category, price = :price, updated_at = :now ADD version :one"),
		ExpressionAttributeNames: map[string]string{
			"#name": "name",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":name":        &types.AttributeValueMemberS{Value: p.Name},
			":description": &types.AttributeValueMemberS{Value: p.Description},
			":category":    &types.AttributeValueMemberS{Value: p.Category},
			":price":       &types.AttributeValueMemberS{Value: p.Price.String()},
			":now":         &types.AttributeValueMemberS{Value: s.now().Format(time.RFC3339Nano)},
			":one":         &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if _, ok := isConditionFailed(err); ok {
		return product.Product{}, product.ErrNotFound
	}
	if err != nil {
		return product.Product{}, unavailable("update product", err)
	}
	return unmarshalProduct(result.Attributes)
}

func (s *DynamoProductStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 s.key(id),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if _, ok := isConditionFailed(err); ok {
		return product.ErrNotFound
	}
	if err != nil {
		return unavailable("delete product", err)
	}
	return nil
}

func (s *DynamoProductStore) CompareAndSwapQuantity(ctx context.Context, id string, expected, next int) (bool, error) {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 s.key(id),
		ConditionExpression: aws.String("attribute_exists(id) AND quantity = :expected"),
		UpdateExpression:    aws.String("SET quantity = :next, updated_at = :now ADD version :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.Itoa(expected)},
			":next":     &types.AttributeValueMemberN{Value: strconv.Itoa(next)},
			":now":      &types.AttributeValueMemberS{Value: s.now().Format(time.RFC3339Nano)},
			":one":      &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if ccf, ok := isConditionFailed(err); ok {
		// No old item means the condition failed on attribute_exists.
		if len(ccf.Item) == 0 {
			return false, product.ErrNotFound
		}
		return false, nil
	}
	if err != nil {
		return false, unavailable("swap quantity", err)
	}
	return true, nil
}
