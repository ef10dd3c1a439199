package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/example/stock-ledger/internal/domain/product"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo records requests and returns scripted responses.
type fakeDynamo struct {
	getOut    *dynamodb.GetItemOutput
	scanPages []*dynamodb.ScanOutput
	updateOut *dynamodb.UpdateItemOutput
	err       error

	puts    []*dynamodb.PutItemInput
	updates []*dynamodb.UpdateItemInput
	deletes []*dynamodb.DeleteItemInput
	scans   int
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.getOut == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return f.getOut, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	if f.err != nil {
		return nil, f.err
	}
	if f.updateOut == nil {
		return &dynamodb.UpdateItemOutput{}, nil
	}
	return f.updateOut, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.deletes = append(f.deletes, in)
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	page := f.scanPages[f.scans]
	f.scans++
	return page, nil
}

func item(t *testing.T, id string, quantity int, created time.Time) map[string]types.AttributeValue {
	t.Helper()
	av, err := attributevalue.MarshalMap(toDynamoProduct(product.Product{
		ID:          id,
		Name:        "Widget",
		Description: "A small widget",
		Category:    "hardware",
		Price:       decimal.RequireFromString("2.25"),
		Quantity:    quantity,
		Version:     3,
		CreatedAt:   created,
		UpdatedAt:   created,
	}))
	require.NoError(t, err)
	return av
}

func TestDynamoProductStore_Get(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	client := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: item(t, "p-1", 7, created)}}
	s := NewDynamoProductStore(client, "products")

	p, err := s.Get(context.Background(), "p-1")

	require.NoError(t, err)
	assert.Equal(t, "p-1", p.ID)
	assert.Equal(t, 7, p.Quantity)
	assert.Equal(t, int64(3), p.Version)
	assert.True(t, decimal.RequireFromString("2.25").Equal(p.Price))
	assert.True(t, created.Equal(p.CreatedAt))
}

func TestDynamoProductStore_GetNotFound(t *testing.T) {
	s := NewDynamoProductStore(&fakeDynamo{}, "products")

	_, err := s.Get(context.Background(), "missing")

	assert.ErrorIs(t, err, product.ErrNotFound)
}

func TestDynamoProductStore_GetUnavailable(t *testing.T) {
	s := NewDynamoProductStore(&fakeDynamo{err: errors.New("connection reset")}, "products")

	_, err := s.Get(context.Background(), "p-1")

	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestDynamoProductStore_List_SortedByCreation(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	client := &fakeDynamo{scanPages: []*dynamodb.ScanOutput{
		{
			Items:            []map[string]types.AttributeValue{item(t, "late", 1, base.Add(time.Hour))},
			LastEvaluatedKey: map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: "late"}},
		},
		{
			Items: []map[string]types.AttributeValue{item(t, "early", 2, base)},
		},
	}}
	s := NewDynamoProductStore(client, "products")

	list, err := s.List(context.Background())

	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "early", list[0].ID)
	assert.Equal(t, "late", list[1].ID)
	assert.Equal(t, 2, client.scans)
}

func TestDynamoProductStore_Create(t *testing.T) {
	client := &fakeDynamo{}
	s := NewDynamoProductStore(client, "products")
	p, err := product.New(product.Details{
		Name: "Widget", Description: "A small widget", Category: "hardware", Price: decimal.NewFromInt(1),
	}, 4)
	require.NoError(t, err)

	created, err := s.Create(context.Background(), p)

	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, int64(1), created.Version)
	require.Len(t, client.puts, 1)
	assert.Equal(t, "attribute_not_exists(id)", aws.ToString(client.puts[0].ConditionExpression))

	var stored dynamoProduct
	require.NoError(t, attributevalue.UnmarshalMap(client.puts[0].Item, &stored))
	assert.Equal(t, created.ID, stored.ID)
	assert.Equal(t, 4, stored.Quantity)
	assert.Equal(t, "1", stored.Price)
}

func TestDynamoProductStore_CreateRejectsInvalid(t *testing.T) {
	client := &fakeDynamo{}
	s := NewDynamoProductStore(client, "products")

	_, err := s.Create(context.Background(), product.Product{Name: "x"})

	assert.ErrorIs(t, err, product.ErrValidation)
	assert.Empty(t, client.puts)
}

func TestDynamoProductStore_CompareAndSwapQuantity(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantSwapped bool
		wantErr     error
	}{
		{"swapped", nil, true, nil},
		{"quantity moved", &types.ConditionalCheckFailedException{Item: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: "p-1"},
		}}, false, nil},
		{"item gone", &types.ConditionalCheckFailedException{}, false, product.ErrNotFound},
		{"throttled", errors.New("throughput exceeded"), false, ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeDynamo{err: tt.err}
			s := NewDynamoProductStore(client, "products")

			swapped, err := s.CompareAndSwapQuantity(context.Background(), "p-1", 5, 3)

			assert.Equal(t, tt.wantSwapped, swapped)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			require.Len(t, client.updates, 1)
			in := client.updates[0]
			assert.Equal(t, "attribute_exists(id) AND quantity = :expected", aws.ToString(in.ConditionExpression))
			assert.Equal(t, &types.AttributeValueMemberN{Value: "5"}, in.ExpressionAttributeValues[":expected"])
			assert.Equal(t, &types.AttributeValueMemberN{Value: "3"}, in.ExpressionAttributeValues[":next"])
		})
	}
}

func TestDynamoProductStore_UpdateDetails(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	client := &fakeDynamo{updateOut: &dynamodb.UpdateItemOutput{Attributes: item(t, "p-1", 7, created)}}
	s := NewDynamoProductStore(client, "products")

	p, err := s.UpdateDetails(context.Background(), "p-1", product.Details{
		Name: "Widget", Description: "A small widget", Category: "hardware", Price: decimal.NewFromInt(2),
	})

	require.NoError(t, err)
	assert.Equal(t, 7, p.Quantity)
	require.Len(t, client.updates, 1)
	assert.NotContains(t, aws.ToString(client.updates[0].UpdateExpression), "quantity")
}

func TestDynamoProductStore_UpdateDetailsNotFound(t *testing.T) {
	s := NewDynamoProductStore(&fakeDynamo{err: &types.ConditionalCheckFailedException{}}, "products")

	_, err := s.UpdateDetails(context.Background(), "missing", product.Details{
		Name: "a", Description: "b", Category: "c",
	})

	assert.ErrorIs(t, err, product.ErrNotFound)
}

func TestDynamoProductStore_Delete(t *testing.T) {
	client := &fakeDynamo{}
	s := NewDynamoProductStore(client, "products")

	require.NoError(t, s.Delete(context.Background(), "p-1"))
	require.Len(t, client.deletes, 1)

	client.err = &types.ConditionalCheckFailedException{}
	assert.ErrorIs(t, s.Delete(context.Background(), "p-1"), product.ErrNotFound)
}
