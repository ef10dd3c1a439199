package streams

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/stock-ledger/internal/domain/stock"
	"github.com/example/stock-ledger/internal/inventory"
	"github.com/google/uuid"
)

// QuantityChange is a products-table stream record whose quantity moved.
// The table stream must use the NEW_AND_OLD_IMAGES view type.
type QuantityChange struct {
	EventID     string
	ProductID   string
	ProductName string
	Previous    int
	Quantity    int
	Version     int64
	At          time.Time
}

// ConvertFromKinesisRecord decodes a DynamoDB stream record delivered through
// Kinesis Data Streams.
func ConvertFromKinesisRecord(record events.KinesisEventRecord) (*QuantityChange, error) {
	var dynamoDBRecord events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &dynamoDBRecord); err != nil {
		return nil, fmt.Errorf("failed to unmarshal DynamoDB record: %w", err)
	}
	return ConvertFromDynamoDBStreamRecord(dynamoDBRecord)
}

// ConvertFromDynamoDBStreamRecord returns nil for records that are not
// quantity updates: inserts, deletes and detail-only modifications.
func ConvertFromDynamoDBStreamRecord(record events.DynamoDBEventRecord) (*QuantityChange, error) {
	if record.EventName != string(events.DynamoDBOperationTypeModify) {
		return nil, nil
	}

	previous, err := quantityOf(record.Change.OldImage)
	if err != nil {
		return nil, fmt.Errorf("old image: %w", err)
	}
	current, err := quantityOf(record.Change.NewImage)
	if err != nil {
		return nil, fmt.Errorf("new image: %w", err)
	}
	if previous == current {
		return nil, nil
	}

	image := record.Change.NewImage
	change := &QuantityChange{
		EventID:   record.EventID,
		ProductID: stringOf(image, "id"),
		Previous:  previous,
		Quantity:  current,
	}
	if change.ProductID == "" {
		return nil, fmt.Errorf("record %s: missing product id", record.EventID)
	}
	change.ProductName = stringOf(image, "name")
	if v, ok := image["version"]; ok && v.DataType() == events.DataTypeNumber {
		if version, err := v.Integer(); err == nil {
			change.Version = version
		}
	}
	if at, err := time.Parse(time.RFC3339Nano, stringOf(image, "updated_at")); err == nil {
		change.At = at
	} else {
		change.At = record.Change.ApproximateCreationDateTime.Time
	}
	return change, nil
}

// BatchConvertFromKinesisEvent converts all records from a Kinesis event.
// Returns successfully converted changes and any errors encountered.
func BatchConvertFromKinesisEvent(kinesisEvent events.KinesisEvent) ([]*QuantityChange, []error) {
	var changes []*QuantityChange
	var errs []error

	for _, record := range kinesisEvent.Records {
		change, err := ConvertFromKinesisRecord(record)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %s: %w", record.EventID, err))
			continue
		}
		if change != nil {
			changes = append(changes, change)
		}
	}
	return changes, errs
}

// StockAdjusted expresses the change as a stock event, evaluated against monitor.
func (c QuantityChange) StockAdjusted(monitor stock.Monitor) inventory.StockAdjusted {
	kind := inventory.KindAdd
	if c.Quantity < c.Previous {
		kind = inventory.KindRemove
	}
	id := c.EventID
	if id == "" {
		id = uuid.New().String()
	}
	return inventory.StockAdjusted{
		ID:               id,
		Type:             inventory.EventStockAdjusted,
		ProductID:        c.ProductID,
		ProductName:      c.ProductName,
		Kind:             kind,
		Delta:            c.Quantity - c.Previous,
		PreviousQuantity: c.Previous,
		Quantity:         c.Quantity,
		LowStock:         monitor.IsLowQuantity(c.Quantity),
		Threshold:        monitor.Threshold(),
		OccurredAt:       c.At,
	}
}

func quantityOf(image map[string]events.DynamoDBAttributeValue) (int, error) {
	if image == nil {
		return 0, fmt.Errorf("DynamoDB image is nil")
	}
	v, ok := image["quantity"]
	if !ok || v.DataType() != events.DataTypeNumber {
		return 0, fmt.Errorf("quantity attribute missing")
	}
	q, err := v.Integer()
	if err != nil {
		return 0, fmt.Errorf("failed to parse quantity: %w", err)
	}
	return int(q), nil
}

func stringOf(image map[string]events.DynamoDBAttributeValue, name string) string {
	v, ok := image[name]
	if !ok || v.DataType() != events.DataTypeString {
		return ""
	}
	return v.String()
}
