package txn

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DDBClient is the DynamoDB surface used by DynamoStore.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore persists transaction records in a DynamoDB table, giving
// pending-load markers that survive node loss.
//
// Table schema:
//   - Partition key: txn_key (string) - "partition/txn/tablet/hash"
//
// Create with:
//
//	aws dynamodb create-table \
//	  --table-name quarry-txns \
//	  --attribute-definitions AttributeName=txn_key,AttributeType=S \
//	  --key-schema AttributeName=txn_key,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
type DynamoStore struct {
	client    DDBClient
	tableName string
}

// NewDynamoStore creates a DynamoDB-backed record store.
func NewDynamoStore(client DDBClient, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

func ddbKey(k Key) string {
	return fmt.Sprintf("%d/%d/%d/%d", k.PartitionID, k.TxnID, k.TabletID, k.SchemaHash)
}

// Put writes the record with a conditional put so a concurrent prepare
// from another node surfaces as ErrConflict.
func (s *DynamoStore) Put(ctx context.Context, rec Record) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"txn_key":     &types.AttributeValueMemberS{Value: ddbKey(rec.Key)},
			"load_id":     &types.AttributeValueMemberS{Value: string(rec.LoadID)},
			"prepared_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.PreparedAt.UnixMilli(), 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(txn_key)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: %s", ErrConflict, rec.Key)
		}
		return err
	}
	return nil
}

// Delete removes the record. Absent keys are not an error.
func (s *DynamoStore) Delete(ctx context.Context, key Key) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"txn_key": &types.AttributeValueMemberS{Value: ddbKey(key)},
		},
	})
	return err
}
