package repository

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeDynamoDB is an in-memory single table. Query understands the key
// condition and the equality filters the repositories build; UpdateItem
// understands "SET #x = :x" assignments.
type fakeDynamoDB struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue

	pageSize        int
	unprocessedOnce bool
	err             error

	queries      int
	batchWrites  int
	transactions []*dynamodb.TransactWriteItemsInput
}

func newFakeDynamoDB() *fakeDynamoDB {
	return &fakeDynamoDB{items: make(map[string]map[string]types.AttributeValue)}
}

func str(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func storageKey(key map[string]types.AttributeValue) string {
	return str(key["PK"]) + "|" + str(key["SK"])
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func (f *fakeDynamoDB) put(item map[string]types.AttributeValue, condition *string) error {
	key := storageKey(item)
	if aws.ToString(condition) == "attribute_not_exists(PK)" {
		if _, exists := f.items[key]; exists {
			return &types.ConditionalCheckFailedException{Message: aws.String("exists")}
		}
	}
	f.items[key] = copyItem(item)
	return nil
}

func (f *fakeDynamoDB) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	item, ok := f.items[storageKey(params.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyItem(item)}, nil
}

func (f *fakeDynamoDB) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if err := f.put(params.Item, params.ConditionExpression); err != nil {
		return nil, err
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamoDB) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	key := storageKey(params.Key)
	item, ok := f.items[key]
	if !ok {
		if aws.ToString(params.ConditionExpression) == "attribute_exists(PK)" {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("missing")}
		}
		item = copyItem(params.Key)
		f.items[key] = item
	}

	expr := strings.TrimPrefix(aws.ToString(params.UpdateExpression), "SET ")
	for _, assignment := range strings.Split(expr, ",") {
		parts := strings.Split(assignment, "=")
		name := params.ExpressionAttributeNames[strings.TrimSpace(parts[0])]
		item[name] = params.ExpressionAttributeValues[strings.TrimSpace(parts[1])]
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamoDB) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	key := storageKey(params.Key)
	old, ok := f.items[key]
	delete(f.items, key)

	out := &dynamodb.DeleteItemOutput{}
	if ok && params.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = old
	}
	return out, nil
}

func (f *fakeDynamoDB) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.queries++

	values := params.ExpressionAttributeValues
	pk := str(values[":pk"])
	prefix := str(values[":sk_prefix"])

	var keys []string
	for key, item := range f.items {
		if str(item["PK"]) == pk && strings.HasPrefix(str(item["SK"]), prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	if start := params.ExclusiveStartKey; len(start) > 0 {
		after := storageKey(start)
		idx := sort.SearchStrings(keys, after)
		if idx < len(keys) && keys[idx] == after {
			idx++
		}
		keys = keys[idx:]
	}

	out := &dynamodb.QueryOutput{}
	if f.pageSize > 0 && len(keys) > f.pageSize {
		last := f.items[keys[f.pageSize-1]]
		out.LastEvaluatedKey = map[string]types.AttributeValue{"PK": last["PK"], "SK": last["SK"]}
		keys = keys[:f.pageSize]
	}

	for _, key := range keys {
		item := f.items[key]
		if !matchesFilter(item, values) {
			continue
		}
		out.Items = append(out.Items, copyItem(item))
	}
	return out, nil
}

func matchesFilter(item, values map[string]types.AttributeValue) bool {
	if v, ok := values[":purpose"]; ok && str(item["purpose"]) != str(v) {
		return false
	}
	if v, ok := values[":code"]; ok && str(item["code"]) != str(v) {
		return false
	}
	if v, ok := values[":family_id"]; ok && str(item["family_id"]) != str(v) {
		return false
	}
	if _, ok := values[":false"]; ok {
		if consumed, isBool := item["consumed"].(*types.AttributeValueMemberBOOL); isBool && consumed.Value {
			return false
		}
	}
	return true
}

func (f *fakeDynamoDB) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.batchWrites++

	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	for table, requests := range params.RequestItems {
		if len(requests) > batchWriteLimit {
			return nil, errors.New("too many items in batch")
		}
		for i, req := range requests {
			if f.unprocessedOnce && i == len(requests)-1 {
				f.unprocessedOnce = false
				out.UnprocessedItems[table] = append(out.UnprocessedItems[table], req)
				continue
			}
			if req.DeleteRequest != nil {
				delete(f.items, storageKey(req.DeleteRequest.Key))
			}
		}
	}
	return out, nil
}

func (f *fakeDynamoDB) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.transactions = append(f.transactions, params)

	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false
	for i, item := range params.TransactItems {
		reasons[i] = types.CancellationReason{Code: aws.String("None")}
		if item.Put != nil && aws.ToString(item.Put.ConditionExpression) == "attribute_not_exists(PK)" {
			if _, exists := f.items[storageKey(item.Put.Item)]; exists {
				reasons[i] = types.CancellationReason{Code: aws.String("ConditionalCheckFailed")}
				failed = true
			}
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, item := range params.TransactItems {
		switch {
		case item.Put != nil:
			f.items[storageKey(item.Put.Item)] = copyItem(item.Put.Item)
		case item.Delete != nil:
			delete(f.items, storageKey(item.Delete.Key))
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamoDB) count(pkPrefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, item := range f.items {
		if strings.HasPrefix(str(item["PK"]), pkPrefix) {
			n++
		}
	}
	return n
}
