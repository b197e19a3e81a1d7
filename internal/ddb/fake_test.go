package ddb

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type item = map[string]types.AttributeValue

// fakeDB is an in-memory stand-in for the handful of DynamoDB calls Repo
// makes. It understands only the expressions Repo builds.
type fakeDB struct {
	mu           sync.Mutex
	items        map[string]map[string]item // PK -> SK -> item
	transactions int
	failNext     error
}

func newFakeDB() *fakeDB {
	return &fakeDB{items: map[string]map[string]item{}}
}

func (f *fakeDB) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it := f.items[strAttr(in.Key, "PK")][strAttr(in.Key, "SK")]
	return &dynamodb.GetItemOutput{Item: it}, nil
}

func (f *fakeDB) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if in.IndexName != nil {
		gpk := strAttr(in.ExpressionAttributeValues, ":gpk")
		var out []item
		for _, bySK := range f.items {
			for _, it := range bySK {
				if strAttr(it, "GSI1PK") == gpk {
					out = append(out, it)
				}
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if aws.ToBool(in.ScanIndexForward) {
				return strAttr(out[i], "GSI1SK") < strAttr(out[j], "GSI1SK")
			}
			return strAttr(out[i], "GSI1SK") > strAttr(out[j], "GSI1SK")
		})
		if in.Limit != nil && int(*in.Limit) < len(out) {
			out = out[:*in.Limit]
		}
		return &dynamodb.QueryOutput{Items: out, Count: int32(len(out))}, nil
	}

	pk := strAttr(in.ExpressionAttributeValues, ":pk")
	prefix := strAttr(in.ExpressionAttributeValues, ":ev")
	var out []item
	for sk, it := range f.items[pk] {
		if prefix != "" && !strings.HasPrefix(sk, prefix) {
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return strAttr(out[i], "SK") < strAttr(out[j], "SK") })
	return &dynamodb.QueryOutput{Items: out, Count: int32(len(out))}, nil
}

func (f *fakeDB) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transactions++

	if err := f.failNext; err != nil {
		f.failNext = nil
		return nil, err
	}
	if len(in.TransactItems) > 100 {
		return nil, errors.New("ValidationException: too many items")
	}

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, tx := range in.TransactItems {
		reasons[i].Code = aws.String("None")
		var key item
		var cond *string
		var values item
		switch {
		case tx.Put != nil:
			key, cond, values = tx.Put.Item, tx.Put.ConditionExpression, tx.Put.ExpressionAttributeValues
		case tx.Delete != nil:
			key, cond, values = tx.Delete.Key, tx.Delete.ConditionExpression, tx.Delete.ExpressionAttributeValues
		}
		if !f.conditionHolds(key, aws.ToString(cond), values) {
			reasons[i].Code = aws.String(codeCondCheckErr)
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, tx := range in.TransactItems {
		switch {
		case tx.Put != nil:
			pk, sk := strAttr(tx.Put.Item, "PK"), strAttr(tx.Put.Item, "SK")
			if f.items[pk] == nil {
				f.items[pk] = map[string]item{}
			}
			f.items[pk][sk] = tx.Put.Item
		case tx.Delete != nil:
			pk, sk := strAttr(tx.Delete.Key, "PK"), strAttr(tx.Delete.Key, "SK")
			delete(f.items[pk], sk)
			if len(f.items[pk]) == 0 {
				delete(f.items, pk)
			}
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDB) conditionHolds(key item, cond string, values item) bool {
	existing, exists := f.items[strAttr(key, "PK")][strAttr(key, "SK")]
	switch cond {
	case "":
		return true
	case condClaimAbsent:
		return !exists
	case condRevisionIs:
		if !exists {
			return false
		}
		return numAttr(existing, "revision") == numAttr(values, ":rev")
	}
	panic("fakeDB: unsupported condition " + cond)
}

func (f *fakeDB) count(pk string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items[pk])
}

func strAttr(it item, name string) string {
	if s, ok := it[name].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func numAttr(it item, name string) int64 {
	if n, ok := it[name].(*types.AttributeValueMemberN); ok {
		v, _ := strconv.ParseInt(n.Value, 10, 64)
		return v
	}
	return -1
}
