// Package ddb persists claims and their evidence in a single DynamoDB table.
//
// Layout: the claim lives at PK=CLAIM#<id>, SK=META; each evidence item at
// PK=CLAIM#<id>, SK=EVIDENCE#<evidenceId>. A global secondary index keyed on
// GSI1PK=DISASTER#<disasterId> lists the claims of one disaster, newest first.
package ddb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kylejryan/disaster-relief-claims/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Store errors.
var (
	ErrNotFound    = errors.New("claim not found")
	ErrConflict    = errors.New("claim was modified by another request")
	ErrDuplicateID = errors.New("claim id already exists")
)

const (
	condClaimAbsent  = "attribute_not_exists(PK)"
	condRevisionIs   = "attribute_exists(PK) AND revision = :rev"
	keyCondClaim     = "PK = :pk"
	keyCondEvidence  = "PK = :pk AND begins_with(SK, :ev)"
	keyCondDisaster  = "GSI1PK = :gpk"
	codeCondCheckErr = "ConditionalCheckFailed"
)

// API is the subset of the DynamoDB client used by Repo.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Repo wraps a DynamoDB client and table name for claim operations.
type Repo struct {
	DB            API
	Table         string
	DisasterIndex string
}

// Create writes a new claim and its evidence. The put is conditional on the
// id being free, so a collision surfaces as ErrDuplicateID.
func (r *Repo) Create(ctx context.Context, c *models.Claim) error {
	v := c.View()
	claim, evidence, err := marshalClaim(v)
	if err != nil {
		return err
	}
	tx := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:           &r.Table,
			Item:                claim,
			ConditionExpression: aws.String(condClaimAbsent),
		},
	}}
	tx = append(tx, r.evidencePuts(evidence)...)

	err = r.transact(ctx, tx)
	if isConditionFailure(err, 0) {
		return fmt.Errorf("%w: %s", ErrDuplicateID, v.ID)
	}
	if err != nil {
		return fmt.Errorf("create claim %s: %w", v.ID, err)
	}
	return nil
}

// Exists reports whether a claim with the given id is stored.
func (r *Repo) Exists(ctx context.Context, id string) (bool, error) {
	pk, sk := MakeKeys(id)
	out, err := r.DB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            &r.Table,
		Key:                  keyAV(pk, sk),
		ProjectionExpression: aws.String("PK"),
		ConsistentRead:       aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("get claim %s: %w", id, err)
	}
	return len(out.Item) > 0, nil
}

// Load reads a claim and all of its evidence in stored order.
func (r *Repo) Load(ctx context.Context, id string) (*models.Claim, error) {
	pk, _ := MakeKeys(id)
	items, err := r.queryAll(ctx, &dynamodb.QueryInput{
		TableName:                 &r.Table,
		KeyConditionExpression:    aws.String(keyCondClaim),
		ExpressionAttributeValues: map[string]types.AttributeValue{":pk": stringAV(pk)},
		ConsistentRead:            aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query claim %s: %w", id, err)
	}

	var (
		ci    *claimItem
		evs   []evidenceItem
		found bool
	)
	for _, raw := range items {
		sk := stringAttr(raw, "SK")
		switch {
		case sk == metaSK:
			var it claimItem
			if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
				return nil, fmt.Errorf("decode claim %s: %w", id, err)
			}
			ci, found = &it, true
		case strings.HasPrefix(sk, evidencePrefix):
			var it evidenceItem
			if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
				return nil, fmt.Errorf("decode evidence %s: %w", sk, err)
			}
			evs = append(evs, it)
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].Seq < evs[j].Seq })

	v, err := ci.view(evs)
	if err != nil {
		return nil, fmt.Errorf("decode claim %s: %w", id, err)
	}
	return models.Restore(v)
}

// Save writes c back to the store, replacing its evidence set. The write only
// succeeds if the stored revision still equals expectedRevision, the revision
// observed when c was loaded; otherwise ErrConflict is returned. Evidence
// removed from c is deleted in the same transaction.
func (r *Repo) Save(ctx context.Context, c *models.Claim, expectedRevision int64) error {
	if c.Revision() == expectedRevision {
		return nil
	}
	v := c.View()
	claim, evidence, err := marshalClaim(v)
	if err != nil {
		return err
	}

	stored, err := r.evidenceKeys(ctx, v.ID)
	if err != nil {
		return err
	}
	keep := make(map[string]struct{}, len(v.Evidences))
	for _, e := range v.Evidences {
		keep[evidenceSK(e.ID)] = struct{}{}
	}

	tx := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:                 &r.Table,
			Item:                      claim,
			ConditionExpression:       aws.String(condRevisionIs),
			ExpressionAttributeValues: map[string]types.AttributeValue{":rev": revisionAV(expectedRevision)},
		},
	}}
	tx = append(tx, r.evidencePuts(evidence)...)
	pk, _ := MakeKeys(v.ID)
	for _, sk := range stored {
		if _, ok := keep[sk]; ok {
			continue
		}
		tx = append(tx, types.TransactWriteItem{
			Delete: &types.Delete{TableName: &r.Table, Key: keyAV(pk, sk)},
		})
	}

	err = r.transact(ctx, tx)
	if isConditionFailure(err, 0) {
		return fmt.Errorf("%w: %s at revision %d", ErrConflict, v.ID, expectedRevision)
	}
	if err != nil {
		return fmt.Errorf("save claim %s: %w", v.ID, err)
	}
	return nil
}

// Delete removes c and every stored evidence item under it in one
// transaction, provided nobody saved c since it was loaded.
func (r *Repo) Delete(ctx context.Context, c *models.Claim) error {
	id := c.ID()
	pk, sk := MakeKeys(id)
	stored, err := r.evidenceKeys(ctx, id)
	if err != nil {
		return err
	}
	tx := []types.TransactWriteItem{{
		Delete: &types.Delete{
			TableName:                 &r.Table,
			Key:                       keyAV(pk, sk),
			ConditionExpression:       aws.String(condRevisionIs),
			ExpressionAttributeValues: map[string]types.AttributeValue{":rev": revisionAV(c.Revision())},
		},
	}}
	for _, evSK := range stored {
		tx = append(tx, types.TransactWriteItem{
			Delete: &types.Delete{TableName: &r.Table, Key: keyAV(pk, evSK)},
		})
	}

	err = r.transact(ctx, tx)
	if isConditionFailure(err, 0) {
		return fmt.Errorf("%w: %s", ErrConflict, id)
	}
	if err != nil {
		return fmt.Errorf("delete claim %s: %w", id, err)
	}
	return nil
}

// ListByDisaster returns up to limit claim summaries for a disaster, newest first.
func (r *Repo) ListByDisaster(ctx context.Context, disasterID string, limit int32) ([]models.ClaimSummary, error) {
	out, err := r.DB.Query(ctx, &dynamodb.QueryInput{
		TableName:                 &r.Table,
		IndexName:                 &r.DisasterIndex,
		KeyConditionExpression:    aws.String(keyCondDisaster),
		ExpressionAttributeValues: map[string]types.AttributeValue{":gpk": stringAV(disasterPK(disasterID))},
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list claims for %s: %w", disasterID, err)
	}
	var items []claimItem
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, fmt.Errorf("decode claims for %s: %w", disasterID, err)
	}
	summaries := make([]models.ClaimSummary, 0, len(items))
	for _, it := range items {
		s, err := it.summary()
		if err != nil {
			return nil, fmt.Errorf("decode claim %s: %w", it.ClaimID, err)
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

func (r *Repo) evidencePuts(items []map[string]types.AttributeValue) []types.TransactWriteItem {
	tx := make([]types.TransactWriteItem, 0, len(items))
	for _, item := range items {
		tx = append(tx, types.TransactWriteItem{
			Put: &types.Put{TableName: &r.Table, Item: item},
		})
	}
	return tx
}

// evidenceKeys returns the sort keys of the evidence currently stored for a claim.
func (r *Repo) evidenceKeys(ctx context.Context, id string) ([]string, error) {
	pk, _ := MakeKeys(id)
	items, err := r.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              &r.Table,
		KeyConditionExpression: aws.String(keyCondEvidence),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": stringAV(pk),
			":ev": stringAV(evidencePrefix),
		},
		ProjectionExpression: aws.String("SK"),
		ConsistentRead:       aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query evidence of %s: %w", id, err)
	}
	keys := make([]string, 0, len(items))
	for _, it := range items {
		keys = append(keys, stringAttr(it, "SK"))
	}
	return keys, nil
}

func (r *Repo) queryAll(ctx context.Context, in *dynamodb.QueryInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	p := dynamodb.NewQueryPaginator(r.DB, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

func (r *Repo) transact(ctx context.Context, tx []types.TransactWriteItem) error {
	_, err := r.DB.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: tx})
	return err
}

// isConditionFailure reports whether err is a cancelled transaction whose
// item at index failed its condition check.
func isConditionFailure(err error, index int) bool {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) || index >= len(tce.CancellationReasons) {
		return false
	}
	return aws.ToString(tce.CancellationReasons[index].Code) == codeCondCheckErr
}

func keyAV(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"PK": stringAV(pk), "SK": stringAV(sk)}
}

func stringAV(s string) types.AttributeValue { return &types.AttributeValueMemberS{Value: s} }

func revisionAV(rev int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(rev, 10)}
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if s, ok := item[name].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}
