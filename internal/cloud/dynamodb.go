package cloud

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/domain"
)

type dynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoAlertStore keeps alerts in a DynamoDB table keyed by id.
// Timestamps are stored as unix nanoseconds so range filters compare numbers.
type DynamoAlertStore struct {
	svc   dynamoAPI
	table string
	now   func() time.Time
}

func NewDynamoAlertStore(cfg aws.Config, table string) *DynamoAlertStore {
	return &DynamoAlertStore{
		svc:   dynamodb.NewFromConfig(cfg),
		table: table,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

type alertItem struct {
	ID          string  `dynamodbav:"id"`
	DeviceID    string  `dynamodbav:"deviceId"`
	MetricName  string  `dynamodbav:"metricName"`
	RuleID      string  `dynamodbav:"ruleId"`
	Value       float64 `dynamodbav:"value"`
	Status      string  `dynamodbav:"status"`
	TriggeredAt int64   `dynamodbav:"triggeredAt"`
	ResolvedAt  *int64  `dynamodbav:"resolvedAt,omitempty"`
}

func toItem(a domain.Alert) alertItem {
	item := alertItem{
		ID:          a.ID,
		DeviceID:    a.DeviceID,
		MetricName:  a.MetricName,
		RuleID:      a.RuleID,
		Value:       a.Value,
		Status:      string(a.Status),
		TriggeredAt: a.TriggeredAt.UnixNano(),
	}
	if a.ResolvedAt != nil {
		at := a.ResolvedAt.UnixNano()
		item.ResolvedAt = &at
	}
	return item
}

func (i alertItem) alert() domain.Alert {
	a := domain.Alert{
		ID:          i.ID,
		DeviceID:    i.DeviceID,
		MetricName:  i.MetricName,
		RuleID:      i.RuleID,
		Value:       i.Value,
		Status:      domain.AlertStatus(i.Status),
		TriggeredAt: time.Unix(0, i.TriggeredAt).UTC(),
	}
	if i.ResolvedAt != nil {
		at := time.Unix(0, *i.ResolvedAt).UTC()
		a.ResolvedAt = &at
	}
	return a
}

func (s *DynamoAlertStore) Create(ctx context.Context, n domain.NewAlert) (domain.Alert, error) {
	alert := domain.Alert{
		ID:          uuid.NewString(),
		DeviceID:    n.DeviceID,
		MetricName:  n.MetricName,
		RuleID:      n.RuleID,
		Value:       n.Value,
		Status:      domain.AlertActive,
		TriggeredAt: s.now(),
	}

	item, err := attributevalue.MarshalMap(toItem(alert))
	if err != nil {
		return domain.Alert{}, domain.StorageErr("marshal alert", err)
	}

	_, err = s.svc.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return domain.Alert{}, domain.StorageErr("create alert", err)
	}
	return alert, nil
}

func (s *DynamoAlertStore) Resolve(ctx context.Context, id string, at time.Time) (domain.Alert, error) {
	out, err := s.svc.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:    aws.String("SET #st = :resolved, resolvedAt = :at"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeNames: map[string]string{
			"#st": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":resolved": &types.AttributeValueMemberS{Value: string(domain.AlertResolved)},
			":at":       &types.AttributeValueMemberN{Value: strconv.FormatInt(at.UnixNano(), 10)},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return domain.Alert{}, domain.ErrNotFound
		}
		return domain.Alert{}, domain.StorageErr("resolve alert", err)
	}

	var item alertItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return domain.Alert{}, domain.StorageErr("unmarshal alert", err)
	}
	return item.alert(), nil
}

func (s *DynamoAlertStore) Query(ctx context.Context, f domain.AlertFilter) ([]domain.Alert, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(s.table)}
	if expr, names, values := scanFilter(f); expr != "" {
		input.FilterExpression = aws.String(expr)
		input.ExpressionAttributeNames = names
		input.ExpressionAttributeValues = values
	}

	out := []domain.Alert{}
	paginator := dynamodb.NewScanPaginator(s.svc, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, domain.StorageErr("query alerts", err)
		}

		var items []alertItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, domain.StorageErr("unmarshal alerts", err)
		}
		for _, item := range items {
			out = append(out, item.alert())
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].TriggeredAt.After(out[j].TriggeredAt) })
	return out, nil
}

// scanFilter turns the optional filters into a FilterExpression. An empty
// expression means no filtering.
func scanFilter(f domain.AlertFilter) (string, map[string]string, map[string]types.AttributeValue) {
	var conds []string
	names := map[string]string{}
	values := map[string]types.AttributeValue{}

	if f.Status != nil {
		conds = append(conds, "#st = :status")
		names["#st"] = "status"
		values[":status"] = &types.AttributeValueMemberS{Value: string(*f.Status)}
	}
	if f.DeviceID != "" {
		conds = append(conds, "deviceId = :device")
		values[":device"] = &types.AttributeValueMemberS{Value: f.DeviceID}
	}
	if f.MetricName != "" {
		conds = append(conds, "metricName = :metric")
		values[":metric"] = &types.AttributeValueMemberS{Value: f.MetricName}
	}
	if f.From != nil {
		conds = append(conds, "triggeredAt >= :from")
		values[":from"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(f.From.UnixNano(), 10)}
	}
	if f.To != nil {
		conds = append(conds, "triggeredAt <= :to")
		values[":to"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(f.To.UnixNano(), 10)}
	}

	if len(conds) == 0 {
		return "", nil, nil
	}
	if len(names) == 0 {
		names = nil
	}
	return strings.Join(conds, " AND "), names, values
}
