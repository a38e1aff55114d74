package cloud

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/domain"
)

// SNS rejects subjects longer than this.
const maxSubjectLen = 100

type snsPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier sends a human-readable message for every new alert.
type SNSNotifier struct {
	svc      snsPublisher
	topicArn string
}

func NewSNSNotifier(cfg aws.Config, topicArn string) *SNSNotifier {
	return &SNSNotifier{svc: sns.NewFromConfig(cfg), topicArn: topicArn}
}

func (n *SNSNotifier) Notify(ctx context.Context, alert domain.Alert, rule domain.Rule) error {
	subject, message := alertMessage(alert, rule)
	_, err := n.svc.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicArn),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"device_id": {DataType: aws.String("String"), StringValue: aws.String(alert.DeviceID)},
			"rule_type": {DataType: aws.String("String"), StringValue: aws.String(string(rule.Type))},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}
	return nil
}

func alertMessage(alert domain.Alert, rule domain.Rule) (string, string) {
	subject := fmt.Sprintf("IoT Alert: %s %s on %s", rule.Type, alert.MetricName, alert.DeviceID)
	if len(subject) > maxSubjectLen {
		subject = subject[:maxSubjectLen]
	}

	var b strings.Builder
	b.WriteString("Threshold Alert\n\n")
	fmt.Fprintf(&b, "Device: %s\n", alert.DeviceID)
	fmt.Fprintf(&b, "Metric: %s\n", alert.MetricName)
	fmt.Fprintf(&b, "Value: %g\n", alert.Value)
	fmt.Fprintf(&b, "Rule: %s (%s)\n", rule.ID, describeBounds(rule))
	fmt.Fprintf(&b, "Alert: %s\n", alert.ID)
	fmt.Fprintf(&b, "Triggered: %s\n", alert.TriggeredAt.Format("2006-01-02T15:04:05Z07:00"))
	return subject, b.String()
}

func describeBounds(rule domain.Rule) string {
	switch rule.Type {
	case domain.RuleMax:
		return fmt.Sprintf("max %s", bound(rule.MaxValue))
	case domain.RuleMin:
		return fmt.Sprintf("min %s", bound(rule.MinValue))
	default:
		return fmt.Sprintf("range %s..%s", bound(rule.MinValue), bound(rule.MaxValue))
	}
}

func bound(v *float64) string {
	if v == nil {
		return "unset"
	}
	return fmt.Sprintf("%g", *v)
}
