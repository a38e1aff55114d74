package cloud

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/domain"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/notify"
)

type lambdaInvoker interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// LambdaNotifier hands each new alert to a function without waiting for it
// to run.
type LambdaNotifier struct {
	svc      lambdaInvoker
	function string
}

func NewLambdaNotifier(cfg aws.Config, function string) *LambdaNotifier {
	return &LambdaNotifier{svc: lambda.NewFromConfig(cfg), function: function}
}

func (n *LambdaNotifier) Notify(ctx context.Context, alert domain.Alert, rule domain.Rule) error {
	payload, err := json.Marshal(notify.NewAlertEvent(alert, rule))
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	out, err := n.svc.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(n.function),
		Payload:        payload,
		InvocationType: types.InvocationTypeEvent,
	})
	if err != nil {
		return fmt.Errorf("failed to invoke Lambda: %w", err)
	}
	if out.FunctionError != nil {
		return fmt.Errorf("lambda function error: %s", aws.ToString(out.FunctionError))
	}
	return nil
}
