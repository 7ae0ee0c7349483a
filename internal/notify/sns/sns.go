// Package sns publishes alert verdicts to an Amazon SNS topic.
package sns

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/lifeline/internal/triage"
)

// SNS limits subjects to 100 characters.
const maxSubjectLen = 100

type publisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Notifier publishes verdict JSON to a topic.
type Notifier struct {
	client   publisher
	topicARN string
	logger   log.Logger
}

// New loads the default AWS configuration for region and returns a Notifier
// for topicARN.
func New(ctx context.Context, region, topicARN string, logger log.Logger) (*Notifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("sns: load aws config: %w", err)
	}
	return newNotifier(sns.NewFromConfig(cfg), topicARN, logger), nil
}

func newNotifier(client publisher, topicARN string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{client: client, topicARN: topicARN, logger: logger}
}

// Name implements triage.Notifier.
func (n *Notifier) Name() string { return "sns" }

// Send implements triage.Notifier.
func (n *Notifier) Send(ctx context.Context, v *triage.Verdict) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sns: serialize verdict: %w", err)
	}
	out, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject(v)),
		Message:  aws.String(string(data)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"urgency_score": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.Itoa(v.UrgencyScore)),
			},
			"location_confidence": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(v.LocationConfidence)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sns: publish: %w", err)
	}
	n.logger.Info(ctx, "sns notification published", "message_id", aws.ToString(out.MessageId), "verdict_id", v.ID)
	return nil
}

func subject(v *triage.Verdict) string {
	s := fmt.Sprintf("Emergency alert, urgency %d", v.UrgencyScore)
	if len(v.Locations) > 0 {
		s += ": " + v.Locations[0]
	}
	if len(s) > maxSubjectLen {
		s = s[:maxSubjectLen]
	}
	return s
}
