package sms

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/assuredfarming/assured-farming-backend/pkg/awsconfig"
	"github.com/assuredfarming/assured-farming-backend/pkg/config"
)

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSender publishes transactional SMS through Amazon SNS.
type SNSSender struct {
	api      snsAPI
	senderID string
}

func NewSNSSender(ctx context.Context, cfg config.SMSConfig, awsCfg config.AWSConfig) (*SNSSender, error) {
	loaded, err := awsconfig.Load(ctx, awsCfg)
	if err != nil {
		return nil, err
	}
	endpoint := awsconfig.Endpoint(awsCfg)
	api := sns.NewFromConfig(loaded, func(o *sns.Options) {
		if endpoint != nil {
			o.BaseEndpoint = endpoint
		}
	})
	return &SNSSender{api: api, senderID: cfg.SenderID}, nil
}

func (s *SNSSender) Send(ctx context.Context, msg Message) (string, error) {
	if strings.TrimSpace(msg.To) == "" {
		return "", fmt.Errorf("sms recipient is required")
	}
	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
	}
	if s.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(s.senderID)}
	}

	out, err := s.api.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(msg.To),
		Message:           aws.String(msg.Body),
		MessageAttributes: attrs,
	})
	if err != nil {
		return "", fmt.Errorf("sns publish to %s: %w", msg.To, err)
	}
	return aws.ToString(out.MessageId), nil
}
