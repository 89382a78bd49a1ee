package email

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/flowmail/dashboard/internal/domain"
	"github.com/flowmail/dashboard/internal/pkg/logger"
)

// sesAPI is the slice of the SES v2 client the sender uses.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends emails via AWS SES using the SDK v2.
type SESSender struct {
	client sesAPI
}

// NewSESSender creates an SES sender. Static credentials are used when
// given, otherwise the default AWS credential chain (IAM role) applies.
func NewSESSender(ctx context.Context, accessKey, secretKey, region string) (*SESSender, error) {
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AWS config: %w", err)
	}
	return &SESSender{client: sesv2.NewFromConfig(cfg)}, nil
}

// Provider identifies SES.
func (s *SESSender) Provider() domain.EmailProvider { return domain.ProviderSES }

// Send delivers a single email through AWS SES.
func (s *SESSender) Send(ctx context.Context, msg domain.EmailMessage) (domain.SendResult, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTMLContent), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if msg.CampaignID != "" {
		input.EmailTags = append(input.EmailTags, types.MessageTag{Name: aws.String("campaign_id"), Value: aws.String(msg.CampaignID)})
	}
	if msg.SubscriberID != "" {
		input.EmailTags = append(input.EmailTags, types.MessageTag{Name: aws.String("subscriber_id"), Value: aws.String(msg.SubscriberID)})
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		logger.Warn("ses send failed", "to", msg.To, "campaign_id", msg.CampaignID, "error", err)
		return domain.SendResult{}, fmt.Errorf("ses send failed: %w", err)
	}

	messageID := aws.ToString(result.MessageId)
	logger.Debug("ses sent", "message_id", messageID, "to", msg.To)
	return domain.SendResult{
		MessageID: messageID,
		Provider:  domain.ProviderSES,
		SentAt:    time.Now(),
	}, nil
}
