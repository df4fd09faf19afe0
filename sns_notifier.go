package es

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
)

// SNSNotifier publishes notifications to an SNS topic
type SNSNotifier struct {
	Client   snsiface.SNSAPI
	TopicArn string
}

// Publish sends data as the default message of the topic
func (p *SNSNotifier) Publish(ctx context.Context, data interface{}) error {
	type message struct {
		Default string `json:"default"`
	}

	rawData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	rawMessage, err := json.Marshal(message{Default: string(rawData)})
	if err != nil {
		return err
	}

	_, err = p.Client.PublishWithContext(ctx, &sns.PublishInput{
		Message:          aws.String(string(rawMessage)),
		MessageStructure: aws.String("json"),
		TopicArn:         aws.String(p.TopicArn),
	})
	return err
}

// NewSNSNotifier creates a new SNSNotifier
func NewSNSNotifier(client snsiface.SNSAPI, topicArn string) *SNSNotifier {
	return &SNSNotifier{
		Client:   client,
		TopicArn: topicArn,
	}
}
