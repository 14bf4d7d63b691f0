package notification

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"google.golang.org/api/option"
)

// FCMSender publishes reminders to a Firebase Cloud Messaging topic.
type FCMSender struct {
	client *messaging.Client
}

// NewFCMSender initializes a Firebase app from a service account file.
func NewFCMSender(ctx context.Context, credentialsFile string) (*FCMSender, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("get messaging client: %w", err)
	}
	return &FCMSender{client: client}, nil
}

func (s *FCMSender) Send(ctx context.Context, msg Message) error {
	_, err := s.client.Send(ctx, &messaging.Message{
		Topic: msg.Topic,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	})
	if err != nil {
		return fmt.Errorf("fcm send to %s: %w", msg.Topic, err)
	}
	return nil
}
