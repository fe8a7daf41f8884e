package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/punchamoorthee/classfund/internal/azstore"
)

type job struct {
	PaymentID int64 `json:"payment_id"`
}

// Azure is a durable queue on Azure Queue Storage. A dequeued message stays
// invisible for the visibility timeout and comes back unless it is acked, so
// Nack only has to decide whether to drop it.
type Azure struct {
	client       *azqueue.QueueClient
	maxAttempts  int
	visibility   time.Duration
	pollInterval time.Duration
}

func NewAzure(ctx context.Context, serviceURL, name string, maxAttempts int) (*Azure, error) {
	var svc *azqueue.ServiceClient
	if azstore.IsEmulator(serviceURL) {
		cred, err := azqueue.NewSharedKeyCredential(azstore.DevAccount, azstore.DevKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create shared key credential: %w", err)
		}
		svc, err = azqueue.NewServiceClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create queue client: %w", err)
		}
	} else {
		cred, err := azstore.DefaultCredential()
		if err != nil {
			return nil, fmt.Errorf("failed to create default azure credential: %w", err)
		}
		svc, err = azqueue.NewServiceClient(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create queue client: %w", err)
		}
	}

	client := svc.NewQueueClient(name)
	if _, err := client.Create(ctx, nil); err != nil && !azstore.HasCode(err, "QueueAlreadyExists") {
		return nil, fmt.Errorf("create queue %s: %w", name, err)
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Azure{
		client:       client,
		maxAttempts:  maxAttempts,
		visibility:   2 * time.Minute,
		pollInterval: 2 * time.Second,
	}, nil
}

// Enqueue sends base64 JSON, the encoding Functions queue triggers expect.
func (q *Azure) Enqueue(ctx context.Context, paymentID int64) error {
	body, err := json.Marshal(job{PaymentID: paymentID})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if _, err := q.client.EnqueueMessage(ctx, base64.StdEncoding.EncodeToString(body), nil); err != nil {
		return fmt.Errorf("enqueue payment %d: %w", paymentID, err)
	}
	return nil
}

func (q *Azure) Dequeue(ctx context.Context) (*Message, error) {
	for {
		resp, err := q.client.DequeueMessages(ctx, &azqueue.DequeueMessagesOptions{
			NumberOfMessages:  to.Ptr(int32(1)),
			VisibilityTimeout: to.Ptr(int32(q.visibility / time.Second)),
		})
		if err != nil {
			return nil, fmt.Errorf("dequeue: %w", err)
		}
		if len(resp.Messages) > 0 {
			return decode(resp.Messages[0])
		}

		select {
		case <-time.After(q.pollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func decode(dm *azqueue.DequeuedMessage) (*Message, error) {
	m := &Message{}
	if dm.MessageID != nil {
		m.id = *dm.MessageID
	}
	if dm.PopReceipt != nil {
		m.receipt = *dm.PopReceipt
	}
	if dm.DequeueCount != nil {
		m.Attempts = int(*dm.DequeueCount)
	}
	if dm.MessageText == nil {
		return m, fmt.Errorf("message %s has no body", m.id)
	}

	raw, err := base64.StdEncoding.DecodeString(*dm.MessageText)
	if err != nil {
		// accept plain JSON from producers that skip the encoding
		raw = []byte(*dm.MessageText)
	}
	var j job
	if err := json.Unmarshal(raw, &j); err != nil {
		return m, fmt.Errorf("decode message %s: %w", m.id, err)
	}
	m.PaymentID = j.PaymentID
	return m, nil
}

func (q *Azure) Ack(ctx context.Context, m *Message) error {
	if _, err := q.client.DeleteMessage(ctx, m.id, m.receipt, nil); err != nil {
		return fmt.Errorf("delete message %s: %w", m.id, err)
	}
	return nil
}

func (q *Azure) Nack(ctx context.Context, m *Message) (bool, error) {
	if m.Attempts < q.maxAttempts {
		return true, nil
	}
	return false, q.Ack(ctx, m)
}
