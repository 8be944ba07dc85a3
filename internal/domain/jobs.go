package domain

import (
	"context"
	"time"
)

// BroadcastJob содержит рассылку, запрошенную администратором.
type BroadcastJob struct {
	ID          string    `json:"job_id"`
	Text        string    `json:"text"`
	RequestedBy int64     `json:"requested_by"`
	ReplyChatID int64     `json:"reply_chat_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// BroadcastQueue описывает очередь задач рассылки.
type BroadcastQueue interface {
	Enqueue(ctx context.Context, job BroadcastJob) error
	Receive(ctx context.Context) (BroadcastJob, AckFunc, error)
}

// AckFunc подтверждает успешную обработку или запрашивает повтор доставки задачи.
type AckFunc func(success bool) error
