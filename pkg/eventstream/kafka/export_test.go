package kafka

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// RecordingWriter captures messages instead of sending them.
type RecordingWriter struct {
	Messages []kafkago.Message
	Err      error
	Closed   bool
}

func (w *RecordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.Err != nil {
		return w.Err
	}
	w.Messages = append(w.Messages, msgs...)
	return nil
}

func (w *RecordingWriter) Close() error {
	w.Closed = true
	return nil
}

func NewPublisherWithWriter(w *RecordingWriter) *Publisher {
	return newPublisher(w, DefaultTopic, zap.NewNop())
}
