package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/mocks"
	"chat-relay/internal/telemetry"
)

func TestEmitPublishesEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(publisher, "audit.chat", "chat-relay", "test")

	userID := int64(42)
	publisher.On("Publish", mock.Anything, "audit.chat", mock.MatchedBy(func(event any) bool {
		envelope, ok := event.(telemetry.AuditEnvelope)
		if !ok {
			return false
		}
		require.Equal(t, 1, envelope.SchemaVersion)
		require.Equal(t, "audit_log", envelope.EventType)
		require.Equal(t, "chat-relay", envelope.Service)
		require.Equal(t, "test", envelope.Environment)
		require.Equal(t, "req-1", envelope.RequestID)
		require.NotNil(t, envelope.UserID)
		require.Equal(t, int64(42), *envelope.UserID)
		require.Equal(t, "info", envelope.Payload.Level)
		require.Equal(t, "message sent", envelope.Payload.Text)
		return true
	})).Return(nil)

	emitter.Emit(context.Background(), "info", "message sent", "req-1", &userID)

	publisher.AssertExpectations(t)
}

func TestEmitSwallowsPublishError(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(publisher, "audit.chat", "chat-relay", "test")

	publisher.On("Publish", mock.Anything, "audit.chat", mock.Anything).Return(errors.New("broker down"))

	emitter.Emit(context.Background(), "error", "boom", "", nil)

	publisher.AssertExpectations(t)
}

func TestEmitNilEmitterIsNoop(t *testing.T) {
	var emitter *telemetry.AuditEmitter
	emitter.Emit(context.Background(), "info", "ignored", "", nil)
}
