package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"risk-engine/internal/models"
)

type recordingWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func sampleAlert() Alert {
	return Alert{
		Type:          AlertHighRiskTransaction,
		TransactionID: "tx-9",
		Score:         94,
		RiskLevel:     models.RiskLevelCritical,
		Priority:      models.PriorityCritical,
		Actions:       []models.Action{models.ActionBlockTransaction},
		Message:       "transaction blocked",
		CreatedAt:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestKafkaNotifierPublishesKeyedMessage(t *testing.T) {
	w := &recordingWriter{}
	n := NewKafkaNotifierWithWriter(w, "fraud-alerts", zap.NewNop())

	require.NoError(t, n.Notify(context.Background(), sampleAlert()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "tx-9", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "high_risk_transaction", string(msg.Headers[0].Value))

	var decoded Alert
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, 94, decoded.Score)
	assert.Equal(t, models.RiskLevelCritical, decoded.RiskLevel)

	require.NoError(t, n.Close())
	assert.True(t, w.closed)
}

func TestKafkaNotifierWrapsWriteErrors(t *testing.T) {
	boom := errors.New("broker unavailable")
	n := NewKafkaNotifierWithWriter(&recordingWriter{err: boom}, "fraud-alerts", zap.NewNop())

	err := n.Notify(context.Background(), sampleAlert())
	assert.ErrorIs(t, err, boom)
}

func TestLogNotifierWritesWarning(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	n := NewLogNotifier(zap.New(core))

	require.NoError(t, n.Notify(context.Background(), sampleAlert()))
	entries := logs.FilterMessage("operator alert").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "tx-9", entries[0].ContextMap()["transaction_id"])
}
