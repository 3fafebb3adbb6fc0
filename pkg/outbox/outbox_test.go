package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcart-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shopcart-backend/pkg/db/models"
	"github.com/angelmondragon/shopcart-backend/pkg/enums"
	"github.com/angelmondragon/shopcart-backend/pkg/outbox/payloads"
)

func TestEmitStoresEnvelope(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	orderID := uuid.New()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &ActorRef{OwnerID: "user-1"},
			Data:          payloads.OrderPlacedEvent{OrderID: orderID, OwnerID: "user-1", TotalAmount: "25.00"},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, orderID, rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	assert.Equal(t, enums.EventOrderPlaced, envelope.EventType)
	assert.Equal(t, EnvelopeSource, envelope.Source)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, "user-1", envelope.Actor.OwnerID)
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Data:          payloads.OrderCancelledEvent{},
		}); err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitRejectsMissingTxAndUnknownTypes(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderPlaced, AggregateType: enums.AggregateOrder})
	require.Error(t, err)

	err = conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{EventType: "order_shipped", AggregateType: enums.AggregateOrder})
	})
	require.Error(t, err)
}

func TestRepositoryLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
			return svc.Emit(context.Background(), tx, DomainEvent{
				EventType:     enums.EventOrderPlaced,
				AggregateType: enums.AggregateOrder,
				AggregateID:   uuid.New(),
				Data:          payloads.OrderPlacedEvent{},
			})
		}))
	}

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.NoError(t, repo.MarkPublishedTx(conn, rows[0].ID))
	require.NoError(t, repo.MarkFailedTx(conn, rows[1].ID, errors.New("broker down")))
	require.NoError(t, repo.MarkTerminalTx(conn, rows[2].ID, errors.New("bad payload"), 5))

	pending, err := repo.CountPending()
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)

	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)
	assert.Equal(t, "broker down", *rows[0].LastError)

	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 1)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = repo.FetchUnpublishedForPublish(nil, 10, 1)
	assert.Error(t, err)

	deleted, err := repo.DeleteSettledBefore(conn, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, deleted)

	deleted, err = repo.DeleteSettledBefore(conn, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	var remaining int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&remaining).Error)
	assert.EqualValues(t, 1, remaining)
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg, err := NewEventRegistry("shopcart.orders")
	require.NoError(t, err)

	orderID := uuid.New()
	data, err := json.Marshal(payloads.OrderPlacedEvent{OrderID: orderID, OwnerID: "user-1", TotalAmount: "5.00"})
	require.NoError(t, err)
	envelope, err := json.Marshal(PayloadEnvelope{Version: 1, EventID: uuid.NewString(), Data: data})
	require.NoError(t, err)

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload:       envelope,
	})
	require.NoError(t, err)
	assert.Equal(t, "shopcart.orders", resolved.Descriptor.Topic)
	placed, ok := resolved.Payload.(*payloads.OrderPlacedEvent)
	require.True(t, ok)
	assert.Equal(t, orderID, placed.OrderID)
}

func TestRegistryResolveNonRetryable(t *testing.T) {
	t.Parallel()

	reg, err := NewEventRegistry("shopcart.orders")
	require.NoError(t, err)

	cases := map[string]models.OutboxEvent{
		"unknown type":    {EventType: "order_shipped", AggregateType: enums.AggregateOrder},
		"wrong aggregate": {EventType: enums.EventOrderPlaced, AggregateType: "cart"},
		"bad envelope":    {EventType: enums.EventOrderPlaced, AggregateType: enums.AggregateOrder, Payload: json.RawMessage(`nope`)},
		"missing id":      {EventType: enums.EventOrderPlaced, AggregateType: enums.AggregateOrder, Payload: json.RawMessage(`{"data":{}}`)},
		"unknown field":   {EventType: enums.EventOrderPlaced, AggregateType: enums.AggregateOrder, Payload: json.RawMessage(`{"event_id":"x","data":{"surprise":1}}`)},
	}
	for name, row := range cases {
		row := row
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(row)
			var nonRetry NonRetryableError
			assert.True(t, errors.As(err, &nonRetry), "got %v", err)
		})
	}

	_, err = NewEventRegistry("")
	assert.Error(t, err)
}
