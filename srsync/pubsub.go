package srsync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/resto_backend/config"
	"bitbucket.org/mmdatafocus/resto_backend/models"
	"bitbucket.org/mmdatafocus/resto_backend/utils"
	"bitbucket.org/mmdatafocus/resto_backend/workflow"
	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func ingestTopicName() string {
	if v := strings.TrimSpace(os.Getenv("SR_SYNC_TOPIC")); v != "" {
		return v
	}
	return "sr-sale-ingest"
}

func publish(ctx context.Context, payload SalePubSubPayload) error {
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(ingestTopicName())
	if envBoolDefault("SR_SYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, ingestTopicName())
		if err != nil {
			return err
		}
	}

	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// PublishSaleBatch enqueues a webhook body for the push-subscription worker.
func PublishSaleBatch(ctx context.Context, conn *models.PosConnection, body []byte, correlationId string) error {
	return publish(ctx, SalePubSubPayload{
		Kind:          pubSubKindIngest,
		BusinessId:    conn.BusinessId,
		ConnectionId:  conn.ID,
		CorrelationId: correlationId,
		Body:          body,
	})
}

// PublishBackfill enqueues a historical pull for the connection.
func PublishBackfill(ctx context.Context, conn *models.PosConnection, correlationId string) error {
	return publish(ctx, SalePubSubPayload{
		Kind:          pubSubKindBackfill,
		BusinessId:    conn.BusinessId,
		ConnectionId:  conn.ID,
		CorrelationId: correlationId,
	})
}

// PubSubPushHandler is the push-subscription endpoint. Pub/Sub delivers at
// least once, so the handler is gated by the durable idempotency table and
// always acks (204): redelivering a poison message forever helps nobody, the
// failure is already in the processing log.
func PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_SR_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload SalePubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.BusinessId == "" || payload.ConnectionId == 0 {
			c.Status(204)
			return
		}

		_ = processPushMessage(c.Request.Context(), payload, envelope.Message.ID)
		c.Status(204)
	}
}

func processPushMessage(ctx context.Context, payload SalePubSubPayload, messageId string) error {
	ctx = utils.SetBusinessIdInContext(ctx, payload.BusinessId)

	conn, err := loadConnection(ctx, payload.BusinessId, payload.ConnectionId)
	if err != nil {
		config.LogError(config.GetLogger(), "srsync", "processPushMessage", "load connection", payload.ConnectionId, err)
		return err
	}

	handler := "sr-" + payload.Kind
	_, err = workflow.RunIdempotent(ctx, payload.BusinessId, handler, messageId, func() error {
		switch payload.Kind {
		case pubSubKindIngest:
			var req SaleWebhookRequest
			if err := json.Unmarshal(payload.Body, &req); err != nil {
				return err
			}
			batch := DecodeSaleBatch(&req, payload.CorrelationId)
			_, err := workflow.ProcessSalePayload(ctx, conn, batch)
			if err == nil {
				touchLastSync(ctx, conn, true)
			}
			return err
		case pubSubKindBackfill:
			return RunBackfill(ctx, conn, payload.CorrelationId)
		default:
			return errors.New("unknown message kind: " + payload.Kind)
		}
	})
	if err != nil {
		config.LogError(config.GetLogger(), "srsync", "processPushMessage", payload.Kind, messageId, err)
	}
	return err
}

func loadConnection(ctx context.Context, businessId string, connectionId uint) (*models.PosConnection, error) {
	db := config.GetDB()
	var conn models.PosConnection
	err := db.WithContext(ctx).
		Where("business_id = ? AND id = ?", businessId, connectionId).
		Take(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &conn, nil
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
