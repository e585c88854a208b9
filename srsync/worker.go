package srsync

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/resto_backend/config"
	"bitbucket.org/mmdatafocus/resto_backend/models"
	"bitbucket.org/mmdatafocus/resto_backend/workflow"
)

// RunBackfill pulls historical sales from the SR API through the same
// ingestion pipeline as the webhook. Idempotency makes overlap with live
// pushes harmless: a sale seen twice is a duplicate no-op. Cursor state is
// persisted after every page so an interrupted run resumes where it stopped.
func RunBackfill(ctx context.Context, conn *models.PosConnection, correlationId string) error {
	logger := config.GetLogger()

	client, err := newSRClient(conn.AuthSecretRef)
	if err != nil {
		return err
	}

	state := DecodeCursorState(conn.CursorStateJSON)
	pageSize := envIntDefault("SR_SYNC_PAGE_SIZE", 100)
	maxPages := envIntDefault("SR_SYNC_MAX_PAGES", 50)
	startedAt := time.Now()

	processed, failed := 0, 0
	for page := 0; page < maxPages; page++ {
		resp, err := client.listSales(ctx, conn.SourceCompanyId, state.UpdatedSince, state.Cursor, pageSize)
		if err != nil {
			config.LogError(logger, "srsync", "RunBackfill", "list sales", conn.ID, err)
			touchLastSync(ctx, conn, false)
			return err
		}

		records := resp.records()
		if len(records) == 0 {
			state.Cursor = ""
			break
		}

		batch := &workflow.SaleBatch{
			SourceCompanyId: conn.SourceCompanyId,
			CorrelationId:   correlationId,
		}
		for _, raw := range records {
			var ws wireSale
			if err := json.Unmarshal(raw, &ws); err != nil {
				batch.Sales = append(batch.Sales, workflow.SaleInput{Raw: raw})
				continue
			}
			batch.Sales = append(batch.Sales, decodeWireSale(&ws, raw))
		}

		outcomes, err := workflow.ProcessSalePayload(ctx, conn, batch)
		if err != nil {
			touchLastSync(ctx, conn, false)
			return err
		}
		for _, outcome := range outcomes {
			if outcome.Status == models.SaleOutcomeFailed {
				failed++
			} else {
				processed++
			}
		}

		state.Cursor = resp.NextCursor
		if err := saveCursorState(ctx, conn, state); err != nil {
			return err
		}
		if resp.NextCursor == "" || (resp.HasMore != nil && !*resp.HasMore) {
			state.Cursor = ""
			break
		}
	}

	// Next run only needs sales changed after this one started.
	state.UpdatedSince = startedAt.UTC().Format(time.RFC3339)
	if err := saveCursorState(ctx, conn, state); err != nil {
		return err
	}
	touchLastSync(ctx, conn, failed == 0)

	logger.WithField("module", "srsync").
		WithField("connection_id", conn.ID).
		WithField("processed", processed).
		WithField("failed", failed).
		Info("sr backfill finished")
	return nil
}

func saveCursorState(ctx context.Context, conn *models.PosConnection, state CursorState) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(conn).Update("CursorStateJSON", EncodeCursorState(state)).Error
}

func envIntDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
