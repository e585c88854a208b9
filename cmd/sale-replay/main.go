package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/resto_backend/config"
	"bitbucket.org/mmdatafocus/resto_backend/models"
	"bitbucket.org/mmdatafocus/resto_backend/srsync"
	"bitbucket.org/mmdatafocus/resto_backend/utils"
	"bitbucket.org/mmdatafocus/resto_backend/workflow"
	"github.com/google/uuid"
)

// Re-runs ingestion for failed sales from their stored raw payloads in the
// processing log. Idempotency makes replay safe: anything that actually landed
// comes back as a duplicate no-op.
func main() {
	businessID := flag.String("business-id", "", "Required: business id")
	externalID := flag.String("external-id", "", "Optional: replay one sale by external id")
	sinceStr := flag.String("since", "", "Optional: only replay failures after this date (YYYY-MM-DD)")
	retryableOnly := flag.Bool("retryable-only", true, "Only replay failures marked retryable")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := utils.SetBusinessIdInContext(context.Background(), *businessID)
	conn, err := models.GetConnectionByBusiness(ctx, *businessID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load connection: %v\n", err)
		os.Exit(1)
	}

	query := db.WithContext(ctx).
		Where("business_id = ? AND entity_type = ? AND outcome = ?", *businessID, "sale", models.SaleOutcomeFailed)
	if *retryableOnly {
		query = query.Where("retryable = ?", true)
	}
	if *externalID != "" {
		query = query.Where("external_id = ?", *externalID)
	}
	if strings.TrimSpace(*sinceStr) != "" {
		since, err := time.Parse("2006-01-02", strings.TrimSpace(*sinceStr))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid since date: %v\n", err)
			os.Exit(1)
		}
		query = query.Where("created_at >= ?", since)
	}

	var entries []models.PosProcessingLog
	if err := query.Order("id").Find(&entries).Error; err != nil {
		fmt.Fprintf(os.Stderr, "load failures: %v\n", err)
		os.Exit(1)
	}

	// One payload per external id: replay only the latest failure.
	latest := make(map[string]models.PosProcessingLog, len(entries))
	for _, entry := range entries {
		if len(entry.PayloadJSON) == 0 {
			continue
		}
		latest[entry.ExternalId] = entry
	}
	if len(latest) == 0 {
		fmt.Println("nothing to replay")
		return
	}

	raws := make([]json.RawMessage, 0, len(latest))
	for _, entry := range latest {
		raws = append(raws, json.RawMessage(entry.PayloadJSON))
	}

	req := srsync.SaleWebhookRequest{
		CompanyId: conn.SourceCompanyId,
		Sales:     raws,
	}
	batch := srsync.DecodeSaleBatch(&req, "replay-"+uuid.NewString())
	outcomes, err := workflow.ProcessSalePayload(ctx, conn, batch)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay failed: %v\n", err)
		os.Exit(1)
	}

	for _, outcome := range outcomes {
		fmt.Printf("sale %s: %s", outcome.ExternalId, outcome.Status)
		if outcome.Message != "" {
			fmt.Printf(" (%s: %s)", outcome.ErrorCode, outcome.Message)
		}
		fmt.Println()
	}
}
