package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/resto_backend/config"
	"bitbucket.org/mmdatafocus/resto_backend/models"
	"bitbucket.org/mmdatafocus/resto_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SaleBatch is one decoded POS delivery: every sale in it is processed
// independently, so one bad sale never blocks its siblings.
type SaleBatch struct {
	SourceCompanyId string
	CorrelationId   string
	Sales           []SaleInput
}

type SaleInput struct {
	ExternalId    string
	WarehouseCode string
	StationCode   string
	AreaCode      string
	TableCode     string
	UserCode      string
	CustomerCode  string
	SaleDate      time.Time
	Total         decimal.Decimal
	Tip           decimal.Decimal
	Items         []SaleItemInput
	Payments      []SalePaymentInput
	Raw           json.RawMessage
}

type SaleItemInput struct {
	ProductExternalId string
	Description       string
	MovementTypeCode  string
	Qty               decimal.Decimal
	UnitPrice         decimal.Decimal
	Subtotal          decimal.Decimal
	Discount          decimal.Decimal
	Taxes             []models.TaxLine
	TaxTotal          decimal.Decimal
	LineTotal         decimal.Decimal
}

type SalePaymentInput struct {
	MethodName string
	Amount     decimal.Decimal
	Tip        decimal.Decimal
}

// SaleOutcome is the per-sale result reported back to the POS.
type SaleOutcome struct {
	ExternalId string                   `json:"external_id"`
	Status     models.SaleOutcomeStatus `json:"status"`
	SaleId     *int                     `json:"sale_id,omitempty"`
	ErrorCode  string                   `json:"error_code,omitempty"`
	Message    string                   `json:"message,omitempty"`
}

func (s *SaleInput) validate(requireWarehouse bool) error {
	if strings.TrimSpace(s.ExternalId) == "" {
		return errors.New("external id is required")
	}
	if requireWarehouse && strings.TrimSpace(s.WarehouseCode) == "" {
		return errors.New("warehouse code is required")
	}
	if s.SaleDate.IsZero() {
		return errors.New("sale date is required")
	}
	if s.Total.IsNegative() {
		return errors.New("total cannot be negative")
	}
	for _, item := range s.Items {
		if strings.TrimSpace(item.ProductExternalId) == "" {
			return errors.New("item product code is required")
		}
		if item.Qty.IsNegative() {
			return errors.New("item qty cannot be negative")
		}
	}
	for _, payment := range s.Payments {
		if payment.Amount.IsNegative() {
			return errors.New("payment amount cannot be negative")
		}
	}
	return nil
}

// ProcessSalePayload runs the full ingestion pipeline for one delivery.
// The whole batch is rejected only on a source-company mismatch; everything
// else is per-sale.
func ProcessSalePayload(ctx context.Context, conn *models.PosConnection, batch *SaleBatch) ([]SaleOutcome, error) {
	if batch.SourceCompanyId != conn.SourceCompanyId {
		config.LogError(config.GetLogger(), "workflow", "ProcessSalePayload", "company check", map[string]interface{}{
			"business_id":       conn.BusinessId,
			"connection_id":     conn.ID,
			"source_company_id": batch.SourceCompanyId,
		}, ErrCompanyMismatch)
		_ = models.CreateProcessingLog(ctx, config.GetDB(), &models.PosProcessingLog{
			BusinessId:    conn.BusinessId,
			ConnectionId:  conn.ID,
			EntityType:    "batch",
			Outcome:       models.SaleOutcomeFailed,
			ErrorCode:     models.LogErrorCodeCompanyMismatch,
			Message:       ErrCompanyMismatch.Error(),
			CorrelationId: batch.CorrelationId,
		})
		return nil, ErrCompanyMismatch
	}

	outcomes := make([]SaleOutcome, 0, len(batch.Sales))
	for i := range batch.Sales {
		outcomes = append(outcomes, processOneSale(ctx, conn, &batch.Sales[i], batch.CorrelationId))
	}
	return outcomes, nil
}

func processOneSale(ctx context.Context, conn *models.PosConnection, sale *SaleInput, correlationId string) SaleOutcome {
	db := config.GetDB()
	logger := config.GetLogger()
	out := SaleOutcome{ExternalId: sale.ExternalId, Status: models.SaleOutcomeProcessed}

	fail := func(code string, message string, retryable bool) SaleOutcome {
		out.Status = models.SaleOutcomeFailed
		out.ErrorCode = code
		out.Message = message
		_ = models.CreateProcessingLog(ctx, db, &models.PosProcessingLog{
			BusinessId:    conn.BusinessId,
			ConnectionId:  conn.ID,
			ExternalId:    sale.ExternalId,
			EntityType:    "sale",
			Outcome:       models.SaleOutcomeFailed,
			ErrorCode:     code,
			Message:       message,
			PayloadJSON:   sale.Raw,
			Retryable:     retryable,
			CorrelationId: correlationId,
		})
		return out
	}

	if err := sale.validate(conn.DefaultBranchId == nil); err != nil {
		return fail(models.LogErrorCodeValidationFailed, err.Error(), false)
	}

	branchId, err := ResolveWarehouse(ctx, conn, sale.WarehouseCode)
	if err != nil {
		if errors.Is(err, ErrUnmappedWarehouse) {
			// Retryable: once the mapping exists the POS can redeliver.
			return fail(models.LogErrorCodeUnmappedWarehouse, "warehouse not mapped: "+sale.WarehouseCode, true)
		}
		return fail(models.LogErrorCodeStorageFailed, err.Error(), true)
	}

	paymentModeIds := make([]*int, len(sale.Payments))
	for i, payment := range sale.Payments {
		modeId, err := ResolvePaymentMethod(ctx, conn.BusinessId, payment.MethodName)
		if err != nil {
			return fail(models.LogErrorCodeStorageFailed, err.Error(), true)
		}
		if modeId == nil && payment.MethodName != "" {
			config.LogWarn(logger, "workflow", "processOneSale", "payment method", map[string]interface{}{
				"business_id": conn.BusinessId,
				"external_id": sale.ExternalId,
				"method":      payment.MethodName,
				"error_code":  models.LogErrorCodeUnmappedPaymentMode,
			}, "unmapped payment method, amount recorded without mode")
		}
		paymentModeIds[i] = modeId
	}

	key := models.BuildSaleUniquenessKey(conn.UniquenessScope(), sale.WarehouseCode, sale.ExternalId)
	saleRow := buildSaleRow(conn, sale, branchId, key, correlationId, paymentModeIds)

	itemsProcessed, itemsFailed := 0, 0
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(saleRow).Error; err != nil {
			return err
		}

		recipeCost := decimal.Zero
		if conn.RecipeDeductionEnabled() {
			for i := range saleRow.Items {
				cost, ok := deductSaleItem(ctx, tx, conn, branchId, saleRow, &saleRow.Items[i], correlationId)
				if ok {
					itemsProcessed++
					recipeCost = recipeCost.Add(cost)
				} else {
					itemsFailed++
				}
			}
		}

		updates := map[string]interface{}{"RecipeCost": recipeCost}
		if saleRow.Total.IsPositive() {
			updates["ProfitMargin"] = saleRow.Total.Sub(recipeCost).Div(saleRow.Total)
		}
		return tx.Model(saleRow).Updates(updates).Error
	})
	if err != nil {
		if IsDuplicateKeyErr(err) {
			out.Status = models.SaleOutcomeDuplicate
			// Surface the id of the row that won the race so callers can
			// reconcile against their own records.
			var existing models.PosSale
			lookupErr := db.WithContext(ctx).
				Where("business_id = ? AND connection_id = ? AND uniqueness_key = ?",
					conn.BusinessId, conn.ID, key).
				Take(&existing).Error
			if lookupErr == nil {
				out.SaleId = &existing.ID
			}
			_ = models.CreateProcessingLog(ctx, db, &models.PosProcessingLog{
				BusinessId:    conn.BusinessId,
				ConnectionId:  conn.ID,
				SaleId:        out.SaleId,
				ExternalId:    sale.ExternalId,
				EntityType:    "sale",
				Outcome:       models.SaleOutcomeDuplicate,
				CorrelationId: correlationId,
			})
			return out
		}
		config.LogError(logger, "workflow", "processOneSale", "persist sale", sale.ExternalId, err)
		return fail(models.LogErrorCodeStorageFailed, err.Error(), true)
	}

	reconcileTender(logger, conn, sale)

	out.SaleId = &saleRow.ID
	_ = models.CreateProcessingLog(ctx, db, &models.PosProcessingLog{
		BusinessId:     conn.BusinessId,
		ConnectionId:   conn.ID,
		SaleId:         &saleRow.ID,
		ExternalId:     sale.ExternalId,
		EntityType:     "sale",
		Outcome:        models.SaleOutcomeProcessed,
		ItemsProcessed: itemsProcessed,
		ItemsFailed:    itemsFailed,
		CorrelationId:  correlationId,
	})
	return out
}

func buildSaleRow(conn *models.PosConnection, sale *SaleInput, branchId int, key string, correlationId string, paymentModeIds []*int) *models.PosSale {
	row := &models.PosSale{
		BusinessId:    conn.BusinessId,
		ConnectionId:  conn.ID,
		UniquenessKey: key,
		ExternalId:    sale.ExternalId,
		BranchId:      branchId,
		WarehouseCode: sale.WarehouseCode,
		StationCode:   sale.StationCode,
		AreaCode:      sale.AreaCode,
		TableCode:     sale.TableCode,
		UserCode:      sale.UserCode,
		CustomerCode:  sale.CustomerCode,
		SaleDate:      sale.SaleDate,
		Total:         sale.Total,
		Tip:           sale.Tip,
		CurrentStatus: models.SaleStatusCompleted,
		RawPayload:    sale.Raw,
		CorrelationId: correlationId,
	}
	for _, item := range sale.Items {
		movementType, known := models.NormalizeMovementType(item.MovementTypeCode)
		if !known {
			config.LogWarn(config.GetLogger(), "workflow", "buildSaleRow", "movement type", map[string]interface{}{
				"external_id": sale.ExternalId,
				"code":        item.MovementTypeCode,
			}, "unknown movement type code preserved as-is")
		}
		taxesJSON, _ := json.Marshal(item.Taxes)
		row.Items = append(row.Items, models.PosSaleItem{
			BusinessId:        conn.BusinessId,
			ProductExternalId: item.ProductExternalId,
			Description:       item.Description,
			MovementType:      movementType,
			Qty:               item.Qty,
			UnitPrice:         item.UnitPrice,
			Subtotal:          item.Subtotal,
			Discount:          item.Discount,
			TaxesJSON:         taxesJSON,
			TaxTotal:          item.TaxTotal,
			LineTotal:         item.LineTotal,
			RecipeDeducted:    utils.NewFalse(),
		})
	}
	for i, payment := range sale.Payments {
		row.Payments = append(row.Payments, models.PosSalePayment{
			BusinessId:    conn.BusinessId,
			MethodName:    payment.MethodName,
			PaymentModeId: paymentModeIds[i],
			Amount:        payment.Amount,
			Tip:           payment.Tip,
		})
	}
	return row
}

// deductSaleItem resolves the product, explodes its recipe and applies ledger
// deductions for one line. Failures are recorded on the item row and never
// abort the sale: a beverage without a recipe is the normal case, not an error.
// Returns the item's recipe cost and whether deduction happened.
func deductSaleItem(ctx context.Context, tx *gorm.DB, conn *models.PosConnection, branchId int, saleRow *models.PosSale, item *models.PosSaleItem, correlationId string) (decimal.Decimal, bool) {
	markSkipped := func(reason string) (decimal.Decimal, bool) {
		_ = tx.Model(item).Updates(map[string]interface{}{
			"RecipeDeducted": false,
			"DeductionError": &reason,
		}).Error
		return decimal.Zero, false
	}

	productId, err := ResolveProduct(ctx, tx, conn, item.ProductExternalId, item.Description)
	if err != nil {
		return markSkipped(err.Error())
	}
	if productId == nil {
		return markSkipped(models.LogErrorCodeUnmappedProduct)
	}

	// Returns put ingredients back; sales and complimentary items consume them.
	direction := decimal.NewFromInt(-1)
	if item.MovementType == models.MovementTypeReturn {
		direction = decimal.NewFromInt(1)
	}

	requirements, err := ExplodeRecipe(tx, conn.BusinessId, *productId, item.Qty)
	if err != nil {
		if errors.Is(err, ErrNoRecipe) {
			return markSkipped(models.LogErrorCodeNoRecipe)
		}
		return markSkipped(err.Error())
	}

	itemCost := decimal.Zero
	for _, req := range requirements {
		movement, err := ApplyMovement(ctx, tx, &MovementInput{
			BusinessId:      conn.BusinessId,
			BranchId:        branchId,
			IngredientId:    req.Ingredient.ID,
			Qty:             req.Qty.Mul(direction),
			Unit:            req.Unit,
			ReferenceType:   models.MovementReferenceSale,
			ReferenceId:     saleRow.ID,
			ReferenceLineId: item.ID,
			UnitCost:        req.UnitCost,
			EffectiveDate:   saleRow.SaleDate,
			CorrelationId:   correlationId,
		})
		if err != nil {
			return markSkipped(err.Error())
		}
		if err := EvaluateStockAlert(ctx, tx, conn.BusinessId, branchId, &req.Ingredient, movement.NewStock); err != nil {
			return markSkipped(err.Error())
		}
		itemCost = itemCost.Add(req.Cost)
	}

	err = tx.Model(item).Updates(map[string]interface{}{
		"RecipeDeducted": true,
		"RecipeCost":     itemCost,
		"DeductionError": nil,
	}).Error
	if err != nil {
		return decimal.Zero, false
	}
	return itemCost, true
}

// reconcileTender compares the tender sum against total+tip. The POS is
// authoritative for money, so a mismatch only warns.
func reconcileTender(logger *logrus.Logger, conn *models.PosConnection, sale *SaleInput) {
	if len(sale.Payments) == 0 {
		return
	}
	tendered := decimal.Zero
	for _, payment := range sale.Payments {
		tendered = tendered.Add(payment.Amount).Add(payment.Tip)
	}
	expected := sale.Total.Add(sale.Tip)
	if !tendered.Equal(expected) {
		config.LogWarn(logger, "workflow", "reconcileTender", "totals check", map[string]interface{}{
			"business_id": conn.BusinessId,
			"external_id": sale.ExternalId,
			"tendered":    tendered.String(),
			"expected":    expected.String(),
			"error_code":  models.LogErrorCodeTotalsMismatch,
		}, "tender sum does not match sale total")
	}
}
