package models_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/resto_backend/config"
	"bitbucket.org/mmdatafocus/resto_backend/models"
	"bitbucket.org/mmdatafocus/resto_backend/utils"
	"bitbucket.org/mmdatafocus/resto_backend/workflow"
	"github.com/shopspring/decimal"
)

// End-to-end ingestion + cancellation against real MySQL/Redis:
// a sale for one burger deducts 0.3kg of beef with 5% waste at $10/kg,
// re-delivery is a no-op, and cancelling restores the ledger exactly.
func TestSaleIngestionAndCancellationLedger(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "resto_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	businessId := "biz-sr-test"
	ctx := utils.SetBusinessIdInContext(context.Background(), businessId)
	db := config.GetDB()

	branch, err := models.CreateBranch(ctx, &models.NewBranch{Name: "Main"})
	if err != nil {
		t.Fatalf("create branch: %v", err)
	}
	beef, err := models.CreateIngredient(ctx, &models.NewIngredient{
		Name:         "Beef",
		Unit:         "kg",
		UnitCost:     decimal.RequireFromString("10"),
		ReorderPoint: decimal.RequireFromString("5"),
		MinimumStock: decimal.RequireFromString("2"),
	})
	if err != nil {
		t.Fatalf("create ingredient: %v", err)
	}
	burger, err := models.CreateProduct(ctx, &models.NewProduct{Name: "Burger"})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	_, err = models.CreateRecipe(ctx, &models.NewRecipe{
		ProductId: burger.ID,
		YieldQty:  decimal.RequireFromString("1"),
		Ingredients: []models.NewRecipeIngredient{
			{
				IngredientId:    beef.ID,
				QtyPerYield:     decimal.RequireFromString("0.3"),
				Unit:            "kg",
				WastePercentage: decimal.RequireFromString("5"),
			},
		},
	})
	if err != nil {
		t.Fatalf("create recipe: %v", err)
	}

	conn := models.PosConnection{
		BusinessId:      businessId,
		Provider:        models.IntegrationProviderSR,
		Status:          models.IntegrationStatusConnected,
		SourceCompanyId: "COMP-7",
		AuthSecretRef:   "secret",
	}
	if err := db.WithContext(ctx).Create(&conn).Error; err != nil {
		t.Fatalf("create connection: %v", err)
	}
	if err := db.WithContext(ctx).Create(&models.WarehouseMapping{
		BusinessId:    businessId,
		ConnectionId:  conn.ID,
		WarehouseCode: "WH-1",
		BranchId:      branch.ID,
	}).Error; err != nil {
		t.Fatalf("create warehouse mapping: %v", err)
	}
	if err := db.WithContext(ctx).Create(&models.ProductMapping{
		BusinessId:   businessId,
		ConnectionId: conn.ID,
		ExternalId:   "01005",
		ProductId:    &burger.ID,
		Confidence:   models.MappingConfidenceManual,
		IsActive:     utils.NewTrue(),
	}).Error; err != nil {
		t.Fatalf("create product mapping: %v", err)
	}
	mappings, err := utils.FetchAllModels[models.WarehouseMapping](ctx, businessId)
	if err != nil || len(mappings) != 1 {
		t.Fatalf("warehouse mappings = %d (%v)", len(mappings), err)
	}

	// Opening stock: 10kg.
	openTx := db.WithContext(ctx).Begin()
	_, err = workflow.ApplyMovement(ctx, openTx, &workflow.MovementInput{
		BusinessId:    businessId,
		BranchId:      branch.ID,
		IngredientId:  beef.ID,
		Qty:           decimal.RequireFromString("10"),
		Unit:          "kg",
		ReferenceType: models.MovementReferenceManual,
		EffectiveDate: time.Now(),
	})
	if err != nil {
		openTx.Rollback()
		t.Fatalf("opening stock: %v", err)
	}
	if err := openTx.Commit().Error; err != nil {
		t.Fatalf("commit opening stock: %v", err)
	}

	batch := &workflow.SaleBatch{
		SourceCompanyId: "COMP-7",
		CorrelationId:   "test-corr",
		Sales: []workflow.SaleInput{
			{
				ExternalId:    "51795",
				WarehouseCode: "WH-1",
				SaleDate:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
				Total:         decimal.RequireFromString("120.50"),
				Items: []workflow.SaleItemInput{
					{ProductExternalId: "01005", Qty: decimal.RequireFromString("1"), MovementTypeCode: "V"},
				},
				Payments: []workflow.SalePaymentInput{
					{MethodName: "cash", Amount: decimal.RequireFromString("120.50")},
				},
				Raw: json.RawMessage(`{"id":"51795"}`),
			},
		},
	}

	outcomes, err := workflow.ProcessSalePayload(ctx, &conn, batch)
	if err != nil {
		t.Fatalf("process payload: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Status != models.SaleOutcomeProcessed {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	if outcomes[0].SaleId == nil {
		t.Fatal("processed outcome missing sale id")
	}
	firstSaleId := *outcomes[0].SaleId

	stock, err := models.LedgerStockSum(db.WithContext(ctx), businessId, branch.ID, beef.ID)
	if err != nil {
		t.Fatalf("stock sum: %v", err)
	}
	if !stock.Equal(decimal.RequireFromString("9.685")) {
		t.Fatalf("stock after sale = %s, want 9.685", stock)
	}

	var item models.PosSaleItem
	if err := db.WithContext(ctx).Where("business_id = ? AND product_external_id = ?", businessId, "01005").Take(&item).Error; err != nil {
		t.Fatalf("load item: %v", err)
	}
	if !item.RecipeCost.Equal(decimal.RequireFromString("3.15")) {
		t.Fatalf("recipe cost = %s, want 3.15", item.RecipeCost)
	}

	// Re-delivery: exactly one row set, no new ledger entries.
	outcomes, err = workflow.ProcessSalePayload(ctx, &conn, batch)
	if err != nil {
		t.Fatalf("re-process payload: %v", err)
	}
	if outcomes[0].Status != models.SaleOutcomeDuplicate {
		t.Fatalf("re-delivery outcome = %s, want duplicate", outcomes[0].Status)
	}
	// A duplicate still reports the id of the row that won.
	if outcomes[0].SaleId == nil || *outcomes[0].SaleId != firstSaleId {
		t.Fatalf("duplicate outcome sale id = %v, want %d", outcomes[0].SaleId, firstSaleId)
	}
	var movementCount int64
	db.WithContext(ctx).Model(&models.InventoryMovement{}).
		Where("business_id = ?", businessId).Count(&movementCount)
	if movementCount != 2 {
		t.Fatalf("movements after re-delivery = %d, want 2", movementCount)
	}

	// Cancellation restores the ledger.
	sale, err := workflow.CancelSale(ctx, &conn, "51795", models.CancellationTypeVoid, "customer left", "test-corr")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if sale.CurrentStatus != models.SaleStatusCancelled {
		t.Fatalf("status = %s", sale.CurrentStatus)
	}
	stock, _ = models.LedgerStockSum(db.WithContext(ctx), businessId, branch.ID, beef.ID)
	if !stock.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("stock after cancel = %s, want 10", stock)
	}

	// Cancelling again is a no-op success.
	if _, err := workflow.CancelSale(ctx, &conn, "51795", models.CancellationTypeVoid, "again", "test-corr"); err != nil {
		t.Fatalf("re-cancel: %v", err)
	}
	db.WithContext(ctx).Model(&models.InventoryMovement{}).
		Where("business_id = ?", businessId).Count(&movementCount)
	if movementCount != 3 {
		t.Fatalf("movements after re-cancel = %d, want 3", movementCount)
	}

	burgerSale := func(externalId string, qty string) workflow.SaleInput {
		return workflow.SaleInput{
			ExternalId:    externalId,
			WarehouseCode: "WH-1",
			SaleDate:      time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
			Total:         decimal.RequireFromString("120.50"),
			Items: []workflow.SaleItemInput{
				{ProductExternalId: "01005", Qty: decimal.RequireFromString(qty), MovementTypeCode: "V"},
			},
		}
	}

	// One bad sale in the middle fails alone; its siblings land.
	invalid := burgerSale("60002", "1")
	invalid.SaleDate = time.Time{}
	outcomes, err = workflow.ProcessSalePayload(ctx, &conn, &workflow.SaleBatch{
		SourceCompanyId: "COMP-7",
		CorrelationId:   "test-corr",
		Sales: []workflow.SaleInput{
			burgerSale("60001", "1"),
			invalid,
			burgerSale("60003", "1"),
		},
	})
	if err != nil {
		t.Fatalf("mixed batch: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("mixed batch outcomes = %d", len(outcomes))
	}
	if outcomes[0].Status != models.SaleOutcomeProcessed ||
		outcomes[1].Status != models.SaleOutcomeFailed ||
		outcomes[2].Status != models.SaleOutcomeProcessed {
		t.Fatalf("mixed batch = %s/%s/%s", outcomes[0].Status, outcomes[1].Status, outcomes[2].Status)
	}
	if outcomes[1].ErrorCode != models.LogErrorCodeValidationFailed {
		t.Fatalf("invalid sale error code = %q", outcomes[1].ErrorCode)
	}
	stock, _ = models.LedgerStockSum(db.WithContext(ctx), businessId, branch.ID, beef.ID)
	if !stock.Equal(decimal.RequireFromString("9.37")) {
		t.Fatalf("stock after mixed batch = %s, want 9.37", stock)
	}

	// Unknown warehouse is a hard per-sale failure with a readable message.
	unknownWh := burgerSale("60030", "1")
	unknownWh.WarehouseCode = "WH-9"
	outcomes, err = workflow.ProcessSalePayload(ctx, &conn, &workflow.SaleBatch{
		SourceCompanyId: "COMP-7",
		CorrelationId:   "test-corr",
		Sales:           []workflow.SaleInput{unknownWh},
	})
	if err != nil {
		t.Fatalf("unknown warehouse batch: %v", err)
	}
	if outcomes[0].Status != models.SaleOutcomeFailed || outcomes[0].ErrorCode != models.LogErrorCodeUnmappedWarehouse {
		t.Fatalf("unknown warehouse outcome = %+v", outcomes[0])
	}
	if outcomes[0].Message != "warehouse not mapped: WH-9" {
		t.Fatalf("unknown warehouse message = %q", outcomes[0].Message)
	}

	// An unknown product code creates exactly one auto-mapping row, however
	// many sales mention it, and bumps last_seen_at on each sighting.
	unknownProduct := func(externalId string) workflow.SaleInput {
		s := burgerSale(externalId, "1")
		s.Items[0].ProductExternalId = "99999"
		return s
	}
	outcomes, err = workflow.ProcessSalePayload(ctx, &conn, &workflow.SaleBatch{
		SourceCompanyId: "COMP-7",
		CorrelationId:   "test-corr",
		Sales:           []workflow.SaleInput{unknownProduct("60010")},
	})
	if err != nil || outcomes[0].Status != models.SaleOutcomeProcessed {
		t.Fatalf("unmapped product sale = %+v (%v)", outcomes[0], err)
	}
	var autoRows []models.ProductMapping
	if err := db.WithContext(ctx).Where("external_id = ?", "99999").Find(&autoRows).Error; err != nil {
		t.Fatalf("load auto mappings: %v", err)
	}
	if len(autoRows) != 1 || autoRows[0].ProductId != nil || autoRows[0].LastSeenAt == nil {
		t.Fatalf("auto mapping rows = %+v", autoRows)
	}
	firstSeen := *autoRows[0].LastSeenAt

	time.Sleep(150 * time.Millisecond)
	outcomes, err = workflow.ProcessSalePayload(ctx, &conn, &workflow.SaleBatch{
		SourceCompanyId: "COMP-7",
		CorrelationId:   "test-corr",
		Sales:           []workflow.SaleInput{unknownProduct("60011")},
	})
	if err != nil || outcomes[0].Status != models.SaleOutcomeProcessed {
		t.Fatalf("second unmapped product sale = %+v (%v)", outcomes[0], err)
	}
	autoRows = nil
	if err := db.WithContext(ctx).Where("external_id = ?", "99999").Find(&autoRows).Error; err != nil {
		t.Fatalf("reload auto mappings: %v", err)
	}
	if len(autoRows) != 1 {
		t.Fatalf("auto mapping rows after second sighting = %d, want 1", len(autoRows))
	}
	if autoRows[0].LastSeenAt == nil || !autoRows[0].LastSeenAt.After(firstSeen) {
		t.Fatalf("last_seen_at not bumped: %v -> %v", firstSeen, autoRows[0].LastSeenAt)
	}

	// Two deductions below the reorder point share one active alert row.
	outcomes, err = workflow.ProcessSalePayload(ctx, &conn, &workflow.SaleBatch{
		SourceCompanyId: "COMP-7",
		CorrelationId:   "test-corr",
		Sales:           []workflow.SaleInput{burgerSale("60020", "14")},
	})
	if err != nil || outcomes[0].Status != models.SaleOutcomeProcessed {
		t.Fatalf("bulk sale = %+v (%v)", outcomes[0], err)
	}
	stock, _ = models.LedgerStockSum(db.WithContext(ctx), businessId, branch.ID, beef.ID)
	if !stock.Equal(decimal.RequireFromString("4.96")) {
		t.Fatalf("stock after bulk sale = %s, want 4.96", stock)
	}
	outcomes, err = workflow.ProcessSalePayload(ctx, &conn, &workflow.SaleBatch{
		SourceCompanyId: "COMP-7",
		CorrelationId:   "test-corr",
		Sales:           []workflow.SaleInput{burgerSale("60021", "1")},
	})
	if err != nil || outcomes[0].Status != models.SaleOutcomeProcessed {
		t.Fatalf("follow-up sale = %+v (%v)", outcomes[0], err)
	}

	var alerts []models.LowStockAlert
	if err := db.WithContext(ctx).
		Where("branch_id = ? AND ingredient_id = ?", branch.ID, beef.ID).
		Find(&alerts).Error; err != nil {
		t.Fatalf("load alerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alert rows = %d, want 1", len(alerts))
	}
	if alerts[0].Status != models.AlertStatusActive || alerts[0].AlertType != models.AlertTypeApproaching {
		t.Fatalf("alert = %s/%s", alerts[0].Status, alerts[0].AlertType)
	}
	if !alerts[0].CurrentStock.Equal(decimal.RequireFromString("4.645")) {
		t.Fatalf("alert current stock = %s, want 4.645", alerts[0].CurrentStock)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("resto-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("resto-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=resto_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
