package srsync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/resto_backend/config"
	"bitbucket.org/mmdatafocus/resto_backend/models"
	"bitbucket.org/mmdatafocus/resto_backend/utils"
	"bitbucket.org/mmdatafocus/resto_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SalesWebhookHandler receives pushed SR sale batches. Auth is the connection
// secret in X-SR-Token plus the company id inside the payload; a company id the
// token's connection does not own rejects the whole batch.
func SalesWebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}

		var req SaleWebhookRequest
		if err := json.Unmarshal(body, &req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		if strings.TrimSpace(req.CompanyId) == "" || len(req.Sales) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "company_id and sales are required"})
			return
		}

		conn, err := authenticateWebhook(c, req.CompanyId)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := utils.SetBusinessIdInContext(c.Request.Context(), conn.BusinessId)
		correlationId := requestCorrelationId(c)

		if config.AsyncIngestEnabled() {
			err := PublishSaleBatch(ctx, conn, body, correlationId)
			if err != nil {
				config.LogError(config.GetLogger(), "srsync", "SalesWebhookHandler", "enqueue", conn.BusinessId, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue failed"})
				return
			}
			touchLastSync(ctx, conn, false)
			c.JSON(http.StatusAccepted, gin.H{"queued": true, "correlation_id": correlationId})
			return
		}

		batch := DecodeSaleBatch(&req, correlationId)
		outcomes, err := workflow.ProcessSalePayload(ctx, conn, batch)
		if err != nil {
			if errors.Is(err, workflow.ErrCompanyMismatch) {
				c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		touchLastSync(ctx, conn, true)
		c.JSON(http.StatusOK, gin.H{"results": outcomes, "correlation_id": correlationId})
	}
}

// CancellationHandler receives one SR void/refund event and reverses the sale.
func CancellationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CancellationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		conn, err := authenticateWebhook(c, req.CompanyId)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := utils.SetBusinessIdInContext(c.Request.Context(), conn.BusinessId)

		sale, err := workflow.CancelSale(ctx, conn, req.SaleId, models.NormalizeCancellationType(req.Type), req.Reason, requestCorrelationId(c))
		if err != nil {
			if errors.Is(err, workflow.ErrSaleNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "sale not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sale_id": sale.ID, "status": sale.CurrentStatus})
	}
}

// ConnectHandler creates or refreshes the tenant's SR connection.
func ConnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req ConnectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, bindingErrorBody(err))
			return
		}
		ctx := c.Request.Context()
		if req.DefaultBranchId != nil {
			if err := utils.ValidateResourceId[models.Branch](ctx, businessId, *req.DefaultBranchId); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "branch not found"})
				return
			}
		}

		db := config.GetDB().WithContext(ctx)
		conn, err := models.GetConnectionByBusiness(ctx, businessId)
		if err != nil && !errors.Is(err, utils.ErrorRecordNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		storeName := strings.TrimSpace(req.StoreName)
		if storeName == "" {
			storeName = req.CompanyId
		}

		if conn == nil {
			conn = &models.PosConnection{
				BusinessId:      businessId,
				Provider:        models.IntegrationProviderSR,
				Status:          models.IntegrationStatusConnected,
				SourceCompanyId: req.CompanyId,
				AuthSecretRef:   req.Secret,
				StoreName:       storeName,
				DefaultBranchId: req.DefaultBranchId,
			}
			if err := db.Create(conn).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		} else {
			err := db.Model(conn).Updates(map[string]interface{}{
				"Status":          models.IntegrationStatusConnected,
				"SourceCompanyId": req.CompanyId,
				"AuthSecretRef":   req.Secret,
				"StoreName":       storeName,
				"DefaultBranchId": req.DefaultBranchId,
			}).Error
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// DisconnectHandler revokes the secret and marks the connection disconnected.
// Ingested history stays.
func DisconnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		conn, err := models.GetConnectionByBusiness(c.Request.Context(), businessId)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusOK, gin.H{"success": true})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		err = db.Model(conn).Updates(map[string]interface{}{
			"Status":        models.IntegrationStatusDisconnected,
			"AuthSecretRef": "",
		}).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// StatusHandler reports the tenant's connection state.
func StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		conn, err := models.GetConnectionByBusiness(c.Request.Context(), businessId)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusOK, StatusResponse{
					Connection: ConnectionResponse{Status: models.IntegrationStatusDisconnected},
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, StatusResponse{
			Connection: ConnectionResponse{
				Status:    conn.Status,
				CompanyId: conn.SourceCompanyId,
				StoreName: conn.StoreName,
			},
			LastSyncAt:        formatTime(conn.LastSyncAt),
			LastSuccessSyncAt: formatTime(conn.LastSuccessSyncAt),
		})
	}
}

// WarehouseMappingHandler upserts one warehouse-code -> branch mapping.
func WarehouseMappingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req models.NewWarehouseMapping
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, bindingErrorBody(err))
			return
		}

		conn, err := models.GetConnectionByBusiness(c.Request.Context(), businessId)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "sr is not connected"})
			return
		}

		mapping, err := models.UpsertWarehouseMapping(c.Request.Context(), conn.ID, &req)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, mapping)
	}
}

// ListWarehouseMappingsHandler returns the tenant's warehouse-code mappings.
func ListWarehouseMappingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		mappings, err := utils.FetchAllModels[models.WarehouseMapping](c.Request.Context(), businessId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"mappings": mappings})
	}
}

// BackfillHandler queues a historical pull from the SR API.
func BackfillHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		conn, err := models.GetConnectionByBusiness(c.Request.Context(), businessId)
		if err != nil || conn.Status != models.IntegrationStatusConnected {
			c.JSON(http.StatusConflict, gin.H{"error": "sr is not connected"})
			return
		}

		correlationId := requestCorrelationId(c)
		if err := PublishBackfill(c.Request.Context(), conn, correlationId); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"queued": true, "correlation_id": correlationId})
	}
}

func authenticateWebhook(c *gin.Context, companyId string) (*models.PosConnection, error) {
	token := strings.TrimSpace(c.GetHeader("X-SR-Token"))
	if token == "" {
		auth := c.GetHeader("Authorization")
		token = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if token == "" {
		return nil, errors.New("missing token")
	}

	db := config.GetDB()
	var conn models.PosConnection
	ctx := utils.SetSkipTenantScopeInContext(c.Request.Context(), true)
	err := db.WithContext(ctx).
		Where("provider = ? AND source_company_id = ? AND status = ?",
			models.IntegrationProviderSR, strings.TrimSpace(companyId), models.IntegrationStatusConnected).
		Take(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("unknown company")
		}
		return nil, err
	}
	if conn.AuthSecretRef == "" || conn.AuthSecretRef != token {
		return nil, errors.New("bad token")
	}
	return &conn, nil
}

func requestCorrelationId(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader("X-Correlation-Id")); v != "" {
		return v
	}
	if v, ok := utils.GetCorrelationIdFromContext(c.Request.Context()); ok && v != "" {
		return v
	}
	return uuid.NewString()
}

// bindingErrorBody turns a bind failure into a response, with per-field tags
// when the error came from validator.
func bindingErrorBody(err error) gin.H {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(verrs)}
	}
	return gin.H{"error": "invalid request"}
}

func touchLastSync(ctx context.Context, conn *models.PosConnection, success bool) {
	now := time.Now()
	updates := map[string]interface{}{"LastSyncAt": &now}
	if success {
		updates["LastSuccessSyncAt"] = &now
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(conn).Updates(updates).Error; err != nil {
		config.LogError(config.GetLogger(), "srsync", "touchLastSync", "update connection", conn.ID, err)
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
