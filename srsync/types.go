package srsync

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/resto_backend/models"
	"bitbucket.org/mmdatafocus/resto_backend/utils"
	"bitbucket.org/mmdatafocus/resto_backend/workflow"
	"github.com/shopspring/decimal"
)

// SaleWebhookRequest is the raw SR push payload. Sales stay as raw JSON here so
// each sale keeps its unknown/extra fields intact for the audit blob; the typed
// view is only extracted field by field.
type SaleWebhookRequest struct {
	CompanyId string            `json:"company_id"`
	Sales     []json.RawMessage `json:"sales"`
}

// wireSale is the loosely-typed SR sale shape. Numeric fields arrive as
// json.Number because some SR versions send them as strings.
type wireSale struct {
	Id        string         `json:"id"`
	Warehouse string         `json:"warehouse"`
	Station   string         `json:"station"`
	Area      string         `json:"area"`
	Table     string         `json:"table"`
	User      string         `json:"user"`
	Customer  string         `json:"customer"`
	Date      string         `json:"date"`
	Total     json.Number    `json:"total"`
	Tip       json.Number    `json:"tip"`
	Items     []wireSaleItem `json:"items"`
	Payments  []wirePayment  `json:"payments"`
}

type wireSaleItem struct {
	Product      string      `json:"product"`
	Description  string      `json:"description"`
	MovementType string      `json:"movement_type"`
	Qty          json.Number `json:"qty"`
	Price        json.Number `json:"price"`
	Subtotal     json.Number `json:"subtotal"`
	Discount     json.Number `json:"discount"`
	Taxes        []wireTax   `json:"taxes"`
}

type wireTax struct {
	Name   string      `json:"name"`
	Rate   json.Number `json:"rate"`
	Amount json.Number `json:"amount"`
}

type wirePayment struct {
	Method string      `json:"method"`
	Amount json.Number `json:"amount"`
	Tip    json.Number `json:"tip"`
}

type CancellationRequest struct {
	CompanyId string `json:"company_id"`
	SaleId    string `json:"sale_id" binding:"required"`
	Type      string `json:"type"`
	Reason    string `json:"reason"`
}

type ConnectRequest struct {
	CompanyId       string `json:"companyId" binding:"required"`
	Secret          string `json:"secret" binding:"required"`
	StoreName       string `json:"storeName"`
	DefaultBranchId *int   `json:"defaultBranchId"`
}

type StatusResponse struct {
	Connection        ConnectionResponse `json:"connection"`
	LastSyncAt        *string            `json:"lastSyncAt"`
	LastSuccessSyncAt *string            `json:"lastSuccessSyncAt"`
}

type ConnectionResponse struct {
	Status    string `json:"status"`
	CompanyId string `json:"companyId"`
	StoreName string `json:"storeName"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

const (
	pubSubKindIngest   = "ingest"
	pubSubKindBackfill = "backfill"
)

type SalePubSubPayload struct {
	Kind          string          `json:"kind"`
	BusinessId    string          `json:"business_id"`
	ConnectionId  uint            `json:"connection_id"`
	CorrelationId string          `json:"correlation_id"`
	Body          json.RawMessage `json:"body,omitempty"`
}

// CursorState tracks backfill progress on the connection.
type CursorState struct {
	Cursor       string `json:"cursor"`
	UpdatedSince string `json:"updated_since"`
}

func DecodeCursorState(raw []byte) CursorState {
	if len(raw) == 0 {
		return CursorState{}
	}
	var state CursorState
	if err := json.Unmarshal(raw, &state); err != nil {
		return CursorState{}
	}
	return state
}

func EncodeCursorState(state CursorState) []byte {
	b, _ := json.Marshal(state)
	return b
}

var saleDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseSaleDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range saleDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("unrecognized date format: " + value)
}

func dec(n json.Number) decimal.Decimal {
	if n == "" {
		return decimal.Zero
	}
	d, err := utils.ParseDecimal(n.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

// DecodeSaleBatch converts the loosely-typed SR payload into the strict
// ingestion input. Field-level problems (bad date, bad numbers) stay attached
// to the one sale via its validation step; the original raw JSON rides along
// for audit.
func DecodeSaleBatch(req *SaleWebhookRequest, correlationId string) *workflow.SaleBatch {
	batch := &workflow.SaleBatch{
		SourceCompanyId: strings.TrimSpace(req.CompanyId),
		CorrelationId:   correlationId,
	}
	for _, raw := range req.Sales {
		var ws wireSale
		if err := json.Unmarshal(raw, &ws); err != nil {
			// Undecodable element: keep a placeholder so the outcome list
			// lines up and the failure is reported, not dropped.
			batch.Sales = append(batch.Sales, workflow.SaleInput{Raw: raw})
			continue
		}
		batch.Sales = append(batch.Sales, decodeWireSale(&ws, raw))
	}
	return batch
}

func decodeWireSale(ws *wireSale, raw json.RawMessage) workflow.SaleInput {
	saleDate, _ := parseSaleDate(ws.Date)
	sale := workflow.SaleInput{
		ExternalId:    strings.TrimSpace(ws.Id),
		WarehouseCode: strings.TrimSpace(ws.Warehouse),
		StationCode:   ws.Station,
		AreaCode:      ws.Area,
		TableCode:     ws.Table,
		UserCode:      ws.User,
		CustomerCode:  ws.Customer,
		SaleDate:      saleDate,
		Total:         dec(ws.Total),
		Tip:           dec(ws.Tip),
		Raw:           raw,
	}
	for _, item := range ws.Items {
		taxTotal := decimal.Zero
		taxes := make([]models.TaxLine, 0, len(item.Taxes))
		for _, tax := range item.Taxes {
			amount := dec(tax.Amount)
			taxTotal = taxTotal.Add(amount)
			taxes = append(taxes, models.TaxLine{
				Name:   tax.Name,
				Rate:   dec(tax.Rate),
				Amount: amount,
			})
		}
		subtotal := dec(item.Subtotal)
		discount := dec(item.Discount)
		sale.Items = append(sale.Items, workflow.SaleItemInput{
			ProductExternalId: strings.TrimSpace(item.Product),
			Description:       item.Description,
			MovementTypeCode:  item.MovementType,
			Qty:               dec(item.Qty),
			UnitPrice:         dec(item.Price),
			Subtotal:          subtotal,
			Discount:          discount,
			Taxes:             taxes,
			TaxTotal:          taxTotal,
			LineTotal:         subtotal.Sub(discount).Add(taxTotal),
		})
	}
	for _, payment := range ws.Payments {
		sale.Payments = append(sale.Payments, workflow.SalePaymentInput{
			MethodName: strings.TrimSpace(payment.Method),
			Amount:     dec(payment.Amount),
			Tip:        dec(payment.Tip),
		})
	}
	return sale
}
