package models

import "strings"

type SaleStatus string

const (
	SaleStatusPending   SaleStatus = "pending"
	SaleStatusCompleted SaleStatus = "completed"
	SaleStatusCancelled SaleStatus = "cancelled"
	SaleStatusError     SaleStatus = "error"
)

// CanTransitionTo enforces the sale lifecycle:
// pending -> completed -> cancelled (terminal); error reachable from pending.
func (s SaleStatus) CanTransitionTo(next SaleStatus) bool {
	switch s {
	case SaleStatusPending:
		return next == SaleStatusCompleted || next == SaleStatusError || next == SaleStatusCancelled
	case SaleStatusCompleted:
		return next == SaleStatusCancelled
	default:
		return false
	}
}

type MovementType string

const (
	MovementTypeSale          MovementType = "sale"
	MovementTypeReturn        MovementType = "return"
	MovementTypeComplimentary MovementType = "complimentary"
)

// NormalizeMovementType maps the POS movement-type code to the internal catalog.
// Unknown codes are preserved as-is on the item row and logged by the caller;
// they are never rejected and never guessed.
func NormalizeMovementType(code string) (MovementType, bool) {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "", "1", "v", "sale", "venta":
		return MovementTypeSale, true
	case "2", "d", "return", "devolucion":
		return MovementTypeReturn, true
	case "3", "c", "complimentary", "cortesia":
		return MovementTypeComplimentary, true
	default:
		return MovementType(strings.TrimSpace(code)), false
	}
}

type MovementReferenceType string

const (
	MovementReferenceSale         MovementReferenceType = "sale"
	MovementReferenceCancellation MovementReferenceType = "cancellation"
	MovementReferenceManual       MovementReferenceType = "manual"
)

type AlertType string

const (
	AlertTypeOutOfStock  AlertType = "out_of_stock"
	AlertTypeLowStock    AlertType = "low_stock"
	AlertTypeApproaching AlertType = "approaching"
)

type AlertSeverity string

const (
	AlertSeverityCritical AlertSeverity = "critical"
	AlertSeverityWarning  AlertSeverity = "warning"
)

type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

type MappingConfidence string

const (
	MappingConfidenceManual MappingConfidence = "manual"
	MappingConfidenceAuto   MappingConfidence = "auto"
)

type CancellationType string

const (
	CancellationTypeVoid   CancellationType = "void"
	CancellationTypeRefund CancellationType = "refund"
	CancellationTypeOther  CancellationType = "other"
)

func NormalizeCancellationType(code string) CancellationType {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "void", "v":
		return CancellationTypeVoid
	case "refund", "r":
		return CancellationTypeRefund
	default:
		return CancellationTypeOther
	}
}

type SaleOutcomeStatus string

const (
	SaleOutcomeProcessed SaleOutcomeStatus = "processed"
	SaleOutcomeDuplicate SaleOutcomeStatus = "duplicate"
	SaleOutcomeFailed    SaleOutcomeStatus = "failed"
)
