package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/resto_backend/models"
)

func TestClassifyStockLevel(t *testing.T) {
	cases := []struct {
		name     string
		current  string
		minimum  string
		reorder  string
		wantType models.AlertType
		wantSev  models.AlertSeverity
		wantOk   bool
	}{
		{"zero stock", "0", "2", "5", models.AlertTypeOutOfStock, models.AlertSeverityCritical, true},
		{"negative stock", "-1.5", "2", "5", models.AlertTypeOutOfStock, models.AlertSeverityCritical, true},
		{"below minimum", "1.5", "2", "5", models.AlertTypeLowStock, models.AlertSeverityCritical, true},
		{"at minimum", "2", "2", "5", models.AlertTypeLowStock, models.AlertSeverityCritical, true},
		{"below reorder point", "3", "2", "5", models.AlertTypeApproaching, models.AlertSeverityWarning, true},
		{"at reorder point", "5", "2", "5", models.AlertTypeApproaching, models.AlertSeverityWarning, true},
		{"healthy", "6", "2", "5", "", "", false},
		{"no thresholds configured", "1", "0", "0", "", "", false},
		{"no thresholds but empty", "0", "0", "0", models.AlertTypeOutOfStock, models.AlertSeverityCritical, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			alertType, severity, ok := ClassifyStockLevel(d(tc.current), d(tc.minimum), d(tc.reorder))
			if ok != tc.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOk)
			}
			if !ok {
				return
			}
			if alertType != tc.wantType || severity != tc.wantSev {
				t.Fatalf("got %s/%s, want %s/%s", alertType, severity, tc.wantType, tc.wantSev)
			}
		})
	}
}
