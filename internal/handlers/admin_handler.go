package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/sessionguard/internal/services"
	pkghttp "github.com/BradenHooton/sessionguard/pkg/http"
)

// LockdownStatus reports the system-wide failed-login counter
type LockdownStatus interface {
	IsSystemLocked(ctx context.Context) (bool, int, error)
	Config() services.LedgerConfig
}

// AdminHandler handles administrator-only HTTP requests
type AdminHandler struct {
	ledger LockdownStatus
	logger *slog.Logger
}

func NewAdminHandler(ledger LockdownStatus, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{ledger: ledger, logger: logger}
}

// LockdownResponse describes the system-wide lockdown counter
type LockdownResponse struct {
	Locked        bool   `json:"locked"`
	Attempts      int    `json:"attempts"`
	Threshold     int    `json:"threshold"`
	WindowSeconds int64  `json:"window_seconds"`
	Window        string `json:"window"`
}

// GetLockdown handles GET /admin/lockdown
func (h *AdminHandler) GetLockdown(w http.ResponseWriter, r *http.Request) {
	locked, attempts, err := h.ledger.IsSystemLocked(r.Context())
	if err != nil {
		h.logger.Error("failed to read lockdown status", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to retrieve lockdown status")
		return
	}

	cfg := h.ledger.Config()
	pkghttp.WriteJSON(w, http.StatusOK, LockdownResponse{
		Locked:        locked,
		Attempts:      attempts,
		Threshold:     cfg.SystemThreshold(),
		WindowSeconds: int64(cfg.AttemptsWindow.Seconds()),
		Window:        cfg.AttemptsWindow.String(),
	})
}
