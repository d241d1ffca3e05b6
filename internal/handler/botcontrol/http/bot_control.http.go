package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/bot-service/internal/config"
	"github.com/krobus00/bot-service/internal/entity"
	"github.com/krobus00/bot-service/internal/eventbus"
	"github.com/sirupsen/logrus"
)

var (
	errAPIKeyMissing  = errors.New("api key is required")
	errAPIKeyInvalid  = errors.New("invalid api key")
	errAPIKeyInactive = errors.New("api key is inactive")
	errAPIKeyExpired  = errors.New("api key is expired")
)

type ControlPublisher interface {
	Publish(ctx context.Context, event entity.BotControlEvent) error
}

type BotLister interface {
	Bots() []entity.BotRecord
}

// BotStatusLister reads the lifecycle statuses persisted by command handlers.
type BotStatusLister interface {
	List(ctx context.Context) ([]entity.BotRecord, error)
}

type OrderQuerier interface {
	QueryOrder(ctx context.Context, uniqID string) (*entity.OrderResult, error)
}

type CommandRequest struct {
	Command entity.Command `json:"command"`
	BotID   *string        `json:"bot_id"`
}

type CommandResponse struct {
	Command string `json:"command"`
	BotID   string `json:"bot_id,omitempty"`
	Status  string `json:"status"`
}

type BotResponse struct {
	BotID        string `json:"bot_id"`
	StrategyName string `json:"strategy_name"`
	Status       string `json:"status"`
}

type BotStatusResponse struct {
	BotID        string `json:"bot_id"`
	StrategyName string `json:"strategy_name"`
	Status       string `json:"status"`
	UpdatedAt    int64  `json:"updated_at"`
}

type OrderResponse struct {
	UniqID        string          `json:"uniq_id"`
	BotID         string          `json:"bot_id"`
	StrategyName  string          `json:"strategy_name"`
	Exchange      string          `json:"exchange"`
	ClientOrderID string          `json:"client_order_id"`
	OrderID       string          `json:"order_id,omitempty"`
	Status        string          `json:"status"`
	Message       string          `json:"message,omitempty"`
	RawResponse   json.RawMessage `json:"raw_response,omitempty"`
	UpdatedAt     int64           `json:"updated_at"`
}

type Handler struct {
	publisher ControlPublisher
	bots      BotLister
	statuses  BotStatusLister
	orders    OrderQuerier
	apiKeys   []config.APIKeyConfig
	now       func() time.Time
}

func NewBotControlHTTPHandler(publisher ControlPublisher, bots BotLister, statuses BotStatusLister, orders OrderQuerier, apiKeys []config.APIKeyConfig) *Handler {
	return &Handler{
		publisher: publisher,
		bots:      bots,
		statuses:  statuses,
		orders:    orders,
		apiKeys:   apiKeys,
		now:       time.Now,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /bot-control/v1/commands", h.authorized(h.SendCommand))
	mux.HandleFunc("GET /bot-control/v1/bots", h.authorized(h.ListBots))
	mux.HandleFunc("GET /bot-control/v1/bot-statuses", h.authorized(h.ListBotStatuses))
	mux.HandleFunc("GET /bot-control/v1/orders/{uniq_id}", h.authorized(h.GetOrder))
}

func (h *Handler) SendCommand(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}

	event := entity.BotControlEvent{Command: req.Command, BotID: req.BotID}
	if err := event.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	if botID := event.TargetBotID(); botID != "" && !h.knownBot(botID) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "bot not found"})
		return
	}

	err := h.publisher.Publish(r.Context(), event)
	switch {
	case errors.Is(err, eventbus.ErrQueueFull):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "control queue is full"})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusAccepted, CommandResponse{
		Command: event.Command.String(),
		BotID:   event.TargetBotID(),
		Status:  "accepted",
	})
}

func (h *Handler) ListBots(w http.ResponseWriter, _ *http.Request) {
	records := h.bots.Bots()
	resp := make([]BotResponse, 0, len(records))
	for _, record := range records {
		resp = append(resp, BotResponse{
			BotID:        record.BotID,
			StrategyName: record.StrategyName,
			Status:       record.Status.String(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"bots": resp})
}

// ListBotStatuses returns what the bot store recorded, which may include bots
// of other processes sharing the database.
func (h *Handler) ListBotStatuses(w http.ResponseWriter, r *http.Request) {
	records, err := h.statuses.List(r.Context())
	if err != nil {
		logrus.WithError(err).Error("failed to list bot statuses")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
		return
	}

	resp := make([]BotStatusResponse, 0, len(records))
	for _, record := range records {
		resp = append(resp, BotStatusResponse{
			BotID:        record.BotID,
			StrategyName: record.StrategyName,
			Status:       record.Status.String(),
			UpdatedAt:    record.UpdatedAt.UnixMilli(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"bots": resp})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	uniqID := strings.TrimSpace(r.PathValue("uniq_id"))
	if uniqID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "uniq_id is required"})
		return
	}

	result, err := h.orders.QueryOrder(r.Context(), uniqID)
	switch {
	case errors.Is(err, entity.ErrOrderResultNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "order result not found"})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, OrderResponse{
		UniqID:        result.UniqID,
		BotID:         result.BotID,
		StrategyName:  result.StrategyName,
		Exchange:      string(result.Exchange),
		ClientOrderID: result.ClientOrderID,
		OrderID:       result.OrderID,
		Status:        result.Status.String(),
		Message:       result.Message,
		RawResponse:   result.RawResponse,
		UpdatedAt:     result.UpdatedAt.UnixMilli(),
	})
}

func (h *Handler) knownBot(botID string) bool {
	for _, record := range h.bots.Bots() {
		if record.BotID == botID {
			return true
		}
	}
	return false
}

func (h *Handler) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := validateAPIKey(h.apiKeys, r.Header.Get("X-API-Key"), h.now().UTC()); err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
			return
		}

		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func validateAPIKey(keys []config.APIKeyConfig, rawAPIKey string, now time.Time) error {
	apiKey := strings.TrimSpace(rawAPIKey)
	if apiKey == "" {
		return errAPIKeyMissing
	}

	for _, candidate := range keys {
		storedKey := strings.TrimSpace(candidate.Key)
		if storedKey == "" {
			continue
		}

		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(storedKey)) != 1 {
			continue
		}

		if !candidate.Active {
			return errAPIKeyInactive
		}

		expiredAt, hasExpiry, err := parseExpiry(candidate.ExpiredAt)
		if err != nil {
			return errAPIKeyInvalid
		}
		if hasExpiry && !now.Before(expiredAt) {
			return errAPIKeyExpired
		}

		return nil
	}

	return errAPIKeyInvalid
}

// parseExpiry accepts RFC3339 or a plain date, which expires at the end of
// that day.
func parseExpiry(value any) (time.Time, bool, error) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false, nil
		}
		return v.UTC(), true, nil
	case string:
		raw := strings.TrimSpace(v)
		if raw == "" {
			return time.Time{}, false, nil
		}

		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			return parsed.UTC(), true, nil
		}

		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return time.Time{}, false, err
		}

		return parsed.UTC().Add(24 * time.Hour), true, nil
	default:
		return time.Time{}, false, errors.New("unsupported expiry type")
	}
}
