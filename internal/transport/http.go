package transport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prudhvinik1/caresync/internal/models"
	"github.com/prudhvinik1/caresync/internal/services"
)

// maxMessageBytes fits the largest batch (1 + 255*5 bytes) plus envelope
// overhead with room to spare.
const maxMessageBytes = 8 << 10

// PresenceReader looks up whether a device has been heard from recently.
type PresenceReader interface {
	GetPresence(ctx context.Context, deviceID uuid.UUID) (*models.Presence, error)
}

type Handler struct {
	dispatcher    *services.Dispatcher
	tokens        *services.TokenService
	presence      PresenceReader
	configPageURL string
	logger        *slog.Logger
}

// NewHandler builds the HTTP surface. tokens nil disables device
// authentication; presence nil disables the presence endpoint.
func NewHandler(dispatcher *services.Dispatcher, tokens *services.TokenService, presence PresenceReader, configPageURL string, logger *slog.Logger) *Handler {
	return &Handler{
		dispatcher:    dispatcher,
		tokens:        tokens,
		presence:      presence,
		configPageURL: configPageURL,
		logger:        logger,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	// Health check endpoints
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Everything but health needs the paired device's token when tokens are
	// configured; /config/closed can start a wipe.
	router.Group(func(r chi.Router) {
		r.Use(h.requireDevice)
		r.Post("/messages", h.receiveMessage)
		r.Get("/config", h.showConfiguration)
		r.Post("/config/closed", h.configurationClosed)
		r.Get("/events", h.listEvents)

		if h.presence != nil {
			r.Get("/devices/{deviceID}/presence", h.devicePresence)
		}
	})

	return router
}

type deviceIDKey struct{}

// requireDevice checks the bearer token and stores the device ID in the
// request context.
func (h *Handler) requireDevice(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.tokens == nil {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			http.Error(w, "missing device token", http.StatusUnauthorized)
			return
		}

		claims, err := h.tokens.VerifyToken(token)
		if err != nil {
			http.Error(w, "invalid device token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), deviceIDKey{}, claims.DeviceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func deviceIDFrom(ctx context.Context) uuid.UUID {
	deviceID, _ := ctx.Value(deviceIDKey{}).(uuid.UUID)
	return deviceID
}

func (h *Handler) receiveMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		http.Error(w, "message too large", http.StatusRequestEntityTooLarge)
		return
	}

	err = h.dispatcher.HandleMessage(r.Context(), deviceIDFrom(r.Context()), body)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case services.IsMalformed(err):
		http.Error(w, "malformed message", http.StatusBadRequest)
	default:
		h.logger.Error("failed to handle device message", "error", err)
		http.Error(w, "message not stored, retry later", http.StatusServiceUnavailable)
	}
}

// showConfiguration sends the browser to the configuration page with the
// full event log in the URL fragment.
func (h *Handler) showConfiguration(w http.ResponseWriter, r *http.Request) {
	fragment, err := h.dispatcher.ConfigFragment()
	if err != nil {
		h.logger.Error("failed to render configuration fragment", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	target := h.configPageURL + "#" + url.PathEscape(fragment)
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) configurationClosed(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		http.Error(w, "response too large", http.StatusRequestEntityTooLarge)
		return
	}

	started := h.dispatcher.HandleConfigClosed(r.Context(), strings.TrimSpace(string(body)))
	writeJSON(w, http.StatusOK, map[string]bool{"reset_started": started})
}

type eventsResponse struct {
	Events map[string][]uint32 `json:"events"`
	Latest map[string]uint32   `json:"latest"`
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	response := eventsResponse{
		Events: make(map[string][]uint32),
		Latest: make(map[string]uint32),
	}
	for eventType, timestamps := range h.dispatcher.Export() {
		response.Events[eventType.String()] = timestamps
	}
	for eventType, timestamp := range h.dispatcher.Latest() {
		response.Latest[eventType.String()] = timestamp
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) devicePresence(w http.ResponseWriter, r *http.Request) {
	deviceID, err := uuid.Parse(chi.URLParam(r, "deviceID"))
	if err != nil {
		http.Error(w, "invalid device ID", http.StatusBadRequest)
		return
	}

	presence, err := h.presence.GetPresence(r.Context(), deviceID)
	if err != nil {
		h.logger.Error("failed to get presence", "device_id", deviceID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, presence)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
