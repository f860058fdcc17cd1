package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/goran-ethernal/ChainRuntime/internal/logger"
	"github.com/goran-ethernal/ChainRuntime/pkg/feed"
	"github.com/goran-ethernal/ChainRuntime/pkg/store"
	"github.com/goran-ethernal/ChainRuntime/pkg/subscription"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// StateProvider exposes the processing state served by the API.
type StateProvider interface {
	Snapshot() *store.Snapshot
	Cursors() map[uint64]feed.Position
	Halted(chainID uint64) error
}

// SubscriptionProvider exposes the active subscriptions.
type SubscriptionProvider interface {
	Chains() []uint64
	Subscriptions(chainID uint64) []subscription.Subscription
	DynamicContracts(chainID uint64) []subscription.DynamicContract
}

// Handler handles HTTP requests for the API.
type Handler struct {
	state StateProvider
	subs  SubscriptionProvider
	log   *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(state StateProvider, subs SubscriptionProvider, log *logger.Logger) *Handler {
	return &Handler{
		state: state,
		subs:  subs,
		log:   log,
	}
}

// Health reports the status of every chain.
// @Summary Health check
// @Description Overall status and per-chain cursors. The status is "degraded" when a chain halted.
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse "Health status"
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	chains := h.chainStatuses()

	status := "ok"
	for _, c := range chains {
		if c.Halted {
			status = "degraded"
			break
		}
	}

	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Version:   h.state.Snapshot().Version(),
		Chains:    chains,
	})
}

// ListChains returns the processing state of every chain.
// @Summary List chains
// @Description Cursor, halt reason and subscription counts per chain
// @Tags Chains
// @Produce json
// @Success 200 {array} ChainStatus "Chain statuses"
// @Router /chains [get]
func (h *Handler) ListChains(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.chainStatuses())
}

func (h *Handler) chainStatuses() []ChainStatus {
	cursors := h.state.Cursors()

	ids := h.subs.Chains()
	for id := range cursors {
		if !containsChain(ids, id) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]ChainStatus, 0, len(ids))
	for _, id := range ids {
		status := ChainStatus{
			ChainID:          id,
			Subscriptions:    len(h.subs.Subscriptions(id)),
			DynamicContracts: len(h.subs.DynamicContracts(id)),
		}
		if pos, ok := cursors[id]; ok {
			status.Cursor = &pos
			status.LastBlock = pos.Block
		}
		if err := h.state.Halted(id); err != nil {
			status.Halted = true
			status.Error = err.Error()
		}
		out = append(out, status)
	}

	return out
}

func containsChain(ids []uint64, id uint64) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

// ListEntityTypes returns the entity types of the current snapshot.
// @Summary List entity types
// @Description Entity types holding at least one record, with record counts
// @Tags Entities
// @Produce json
// @Success 200 {object} EntityTypesResponse "Entity types"
// @Router /entities [get]
func (h *Handler) ListEntityTypes(w http.ResponseWriter, r *http.Request) {
	snap := h.state.Snapshot()

	types := snap.Types()
	infos := make([]EntityTypeInfo, 0, len(types))
	for _, t := range types {
		infos = append(infos, EntityTypeInfo{
			Type:     t,
			Count:    snap.Count(t),
			Endpoint: fmt.Sprintf("/api/v1/entities/%s", t),
		})
	}

	respondJSON(w, http.StatusOK, EntityTypesResponse{Version: snap.Version(), Types: infos})
}

// GetEntities returns a page of records of one entity type ordered by id.
// @Summary List records of an entity type
// @Tags Entities
// @Produce json
// @Param type path string true "Entity type"
// @Param limit query int false "Maximum number of records to return" default(100)
// @Param offset query int false "Number of records to skip" default(0)
// @Success 200 {object} EntityResponse "Records with pagination info"
// @Failure 400 {object} ErrorResponse "Invalid parameters"
// @Failure 404 {object} ErrorResponse "Entity type not found"
// @Router /entities/{type} [get]
func (h *Handler) GetEntities(w http.ResponseWriter, r *http.Request) {
	entityType := r.PathValue("type")
	if entityType == "" {
		respondError(w, http.StatusBadRequest, "entity type is required")
		return
	}

	limit, offset, err := parsePagination(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid query parameters: %v", err))
		return
	}

	snap := h.state.Snapshot()
	all := snap.All(entityType)
	if len(all) == 0 {
		respondError(w, http.StatusNotFound, fmt.Sprintf("entity type '%s' not found", entityType))
		return
	}

	start := min(offset, len(all))
	end := min(start+limit, len(all))

	respondJSON(w, http.StatusOK, EntityResponse{
		Type:    entityType,
		Version: snap.Version(),
		Records: all[start:end],
		Pagination: PaginationResult{
			Total:   len(all),
			Limit:   limit,
			Offset:  offset,
			HasMore: end < len(all),
		},
	})
}

// GetEntity returns a single record.
// @Summary Get a record
// @Tags Entities
// @Produce json
// @Param type path string true "Entity type"
// @Param id path string true "Record id"
// @Success 200 {object} store.Record "Record"
// @Failure 404 {object} ErrorResponse "Record not found"
// @Router /entities/{type}/{id} [get]
func (h *Handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	entityType, id := r.PathValue("type"), r.PathValue("id")

	rec, ok := h.state.Snapshot().Get(entityType, id)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("%s '%s' not found", entityType, id))
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

// ListSubscriptions returns the subscriptions of a chain.
// @Summary List subscriptions
// @Description Static subscriptions, templates and dynamically registered contracts of a chain
// @Tags Subscriptions
// @Produce json
// @Param chain_id query integer true "Chain id"
// @Success 200 {object} SubscriptionsResponse "Subscriptions"
// @Failure 400 {object} ErrorResponse "Invalid chain id"
// @Failure 404 {object} ErrorResponse "Chain not found"
// @Router /subscriptions [get]
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("chain_id")
	if raw == "" {
		respondError(w, http.StatusBadRequest, "chain_id is required")
		return
	}

	chainID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid chain_id")
		return
	}

	if !containsChain(h.subs.Chains(), chainID) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("chain %d not found", chainID))
		return
	}

	respondJSON(w, http.StatusOK, SubscriptionsResponse{
		ChainID:          chainID,
		Subscriptions:    h.subs.Subscriptions(chainID),
		DynamicContracts: h.subs.DynamicContracts(chainID),
	})
}

// parsePagination parses the limit and offset query parameters.
func parsePagination(r *http.Request) (limit, offset int, err error) {
	limit = defaultLimit

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > maxLimit {
			return 0, 0, fmt.Errorf("invalid limit: must be between 1 and %d", maxLimit)
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid offset: must be non-negative")
		}
	}

	return limit, offset, nil
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")

	// Encode first so an encoding error can still change the status.
	encoded, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	_, _ = w.Write(encoded)
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}
