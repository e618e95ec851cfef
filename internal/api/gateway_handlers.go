package api

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/signage-server/signage-gateway-pro/internal/models"
	"github.com/signage-server/signage-gateway-pro/internal/storage"
)

// ========== Gateway handlers ==========

// HandleGatewayStatistics returns the live gateway counters
func (s *RESTServer) HandleGatewayStatistics(w http.ResponseWriter, r *http.Request) {
	if s.gateway == nil {
		s.respondError(w, http.StatusServiceUnavailable, "gateway not attached")
		return
	}

	s.respondJSON(w, http.StatusOK, s.gateway.Statistics())
}

// HandleGatewayConnections lists IMEIs of currently connected devices
func (s *RESTServer) HandleGatewayConnections(w http.ResponseWriter, r *http.Request) {
	if s.gateway == nil {
		s.respondError(w, http.StatusServiceUnavailable, "gateway not attached")
		return
	}

	imeis := s.gateway.ConnectedIMEIs()
	sort.Strings(imeis)

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"running":     s.gateway.IsRunning(),
		"connections": imeis,
		"total":       len(imeis),
	})
}

// ========== Event handlers ==========

// HandleListEvents lists event logs
func (s *RESTServer) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 50
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	filters := storage.EventLogFilters{
		IMEI: r.URL.Query().Get("imei"),
	}

	if raw := r.URL.Query().Get("device_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid device_id")
			return
		}
		filters.DeviceID = &id
	}
	if raw := r.URL.Query().Get("type"); raw != "" {
		t := models.EventType(raw)
		filters.Type = &t
	}
	if raw := r.URL.Query().Get("level"); raw != "" {
		l := models.EventLevel(raw)
		filters.Level = &l
	}
	if raw := r.URL.Query().Get("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid start time")
			return
		}
		filters.StartTime = &t
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid end time")
			return
		}
		filters.EndTime = &t
	}

	events, total, err := s.store.ListEventLogs(ctx, filters, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  total,
	})
}
