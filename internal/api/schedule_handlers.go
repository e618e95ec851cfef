package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/signage-server/signage-gateway-pro/internal/models"
	"github.com/signage-server/signage-gateway-pro/internal/storage"
)

// ========== Schedule rule handlers ==========

type scheduleRuleRequest struct {
	DeviceID      string    `json:"device_id" validate:"required"`
	StartDateTime time.Time `json:"start_date_time" validate:"required"`
	EndDateTime   time.Time `json:"end_date_time" validate:"required"`
	IsRecurring   bool      `json:"is_recurring"`
	RecurringDays []int     `json:"recurring_days"`
	Priority      int       `json:"priority"`
	ContentKind   string    `json:"content_kind" validate:"required"`
	ContentID     string    `json:"content_id" validate:"required"`
}

// validateRule checks the parts the struct tags cannot express
func (s *RESTServer) validateRule(req *scheduleRuleRequest) string {
	if !req.EndDateTime.After(req.StartDateTime) {
		return "end_date_time must be after start_date_time"
	}
	if req.Priority < int(models.PriorityLow) || req.Priority > int(models.PriorityHigh) {
		return "priority must be 0 (low), 1 (medium) or 2 (high)"
	}
	for _, d := range req.RecurringDays {
		if d < 1 || d > 7 {
			return "recurring_days entries must be 1 (Monday) to 7 (Sunday)"
		}
	}
	switch models.ContentKind(req.ContentKind) {
	case models.ContentFullScreen, models.ContentScrollingScreen, models.ContentBitmapScreen:
	default:
		return "unknown content_kind"
	}
	return ""
}

// HandleListScheduleRules lists schedule rules, optionally filtered by device
func (s *RESTServer) HandleListScheduleRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	var deviceID *uuid.UUID
	if raw := r.URL.Query().Get("device_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid device_id")
			return
		}
		deviceID = &id
	}

	rules, total, err := s.store.ListScheduleRules(ctx, deviceID, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"total": total,
	})
}

// HandleCreateScheduleRule creates a schedule rule
func (s *RESTServer) HandleCreateScheduleRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req scheduleRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := s.validateRule(&req); msg != "" {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	deviceID, err := uuid.Parse(req.DeviceID)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid device_id")
		return
	}
	contentID, err := uuid.Parse(req.ContentID)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid content_id")
		return
	}

	// 设备必须已注册
	if _, err := s.store.GetDevice(ctx, deviceID); err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "device not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	rule := &models.ScheduleRule{
		DeviceID:      deviceID,
		StartDateTime: req.StartDateTime,
		EndDateTime:   req.EndDateTime,
		IsRecurring:   req.IsRecurring,
		RecurringDays: req.RecurringDays,
		Priority:      models.RulePriority(req.Priority),
		Content: models.ContentReference{
			Kind: models.ContentKind(req.ContentKind),
			ID:   contentID,
		},
	}

	if err := s.store.CreateScheduleRule(ctx, rule); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.invalidateRules(r, rule.DeviceID)
	s.respondJSON(w, http.StatusCreated, rule)
}

// HandleGetScheduleRule gets a schedule rule
func (s *RESTServer) HandleGetScheduleRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid rule id")
		return
	}

	rule, err := s.store.GetScheduleRule(ctx, id)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "rule not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, rule)
}

// HandleUpdateScheduleRule updates a schedule rule
func (s *RESTServer) HandleUpdateScheduleRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid rule id")
		return
	}

	var req scheduleRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := s.validateRule(&req); msg != "" {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	contentID, err := uuid.Parse(req.ContentID)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid content_id")
		return
	}

	rule, err := s.store.GetScheduleRule(ctx, id)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "rule not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// 规则不可移到别的设备上，device_id 字段忽略
	rule.StartDateTime = req.StartDateTime
	rule.EndDateTime = req.EndDateTime
	rule.IsRecurring = req.IsRecurring
	rule.RecurringDays = req.RecurringDays
	rule.Priority = models.RulePriority(req.Priority)
	rule.Content = models.ContentReference{
		Kind: models.ContentKind(req.ContentKind),
		ID:   contentID,
	}

	if err := s.store.UpdateScheduleRule(ctx, rule); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.invalidateRules(r, rule.DeviceID)
	s.respondJSON(w, http.StatusOK, rule)
}

// HandleDeleteScheduleRule deletes a schedule rule
func (s *RESTServer) HandleDeleteScheduleRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid rule id")
		return
	}

	rule, err := s.store.GetScheduleRule(ctx, id)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "rule not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.store.DeleteScheduleRule(ctx, id); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.invalidateRules(r, rule.DeviceID)
	w.WriteHeader(http.StatusNoContent)
}

// invalidateRules drops the cached rule set so the gateway sees the change
func (s *RESTServer) invalidateRules(r *http.Request, deviceID uuid.UUID) {
	if s.ruleCache != nil {
		s.ruleCache.Invalidate(r.Context(), deviceID)
	}
}
