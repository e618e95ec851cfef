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
	"github.com/signage-server/signage-gateway-pro/pkg/protocol"
)

// ========== Device handlers ==========

// HandleListDevices lists registered devices
func (s *RESTServer) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	devices, total, err := s.store.ListDevices(ctx, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"devices": devices,
		"total":   total,
	})
}

// HandleCreateDevice registers a device
func (s *RESTServer) HandleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IMEI          string `json:"imei" validate:"required,imei"`
		Name          string `json:"name" validate:"required,min=2,max=100"`
		Description   string `json:"description"`
		DeviceType    string `json:"device_type"`
		Communication int    `json:"communication"`
		IsApproved    bool   `json:"is_approved"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	device := &models.Device{
		IMEI:          req.IMEI,
		Name:          req.Name,
		Description:   req.Description,
		DeviceType:    req.DeviceType,
		Communication: protocol.ParseCommunicationType(req.Communication),
		IsApproved:    req.IsApproved,
	}

	if err := s.store.CreateDevice(r.Context(), device); err != nil {
		if err == storage.ErrDuplicateKey {
			s.respondError(w, http.StatusConflict, "device already registered")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusCreated, device)
}

// HandleGetDevice gets a device
func (s *RESTServer) HandleGetDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid device id")
		return
	}

	device, err := s.store.GetDevice(ctx, id)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "device not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, device)
}

// HandleUpdateDevice updates a device
func (s *RESTServer) HandleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid device id")
		return
	}

	var req struct {
		Name        string `json:"name" validate:"required,min=2,max=100"`
		Description string `json:"description"`
		DeviceType  string `json:"device_type"`
		IsDisabled  *bool  `json:"is_disabled,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	device, err := s.store.GetDevice(ctx, id)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "device not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	device.Name = req.Name
	device.Description = req.Description
	device.DeviceType = req.DeviceType
	if req.IsDisabled != nil {
		device.IsDisabled = *req.IsDisabled
	}

	if err := s.store.UpdateDevice(ctx, device); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, device)
}

// HandleDeleteDevice deletes a device
func (s *RESTServer) HandleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid device id")
		return
	}

	if err := s.store.DeleteDevice(ctx, id); err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "device not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleApproveDevice marks a device approved for admission
func (s *RESTServer) HandleApproveDevice(w http.ResponseWriter, r *http.Request) {
	s.setApproval(w, r, true)
}

// HandleRevokeDevice revokes a device's approval
func (s *RESTServer) HandleRevokeDevice(w http.ResponseWriter, r *http.Request) {
	s.setApproval(w, r, false)
}

func (s *RESTServer) setApproval(w http.ResponseWriter, r *http.Request, approved bool) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid device id")
		return
	}

	device, err := s.store.GetDevice(ctx, id)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "device not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.store.SetDeviceApproval(ctx, device.IMEI, approved); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	device.IsApproved = approved

	s.respondJSON(w, http.StatusOK, device)
}

// HandlePushToDevice pushes a frame to a connected device
func (s *RESTServer) HandlePushToDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.gateway == nil {
		s.respondError(w, http.StatusServiceUnavailable, "gateway not attached")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid device id")
		return
	}

	var req struct {
		Type   int      `json:"type"`
		Fields []string `json:"fields"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	device, err := s.store.GetDevice(ctx, id)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "device not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := protocol.ResponseFrame{
		Code:   protocol.ResponseAccept,
		Type:   protocol.ParseMessageType(req.Type),
		Time:   protocol.FormatResponseTime(time.Now()),
		Fields: req.Fields,
	}

	if err := s.gateway.Push(device.IMEI, resp); err != nil {
		s.respondError(w, http.StatusConflict, "device not connected")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"imei": device.IMEI,
		"type": resp.Type.String(),
	})
}
