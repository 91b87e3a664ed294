// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/evisio/enrolld/internal/enroll"
	"github.com/evisio/enrolld/internal/recog"
	"github.com/go-chi/chi/v5"
)

// controlRoutes mounts the operator endpoints that drive the enrollment
// controller.
func (s *Server) controlRoutes(r chi.Router) {
	r.Post("/api/enroll/start", s.handleEnrollStart)
	r.Post("/api/enroll/capture", s.handleEnrollCapture)
	r.Post("/api/enroll/angle", s.handleEnrollAngle)
	r.Post("/api/enroll/rescan", s.handleEnrollRescan)
	r.Post("/api/enroll/save", s.handleEnrollSave)
	r.Post("/api/enroll/cancel", s.handleEnrollCancel)
	r.Post("/api/enroll/stop", s.handleEnrollStop)
}

type startRequest struct {
	EmployeeID string `json:"employeeId"`
	Name       string `json:"name"`
	CameraID   string `json:"cameraId"`
}

type angleBody struct {
	Angle recog.Angle `json:"angle"`
}

func (s *Server) handleEnrollStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.controller.Start(r.Context(), req.EmployeeID, req.Name, req.CameraID); err != nil {
		code := http.StatusBadGateway
		if errors.Is(err, enroll.ErrValidation) {
			code = http.StatusBadRequest
		} else if errors.Is(err, enroll.ErrBusy) {
			code = http.StatusConflict
		}
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleEnrollCapture(w http.ResponseWriter, r *http.Request) {
	var body angleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.controller.Capture(r.Context(), body.Angle); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleEnrollAngle(w http.ResponseWriter, r *http.Request) {
	var body angleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.controller.ChangeAngle(r.Context(), body.Angle); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleEnrollRescan(w http.ResponseWriter, r *http.Request) {
	var body angleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.controller.RescanAngle(r.Context(), body.Angle); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleEnrollSave(w http.ResponseWriter, r *http.Request) {
	saved, err := s.controller.Save(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"saved_angles": saved,
	})
}

func (s *Server) handleEnrollCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Cancel(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleEnrollStop(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Stop(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
