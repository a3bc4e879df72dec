package server

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"mindconnect_booking/internal/booking"
	"mindconnect_booking/internal/schedule"
	"mindconnect_booking/internal/validation"
	"mindconnect_booking/pkg/errors"
)

// workingHoursRequest тело запроса на изменение рабочих часов
type workingHoursRequest struct {
	WorkStart    string `json:"work_start"`
	WorkEnd      string `json:"work_end"`
	IntervalMins int    `json:"interval_mins"`
}

func pathID(r *http.Request) (int64, error) {
	return validation.ValidateID(mux.Vars(r)["id"])
}

func (s *Server) handleRegisterCounselor(w http.ResponseWriter, r *http.Request) {
	var in booking.CounselorInput
	if !s.decodeJSON(w, r, &in) {
		return
	}

	c, err := s.bookings.RegisterCounselor(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListCounselors(w http.ResponseWriter, r *http.Request) {
	counselors, err := s.bookings.ListCounselors(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counselors)
}

func (s *Server) handleGetCounselor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	c, err := s.bookings.GetCounselor(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleSetWorkingHours(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req workingHoursRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	c, err := s.bookings.SetWorkingHours(r.Context(), id, req.WorkStart, req.WorkEnd, req.IntervalMins)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleAvailableSlots отдает JSON массив подписей свободных слотов.
// С upcoming=true отбрасываются слоты, которые уже начались.
func (s *Server) handleAvailableSlots(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	date := q.Get("date")

	upcoming := false
	if v := q.Get("upcoming"); v != "" {
		upcoming, err = strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, r, errors.ErrInvalidRequest.WithContext(map[string]interface{}{"upcoming": v}))
			return
		}
	}

	var slots []schedule.Label
	if upcoming {
		slots, err = s.bookings.BookableSlots(r.Context(), id, date, s.now())
	} else {
		slots, err = s.bookings.AvailableSlots(r.Context(), id, date)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func (s *Server) handleCounselorAppointments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	appts, err := s.bookings.CounselorAppointments(r.Context(), id, r.URL.Query().Get("date"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appts)
}

func (s *Server) handleRegisterPatient(w http.ResponseWriter, r *http.Request) {
	var in booking.PatientInput
	if !s.decodeJSON(w, r, &in) {
		return
	}

	p, err := s.bookings.RegisterPatient(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handlePatientAppointments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	appts, err := s.bookings.PatientAppointments(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appts)
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	var req booking.BookingRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	appt, err := s.bookings.Book(r.Context(), req, s.now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	appointmentID := mux.Vars(r)["id"]

	patientID, err := validation.ValidateID(r.URL.Query().Get("patient_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.bookings.Cancel(r.Context(), appointmentID, patientID, s.now()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
