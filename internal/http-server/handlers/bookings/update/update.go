package update

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"facility-service/api"
	"facility-service/pkg/response"
	"facility-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	chi5 "github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type BookingUpdater interface {
	UpdateBooking(ctx context.Context, bookingID string, req *api.BookingUpdateRequest) (*api.BookingResult, error)
}

type Request struct {
	api.BookingUpdateRequest
}

type Response struct {
	response.Response
	Result *api.BookingResult `json:"result,omitempty"`
}

func New(log *slog.Logger, updater BookingUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.bookings.update.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		bookingID := chi5.URLParam(r, "id")
		if bookingID == "" {
			log.Error("Booking id is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "booking id is required"))
			return
		}

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "failed to decode request"))
			return
		}

		result, err := updater.UpdateBooking(r.Context(), bookingID, &req.BookingUpdateRequest)

		if errors.Is(err, response.ErrValidation) {
			log.Error("Validation failed", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), err.Error()))
			return
		}

		if errors.Is(err, response.ErrTerminalState) {
			log.Error("Booking already terminal")
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error(string(response.TERMINAL_STATE), "booking is in a terminal state"))
			return
		}

		if errors.Is(err, response.ErrLocked) {
			log.Error("Resource is locked")
			w.WriteHeader(http.StatusLocked)
			render.JSON(w, r, response.Error(string(response.LOCKED), "resource is locked"))
			return
		}

		if errors.Is(err, response.ErrNotFound) {
			log.Error("Booking not found")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "booking not found"))
			return
		}

		if err != nil {
			log.Error("Failed to update booking", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to update booking"))
			return
		}

		if result.Denied {
			log.Info("Booking update denied", slog.Int("suggestions", len(result.Suggestions)))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, Response{Result: result})
			return
		}

		log.Info("Booking updated", slog.Any("booking", result.Booking))

		render.JSON(w, r, Response{Result: result})
	}
}
