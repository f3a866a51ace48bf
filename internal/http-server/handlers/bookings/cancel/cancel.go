package cancel

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
	"github.com/go-playground/validator/v10"
)

type BookingCanceller interface {
	CancelBooking(ctx context.Context, bookingID, actorID, reason string) (*api.BookingResponse, error)
}

type Request struct {
	api.CancelRequest
}

type Response struct {
	response.Response
	Booking *api.BookingResponse `json:"booking,omitempty"`
}

func New(log *slog.Logger, canceller BookingCanceller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.bookings.cancel.New"

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

		if err := validator.New().Struct(req.CancelRequest); err != nil {
			var validateErrs validator.ValidationErrors
			if errors.As(err, &validateErrs) {
				log.Error("Invalid request", sl.Err(err))
				w.WriteHeader(http.StatusBadRequest)
				render.JSON(w, r, response.ValidationError(validateErrs))
				return
			}
		}

		booking, err := canceller.CancelBooking(r.Context(), bookingID, req.ActorID, req.Reason)

		if errors.Is(err, response.ErrTerminalState) {
			log.Error("Booking already terminal")
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error(string(response.TERMINAL_STATE), "booking is in a terminal state"))
			return
		}

		if errors.Is(err, response.ErrNotFound) {
			log.Error("Booking not found")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "booking not found"))
			return
		}

		if err != nil {
			log.Error("Failed to cancel booking", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to cancel booking"))
			return
		}

		log.Info("Booking cancelled", slog.String("booking_id", bookingID))

		render.JSON(w, r, Response{Booking: booking})
	}
}
