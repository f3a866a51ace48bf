package get

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

type BookingGetter interface {
	GetBooking(ctx context.Context, id string) (*api.BookingResponse, error)
}

type Response struct {
	response.Response
	Booking *api.BookingResponse `json:"booking,omitempty"`
}

func New(log *slog.Logger, getter BookingGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.bookings.get.New"

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

		booking, err := getter.GetBooking(r.Context(), bookingID)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("Booking not found")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "booking not found"))
			return
		}

		if err != nil {
			log.Error("Failed to get booking", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to get booking"))
			return
		}

		render.JSON(w, r, Response{Booking: booking})
	}
}
