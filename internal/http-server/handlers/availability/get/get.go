package get

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"facility-service/api"
	"facility-service/pkg/response"
	"facility-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, resourceID string, start, end time.Time, excludeBookingID *string) (*api.AvailabilityResponse, error)
}

type Response struct {
	response.Response
	Availability *api.AvailabilityResponse `json:"availability,omitempty"`
}

func New(log *slog.Logger, checker AvailabilityChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.availability.get.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		resourceID := r.URL.Query().Get("resource_id")
		if resourceID == "" {
			log.Error("resource_id is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "resource_id is required"))
			return
		}

		start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
		if err != nil {
			log.Error("Invalid start", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "invalid start"))
			return
		}

		end, err := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
		if err != nil {
			log.Error("Invalid end", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "invalid end"))
			return
		}

		var excludePtr *string
		if exclude := r.URL.Query().Get("exclude_booking_id"); exclude != "" {
			excludePtr = &exclude
		}

		availability, err := checker.CheckAvailability(r.Context(), resourceID, start, end, excludePtr)

		if errors.Is(err, response.ErrValidation) {
			log.Error("Validation failed", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), err.Error()))
			return
		}

		if errors.Is(err, response.ErrNotFound) {
			log.Error("Resource not found")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "resource not found"))
			return
		}

		if err != nil {
			log.Error("Failed to check availability", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to check availability"))
			return
		}

		log.Info("Availability checked",
			slog.String("resource_id", resourceID),
			slog.Bool("available", availability.Available),
		)

		render.JSON(w, r, Response{Availability: availability})
	}
}
