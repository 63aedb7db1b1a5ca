package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/riskline/internal/apperrors"
	"github.com/good-yellow-bee/riskline/internal/models"
	"github.com/good-yellow-bee/riskline/internal/storage"
)

const (
	defaultNotificationLimit = 100
	maxNotificationLimit     = 1000
)

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	names := s.jobs.Names()
	respond(w, http.StatusOK, listBody{Items: names, Count: len(names)})
}

// runJob executes a job synchronously and answers with its report. The run is
// detached from the request so a dropped client does not abort it halfway.
func (s *Server) runJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	snap, err := s.jobs.Run(context.WithoutCancel(r.Context()), name, force)
	switch {
	case errors.Is(err, apperrors.ErrUnknownRule):
		fail(w, http.StatusNotFound, CodeNotFound, "unknown job: "+name)
		return
	case err != nil:
		s.log.Error("job run failed", slog.String("job", name), slog.Any("error", err))
		fail(w, http.StatusInternalServerError, CodeJobFailed, err.Error())
		return
	}
	respond(w, http.StatusOK, snap)
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.NotificationFilter{
		TenantID:       q.Get("tenant"),
		RecipientEmail: q.Get("recipient"),
		ProjectID:      q.Get("project"),
		Limit:          defaultNotificationLimit,
	}
	if filter.TenantID == "" && filter.RecipientEmail == "" {
		fail(w, http.StatusBadRequest, CodeBadRequest, "tenant or recipient is required")
		return
	}
	for _, st := range q["status"] {
		filter.Statuses = append(filter.Statuses, models.NotificationStatus(st))
	}
	for _, typ := range q["type"] {
		filter.Types = append(filter.Types, models.NotificationType(typ))
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxNotificationLimit {
			fail(w, http.StatusBadRequest, CodeBadRequest, "limit must be between 1 and 1000")
			return
		}
		filter.Limit = uint64(n)
	}

	list, err := s.storage.Notifications().Find(r.Context(), filter)
	if err != nil {
		s.log.Error("list notifications", slog.Any("error", err))
		internalError(w)
		return
	}
	if list == nil {
		list = []*models.Notification{}
	}
	respond(w, http.StatusOK, listBody{Items: list, Count: len(list)})
}

func (s *Server) acknowledgeNotification(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "acknowledge", s.storage.Notifications().Acknowledge)
}

func (s *Server) resolveNotification(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "resolve", s.storage.Notifications().Resolve)
}

type transitionFunc func(ctx context.Context, id string, at time.Time) error

func (s *Server) transition(w http.ResponseWriter, r *http.Request, op string, fn transitionFunc) {
	id := chi.URLParam(r, "id")
	if err := fn(r.Context(), id, s.config.Now()); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			fail(w, http.StatusNotFound, CodeNotFound, "notification not found")
			return
		}
		s.log.Error(op+" notification", slog.String("id", id), slog.Any("error", err))
		internalError(w)
		return
	}

	n, err := s.storage.Notifications().GetByID(r.Context(), id)
	if err != nil {
		s.log.Error("reload notification", slog.String("id", id), slog.Any("error", err))
		internalError(w)
		return
	}
	respond(w, http.StatusOK, n)
}
