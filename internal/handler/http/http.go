package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jgivc/downloadr/internal/adapter/tpladapter"
	"github.com/jgivc/downloadr/internal/common"
	"github.com/jgivc/downloadr/internal/entity"
)

const (
	maxBodySize = 1 << 20

	reportTitle   = "downloadr"
	reportRefresh = 2
)

type QueueService interface {
	AddRange(ctx context.Context, urls []string, dir string) ([]*entity.Item, error)
	List(ctx context.Context) ([]*entity.Item, error)
	ClearCompleted(ctx context.Context) (int, error)
	Delete(ctx context.Context, id string) error
}

type ConcurrencyService interface {
	GetDesiredConcurrency() int
	SetDesiredConcurrency(ctx context.Context, n int) error
}

type Reporter interface {
	HTML(items []*entity.Item, desiredConcurrency int) ([]byte, error)
}

type PageRenderer interface {
	Render(page *tpladapter.Page) ([]byte, error)
}

type ItemAction func(ctx context.Context, id string) error

type BulkAction func(ctx context.Context) error

type itemView struct {
	*entity.Item
	CompletionPercent *float64 `json:"completion_percent,omitempty"`
	ETASeconds        *float64 `json:"eta_seconds,omitempty"`
}

func newItemView(item *entity.Item) itemView {
	v := itemView{Item: item}

	if item.TotalBytes != nil && *item.TotalBytes > 0 {
		pct := item.CompletionFraction() * 100
		v.CompletionPercent = &pct
	}

	if d, ok := item.EstimatedTimeRemaining(); ok {
		secs := d.Seconds()
		v.ETASeconds = &secs
	}

	return v
}

type addRequest struct {
	URLs        []string `json:"urls"`
	Destination string   `json:"destination"`
}

type concurrencyBody struct {
	Value int `json:"value"`
}

func NewListHandler(srv QueueService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ListHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		items, err := srv.List(r.Context())
		if err != nil {
			log.Error("Cannot list items", slog.Any("error", err))
			http.Error(w, "Cannot list items", http.StatusInternalServerError)

			return
		}

		views := make([]itemView, 0, len(items))
		for _, item := range items {
			views = append(views, newItemView(item))
		}

		writeJSON(w, http.StatusOK, views, log)
	}
}

// NewAddHandler queues the posted URLs. An empty destination means defaultDir.
func NewAddHandler(srv QueueService, defaultDir string, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "AddHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		var req addRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		dir := req.Destination
		if dir == "" {
			dir = defaultDir
		}

		items, err := srv.AddRange(r.Context(), req.URLs, dir)
		if err != nil {
			writeError(w, err, log)

			return
		}

		views := make([]itemView, 0, len(items))
		for _, item := range items {
			views = append(views, newItemView(item))
		}

		writeJSON(w, http.StatusCreated, views, log)
	}
}

func NewDeleteHandler(srv QueueService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "DeleteHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		if err := srv.Delete(r.Context(), id); err != nil {
			writeError(w, err, log)

			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func NewClearCompletedHandler(srv QueueService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ClearCompletedHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		n, err := srv.ClearCompleted(r.Context())
		if err != nil {
			writeError(w, err, log)

			return
		}

		writeJSON(w, http.StatusOK, map[string]int{"deleted": n}, log)
	}
}

// NewItemActionHandler applies action to the item named in the path.
func NewItemActionHandler(name string, action ItemAction, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", name))

	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		if err := action(r.Context(), id); err != nil {
			writeError(w, err, log)

			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func NewBulkActionHandler(name string, action BulkAction, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", name))

	return func(w http.ResponseWriter, r *http.Request) {
		if err := action(r.Context()); err != nil {
			writeError(w, err, log)

			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func NewGetConcurrencyHandler(srv ConcurrencyService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "GetConcurrencyHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, concurrencyBody{Value: srv.GetDesiredConcurrency()}, log)
	}
}

func NewSetConcurrencyHandler(srv ConcurrencyService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "SetConcurrencyHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		var body concurrencyBody
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&body); err != nil || body.Value < 1 {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		if err := srv.SetDesiredConcurrency(r.Context(), body.Value); err != nil {
			writeError(w, err, log)

			return
		}

		log.Info("Concurrency changed", slog.Int("value", body.Value))
		writeJSON(w, http.StatusOK, concurrencyBody{Value: srv.GetDesiredConcurrency()}, log)
	}
}

// NewTopHandler serves the status report as a self-refreshing HTML page.
func NewTopHandler(srv QueueService, cs ConcurrencyService, rep Reporter, page PageRenderer, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "TopHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		items, err := srv.List(r.Context())
		if err != nil {
			log.Error("Cannot list items", slog.Any("error", err))
			http.Error(w, "Cannot list items", http.StatusInternalServerError)

			return
		}

		body, err := rep.HTML(items, cs.GetDesiredConcurrency())
		if err != nil {
			log.Error("Cannot render report", slog.Any("error", err))
			http.Error(w, "Cannot render report", http.StatusInternalServerError)

			return
		}

		out, err := page.Render(&tpladapter.Page{
			Title:   reportTitle,
			Refresh: reportRefresh,
			Body:    template.HTML(body),
		})
		if err != nil {
			log.Error("Cannot render page", slog.Any("error", err))
			http.Error(w, "Cannot render report", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(out)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)

		return "", false
	}

	return id, true
}

func writeError(w http.ResponseWriter, err error, log *slog.Logger) {
	switch {
	case errors.Is(err, common.ErrItemNotFound):
		http.Error(w, "Item not found", http.StatusNotFound)
	case errors.Is(err, common.ErrInvalidURL), errors.Is(err, common.ErrNoURLs):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Error("Request failed", slog.Any("error", err))
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Cannot encode response", slog.Any("error", err))
	}
}
