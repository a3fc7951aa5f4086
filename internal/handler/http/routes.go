package httphandler

import (
	"context"
	"log/slog"
	"net/http"
)

type Controller interface {
	ConcurrencyService

	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
	PauseAll(ctx context.Context) error
	ResumeAll(ctx context.Context) error
	CancelAll(ctx context.Context) error
}

func NewRouter(qs QueueService, ctl Controller, rep Reporter, page PageRenderer, defaultDir string, log *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("GET /items", NewListHandler(qs, log))
	mux.Handle("POST /items", NewAddHandler(qs, defaultDir, log))
	mux.Handle("DELETE /items/completed", NewClearCompletedHandler(qs, log))
	mux.Handle("DELETE /items/{id}", NewDeleteHandler(qs, log))

	mux.Handle("POST /items/{id}/pause", NewItemActionHandler("PauseHandler", ctl.Pause, log))
	mux.Handle("POST /items/{id}/resume", NewItemActionHandler("ResumeHandler", ctl.Resume, log))
	mux.Handle("POST /items/{id}/cancel", NewItemActionHandler("CancelHandler", ctl.Cancel, log))

	mux.Handle("POST /pause-all", NewBulkActionHandler("PauseAllHandler", ctl.PauseAll, log))
	mux.Handle("POST /resume-all", NewBulkActionHandler("ResumeAllHandler", ctl.ResumeAll, log))
	mux.Handle("POST /cancel-all", NewBulkActionHandler("CancelAllHandler", ctl.CancelAll, log))

	mux.Handle("GET /concurrency", NewGetConcurrencyHandler(ctl, log))
	mux.Handle("PUT /concurrency", NewSetConcurrencyHandler(ctl, log))

	mux.Handle("GET /top", NewTopHandler(qs, ctl, rep, page, log))

	return mux
}
