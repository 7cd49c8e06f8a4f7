package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/lamoeditor/lamoeditor/internal/catalog"
	"github.com/lamoeditor/lamoeditor/internal/export"
	"github.com/lamoeditor/lamoeditor/internal/logging"
	"github.com/lamoeditor/lamoeditor/internal/media"
	"github.com/lamoeditor/lamoeditor/internal/session"
)

const (
	defaultJobsLimit  = 20
	maxJobsLimit      = 200
	eventWriteTimeout = 5 * time.Second
)

func startExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req session.ExportRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		job, err := cfg.Session.Export(req)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		cfg.Logger.Info("export started", "job_id", job.ID(), "output", logging.SanitizePath(job.OutputPath()))
		WriteJSON(w, http.StatusAccepted, JobStatusToResponse(job.Status()))
	}
}

func exportEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EDLRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		path, err := cfg.Session.WriteEDL(req.OutputDir, req.ProjectName, req.FrameRate)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, EDLResponse{
			Status:     "ok",
			OutputPath: path,
			EventCount: len(cfg.Session.View().Segments),
		})
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultJobsLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = min(n, maxJobsLimit)
		}

		jobs, err := cfg.Repository.ListJobs(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, 0, len(jobs))}
		for _, j := range jobs {
			// Live jobs are fresher than their stored row.
			if live, ok := cfg.Exports.Job(j.ID); ok {
				resp.Jobs = append(resp.Jobs, JobStatusToResponse(live.Status()))
				continue
			}
			resp.Jobs = append(resp.Jobs, JobRecordToResponse(j))
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		live, rec, err := lookupJob(cfg, r, chi.URLParam(r, "id"))
		switch {
		case err != nil:
			WriteDomainError(w, err)
		case live != nil:
			WriteJSON(w, http.StatusOK, JobStatusToResponse(live.Status()))
		case rec != nil:
			WriteJSON(w, http.StatusOK, JobRecordToResponse(rec))
		default:
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
		}
	}
}

func cancelJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		live, rec, err := lookupJob(cfg, r, chi.URLParam(r, "id"))
		switch {
		case err != nil:
			WriteDomainError(w, err)
			return
		case live == nil && rec == nil:
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		case live == nil || live.Status().State.Terminal():
			WriteError(w, http.StatusConflict, "job already finished", "JOB_FINISHED")
			return
		}

		live.Cancel()
		cfg.Logger.Info("export cancel requested", "job_id", live.ID())
		WriteJSON(w, http.StatusAccepted, JobStatusToResponse(live.Status()))
	}
}

// jobEventsHandler streams a job's events as JSON messages, starting with
// its current progress. The socket closes after the terminal event.
func jobEventsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, ok := cfg.Exports.Job(id)
		if !ok {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"localhost:*", "127.0.0.1:*", "[::1]:*"},
		})
		if err != nil {
			cfg.Logger.Warn("websocket accept failed", "job_id", id, "error", err)
			return
		}
		defer conn.CloseNow()

		events, detach := job.Subscribe()
		defer detach()

		// Clients only listen; reading in the background notices when they
		// go away.
		ctx := conn.CloseRead(r.Context())
		for {
			select {
			case <-ctx.Done():
				return
			case ev, open := <-events:
				if !open {
					conn.Close(websocket.StatusNormalClosure, "job finished")
					return
				}
				if err := writeEvent(ctx, conn, ev); err != nil {
					if !errors.Is(err, context.Canceled) {
						cfg.Logger.Debug("event stream ended", "job_id", id, "error", err)
					}
					return
				}
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev export.Event) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}

func jobOutputHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		live, rec, err := lookupJob(cfg, r, chi.URLParam(r, "id"))
		if err != nil {
			WriteDomainError(w, err)
			return
		}

		var state, path string
		switch {
		case live != nil:
			st := live.Status()
			state, path = string(st.State), st.OutputPath
		case rec != nil:
			state, path = rec.Status, rec.OutputPath
		default:
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}
		if state != catalog.JobStatusSucceeded {
			WriteError(w, http.StatusConflict, "export has not succeeded", "JOB_NOT_FINISHED")
			return
		}
		serveMedia(w, r, cfg, path)
	}
}

func sourceMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		src := cfg.Session.Range().Source
		if src == nil {
			WriteError(w, http.StatusNotFound, "no source loaded", "NO_SOURCE")
			return
		}
		serveMedia(w, r, cfg, src.Path)
	}
}

func serveMedia(w http.ResponseWriter, r *http.Request, cfg ServerConfig, path string) {
	if err := media.ServeFile(w, r, path); err != nil {
		requestID, _ := r.Context().Value(RequestIDKey).(string)
		cfg.Logger.Error("media stream failed", "path", logging.SanitizePath(path),
			"error", err, "request_id", requestID)
	}
}
