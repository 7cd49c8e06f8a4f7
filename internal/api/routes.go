package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lamoeditor/lamoeditor/internal/catalog"
	"github.com/lamoeditor/lamoeditor/internal/config"
	"github.com/lamoeditor/lamoeditor/internal/editerr"
	"github.com/lamoeditor/lamoeditor/internal/engine"
	"github.com/lamoeditor/lamoeditor/internal/export"
	"github.com/lamoeditor/lamoeditor/internal/ffmpeg"
	"github.com/lamoeditor/lamoeditor/internal/session"
	"github.com/lamoeditor/lamoeditor/internal/timeline"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(LoopbackGuard())
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Get("/formats", formatsHandler(cfg))
		r.Get("/sources", listSourcesHandler(cfg))
		r.Delete("/sources", forgetSourceHandler(cfg))

		r.Post("/source", loadSourceHandler(cfg))
		r.Get("/range", rangeHandler(cfg))
		r.Post("/range/in", markHandler(cfg, cfg.Session.SetIn))
		r.Post("/range/out", markHandler(cfg, cfg.Session.SetOut))
		r.Get("/media/source", sourceMediaHandler(cfg))
		r.Head("/media/source", sourceMediaHandler(cfg))

		r.Route("/timeline", func(r chi.Router) {
			r.Get("/", timelineHandler(cfg))
			r.Post("/segments", appendSegmentHandler(cfg))
			r.Delete("/segments/{index}", indexHandler(cfg, cfg.Session.Remove))
			r.Post("/segments/{index}/move-up", indexHandler(cfg, cfg.Session.MoveUp))
			r.Post("/segments/{index}/move-down", indexHandler(cfg, cfg.Session.MoveDown))
			r.Put("/segments/{index}/effects", effectsHandler(cfg))
			r.Put("/segments/{index}/volume", volumeHandler(cfg))
			r.Post("/select", selectHandler(cfg))
			r.Post("/clear", clearHandler(cfg))
			r.Post("/overlays", addOverlayHandler(cfg))
			r.Delete("/overlays/{index}", indexHandler(cfg, cfg.Session.RemoveOverlay))
		})

		r.Post("/history/undo", historyHandler(cfg, cfg.Session.Undo))
		r.Post("/history/redo", historyHandler(cfg, cfg.Session.Redo))

		r.Post("/project/save", saveProjectHandler(cfg))
		r.Post("/project/load", loadProjectHandler(cfg))

		r.Get("/render/plan", planHandler(cfg))

		r.Post("/export", startExportHandler(cfg))
		r.Post("/export/edl", exportEDLHandler(cfg))
		r.Get("/export/jobs", listJobsHandler(cfg))
		r.Get("/export/jobs/{id}", getJobHandler(cfg))
		r.Post("/export/jobs/{id}/cancel", cancelJobHandler(cfg))
		r.Get("/export/jobs/{id}/events", jobEventsHandler(cfg))
		r.Get("/export/jobs/{id}/output", jobOutputHandler(cfg))
		r.Head("/export/jobs/{id}/output", jobOutputHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:  "ok",
			Version: versionOf(cfg),
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		}
		if cfg.Doctor != nil {
			resp.FFmpeg = cfg.Doctor.Peek()
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func versionOf(cfg ServerConfig) string {
	if cfg.Version != "" {
		return cfg.Version
	}
	return config.Version
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sources, _ := cfg.Catalog.GetSources(ctx)
		resp := StatusResponse{
			State:        "idle",
			SourcesCount: len(sources),
			Segments:     len(cfg.Session.View().Segments),
		}
		if cfg.Doctor != nil {
			resp.FFmpeg = cfg.Doctor.Peek()
		}

		if job := cfg.Exports.Current(); job != nil {
			st := job.Status()
			if !st.State.Terminal() {
				resp.State = "exporting"
				active := JobStatusToResponse(st)
				resp.ActiveJob = &active
			}
		}

		jobs, _ := cfg.Repository.ListJobs(ctx, 10)
		for _, j := range jobs {
			if j.Status == catalog.JobStatusFailed {
				resp.LastError = j.Error
				break
			}
			if j.Status == catalog.JobStatusSucceeded {
				break
			}
		}
		if resp.LastError != "" && resp.State == "idle" {
			resp.State = "error"
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func formatsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := FormatsResponse{
			Formats:        make([]FormatResponse, 0, len(engine.Presets)),
			Bitrates:       engine.Bitrates,
			DefaultFormat:  engine.DefaultFormat,
			DefaultBitrate: engine.DefaultBitrate,
		}
		var caps *ffmpeg.Capabilities
		if cfg.Doctor != nil {
			caps = cfg.Doctor.Peek()
		}
		for _, p := range engine.Presets {
			f := FormatResponse{Preset: p}
			if caps != nil {
				ok := caps.Supports(p)
				f.Available = &ok
			}
			resp.Formats = append(resp.Formats, f)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func listSourcesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := cfg.Catalog.GetSources(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		resp := SourcesResponse{Sources: make([]SourceResponse, 0, len(sources))}
		for _, s := range sources {
			resp.Sources = append(resp.Sources, SourceToResponse(s))
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func forgetSourceHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		if path == "" {
			WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
			return
		}
		if err := cfg.Catalog.Forget(r.Context(), path); err != nil {
			WriteDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func loadSourceHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PathRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		view, err := cfg.Session.LoadSource(r.Context(), req.Path)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, view)
	}
}

func rangeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Session.Range())
	}
}

func markHandler(cfg ServerConfig, set func(float64) (session.RangeView, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PositionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Position == nil {
			WriteError(w, http.StatusBadRequest, "position is required", "BAD_REQUEST")
			return
		}
		view, err := set(*req.Position)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, view)
	}
}

func timelineHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeTimeline(w, cfg, http.StatusOK)
	}
}

func writeTimeline(w http.ResponseWriter, cfg ServerConfig, status int) {
	WriteJSON(w, status, TimelineToResponse(cfg.Session.View()))
}

// mutate runs a timeline command and answers with the resulting timeline.
func mutate(w http.ResponseWriter, cfg ServerConfig, status int, fn func() error) {
	if err := fn(); err != nil {
		WriteDomainError(w, err)
		return
	}
	writeTimeline(w, cfg, status)
}

func appendSegmentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AppendSegmentRequest
		if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
			return
		}
		if req.Path == "" {
			mutate(w, cfg, http.StatusCreated, cfg.Session.AddSelection)
			return
		}
		if req.StartTime == nil || req.EndTime == nil {
			WriteError(w, http.StatusBadRequest, "start_time and end_time are required with path", "BAD_REQUEST")
			return
		}
		mutate(w, cfg, http.StatusCreated, func() error {
			return cfg.Session.AppendSegment(r.Context(), req.Path, *req.StartTime, *req.EndTime)
		})
	}
}

func indexParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "index must be an integer", "BAD_REQUEST")
		return 0, false
	}
	return i, true
}

func indexHandler(cfg ServerConfig, fn func(int) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i, ok := indexParam(w, r)
		if !ok {
			return
		}
		mutate(w, cfg, http.StatusOK, func() error { return fn(i) })
	}
}

func effectsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i, ok := indexParam(w, r)
		if !ok {
			return
		}
		var req EffectsRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		effects := make([]timeline.Effect, 0, len(req.Effects))
		for _, ej := range req.Effects {
			e, err := ej.ToEffect()
			if err != nil {
				WriteDomainError(w, err)
				return
			}
			effects = append(effects, e)
		}

		// Speed is part of the effects dialog; leaving it out keeps the
		// segment's current speed.
		speed := 1.0
		if req.Speed != nil {
			speed = *req.Speed
		} else if segs := cfg.Session.View().Segments; i >= 0 && i < len(segs) {
			speed = segs[i].Speed
		}
		mutate(w, cfg, http.StatusOK, func() error { return cfg.Session.ReplaceEffects(i, effects, speed) })
	}
}

func volumeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i, ok := indexParam(w, r)
		if !ok {
			return
		}
		var req VolumeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Volume == nil {
			WriteError(w, http.StatusBadRequest, "volume is required", "BAD_REQUEST")
			return
		}
		mutate(w, cfg, http.StatusOK, func() error { return cfg.Session.SetVolume(i, *req.Volume) })
	}
}

func selectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SelectRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Index == nil {
			WriteError(w, http.StatusBadRequest, "index is required", "BAD_REQUEST")
			return
		}
		mutate(w, cfg, http.StatusOK, func() error { return cfg.Session.Select(*req.Index) })
	}
}

func clearHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mutate(w, cfg, http.StatusOK, cfg.Session.Clear)
	}
}

func addOverlayHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req session.OverlayInput
		if !decodeJSON(w, r, &req) {
			return
		}
		mutate(w, cfg, http.StatusCreated, func() error {
			_, err := cfg.Session.AddOverlay(req)
			return err
		})
	}
}

func historyHandler(cfg ServerConfig, step func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		applied := step()
		WriteJSON(w, http.StatusOK, HistoryResponse{
			Applied:  applied,
			Timeline: TimelineToResponse(cfg.Session.View()),
		})
	}
}

func saveProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PathRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		mutate(w, cfg, http.StatusOK, func() error { return cfg.Session.SaveProject(req.Path) })
	}
}

func loadProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PathRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		mutate(w, cfg, http.StatusOK, func() error { return cfg.Session.LoadProject(r.Context(), req.Path) })
	}
}

func planHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		graph, err := cfg.Session.Plan()
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, graph)
	}
}

// lookupJob finds a job run by this process, falling back to the stored
// record of an older one.
func lookupJob(cfg ServerConfig, r *http.Request, id string) (*export.Job, *catalog.ExportJob, error) {
	if job, ok := cfg.Exports.Job(id); ok {
		return job, nil, nil
	}
	rec, err := cfg.Repository.GetJob(r.Context(), id)
	if err != nil {
		return nil, nil, editerr.IO("cannot read export job", err)
	}
	return nil, rec, nil
}
