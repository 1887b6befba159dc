package api

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/analyst/internal/analysis"
	"github.com/sells-group/analyst/internal/model"
	"github.com/sells-group/analyst/internal/pipeline"
)

// listCacheControl lets a CDN serve the index briefly while it revalidates.
const listCacheControl = "s-maxage=5, stale-while-revalidate=30"

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req analysis.CreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	job, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, "Analysis failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": job.ID, "status": string(job.Status)})
}

// process runs the pipeline synchronously. The run is detached from the
// request so a client that stops waiting does not abort it.
func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	outcome, err := h.svc.Trigger(context.WithoutCancel(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, err, "Processing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(outcome)})
}

func (h *Handler) fetch(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.Fetch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "Failed to load analysis")
		return
	}
	w.Header().Set("Cache-Control", h.jobCacheControl(job.Status))
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) jobCacheControl(status model.JobStatus) string {
	ttl := h.opts.JobTTLs.ForStatus(status)
	if ttl <= 0 {
		return "no-store"
	}
	return fmt.Sprintf("private, max-age=%d", int(ttl.Seconds()))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "Failed to list analyses")
		return
	}
	if entries == nil {
		entries = []model.IndexEntry{}
	}
	w.Header().Set("Cache-Control", listCacheControl)
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err, "Failed to delete analysis")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) deepen(w http.ResponseWriter, r *http.Request) {
	var req pipeline.DeepenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.Deepen(r.Context(), chi.URLParam(r, "id"), req); err != nil {
		writeServiceError(w, r, err, "Deepen failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(model.JobStatusProcessing)})
}

// upload accepts a single multipart "file" field.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, analysis.MaxUploadBytes+maxJSONBody)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(path.Ext(header.Filename)); byExt != "" {
			contentType = byExt
		}
	}

	ref, err := h.svc.Upload(r.Context(), header.Filename, contentType, data)
	if err != nil {
		writeServiceError(w, r, err, "Upload failed")
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

func (h *Handler) debugEnv(w http.ResponseWriter, _ *http.Request) {
	anthropic := "NOT SET"
	if k := h.opts.AnthropicKey; k != "" {
		prefix := k
		if len(prefix) > 8 {
			prefix = prefix[:8]
		}
		anthropic = fmt.Sprintf("set (%d chars, starts: %s...)", len(k), prefix)
	}
	brave := "NOT SET"
	if k := h.opts.BraveKey; k != "" {
		brave = fmt.Sprintf("set (%d chars)", len(k))
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"anthropic": anthropic,
		"brave":     brave,
		"env":       h.opts.Env,
	})
}
