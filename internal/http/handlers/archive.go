package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"

	"github.com/go-chi/chi/v5"

	"photorevive/internal/domain"
	"photorevive/pkg/zip"
)

// maxArchiveArtifactBytes caps a single archive entry. Vendor videos top
// out well below this.
const maxArchiveArtifactBytes = 512 << 20

// JobArchive streams all artifacts of a finished job as one zip download.
// Artifact bodies are copied straight into the archive stream, never
// buffered whole. Once the first entry has started the response status is
// committed; a later fetch failure can only truncate the download.
func (a *App) JobArchive(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	job, err := a.Store.GetForOwner(r.Context(), jobID, userID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	if job.State != domain.JobStateSucceeded || len(job.ResultRefs) == 0 {
		a.error(w, http.StatusConflict, "not_ready", "job has no downloadable artifacts")
		return
	}

	var zw *zip.Writer
	for i, ref := range job.ResultRefs {
		resp, err := a.openArtifact(r.Context(), ref)
		if err != nil {
			a.Logger.Error().Err(err).Str("job_id", job.ID).Str("ref", ref).Msg("artifact fetch failed")
			if zw == nil {
				a.error(w, http.StatusBadGateway, "fetch_failed", "artifact is temporarily unavailable")
			}
			return
		}
		if zw == nil {
			w.Header().Set("Content-Type", "application/zip")
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.ID+".zip"))
			w.WriteHeader(http.StatusOK)
			zw = zip.NewWriter(w)
		}
		err = zw.Add(artifactFilename(ref, i), io.LimitReader(resp.Body, maxArchiveArtifactBytes))
		resp.Body.Close()
		if err != nil {
			a.Logger.Error().Err(err).Str("job_id", job.ID).Str("ref", ref).Msg("archive write failed")
			return
		}
	}
	if err := zw.Close(); err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("archive close failed")
	}
}

func (a *App) openArtifact(ctx context.Context, ref string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.Fetch.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: status %d", ref, resp.StatusCode)
	}
	return resp, nil
}

func artifactFilename(ref string, index int) string {
	fallback := fmt.Sprintf("artifact-%d", index+1)
	u, err := url.Parse(ref)
	if err != nil {
		return fallback
	}
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		return fallback
	}
	return base
}
