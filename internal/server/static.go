package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/kongwutw/devfront/internal/pipeline"
	"github.com/kongwutw/devfront/internal/router"
	"github.com/kongwutw/devfront/internal/websocket"
)

// Assets produces the bytes served for local paths.
type Assets interface {
	Serve(ctx context.Context, name string) (*pipeline.Asset, error)
}

const indexPath = "/index.html"

// serveLocal serves d.Path from assets. A missing extensionless path falls
// back to index.html for client-side routing, while missing paths with an
// extension are real file requests and get 404.
func (h *Handler) serveLocal(w http.ResponseWriter, r *http.Request, d router.Decision) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		websocket.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := d.Path
	if name == "/" {
		name = indexPath
	}

	asset, err := h.assets.Serve(r.Context(), name)
	if errors.Is(err, pipeline.ErrNotFound) && !d.AliasApplied && path.Ext(name) == "" {
		asset, err = h.assets.Serve(r.Context(), indexPath)
	}

	var terr *pipeline.TransformError
	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrNotFound):
		http.NotFound(w, r)
		return
	case errors.As(err, &terr):
		h.logger.Error("transform failed",
			slog.String("plugin", terr.Plugin),
			slog.String("path", terr.Path),
			slog.String("error", terr.Err.Error()))
		websocket.WriteError(w, http.StatusInternalServerError, terr.Error())
		return
	default:
		h.logger.Error("failed to serve asset", slog.String("path", name), slog.String("error", err.Error()))
		websocket.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if asset.ContentType != "" {
		w.Header().Set("Content-Type", asset.ContentType)
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, asset.File, time.Time{}, bytes.NewReader(asset.Content))
}
