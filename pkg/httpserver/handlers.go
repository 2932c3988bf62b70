package httpserver

import (
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jaywantadh/fragments/internal/auth"
	"github.com/jaywantadh/fragments/internal/fragment"
)

type handler struct {
	repo    *fragment.Repo
	log     logrus.FieldLogger
	apiURL  string
	version string
	author  string
	github  string
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error, id string) {
	status, msg := mapError(err, id)
	entry := h.log.WithFields(logrus.Fields{"request_id": RequestIDFromCtx(r.Context()), "status": status})
	if status >= 500 {
		entry.WithError(err).Error("fragment request failed")
	} else {
		entry.WithError(err).Debug("fragment request rejected")
	}
	writeErrorStatus(w, r, status, msg)
}

func (h *handler) owner(r *http.Request) string {
	u, _ := auth.UserFromCtx(r.Context())
	return u.OwnerID
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	fields := map[string]any{"version": h.version}
	if h.author != "" {
		fields["author"] = h.author
	}
	if h.github != "" {
		fields["githubUrl"] = h.github
	}
	writeOK(w, r, http.StatusOK, fields)
}

func (h *handler) notFound(w http.ResponseWriter, r *http.Request) {
	writeErrorStatus(w, r, http.StatusNotFound, "not found")
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	expand := false
	switch strings.ToLower(r.URL.Query().Get("expand")) {
	case "1", "true", "yes":
		expand = true
	}
	listing, err := h.repo.ByUser(r.Context(), h.owner(r), expand)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	writeOK(w, r, http.StatusOK, map[string]any{"fragments": listing})
}

// readTypedBody validates the Content-Type header before reading the body.
// Missing, malformed and unsupported types all map to 415.
func (h *handler) readTypedBody(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	contentType := r.Header.Get("Content-Type")
	ok, err := h.repo.IsSupportedType(contentType)
	if err != nil || !ok {
		writeErrorStatus(w, r, http.StatusUnsupportedMediaType, msgUnsupportedType)
		return "", nil, false
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.fail(w, r, err, "")
		return "", nil, false
	}
	return contentType, body, true
}

func (h *handler) location(r *http.Request, id string) string {
	base := h.apiURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return strings.TrimRight(base, "/") + "/v1/fragments/" + id
}

func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	contentType, body, ok := h.readTypedBody(w, r)
	if !ok {
		return
	}
	if len(body) == 0 {
		writeErrorStatus(w, r, http.StatusBadRequest, "Fragment data is required")
		return
	}
	f, err := h.repo.Create(r.Context(), fragment.Params{OwnerID: h.owner(r), Type: contentType}, body)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	h.log.WithFields(logrus.Fields{"fragment": f.ID, "type": f.Type, "size": f.Size}).Debug("fragment created")
	w.Header().Set("Location", h.location(r, f.ID))
	writeOK(w, r, http.StatusCreated, map[string]any{"fragment": f})
}

// get serves /v1/fragments/{id} and /v1/fragments/{id}.{ext}.
func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("id")
	id, ext := raw, path.Ext(raw)
	if ext != "" {
		id = strings.TrimSuffix(raw, ext)
	}
	f, err := h.repo.ByID(r.Context(), h.owner(r), id)
	if err != nil {
		h.fail(w, r, err, id)
		return
	}

	var (
		data        []byte
		contentType = f.Type
	)
	if ext == "" {
		data, err = f.Data(r.Context())
	} else {
		data, contentType, err = f.ConvertedInto(r.Context(), ext)
	}
	if err != nil {
		h.fail(w, r, err, id)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(data)
	}
}

func (h *handler) info(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	f, err := h.repo.ByID(r.Context(), h.owner(r), id)
	if err != nil {
		h.fail(w, r, err, id)
		return
	}
	writeOK(w, r, http.StatusOK, map[string]any{"fragment": f, "formats": f.Formats()})
}

func (h *handler) update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	contentType, body, ok := h.readTypedBody(w, r)
	if !ok {
		return
	}
	f, err := h.repo.ByID(r.Context(), h.owner(r), id)
	if err != nil {
		h.fail(w, r, err, id)
		return
	}
	if err := f.Replace(r.Context(), contentType, body); err != nil {
		h.fail(w, r, err, id)
		return
	}
	writeOK(w, r, http.StatusOK, map[string]any{"fragment": f, "formats": f.Formats()})
}

func (h *handler) remove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	f, err := h.repo.ByID(r.Context(), h.owner(r), id)
	if err != nil {
		h.fail(w, r, err, id)
		return
	}
	if err := f.Delete(r.Context()); err != nil {
		h.fail(w, r, err, id)
		return
	}
	writeOK(w, r, http.StatusOK, nil)
}
