// Package httpserver exposes the fragment repository over HTTP.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jaywantadh/fragments/internal/auth"
	"github.com/jaywantadh/fragments/internal/fragment"
)

const defaultBodyLimit = 10 << 20

// Options wires the server's collaborators.
type Options struct {
	Addr      string
	Repo      *fragment.Repo
	Auth      *auth.AuthManager
	Log       logrus.FieldLogger
	APIURL    string
	BodyLimit int64

	Version   string
	Author    string
	GithubURL string
}

type Server struct {
	log    logrus.FieldLogger
	server *http.Server
}

// New builds the server. Repo and Auth are required.
func New(opts Options) *Server {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	return &Server{
		log: opts.Log,
		server: &http.Server{
			Addr:              opts.Addr,
			Handler:           NewHandler(opts),
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			MaxHeaderBytes:    1 << 20,
			ReadHeaderTimeout: 2 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// NewHandler returns the routed handler with middleware applied.
func NewHandler(opts Options) http.Handler {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	limit := opts.BodyLimit
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	h := &handler{
		repo:    opts.Repo,
		log:     opts.Log,
		apiURL:  opts.APIURL,
		version: opts.Version,
		author:  opts.Author,
		github:  opts.GithubURL,
	}

	v1 := http.NewServeMux()
	v1.HandleFunc("GET /v1/fragments", h.list)
	v1.HandleFunc("POST /v1/fragments", limitBody(limit, h.create))
	v1.HandleFunc("GET /v1/fragments/{id}", h.get)
	v1.HandleFunc("GET /v1/fragments/{id}/info", h.info)
	v1.HandleFunc("PUT /v1/fragments/{id}", limitBody(limit, h.update))
	v1.HandleFunc("DELETE /v1/fragments/{id}", h.remove)

	deny := func(w http.ResponseWriter, r *http.Request) {
		writeErrorStatus(w, r, http.StatusUnauthorized, msgUnauthorized)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.health)
	mux.Handle("/v1/", opts.Auth.Basic("fragments", deny, v1))
	mux.HandleFunc("/", h.notFound)

	return withRequestID(logging(opts.Log)(recoverer(opts.Log)(mux)))
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.server.Addr).Info("http server started")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.log.WithError(err).Warn("forced to shutdown")
		return err
	}
	s.log.Info("http server exited gracefully")
	return nil
}
