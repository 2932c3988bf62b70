// Package app assembles the service from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jaywantadh/fragments/config"
	"github.com/jaywantadh/fragments/internal/auth"
	"github.com/jaywantadh/fragments/internal/fragment"
	"github.com/jaywantadh/fragments/internal/storage"
	"github.com/jaywantadh/fragments/internal/storage/cloud"
	"github.com/jaywantadh/fragments/pkg/httpserver"
)

// Version is reported by the health endpoint and the status command.
var Version = "0.1.0"

const githubURL = "https://github.com/jaywantadh/fragments"

type App struct {
	cfg     *config.AppConfig
	log     logrus.FieldLogger
	backend storage.Backend
	repo    *fragment.Repo
	server  *httpserver.Server
}

// OpenBackend opens the backend named by cfg.Storage.Backend.
func OpenBackend(ctx context.Context, cfg *config.AppConfig, log logrus.FieldLogger) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		log.Warn("using the in-memory backend, fragments are lost on exit")
		return storage.NewMemory(), nil
	case config.BackendBadger:
		b, err := storage.OpenBadger(storage.BadgerOptions{
			Path:          cfg.Storage.Path,
			Compress:      cfg.Storage.Compress,
			EncryptionKey: cfg.Storage.EncryptionKey,
			Logger:        log.WithField("backend", "badger"),
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.BackendCloud:
		b, err := cloud.Open(ctx, cloudConfig(cfg), log.WithField("backend", "cloud"))
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func cloudConfig(cfg *config.AppConfig) cloud.Config {
	return cloud.Config{
		DSN:           cfg.Postgres.DSN,
		Endpoint:      cfg.S3.Endpoint,
		Region:        cfg.S3.Region,
		Bucket:        cfg.S3.Bucket,
		AccessKey:     cfg.S3.AccessKey,
		SecretKey:     cfg.S3.SecretKey,
		UseSSL:        cfg.S3.UseSSL,
		PathStyle:     cfg.S3.PathStyle,
		Compress:      cfg.Storage.Compress,
		EncryptionKey: cfg.Storage.EncryptionKey,
	}
}

// OpenRepo opens the backend and wraps it in a fragment repository. The
// caller closes the backend.
func OpenRepo(ctx context.Context, cfg *config.AppConfig, log logrus.FieldLogger) (*fragment.Repo, storage.Backend, error) {
	backend, err := OpenBackend(ctx, cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed init storage: %w", err)
	}
	return fragment.NewRepo(backend), backend, nil
}

// Build wires the HTTP service. An htpasswd file is required.
func Build(ctx context.Context, cfg *config.AppConfig, log logrus.FieldLogger) (*App, error) {
	if cfg.Auth.HtpasswdFile == "" {
		return nil, errors.New("auth.htpasswd_file is required to serve")
	}
	am, err := auth.LoadHtpasswdFile(cfg.Auth.HtpasswdFile)
	if err != nil {
		return nil, fmt.Errorf("failed init auth: %w", err)
	}
	log.WithField("users", am.Len()).Info("auth initialized")

	repo, backend, err := OpenRepo(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	log.WithField("backend", cfg.Storage.Backend).Info("storage initialized")

	server := httpserver.New(httpserver.Options{
		Addr:      cfg.Addr(),
		Repo:      repo,
		Auth:      am,
		Log:       log.WithField("component", "http"),
		APIURL:    cfg.APIURL,
		BodyLimit: cfg.BodyLimit,
		Version:   Version,
		GithubURL: githubURL,
	})
	return &App{cfg: cfg, log: log, backend: backend, repo: repo, server: server}, nil
}

// Run serves until ctx is canceled and then closes the backend.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("start application...")
	runErr := a.server.Run(ctx)
	a.log.Info("stop application...")
	return errors.Join(runErr, a.Close())
}

// Close releases the backend.
func (a *App) Close() error {
	return a.backend.Close()
}
