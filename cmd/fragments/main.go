package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/jaywantadh/fragments/config"
	"github.com/jaywantadh/fragments/internal/app"
	"github.com/jaywantadh/fragments/internal/auth"
	"github.com/jaywantadh/fragments/internal/fragment"
	"github.com/jaywantadh/fragments/pkg/env"
	"github.com/jaywantadh/fragments/pkg/logging"
)

var ownerFlags = []cli.Flag{
	&cli.StringFlag{Name: "owner", Usage: "owner id (hashed)"},
	&cli.StringFlag{Name: "user", Usage: "username; hashed into the owner id"},
}

func main() {
	cliApp := &cli.App{
		Name:    "fragments",
		Usage:   "Store user fragments and convert them between formats",
		Version: app.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: ".", Usage: "directory containing config.yaml"},
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "dotenv file loaded before the config"},
		},
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"s"},
				Usage:   "Start the HTTP API",
				Action:  serve,
			},
			{
				Name:   "list",
				Usage:  "List an owner's fragments",
				Flags:  append([]cli.Flag{&cli.BoolFlag{Name: "expand", Usage: "print full metadata"}}, ownerFlags...),
				Action: list,
			},
			{
				Name:   "info",
				Usage:  "Show one fragment's metadata and formats",
				Flags:  append([]cli.Flag{&cli.StringFlag{Name: "id", Required: true}}, ownerFlags...),
				Action: info,
			},
			{
				Name:  "convert",
				Usage: "Write a fragment converted to another format",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "id", Required: true},
					&cli.StringFlag{Name: "ext", Required: true, Usage: "target extension, e.g. html"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file (default stdout)"},
				}, ownerFlags...),
				Action: convertFragment,
			},
			{
				Name:   "status",
				Usage:  "Check configuration and storage connectivity",
				Action: status,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		logging.Log.Fatal(err)
	}
}

// setup loads .env, the config and the logger.
func setup(c *cli.Context) (*config.AppConfig, *logrus.Logger, error) {
	if err := env.LoadEnv(logging.Log, c.String("env-file")); err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if err := logging.InitLogger(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, nil, err
	}
	return cfg, logging.Log, nil
}

func ownerID(c *cli.Context) (string, error) {
	switch {
	case c.String("owner") != "":
		return c.String("owner"), nil
	case c.String("user") != "":
		return auth.HashOwner(c.String("user")), nil
	default:
		return "", errors.New("one of --owner or --user is required")
	}
}

func withRepo(c *cli.Context, fn func(ctx context.Context, repo *fragment.Repo, owner string) error) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	repo, backend, err := app.OpenRepo(c.Context, cfg, log)
	if err != nil {
		return err
	}
	defer backend.Close()
	return fn(c.Context, repo, owner)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serve(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

func list(c *cli.Context) error {
	return withRepo(c, func(ctx context.Context, repo *fragment.Repo, owner string) error {
		listing, err := repo.ByUser(ctx, owner, c.Bool("expand"))
		if err != nil {
			return err
		}
		return printJSON(c.App.Writer, listing)
	})
}

func info(c *cli.Context) error {
	return withRepo(c, func(ctx context.Context, repo *fragment.Repo, owner string) error {
		f, err := repo.ByID(ctx, owner, c.String("id"))
		if err != nil {
			return err
		}
		return printJSON(c.App.Writer, map[string]any{"fragment": f, "formats": f.Formats()})
	})
}

func convertFragment(c *cli.Context) error {
	return withRepo(c, func(ctx context.Context, repo *fragment.Repo, owner string) error {
		f, err := repo.ByID(ctx, owner, c.String("id"))
		if err != nil {
			return err
		}
		data, target, err := f.ConvertedInto(ctx, c.String("ext"))
		if err != nil {
			return err
		}
		out := c.String("out")
		if out == "" {
			_, err = c.App.Writer.Write(data)
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
		logging.Log.WithFields(logrus.Fields{"file": out, "type": target, "bytes": len(data)}).Info("fragment converted")
		return nil
	})
}

func status(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	backend, err := app.OpenBackend(c.Context, cfg, log)
	if err != nil {
		return fmt.Errorf("storage %s unreachable: %w", cfg.Storage.Backend, err)
	}
	defer backend.Close()
	log.WithFields(logrus.Fields{
		"version": app.Version,
		"backend": cfg.Storage.Backend,
		"addr":    cfg.Addr(),
		"auth":    cfg.Auth.HtpasswdFile != "",
	}).Info("fragments is healthy")
	return nil
}
