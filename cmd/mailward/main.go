/*
Mailward - mail submission policy daemon.
Copyright © 2021-2024 Mailward contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/emersion/go-smtp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/mailward/mailward/framework/buffer"
	"github.com/mailward/mailward/framework/log"
	"github.com/mailward/mailward/framework/module"
	"github.com/mailward/mailward/internal/archive"
	imapsqlsink "github.com/mailward/mailward/internal/archive/imapsql"
	"github.com/mailward/mailward/internal/endpoint/submission"
	"github.com/mailward/mailward/internal/policy"
	"github.com/mailward/mailward/internal/ratelimit/memcounter"
	"github.com/mailward/mailward/internal/ratelimit/sqlcounter"
	"github.com/mailward/mailward/internal/srs"
	"github.com/mailward/mailward/internal/userdb"
)

func main() {
	app := &cli.App{
		Name:  "mailward",
		Usage: "mail submission policy daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Usage:   "Submission endpoint listen address",
				EnvVars: []string{"MAILWARD_LISTEN"},
				Value:   "127.0.0.1:587",
			},
			&cli.StringFlag{
				Name:    "hostname",
				Usage:   "Server hostname used in the banner and trace headers",
				EnvVars: []string{"MAILWARD_HOSTNAME"},
				Value:   "localhost",
			},
			&cli.StringFlag{
				Name:    "db-driver",
				Usage:   "Identity database driver (postgres, mysql, sqlite3)",
				EnvVars: []string{"MAILWARD_DB_DRIVER"},
				Value:   "postgres",
			},
			&cli.StringFlag{
				Name:    "db-dsn",
				Usage:   "Identity database DSN",
				EnvVars: []string{"MAILWARD_DB_DSN"},
			},
			&cli.StringFlag{
				Name:    "counters-driver",
				Usage:   "Rate counter database driver (postgres, sqlite3); empty uses in-process counters",
				EnvVars: []string{"MAILWARD_COUNTERS_DRIVER"},
			},
			&cli.StringFlag{
				Name:    "counters-dsn",
				Usage:   "Rate counter database DSN",
				EnvVars: []string{"MAILWARD_COUNTERS_DSN"},
			},
			&cli.StringFlag{
				Name:    "archive-driver",
				Usage:   "Archive mailbox database driver; empty disables archival",
				EnvVars: []string{"MAILWARD_ARCHIVE_DRIVER"},
			},
			&cli.StringFlag{
				Name:    "archive-dsn",
				Usage:   "Archive mailbox database DSN",
				EnvVars: []string{"MAILWARD_ARCHIVE_DSN"},
			},
			&cli.IntFlag{
				Name:    "archive-queue",
				Usage:   "Archive worker queue length",
				EnvVars: []string{"MAILWARD_ARCHIVE_QUEUE"},
				Value:   256,
			},
			&cli.StringFlag{
				Name:    "srs-secret",
				Usage:   "Shared secret for SRS aliases; empty disables the outbound rewrite",
				EnvVars: []string{"MAILWARD_SRS_SECRET"},
			},
			&cli.StringFlag{
				Name:    "srs-domain",
				Usage:   "Domain SRS aliases are created under",
				EnvVars: []string{"MAILWARD_SRS_DOMAIN"},
			},
			&cli.StringFlag{
				Name:    "forwarder-interface",
				Usage:   "Interface tag whose deliveries get the SRS rewrite",
				EnvVars: []string{"MAILWARD_FORWARDER_INTERFACE"},
				Value:   "forwarder",
			},
			&cli.StringSliceFlag{
				Name:    "local-mx",
				Usage:   "Host to force for locally-known recipients; repeatable, empty disables the routing override",
				EnvVars: []string{"MAILWARD_LOCAL_MX"},
			},
			&cli.IntFlag{
				Name:    "local-port",
				Usage:   "Port for the local routing override",
				EnvVars: []string{"MAILWARD_LOCAL_PORT"},
				Value:   24,
			},
			&cli.StringFlag{
				Name:    "local-zone",
				Usage:   "Delivery zone tag for the local routing override",
				EnvVars: []string{"MAILWARD_LOCAL_ZONE"},
			},
			&cli.StringFlag{
				Name:    "buffer",
				Usage:   "Message body buffering mode (ram, fs, auto)",
				EnvVars: []string{"MAILWARD_BUFFER"},
				Value:   "auto",
			},
			&cli.StringFlag{
				Name:    "buffer-path",
				Usage:   "Directory for file-buffered message bodies",
				EnvVars: []string{"MAILWARD_BUFFER_PATH"},
			},
			&cli.StringFlag{
				Name:    "metrics",
				Usage:   "Prometheus metrics listen address; empty disables the listener",
				EnvVars: []string{"MAILWARD_METRICS"},
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable debug logging",
				EnvVars: []string{"MAILWARD_DEBUG"},
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.DefaultLogger.Error("fatal", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	log.DefaultLogger.Debug = ctx.Bool("debug")
	logger := log.DefaultLogger

	users, err := userdb.Open(ctx.String("db-driver"), ctx.String("db-dsn"))
	if err != nil {
		return err
	}
	defer users.Close()

	var counters module.CounterStore
	if driver := ctx.String("counters-driver"); driver != "" {
		store, err := sqlcounter.Open(driver, ctx.String("counters-dsn"))
		if err != nil {
			return err
		}
		counters = store
	} else {
		counters = memcounter.New()
	}

	var worker *archive.Worker
	if driver := ctx.String("archive-driver"); driver != "" {
		sublogger := logger
		sublogger.Name = "archive"
		sink, err := imapsqlsink.New(driver, ctx.String("archive-dsn"), sublogger)
		if err != nil {
			return err
		}
		worker = archive.New(sink, ctx.Int("archive-queue"), sublogger)
		defer worker.Close()
	}

	var rewriter *srs.Rewriter
	if secret := ctx.String("srs-secret"); secret != "" {
		domain := ctx.String("srs-domain")
		if domain == "" {
			return fmt.Errorf("srs-domain is required with srs-secret")
		}
		rewriter = srs.New([]byte(secret), domain)
	}

	plogger := logger
	plogger.Name = "policy"
	pipeline, err := policy.New(policy.Config{
		Hostname:           ctx.String("hostname"),
		ForwarderInterface: ctx.String("forwarder-interface"),
		LocalMXs:           ctx.StringSlice("local-mx"),
		LocalPort:          ctx.Int("local-port"),
		LocalZone:          ctx.String("local-zone"),
		Users:              users,
		Auth:               users,
		Counters:           counters,
		LocalAddrs:         users.Addrs(),
		Archive:            worker,
		SRS:                rewriter,
		Log:                plogger,
	})
	if err != nil {
		return err
	}

	if addr := ctx.String("metrics"); addr != "" {
		mlogger := logger
		mlogger.Name = "metrics"
		srv := &http.Server{
			Addr:     addr,
			Handler:  promhttp.Handler(),
			ErrorLog: zap.NewStdLog(mlogger.Zap()),
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener failed", err)
			}
		}()
	}

	bodyBuf, err := bodyBufferMode(ctx.String("buffer"), ctx.String("buffer-path"))
	if err != nil {
		return err
	}

	elogger := logger
	elogger.Name = "submission"
	endp := submission.New(submission.Config{
		Hostname:   ctx.String("hostname"),
		BodyBuffer: bodyBuf,
		Pipeline:   pipeline,
		Log:        elogger,
	})

	l, err := net.Listen("tcp", ctx.String("listen"))
	if err != nil {
		return err
	}
	logger.Msg("listening", "addr", l.Addr().String())

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		s := <-sig
		logger.Msg("shutting down", "signal", s.String())
		endp.Close()
	}()

	if err := endp.Serve(l); err != nil && !errors.Is(err, smtp.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// bodyBufferMode maps the buffer flag onto a body buffering function for the
// submission endpoint. "auto" keeps bodies up to 1 MiB in RAM and spills
// bigger ones to path.
func bodyBufferMode(mode, path string) (func(io.Reader) (buffer.Buffer, error), error) {
	if path == "" {
		path = filepath.Join(os.TempDir(), "mailward-buffer")
	}
	switch mode {
	case "ram":
		return buffer.BufferInMemory, nil
	case "fs":
		if err := os.MkdirAll(path, 0o700); err != nil {
			return nil, err
		}
		return func(r io.Reader) (buffer.Buffer, error) {
			return buffer.BufferInFile(r, path)
		}, nil
	case "auto":
		if err := os.MkdirAll(path, 0o700); err != nil {
			return nil, err
		}
		return submission.AutoBuffer(1*1024*1024, path), nil
	default:
		return nil, fmt.Errorf("unknown buffer mode: %s", mode)
	}
}
