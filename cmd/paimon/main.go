package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/happut/incubator-paimon/filestore"
	"github.com/happut/incubator-paimon/logging"
	"github.com/happut/incubator-paimon/scan"
	"github.com/happut/incubator-paimon/storage"
	"github.com/happut/incubator-paimon/table"
	"github.com/happut/incubator-paimon/telemetry"
	"github.com/happut/incubator-paimon/util/fileu"
	"github.com/happut/incubator-paimon/util/httpu"
	"github.com/happut/incubator-paimon/util/netu"
)

func main() {
	app := &cli.App{
		Name:  "paimon",
		Usage: "Write and continuously scan versioned tables",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log at debug level",
			},
		},
		Before: func(ctx *cli.Context) error {
			if ctx.Bool("verbose") {
				logging.SetLevel(slog.LevelDebug)
			}
			slog.SetDefault(slog.New(logging.NewTextHandler()))
			return nil
		},
		Commands: []*cli.Command{{
			Name:      "create",
			Usage:     "Create a table at a location",
			Args:      true,
			ArgsUsage: "<location>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "columns",
					Usage:    "comma separated column names",
					Required: true,
				},
				&cli.StringFlag{
					Name:  "primary-key",
					Usage: "comma separated key columns, empty for an append-only table",
				},
				&cli.StringFlag{
					Name:  "changelog-mode",
					Value: string(table.ChangelogModeAppend),
					Usage: "how writes appear in the change stream (append, upsert)",
				},
				&cli.StringFlag{
					Name:  "consistency-mode",
					Value: string(table.ConsistencyStrict),
					Usage: "visibility guarantee for readers (strict, eventual)",
				},
			},
			Action: func(ctx *cli.Context) error {
				location := ctx.Args().First()
				if location == "" {
					return fmt.Errorf("table location is required")
				}
				return createTable(location, createTableParams{
					Columns:         ctx.String("columns"),
					PrimaryKey:      ctx.String("primary-key"),
					ChangelogMode:   ctx.String("changelog-mode"),
					ConsistencyMode: ctx.String("consistency-mode"),
				})
			},
		}, {
			Name:      "write",
			Usage:     "Commit CSV rows from stdin as one snapshot",
			Args:      true,
			ArgsUsage: "<location>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "kind",
					Value: "append",
					Usage: "append on top of the table or overwrite it",
				},
				&cli.IntFlag{
					Name:  "max-rows-per-file",
					Usage: "cut a new data file after this many rows, 0 for the default",
				},
			},
			Action: func(ctx *cli.Context) error {
				location := ctx.Args().First()
				if location == "" {
					return fmt.Errorf("table location is required")
				}
				return writeRows(location, ctx.String("kind"), ctx.Int("max-rows-per-file"), os.Stdin)
			},
		}, {
			Name:      "scan",
			Usage:     "Continuously stream table changes to stdout as CSV",
			Args:      true,
			ArgsUsage: "<location>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "mode",
					Value: string(table.ScanModeDefault),
					Usage: "start position (default, latest)",
				},
				&cli.StringFlag{
					Name:  "projection",
					Usage: "comma separated output columns, empty for all",
				},
				&cli.DurationFlag{
					Name:  "poll-interval",
					Usage: "snapshot discovery cadence, 0 for the default",
				},
				&cli.IntFlag{
					Name:  "parallelism",
					Usage: "split reader pool size, 0 for the default",
				},
				&cli.StringFlag{
					Name:  "checkpoint",
					Usage: "file location for scan progress, resumed on restart",
				},
				&cli.DurationFlag{
					Name:  "checkpoint-interval",
					Value: 10 * time.Second,
					Usage: "minimum time between checkpoint writes",
				},
				&cli.StringFlag{
					Name:  "metrics-addr",
					Usage: "serve prometheus metrics and pprof on this address",
				},
			},
			Action: func(ctx *cli.Context) error {
				location := ctx.Args().First()
				if location == "" {
					return fmt.Errorf("table location is required")
				}
				err := runScan(location, scanParams{
					Mode:               ctx.String("mode"),
					Projection:         ctx.String("projection"),
					PollInterval:       ctx.Duration("poll-interval"),
					Parallelism:        ctx.Int("parallelism"),
					Checkpoint:         ctx.String("checkpoint"),
					CheckpointInterval: ctx.Duration("checkpoint-interval"),
					MetricsAddr:        ctx.String("metrics-addr"),
					Verbose:            ctx.Bool("verbose"),
				})
				if err != nil {
					slog.Error("scan terminated with error", "error", err)
				}
				return err
			},
		}},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

type createTableParams struct {
	Columns         string
	PrimaryKey      string
	ChangelogMode   string
	ConsistencyMode string
}

func createTable(location string, params createTableParams) error {
	changelogMode, err := table.ParseChangelogMode(params.ChangelogMode)
	if err != nil {
		return err
	}
	consistencyMode, err := table.ParseConsistencyMode(params.ConsistencyMode)
	if err != nil {
		return err
	}

	schema := table.Schema{
		Columns:    splitList(params.Columns),
		PrimaryKey: splitList(params.PrimaryKey),
		Options: table.Options{
			ChangelogMode:   changelogMode,
			ConsistencyMode: consistencyMode,
		},
	}

	fs, err := storage.NewFileSystemFromLocation(location)
	if err != nil {
		return err
	}
	if err := filestore.CreateTable(fs, schema); err != nil {
		return err
	}

	slog.Info("created table", "location", location, "columns", schema.Columns, "primaryKey", schema.PrimaryKey)
	return nil
}

func writeRows(location, kind string, maxRowsPerFile int, in io.Reader) error {
	snapshotKind, err := filestore.ParseSnapshotKind(strings.ToUpper(kind))
	if err != nil {
		return err
	}

	store, err := openStore(location)
	if err != nil {
		return err
	}
	writer := filestore.NewWriter(&filestore.NewWriterParams{
		Store:          store,
		MaxRowsPerFile: maxRowsPerFile,
	})

	rows := 0
	reader := csv.NewReader(in)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading stdin row %d: %w", rows+1, err)
		}
		if err := writer.Write(table.Row(record)); err != nil {
			return err
		}
		rows++
	}

	snapshot, err := writer.Commit(snapshotKind)
	if err != nil {
		return err
	}

	fmt.Printf("committed snapshot %d (%d rows)\n", snapshot.ID, rows)
	return nil
}

type scanParams struct {
	Mode               string
	Projection         string
	PollInterval       time.Duration
	Parallelism        int
	Checkpoint         string
	CheckpointInterval time.Duration
	MetricsAddr        string
	Verbose            bool
}

func runScan(location string, params scanParams) error {
	// Stop everything on ctrl-c
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	g, ctx := errgroup.WithContext(ctx)

	mode, err := table.ParseScanMode(params.Mode)
	if err != nil {
		return err
	}
	store, err := openStore(location)
	if err != nil {
		return err
	}

	s, err := newScan(&scan.NewScanParams{
		Store:           store,
		Schema:          store.Schema(),
		ScanMode:        mode,
		Projection:      splitList(params.Projection),
		PollInterval:    params.PollInterval,
		ReadParallelism: params.Parallelism,
	}, params.Checkpoint)
	if err != nil {
		return err
	}

	if params.MetricsAddr != "" {
		listener, err := net.Listen("tcp", params.MetricsAddr)
		if err != nil {
			s.Close()
			return fmt.Errorf("failed to listen on metrics address: %w", err)
		}
		url, err := netu.ResolveAddr(listener.Addr().String())
		if err != nil {
			s.Close()
			return err
		}
		slog.Info("serving metrics", "url", url+"/metrics")
		g.Go(func() error {
			err := serveDebug(ctx, listener, params.Verbose)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		defer cancel(nil)
		return streamChanges(ctx, s, params)
	})

	return g.Wait()
}

// newScan resumes from the checkpoint location when a previous run left one,
// otherwise starts fresh.
func newScan(params *scan.NewScanParams, checkpoint string) (*scan.Scan, error) {
	if checkpoint != "" {
		payload, err := fileu.ReadFile(checkpoint)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("reading checkpoint: %w", err)
		}
		if len(payload) > 0 {
			slog.Info("resuming scan from checkpoint", "location", checkpoint)
			return scan.NewScanFromCheckpoint(params, payload)
		}
	}
	return scan.NewScan(params)
}

// streamChanges pulls changes until the scan fails or the context ends,
// writing them to stdout and checkpointing progress between pulls. Data goes
// to stdout and logs to stderr so the stream stays pipeable.
func streamChanges(ctx context.Context, s *scan.Scan, params scanParams) error {
	defer s.Close()

	out := csv.NewWriter(os.Stdout)
	lastCheckpoint := time.Now()
	dirty := false

	for {
		changes, err := s.ReadChanges(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}

		for _, change := range changes {
			if err := out.Write(change.Row); err != nil {
				return err
			}
		}
		out.Flush()
		if err := out.Error(); err != nil {
			return err
		}

		dirty = dirty || len(changes) > 0
		if params.Checkpoint != "" && dirty && time.Since(lastCheckpoint) >= params.CheckpointInterval {
			if err := saveCheckpoint(s, params.Checkpoint); err != nil {
				return err
			}
			lastCheckpoint = time.Now()
			dirty = false
		}
	}

	// Leave a final checkpoint so the next run resumes where this one
	// stopped.
	if params.Checkpoint != "" && dirty {
		if err := saveCheckpoint(s, params.Checkpoint); err != nil {
			return err
		}
	}
	return nil
}

func saveCheckpoint(s *scan.Scan, location string) error {
	payload, err := s.Checkpoint()
	if err != nil {
		return err
	}
	if err := fileu.WriteFile(location, payload); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	slog.Debug("checkpoint saved", "location", location)
	return nil
}

// serveDebug serves the metrics and pprof endpoints until ctx ends.
func serveDebug(ctx context.Context, listener net.Listener, verbose bool) error {
	mux := http.NewServeMux()

	// Register pprof handlers
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	// Prometheus metrics
	var metricsHandler http.Handler = telemetry.MetricsHandler()
	if verbose {
		metricsHandler = logging.NewHTTPHandler(metricsHandler, slog.Default())
	}
	mux.Handle("/metrics", metricsHandler)

	return httpu.NewServer(mux).Serve(ctx, listener)
}

func openStore(location string) (*filestore.Store, error) {
	fs, err := storage.NewFileSystemFromLocation(location)
	if err != nil {
		return nil, err
	}
	return filestore.NewStore(&filestore.NewStoreParams{FileSystem: fs})
}

// splitList parses a comma separated flag value, trimming whitespace and
// returning nil for an empty value.
func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
