package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"media-library/internal/database"
	"media-library/internal/media"
	"media-library/internal/reconcile"
	"media-library/internal/storage"

	"golang.org/x/term"
)

const (
	defaultDatabaseDir = "/database"
	defaultStorageRoot = "/data"
	databaseFile       = "media-library.db"
)

// options are the parsed command line.
type options struct {
	owners      []string
	all         bool
	storageRoot string
	databaseDir string
	format      string
	timeout     time.Duration
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, cancelling pass...")
		cancel()
	}()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	dbPath := filepath.Join(opts.databaseDir, databaseFile)
	db, err := database.New(ctx, dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: Failed to open database: %v\n", err)
		fmt.Fprintf(stderr, "Make sure DATABASE_DIR is set correctly (current: %s)\n", opts.databaseDir)
		return 1
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(stderr, "Warning: failed to close database: %v\n", err)
		}
	}()

	layout := storage.New(opts.storageRoot)
	owners := opts.owners
	if opts.all {
		owners, err = layout.Owners()
		if err != nil {
			fmt.Fprintf(stderr, "Error: Failed to list owners: %v\n", err)
			return 1
		}
	}

	snapshots := media.NewSnapshotGenerator(media.SnapshotConfig{
		Extractor: media.FFmpegExtractor{Binary: os.Getenv("FFMPEG_PATH")},
	})
	engine := reconcile.New(db, media.NewHasher(), media.NewProber(os.Getenv("FFPROBE_PATH"), 0), snapshots, layout)

	results, failed := reconcileAll(ctx, engine, owners, stderr)
	writeResults(stdout, results, opts.format)

	if failed > 0 {
		return 1
	}
	return 0
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	var owners string
	fs.StringVar(&owners, "owner", "", "comma-separated owner ids to reconcile")
	fs.BoolVar(&opts.all, "all", false, "reconcile every owner under the storage root")
	fs.StringVar(&opts.storageRoot, "storage", envOr("STORAGE_ROOT", defaultStorageRoot), "storage root")
	fs.StringVar(&opts.databaseDir, "database", envOr("DATABASE_DIR", defaultDatabaseDir), "database directory")
	fs.StringVar(&opts.format, "format", "auto", "output format: auto, table or kv")
	fs.DurationVar(&opts.timeout, "timeout", 0, "abort after this long (0 for no limit)")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Media Library Reconcile")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Usage: reconcile (-owner id[,id...] | -all) [flags]")
		fmt.Fprintln(stderr, "")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	for _, o := range strings.Split(owners, ",") {
		if o = strings.TrimSpace(o); o != "" {
			if err := storage.ValidateOwner(o); err != nil {
				return nil, err
			}
			opts.owners = append(opts.owners, o)
		}
	}

	switch {
	case opts.all && len(opts.owners) > 0:
		return nil, errors.New("use either -owner or -all, not both")
	case !opts.all && len(opts.owners) == 0:
		fs.Usage()
		return nil, errors.New("no owner given")
	}

	switch opts.format {
	case "auto", "table", "kv":
	default:
		return nil, fmt.Errorf("unknown format %q", opts.format)
	}
	return opts, nil
}

// ownerResult pairs an owner with its pass outcome.
type ownerResult struct {
	owner  string
	result *reconcile.Result
	err    error
}

// Reconciler runs a pass for one owner.
type Reconciler interface {
	Reconcile(ctx context.Context, ownerID string) (*reconcile.Result, error)
}

// reconcileAll runs owners one after another and stops early only on
// cancellation.
func reconcileAll(ctx context.Context, engine Reconciler, owners []string, stderr io.Writer) ([]ownerResult, int) {
	results := make([]ownerResult, 0, len(owners))
	failed := 0
	for _, owner := range owners {
		if ctx.Err() != nil {
			break
		}
		res, err := engine.Reconcile(ctx, owner)
		if err != nil {
			failed++
			fmt.Fprintf(stderr, "Error: pass for %s: %v\n", owner, err)
		}
		results = append(results, ownerResult{owner: owner, result: res, err: err})
	}
	if err := ctx.Err(); err != nil {
		failed++
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return results, failed
}

// writeResults prints a table on a terminal and key=value lines otherwise.
func writeResults(w io.Writer, results []ownerResult, format string) {
	if format == "auto" {
		format = "kv"
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = "table"
		}
	}

	if format == "table" {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "OWNER\tCREATED\tUNCHANGED\tRENAMED\tDUPLICATES\tSKIPPED\tREMOVED\tDURATION\tSTATUS\t")
		for _, r := range results {
			c := counts(r.result)
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\t%s\t\n",
				r.owner, c.Created, c.Unchanged, c.Renamed, c.Duplicates, c.Skipped, c.Removed,
				c.Duration.Round(time.Millisecond), status(r.err))
		}
		tw.Flush()
		return
	}

	for _, r := range results {
		c := counts(r.result)
		fmt.Fprintf(w, "owner=%s created=%d unchanged=%d renamed=%d duplicates=%d skipped=%d removed=%d duration_ms=%d status=%s\n",
			r.owner, c.Created, c.Unchanged, c.Renamed, c.Duplicates, c.Skipped, c.Removed,
			c.Duration.Milliseconds(), status(r.err))
	}
}

func counts(r *reconcile.Result) reconcile.Result {
	if r == nil {
		return reconcile.Result{}
	}
	return *r
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func envOr(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}
