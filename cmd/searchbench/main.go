package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/pflag"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"github.com/domino14/kibitz/config"
	"github.com/domino14/kibitz/game"
	"github.com/domino14/kibitz/minichess"
	"github.com/domino14/kibitz/search/negamax"
	"github.com/domino14/kibitz/search/tt"
	"github.com/domino14/kibitz/stats"
)

type benchOptions struct {
	fen      string
	depth    int
	runs     int
	budget   time.Duration
	verbose  bool
	histBins int
}

type summary struct {
	Mean   float64 `yaml:"mean"`
	Stdev  float64 `yaml:"stdev"`
	CI95   float64 `yaml:"ci95"`
	Median float64 `yaml:"median"`
	P90    float64 `yaml:"p90"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
}

type report struct {
	RunID      string             `yaml:"run-id"`
	FEN        string             `yaml:"fen"`
	Depth      int                `yaml:"depth"`
	Runs       int                `yaml:"runs"`
	Threads    int                `yaml:"threads"`
	Move       string             `yaml:"move"`
	Score      int                `yaml:"score"`
	PV         string             `yaml:"pv"`
	Status     string             `yaml:"status"`
	Consistent bool               `yaml:"consistent"`
	Mismatches []string           `yaml:"mismatches,omitempty"`
	TotalNodes string             `yaml:"total-nodes"`
	ElapsedMs  summary            `yaml:"elapsed-ms"`
	Nodes      summary            `yaml:"nodes"`
	LastSearch negamax.Statistics `yaml:"last-search"`

	nodeCounts []float64
}

func summarize(vals []float64) summary {
	var st stats.Statistic
	for _, v := range vals {
		st.Push(v)
	}
	sorted := slices.Clone(vals)
	slices.Sort(sorted)
	return summary{
		Mean:   st.Mean(),
		Stdev:  st.Stdev(),
		CI95:   st.ConfidenceInterval(95),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P90:    stat.Quantile(0.9, stat.Empirical, sorted, nil),
		Min:    st.Min(),
		Max:    st.Max(),
	}
}

// newTable allocates a table for cfg, warmed from cfg.TTSnapshotPath if a
// snapshot is there.
func newTable(cfg config.Config) (*tt.TranspositionTable, error) {
	table, err := negamax.NewTableForConfig(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.TTSnapshotPath == "" {
		return table, nil
	}
	err = table.LoadFile(cfg.TTSnapshotPath)
	if errors.Is(err, fs.ErrNotExist) {
		log.Info().Str("path", cfg.TTSnapshotPath).Msg("no-tt-snapshot-starting-cold")
		return table, nil
	}
	return table, err
}

// bench searches opts.fen opts.runs times, each with a fresh solver and
// table, and checks that every run agrees on the move and score.
func bench(ctx context.Context, cfg config.Config, opts benchOptions) (*report, error) {
	if opts.runs < 1 {
		return nil, fmt.Errorf("runs must be at least 1, got %d", opts.runs)
	}
	if _, err := minichess.FromFEN(opts.fen); err != nil {
		return nil, err
	}
	rep := &report{
		RunID:      uuid.New().String(),
		FEN:        opts.fen,
		Depth:      opts.depth,
		Runs:       opts.runs,
		Threads:    cfg.Threads,
		Consistent: true,
	}
	var first negamax.Result
	var table *tt.TranspositionTable
	var elapsed []float64
	var total uint64
	for i := 0; i < opts.runs; i++ {
		pos, _ := minichess.FromFEN(opts.fen)
		t, err := newTable(cfg)
		if err != nil {
			return nil, err
		}
		table = t
		solver, err := negamax.NewSolver(cfg, table, minichess.Evaluator{})
		if err != nil {
			return nil, err
		}
		res, err := solver.Search(ctx, pos, opts.depth, opts.budget)
		if err != nil {
			return nil, err
		}
		log.Debug().Int("run", i).Str("move", minichess.MoveString(res.Move)).
			Int("score", res.Score).Int("depth", res.Depth).Msg("run-complete")
		if i == 0 {
			first = res
		} else if res.Move != first.Move || res.Score != first.Score {
			rep.Consistent = false
			rep.Mismatches = append(rep.Mismatches, fmt.Sprintf("run %d: %s %d",
				i, minichess.MoveString(res.Move), res.Score))
		}
		elapsed = append(elapsed, float64(res.Stats.Elapsed.Microseconds())/1000)
		nodes := res.Stats.Nodes + res.Stats.QuiescenceNodes + res.Stats.HelperNodes
		rep.nodeCounts = append(rep.nodeCounts, float64(nodes))
		total += nodes
		rep.LastSearch = res.Stats
	}

	moves := lo.Map(first.PV, func(m game.Move, _ int) string {
		return minichess.MoveString(m)
	})
	rep.Move = minichess.MoveString(first.Move)
	rep.Score = first.Score
	rep.PV = strings.Join(moves, " ")
	rep.Status = first.Status.String()
	rep.TotalNodes = message.NewPrinter(language.English).Sprintf("%d", total)
	rep.ElapsedMs = summarize(elapsed)
	rep.Nodes = summarize(rep.nodeCounts)

	if cfg.TTSnapshotPath != "" {
		if err := table.SaveFile(cfg.TTSnapshotPath); err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.TTSnapshotPath).Int("entries", table.Size()).Msg("tt-snapshot-saved")
	}
	return rep, nil
}

func (r *report) write(w io.Writer, bins int) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if bins < 1 || r.Nodes.Min == r.Nodes.Max {
		return nil
	}
	fmt.Fprintln(w, "# nodes per run")
	return histogram.Fprint(w, histogram.Hist(bins, r.nodeCounts), histogram.Linear(40))
}

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()

	flags := pflag.NewFlagSet("searchbench", pflag.ExitOnError)
	var opts benchOptions
	flags.StringVar(&opts.fen, "fen", minichess.StartFEN, "position to search")
	flags.IntVar(&opts.depth, "depth", 6, "maximum search depth")
	flags.IntVar(&opts.runs, "runs", 10, "number of searches")
	flags.DurationVar(&opts.budget, "budget", 0, "time budget per search, 0 for none")
	flags.BoolVar(&opts.verbose, "verbose", false, "debug logging")
	flags.IntVar(&opts.histBins, "hist-bins", 10, "histogram buckets, 0 to skip")

	cfg, err := config.Load(flags, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if opts.verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := bench(ctx, cfg, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("bench-failed")
	}
	if err := rep.write(os.Stdout, opts.histBins); err != nil {
		log.Fatal().Err(err).Msg("report-failed")
	}
	if !rep.Consistent {
		os.Exit(1)
	}
}
