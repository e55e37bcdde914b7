package config

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/domino14/kibitz/search/tt"
)

var ErrInvalidConfig = errors.New("invalid search config")

const (
	// MaxKillerSlots bounds KillerSlots; the killer table is a fixed array.
	MaxKillerSlots = 4

	minTTEntries = 1 << 10
)

// Weights are the base scores of the move ordering tiers. They must be
// strictly decreasing from PV down to HistoryMax.
type Weights struct {
	PV                   int `mapstructure:"pv" yaml:"pv"`
	TTMove               int `mapstructure:"tt-move" yaml:"tt-move"`
	GoodCapture          int `mapstructure:"good-capture" yaml:"good-capture"`
	Killer               int `mapstructure:"killer" yaml:"killer"`
	HistoryMax           int `mapstructure:"history-max" yaml:"history-max"`
	LosingCapturePenalty int `mapstructure:"losing-capture-penalty" yaml:"losing-capture-penalty"`
}

type Config struct {
	TTEntries             int     `mapstructure:"tt-entries" yaml:"tt-entries"`
	TTMemoryFraction      float64 `mapstructure:"tt-memory-fraction" yaml:"tt-memory-fraction"`
	ReplacementPolicy     string  `mapstructure:"replacement-policy" yaml:"replacement-policy"`
	UseTranspositionTable bool    `mapstructure:"use-transposition-table" yaml:"use-transposition-table"`
	TTSnapshotPath        string  `mapstructure:"tt-snapshot-path" yaml:"tt-snapshot-path"`

	AspirationEnabled    bool `mapstructure:"aspiration-enabled" yaml:"aspiration-enabled"`
	AspirationWindow     int  `mapstructure:"aspiration-window" yaml:"aspiration-window"`
	AspirationMaxRetries int  `mapstructure:"aspiration-max-retries" yaml:"aspiration-max-retries"`

	NullMoveEnabled     bool `mapstructure:"null-move-enabled" yaml:"null-move-enabled"`
	NullMoveMinDepth    int  `mapstructure:"null-move-min-depth" yaml:"null-move-min-depth"`
	NullMoveReduction   int  `mapstructure:"null-move-reduction" yaml:"null-move-reduction"`
	NullMoveMinMaterial int  `mapstructure:"null-move-min-material" yaml:"null-move-min-material"`

	LMREnabled        bool `mapstructure:"lmr-enabled" yaml:"lmr-enabled"`
	LMRMinDepth       int  `mapstructure:"lmr-min-depth" yaml:"lmr-min-depth"`
	LMRFullDepthMoves int  `mapstructure:"lmr-full-depth-moves" yaml:"lmr-full-depth-moves"`

	QuiescenceEnabled  bool `mapstructure:"quiescence-enabled" yaml:"quiescence-enabled"`
	QuiescenceMaxDepth int  `mapstructure:"quiescence-max-depth" yaml:"quiescence-max-depth"`

	KillerSlots        int     `mapstructure:"killer-slots" yaml:"killer-slots"`
	Weights            Weights `mapstructure:"weights" yaml:"weights"`
	MoveScoreCacheSize int     `mapstructure:"move-score-cache-size" yaml:"move-score-cache-size"`

	Threads           int `mapstructure:"threads" yaml:"threads"`
	TimeCheckInterval int `mapstructure:"time-check-interval" yaml:"time-check-interval"`
}

func DefaultConfig() Config {
	return Config{
		TTEntries:             1 << 20,
		ReplacementPolicy:     tt.DepthPreferred.String(),
		UseTranspositionTable: true,

		AspirationEnabled:    true,
		AspirationWindow:     50,
		AspirationMaxRetries: 4,

		NullMoveEnabled:     true,
		NullMoveMinDepth:    3,
		NullMoveReduction:   2,
		NullMoveMinMaterial: 300,

		LMREnabled:        true,
		LMRMinDepth:       3,
		LMRFullDepthMoves: 3,

		QuiescenceEnabled:  true,
		QuiescenceMaxDepth: 8,

		KillerSlots: 2,
		Weights: Weights{
			PV:                   1_000_000,
			TTMove:               900_000,
			GoodCapture:          100_000,
			Killer:               90_000,
			HistoryMax:           50_000,
			LosingCapturePenalty: 200_000,
		},
		MoveScoreCacheSize: 1 << 14,

		Threads:           1,
		TimeCheckInterval: 1024,
	}
}

// Policy returns the parsed replacement policy.
func (c Config) Policy() (tt.Policy, error) {
	return tt.ParsePolicy(c.ReplacementPolicy)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var errs []error
	if c.TTEntries < minTTEntries {
		errs = append(errs, invalid("tt-entries %d is below %d", c.TTEntries, minTTEntries))
	}
	if c.TTMemoryFraction < 0 || c.TTMemoryFraction > 0.9 {
		errs = append(errs, invalid("tt-memory-fraction %v not in [0, 0.9]", c.TTMemoryFraction))
	}
	if _, err := c.Policy(); err != nil {
		errs = append(errs, invalid("%v", err))
	}
	if c.AspirationWindow <= 0 {
		errs = append(errs, invalid("aspiration-window must be positive, got %d", c.AspirationWindow))
	}
	if c.AspirationMaxRetries < 0 {
		errs = append(errs, invalid("aspiration-max-retries must not be negative, got %d", c.AspirationMaxRetries))
	}
	if c.NullMoveMinDepth < 1 || c.NullMoveReduction < 1 || c.NullMoveMinMaterial < 0 {
		errs = append(errs, invalid("null-move parameters out of range (min depth %d, reduction %d, min material %d)",
			c.NullMoveMinDepth, c.NullMoveReduction, c.NullMoveMinMaterial))
	}
	if c.LMRMinDepth < 2 || c.LMRFullDepthMoves < 1 {
		errs = append(errs, invalid("lmr parameters out of range (min depth %d, full depth moves %d)",
			c.LMRMinDepth, c.LMRFullDepthMoves))
	}
	if c.QuiescenceMaxDepth < 0 {
		errs = append(errs, invalid("quiescence-max-depth must not be negative, got %d", c.QuiescenceMaxDepth))
	}
	if c.KillerSlots < 1 || c.KillerSlots > MaxKillerSlots {
		errs = append(errs, invalid("killer-slots %d not in [1, %d]", c.KillerSlots, MaxKillerSlots))
	}
	if c.MoveScoreCacheSize <= 0 || bits.OnesCount(uint(c.MoveScoreCacheSize)) != 1 {
		errs = append(errs, invalid("move-score-cache-size %d is not a power of two", c.MoveScoreCacheSize))
	}
	if err := c.Weights.validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Threads < 1 {
		errs = append(errs, invalid("threads must be at least 1, got %d", c.Threads))
	}
	if c.TimeCheckInterval < 1 {
		errs = append(errs, invalid("time-check-interval must be at least 1, got %d", c.TimeCheckInterval))
	}
	return errors.Join(errs...)
}

func (w Weights) validate() error {
	// Killers are scored Killer+slots and captures GoodCapture+SEE, so leave
	// room for MaxKillerSlots between the killer and capture tiers.
	ok := w.PV > w.TTMove &&
		w.TTMove > w.GoodCapture &&
		w.GoodCapture > w.Killer+MaxKillerSlots &&
		w.Killer > w.HistoryMax &&
		w.HistoryMax > 0 &&
		w.LosingCapturePenalty > w.HistoryMax
	if !ok {
		return invalid("ordering weights must satisfy pv > tt-move > good-capture > killer > history-max > 0 "+
			"and losing-capture-penalty > history-max, got %+v", w)
	}
	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("tt-entries", c.TTEntries)
	v.SetDefault("tt-memory-fraction", c.TTMemoryFraction)
	v.SetDefault("replacement-policy", c.ReplacementPolicy)
	v.SetDefault("use-transposition-table", c.UseTranspositionTable)
	v.SetDefault("tt-snapshot-path", c.TTSnapshotPath)
	v.SetDefault("aspiration-enabled", c.AspirationEnabled)
	v.SetDefault("aspiration-window", c.AspirationWindow)
	v.SetDefault("aspiration-max-retries", c.AspirationMaxRetries)
	v.SetDefault("null-move-enabled", c.NullMoveEnabled)
	v.SetDefault("null-move-min-depth", c.NullMoveMinDepth)
	v.SetDefault("null-move-reduction", c.NullMoveReduction)
	v.SetDefault("null-move-min-material", c.NullMoveMinMaterial)
	v.SetDefault("lmr-enabled", c.LMREnabled)
	v.SetDefault("lmr-min-depth", c.LMRMinDepth)
	v.SetDefault("lmr-full-depth-moves", c.LMRFullDepthMoves)
	v.SetDefault("quiescence-enabled", c.QuiescenceEnabled)
	v.SetDefault("quiescence-max-depth", c.QuiescenceMaxDepth)
	v.SetDefault("killer-slots", c.KillerSlots)
	v.SetDefault("weights.pv", c.Weights.PV)
	v.SetDefault("weights.tt-move", c.Weights.TTMove)
	v.SetDefault("weights.good-capture", c.Weights.GoodCapture)
	v.SetDefault("weights.killer", c.Weights.Killer)
	v.SetDefault("weights.history-max", c.Weights.HistoryMax)
	v.SetDefault("weights.losing-capture-penalty", c.Weights.LosingCapturePenalty)
	v.SetDefault("move-score-cache-size", c.MoveScoreCacheSize)
	v.SetDefault("threads", c.Threads)
	v.SetDefault("time-check-interval", c.TimeCheckInterval)
}

// Load builds a Config from, in increasing priority: defaults, an optional
// YAML file named by --config, KIBITZ_* environment variables, and flags.
// The search flags are added to fs, so callers can register their own flags
// first and read them once Load returns.
func Load(fs *pflag.FlagSet, args []string) (Config, error) {
	defaults := DefaultConfig()
	if fs == nil {
		fs = pflag.NewFlagSet("kibitz", pflag.ContinueOnError)
	}
	configFile := fs.String("config", "", "path to a YAML search config")
	fs.Int("tt-entries", defaults.TTEntries, "transposition table entries")
	fs.Float64("tt-memory-fraction", defaults.TTMemoryFraction, "size the transposition table as a fraction of system memory instead")
	fs.String("replacement-policy", defaults.ReplacementPolicy, "always-replace, depth-preferred or age-based")
	fs.String("tt-snapshot-path", defaults.TTSnapshotPath, "load and save the transposition table here")
	fs.Int("threads", defaults.Threads, "search threads")
	fs.Int("aspiration-window", defaults.AspirationWindow, "initial aspiration half-width")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v, defaults)
	v.SetEnvPrefix("KIBITZ")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	for _, name := range []string{"tt-entries", "tt-memory-fraction", "replacement-policy",
		"tt-snapshot-path", "threads", "aspiration-window"} {
		if err := v.BindPFlag(name, fs.Lookup(name)); err != nil {
			return Config{}, err
		}
	}
	if *configFile != "" {
		v.SetConfigFile(*configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading %s: %w", *configFile, err)
		}
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("config-file-loaded")
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
