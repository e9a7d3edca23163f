package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/subcommands"
	"github.com/pkg/errors"

	"github.com/jitsdp/jitsdp-runner/internal/battery"
	"github.com/jitsdp/jitsdp-runner/internal/events"
	"github.com/jitsdp/jitsdp-runner/internal/metrics"
	"github.com/jitsdp/jitsdp-runner/internal/report"
	"github.com/jitsdp/jitsdp-runner/internal/tracking"
	"github.com/jitsdp/jitsdp-runner/internal/tuning"
)

var ErrUnknownOutputFormat = errors.New("unknown output format")

func (a *App) data() []subcommands.Command {
	return []subcommands.Command{
		&generateCmd{command: a.command("generate", "generate the hyperparameter tuning or testing battery")},
		&eventsCmd{command: a.command("events", "turn a commit dataset into training events", "events [flags] <commits.csv>\n")},
		&evaluateCmd{command: a.command("evaluate", "compute prequential metrics of a results file", "evaluate [flags] <results.csv>\n")},
		&reportCmd{command: a.command("report", "plot metrics, efficiency curves and testing box plots", "report [flags] [results.csv]...\n")},
	}
}

type generateCmd struct {
	command
	first, last    int
	crossProject   bool
	format         string
	out            string
	dataDir        string
	tool           string
	experimentName string
	testing        bool
	tuningName     string
	testingStart   int
	testingEnd     int
}

func (c *generateCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.first, "start", 0, "first index of the sampled configurations")
	f.IntVar(&c.last, "end", 0, "index after the last sampled configuration")
	f.BoolVar(&c.crossProject, "cross-project", false, "also generate cross-project experiments")
	f.StringVar(&c.format, "format", "yaml", "output format, yaml or shell")
	f.StringVar(&c.out, "o", "", "output file, stdout when empty")
	f.StringVar(&c.dataDir, "data", "", "directory of <dataset>.csv files used to rescale the borb max sample size")
	f.StringVar(&c.tool, "tool", "./jitsdp", "executable of the shell lines")
	f.StringVar(&c.experimentName, "experiment-name", "", "experiment name passed to every invocation")
	f.BoolVar(&c.testing, "testing", false, "generate the testing battery from the best tracked tuning configurations")
	f.StringVar(&c.tuningName, "tuning-experiment-name", "tuning", "tracked experiment of the tuning runs, with -testing")
	f.IntVar(&c.testingStart, "testing-start", tuning.TestingStart, "first evaluated commit, with -testing")
	f.IntVar(&c.testingEnd, "testing-end", tuning.TestingEnd, "commit after the last evaluated one, with -testing")
}

func (c *generateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.testing && c.last <= c.first {
		fmt.Fprintln(c.app.Stderr, "generate: -end must be greater than -start")

		return subcommands.ExitUsageError
	}
	cfg, logger, ok := c.start()
	if !ok {
		return subcommands.ExitFailure
	}

	var b battery.Battery
	var err error
	if c.testing {
		b, err = c.testingBattery(ctx, cfg.Tracking.Database)
	} else {
		opts := tuning.Options{CrossProject: c.crossProject, Start: c.first, End: c.last, ExperimentName: c.experimentName}
		if c.dataDir != "" {
			opts.TrainSize = datasetTrainSize(c.dataDir)
		}
		b, err = tuning.Generate(opts)
	}
	if err != nil {
		return fail(logger, err)
	}

	var write func(io.Writer) error
	switch c.format {
	case "yaml":
		write = func(w io.Writer) error { return battery.Write(w, b) }
	case "shell":
		write = func(w io.Writer) error { return tuning.WriteShell(w, c.tool, b) }
	default:
		return fail(logger, errors.Wrap(ErrUnknownOutputFormat, c.format))
	}
	if err := writeTo(c.out, c.app.Stdout, write); err != nil {
		return fail(logger, err)
	}
	logger.Info().Int("groups", len(b)).Msg("battery generated")

	return subcommands.ExitSuccess
}

// testingBattery reruns, over the testing window, the best configuration of
// every experiment and dataset among the succeeded tuning runs.
func (c *generateCmd) testingBattery(ctx context.Context, database string) (battery.Battery, error) {
	store, err := tracking.Open(database)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	runs, err := store.Runs(ctx, c.tuningName)
	if err != nil {
		return nil, err
	}
	trials, err := tuningTrials(runs)
	if err != nil {
		return nil, err
	}
	if len(trials) == 0 {
		return nil, errors.Wrap(tuning.ErrNoTrials, c.tuningName)
	}

	return tuning.TestingBattery(tuning.BestConfigs(trials), tuning.TestingOptions{
		Start:          c.testingStart,
		End:            c.testingEnd,
		ExperimentName: c.experimentName,
	})
}

// tuningTrials keeps the succeeded runs that logged a g-mean.
func tuningTrials(runs []tracking.Run) ([]tuning.Trial, error) {
	var trials []tuning.Trial
	for _, r := range runs {
		gmean, ok := r.Metrics[metrics.NameGMean]
		if !ok || r.Status != tracking.StatusSucceeded {
			continue
		}
		config, err := battery.ParseArgs(r.Args)
		if err != nil {
			return nil, errors.Wrapf(err, "run %s", r.ID)
		}
		trials = append(trials, tuning.Trial{MetaModel: r.Subcommand, Config: config, GMean: gmean})
	}

	return trials, nil
}

func loadDataset(dir, dataset string) ([]events.Commit, error) {
	f, err := os.Open(filepath.Join(dir, dataset+".csv"))
	if err != nil {
		return nil, errors.Wrapf(err, "dataset %s", dataset)
	}
	defer f.Close()

	commits, err := events.LoadCommits(f)

	return commits, errors.Wrapf(err, "dataset %s", dataset)
}

// datasetTrainSize counts the training events of a tuning configuration
// from the datasets stored in dir.
func datasetTrainSize(dir string) tuning.TrainSizer {
	return func(config battery.Flags) (int, error) {
		dataset, _ := config.Get("dataset")
		commits, err := loadDataset(dir, dataset)
		if err != nil {
			return 0, err
		}

		end, err := intFlag(config, "end")
		if err != nil {
			return 0, err
		}
		waitingDays, err := intFlag(config, "borb-waiting-time")
		if err != nil {
			return 0, err
		}
		test := commits[:min(end, len(commits))]

		train := test
		if cp, _ := config.Get("cross-project"); cp == "1" {
			for _, other := range tuning.Datasets {
				if other == dataset {
					continue
				}
				others, err := loadDataset(dir, other)
				if err != nil {
					return 0, err
				}
				train = events.MergeCrossProject(train, others)
			}
		}

		prepared, err := events.Prepare(test, train, events.Options{WaitingDays: waitingDays, NoiseN: defaultNoiseN})
		if err != nil {
			return 0, errors.Wrapf(err, "dataset %s", dataset)
		}

		return len(prepared.Events), nil
	}
}

func intFlag(config battery.Flags, name string) (int, error) {
	v, ok := config.Get(name)
	if !ok {
		return 0, errors.Errorf("%s is not set", name)
	}
	n, err := strconv.Atoi(v)

	return n, errors.Wrap(err, name)
}

const (
	defaultWaitingDays = 90
	defaultNoiseN      = 3
)

type eventsCmd struct {
	command
	train       string
	others      string
	end         int
	waitingDays int
	noiseN      int
	keepNoise   bool
	keepOrder   bool
	out         string
	schedule    string
}

func (c *eventsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.train, "train", "", "commits to train on, the tested commits when empty")
	f.StringVar(&c.others, "others", "", "comma separated commit files of other projects merged into the training commits")
	f.IntVar(&c.end, "end", 0, "number of commits kept, all when 0")
	f.IntVar(&c.waitingDays, "waiting-days", defaultWaitingDays, "days before a commit without fix is labelled clean")
	f.IntVar(&c.noiseN, "noise-n", defaultNoiseN, "clean occurrences that make a defective label noise")
	f.BoolVar(&c.keepNoise, "keep-noise", false, "keep noisy defective events")
	f.BoolVar(&c.keepOrder, "keep-order", false, "do not pair defective events with clean ones")
	f.StringVar(&c.out, "o", "", "events output file, stdout when empty")
	f.StringVar(&c.schedule, "schedule", "", "write the train/test schedule to this file")
}

func readCommits(path string) ([]events.Commit, error) {
	rc, err := open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	commits, err := events.LoadCommits(rc)

	return commits, errors.Wrap(err, path)
}

func (c *eventsCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(c.app.Stderr, c.Usage())

		return subcommands.ExitUsageError
	}
	_, logger, ok := c.start()
	if !ok {
		return subcommands.ExitFailure
	}

	test, err := readCommits(f.Arg(0))
	if err != nil {
		return fail(logger, err)
	}
	if c.end > 0 {
		test = test[:min(c.end, len(test))]
	}
	train := test
	if c.train != "" {
		if train, err = readCommits(c.train); err != nil {
			return fail(logger, err)
		}
	}
	if c.others != "" {
		for _, p := range strings.Split(c.others, ",") {
			others, err := readCommits(strings.TrimSpace(p))
			if err != nil {
				return fail(logger, err)
			}
			train = events.MergeCrossProject(train, others)
		}
	}

	prepared, err := events.Prepare(test, train, events.Options{
		WaitingDays: c.waitingDays,
		NoiseN:      c.noiseN,
		KeepNoise:   c.keepNoise,
		KeepOrder:   c.keepOrder,
	})
	if err != nil {
		return fail(logger, err)
	}

	if err := writeTo(c.out, c.app.Stdout, func(w io.Writer) error { return events.WriteEvents(w, prepared.Events) }); err != nil {
		return fail(logger, err)
	}
	if c.schedule != "" {
		err := writeTo(c.schedule, c.app.Stdout, func(w io.Writer) error {
			for _, b := range prepared.Schedule {
				if _, err := fmt.Fprintf(w, "%s %d\n", b.Kind, b.Size); err != nil {
					return errors.Wrap(err, "write schedule")
				}
			}

			return nil
		})
		if err != nil {
			return fail(logger, err)
		}
	}
	logger.Info().Int("commits", len(test)).Int("events", len(prepared.Events)).Int("batches", len(prepared.Schedule)).Msg("events prepared")

	return subcommands.ExitSuccess
}

// metricFlags are shared by evaluate and report.
type metricFlags struct {
	fading float64
	th     float64
}

func (m *metricFlags) set(f *flag.FlagSet) {
	f.Float64Var(&m.fading, "fading", .99, "fading factor of the prequential metrics")
	f.Float64Var(&m.th, "th", .5, "expected share of defect predictions")
}

func (m metricFlags) rows(path string) ([]metrics.Row, error) {
	rc, err := open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	results, err := metrics.ReadResults(rc)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}

	return metrics.Prequential(results, m.fading, m.th)
}

type evaluateCmd struct {
	command
	metrics metricFlags
	run     string
}

func (c *evaluateCmd) SetFlags(f *flag.FlagSet) {
	c.metrics.set(f)
	f.StringVar(&c.run, "run", "", "tracking run id receiving the metrics")
}

func (c *evaluateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(c.app.Stderr, c.Usage())

		return subcommands.ExitUsageError
	}
	cfg, logger, ok := c.start()
	if !ok {
		return subcommands.ExitFailure
	}

	rows, err := c.metrics.rows(f.Arg(0))
	if err != nil {
		return fail(logger, err)
	}
	summary := metrics.Summarize(rows)
	for _, name := range metrics.Names {
		fmt.Fprintf(c.app.Stdout, "%s\t%.4f\n", name, summary[name])
	}

	if c.run != "" {
		store, err := tracking.Open(cfg.Tracking.Database)
		if err != nil {
			return fail(logger, err)
		}
		defer store.Close()
		if err := store.LogMetrics(ctx, c.run, summary); err != nil {
			return fail(logger, err)
		}
	}

	return subcommands.ExitSuccess
}

type reportCmd struct {
	command
	metrics      metricFlags
	dir          string
	efficiency   bool
	testingName  string
	crossProject bool
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	c.metrics.set(f)
	f.StringVar(&c.dir, "dir", "plots", "output directory")
	f.BoolVar(&c.efficiency, "efficiency", false, "plot the efficiency curves of the tracked experiments")
	f.StringVar(&c.testingName, "testing-experiment-name", "", "tracked testing experiment drawn as box plots")
	f.BoolVar(&c.crossProject, "cross-project", false, "tell cross-project and within-project configurations apart in box plots")
}

func (c *reportCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 && !c.efficiency && c.testingName == "" {
		fmt.Fprint(c.app.Stderr, c.Usage())

		return subcommands.ExitUsageError
	}
	cfg, logger, ok := c.start()
	if !ok {
		return subcommands.ExitFailure
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fail(logger, errors.Wrap(err, "create output directory"))
	}

	for _, p := range f.Args() {
		rows, err := c.metrics.rows(p)
		if err != nil {
			return fail(logger, err)
		}
		name := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		err = writeTo(filepath.Join(c.dir, name+"-recalls.png"), c.app.Stdout, func(w io.Writer) error {
			return report.PlotRecalls(w, name, rows)
		})
		if err != nil {
			return fail(logger, err)
		}
		err = writeTo(filepath.Join(c.dir, name+"-proportions.png"), c.app.Stdout, func(w io.Writer) error {
			return report.PlotProportions(w, name, rows, c.metrics.th)
		})
		if err != nil {
			return fail(logger, err)
		}
		logger.Info().Str("results", p).Msg("plotted")
	}

	if c.efficiency {
		if err := c.plotEfficiency(ctx, cfg.Tracking.Database); err != nil {
			return fail(logger, err)
		}
	}
	if c.testingName != "" {
		if err := c.plotBoxplots(ctx, cfg.Tracking.Database); err != nil {
			return fail(logger, err)
		}
	}

	return subcommands.ExitSuccess
}

// plotEfficiency draws one curve per tracked experiment from the g-mean of
// its succeeded runs, in start order.
func (c *reportCmd) plotEfficiency(ctx context.Context, database string) error {
	store, err := tracking.Open(database)
	if err != nil {
		return err
	}
	defer store.Close()

	exps, err := store.Experiments(ctx)
	if err != nil {
		return err
	}
	curves := make(map[string][]report.Point)
	for _, e := range exps {
		runs, err := store.Runs(ctx, e.Name)
		if err != nil {
			return err
		}
		var gmeans []float64
		for _, r := range runs {
			if g, ok := r.Metrics[metrics.NameGMean]; ok && r.Status == tracking.StatusSucceeded {
				gmeans = append(gmeans, g)
			}
		}
		if len(gmeans) > 0 {
			curves[e.Name] = report.EfficiencyCurve(gmeans)
		}
	}

	return writeTo(filepath.Join(c.dir, "efficiency.png"), c.app.Stdout, func(w io.Writer) error {
		return report.PlotEfficiency(w, curves)
	})
}

// plotBoxplots draws, for each box metric, the values of the succeeded
// testing runs grouped by configuration name.
func (c *reportCmd) plotBoxplots(ctx context.Context, database string) error {
	store, err := tracking.Open(database)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs(ctx, c.testingName)
	if err != nil {
		return err
	}

	values := make(map[string]map[string][]float64, len(report.BoxMetrics))
	for _, m := range report.BoxMetrics {
		values[m] = make(map[string][]float64)
	}
	for _, r := range runs {
		if r.Status != tracking.StatusSucceeded {
			continue
		}
		config, err := battery.ParseArgs(r.Args)
		if err != nil {
			return errors.Wrapf(err, "run %s", r.ID)
		}
		name := tuning.ConfigName(r.Subcommand, config, c.crossProject)
		for _, m := range report.BoxMetrics {
			if v, ok := r.Metrics[m]; ok {
				values[m][name] = append(values[m][name], v)
			}
		}
	}

	plotted := 0
	for _, m := range report.BoxMetrics {
		if len(values[m]) == 0 {
			continue
		}
		err := writeTo(filepath.Join(c.dir, "boxplot-"+m+".png"), c.app.Stdout, func(w io.Writer) error {
			return report.PlotBoxplot(w, m, values[m])
		})
		if err != nil {
			return errors.Wrap(err, m)
		}
		plotted++
	}
	if plotted == 0 {
		return errors.Wrap(report.ErrNoData, c.testingName)
	}

	return nil
}
