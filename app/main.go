package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"
	"github.com/samber/lo"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/umputun/sms-spam/lib/smsspam"
)

type options struct {
	Train   trainCmd   `command:"train" description:"train model on labeled csv dataset and save the artifact"`
	Server  serverCmd  `command:"server" description:"run web server with classification api and ui"`
	Predict predictCmd `command:"predict" description:"classify messages passed as arguments"`

	Dbg bool `long:"dbg" env:"DEBUG" description:"debug mode"`
}

// normalizerOpts defines word lists of the text normalizer, must be the same for training and serving
type normalizerOpts struct {
	StopWords  string `long:"stop-words" env:"STOP_WORDS" description:"stop words file, one per line, embedded list if empty"`
	Dictionary string `long:"dictionary" env:"DICTIONARY" description:"root words file for stemmer, one per line, embedded list if empty"`
}

type trainCmd struct {
	Dataset     string  `long:"dataset" env:"DATASET" required:"true" description:"labeled csv dataset with text,label columns"`
	Model       string  `long:"model" env:"MODEL" default:"data/model.json" description:"output model artifact"`
	TestSize    float64 `long:"test-size" env:"TEST_SIZE" default:"0.2" description:"fraction of samples used for evaluation"`
	Seed        uint64  `long:"seed" env:"SEED" default:"42" description:"random seed of train/test split"`
	Stratify    bool    `long:"stratify" env:"STRATIFY" description:"keep class ratios in train and test parts"`
	MaxFeatures int     `long:"max-features" env:"MAX_FEATURES" default:"5000" description:"max vocabulary size"`
	Alpha       float64 `long:"alpha" env:"ALPHA" default:"1.0" description:"additive smoothing of naive bayes"`
	Report      string  `long:"report" env:"REPORT" description:"save evaluation report to yaml file"`
	Progress    bool    `long:"progress" env:"PROGRESS" description:"show progress bar while normalizing"`

	Normalizer normalizerOpts `group:"normalizer" env-namespace:"NORMALIZER"`
}

type serverCmd struct {
	Model      string        `long:"model" env:"MODEL" default:"data/model.json" description:"model artifact"`
	ListenAddr string        `long:"listen" env:"LISTEN" default:":8080" description:"listen address"`
	AuthPasswd string        `long:"auth" env:"AUTH" default:"" description:"basic auth password for user sms-spam, 'auto' to generate"`
	RateLimit  float64       `long:"rate-limit" env:"RATE_LIMIT" default:"50" description:"max requests per second per client"`
	Reload     bool          `long:"reload" env:"RELOAD" description:"reload model when the artifact file changes"`
	DBURL      string        `long:"db" env:"DB" default:"" description:"prediction history database, sqlite file or postgres url, disabled if empty"`
	InstanceID string        `long:"instance-id" env:"INSTANCE_ID" default:"sms-spam" description:"instance id, separates history of instances sharing a database"`
	Feedback   string        `long:"feedback" env:"FEEDBACK" default:"" description:"feedback csv file for corrected labels, disabled if empty"`
	Timeout    time.Duration `long:"db-timeout" env:"DB_TIMEOUT" default:"30s" description:"max time to wait for the database"`

	Cache struct {
		Size int           `long:"size" env:"SIZE" default:"1000" description:"max cached predictions, 0 to disable"`
		TTL  time.Duration `long:"ttl" env:"TTL" default:"1h" description:"ttl of cached predictions"`
	} `group:"cache" namespace:"cache" env-namespace:"CACHE"`

	Logger struct {
		Enabled    bool   `long:"enabled" env:"ENABLED" description:"enable rotated predictions log"`
		FileName   string `long:"file" env:"FILE" default:"sms-spam.log" description:"location of predictions log"`
		MaxSize    string `long:"max-size" env:"MAX_SIZE" default:"100M" description:"maximum size before it gets rotated"`
		MaxBackups int    `long:"max-backups" env:"MAX_BACKUPS" default:"10" description:"maximum number of old log files to retain"`
	} `group:"logger" namespace:"logger" env-namespace:"LOGGER"`

	Normalizer normalizerOpts `group:"normalizer" env-namespace:"NORMALIZER"`
}

type predictCmd struct {
	Model      string         `long:"model" env:"MODEL" default:"data/model.json" description:"model artifact"`
	Normalizer normalizerOpts `group:"normalizer" env-namespace:"NORMALIZER"`
	Args       struct {
		Texts []string `positional-arg-name:"TEXT" required:"1"`
	} `positional-args:"yes"`
}

var revision = "local"

func main() {
	fmt.Printf("sms-spam %s\n", revision)
	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		var flagsErr *flags.Error
		if !errors.As(err, &flagsErr) || flagsErr.Type != flags.ErrHelp {
			log.Printf("[ERROR] cli error: %v", err)
		}
		os.Exit(2)
	}

	setupLog(opts.Dbg, opts.Server.AuthPasswd)
	log.Printf("[DEBUG] options: %+v", opts)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// catch signal and invoke graceful termination
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		log.Printf("[WARN] interrupt signal")
		cancel()
	}()

	if err := execute(ctx, p.Active.Name, opts); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

// execute runs the active command
func execute(ctx context.Context, cmd string, opts options) error {
	switch cmd {
	case "train":
		_, err := runTrain(ctx, opts.Train, os.Stdout)
		return err
	case "server":
		return runServer(ctx, opts.Server)
	case "predict":
		return runPredict(opts.Predict, os.Stdout)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// runPredict classifies every argument and prints label<TAB>text lines
func runPredict(cmd predictCmd, out io.Writer) error {
	normalizer, err := makeNormalizer(cmd.Normalizer)
	if err != nil {
		return err
	}
	pipeline, err := smsspam.LoadFile(cmd.Model, normalizer)
	if err != nil {
		return err
	}
	for _, text := range cmd.Args.Texts {
		res, err := pipeline.Predict(text)
		if err != nil {
			return fmt.Errorf("can't classify %q: %w", text, err)
		}
		if res.OutOfVocabulary {
			log.Printf("[WARN] no known terms in %q, label by class priors only", text)
		}
		if _, err := fmt.Fprintf(out, "%s\t%s\n", res.Label, text); err != nil {
			return fmt.Errorf("can't write result: %w", err)
		}
	}
	return nil
}

// makeNormalizer makes normalizer with word lists from files, embedded lists used for empty names
func makeNormalizer(opts normalizerOpts) (*smsspam.Normalizer, error) {
	load := func(file string, def func() smsspam.WordSet, loader func(io.Reader) (smsspam.WordSet, error)) (smsspam.WordSet, error) {
		if file == "" {
			return def(), nil
		}
		fh, err := os.Open(file) //nolint:gosec // file name from cli options
		if err != nil {
			return smsspam.WordSet{}, fmt.Errorf("can't open %s: %w", file, err)
		}
		defer fh.Close()
		res, err := loader(fh)
		if err != nil {
			return smsspam.WordSet{}, fmt.Errorf("can't read %s: %w", file, err)
		}
		log.Printf("[INFO] loaded %d words from %s", res.Len(), file)
		return res, nil
	}

	stopWords, err := load(opts.StopWords, smsspam.DefaultStopWords, smsspam.LoadStopWords)
	if err != nil {
		return nil, fmt.Errorf("can't load stop words: %w", err)
	}
	dict, err := load(opts.Dictionary, smsspam.DefaultDictionary, smsspam.LoadDictionary)
	if err != nil {
		return nil, fmt.Errorf("can't load dictionary: %w", err)
	}
	return smsspam.NewNormalizer(stopWords, smsspam.NewStemmer(dict)), nil
}

// makePredictionLogWriter creates predictions log writer to keep every served prediction
// it parses options and makes lumberjack logger with rotation
func makePredictionLogWriter(cmd serverCmd) (io.WriteCloser, error) {
	if !cmd.Logger.Enabled {
		return nopWriteCloser{io.Discard}, nil
	}

	maxSize, err := sizeParse(cmd.Logger.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("can't parse logger MaxSize: %w", err)
	}
	maxSize /= 1048576

	log.Printf("[INFO] predictions logger enabled for %s, max size %dM", cmd.Logger.FileName, maxSize)
	return &lumberjack.Logger{
		Filename:   cmd.Logger.FileName,
		MaxSize:    int(maxSize), //nolint:gosec // size in MB fits int
		MaxBackups: cmd.Logger.MaxBackups,
		Compress:   true,
		LocalTime:  true,
	}, nil
}

// sizeParse converts size with optional k/m/g/t suffix to bytes
func sizeParse(inp string) (uint64, error) {
	if inp == "" {
		return 0, errors.New("empty value")
	}
	for i, sfx := range []string{"k", "m", "g", "t"} {
		if strings.HasSuffix(strings.ToLower(inp), sfx) {
			val, err := strconv.Atoi(inp[:len(inp)-1])
			if err != nil {
				return 0, fmt.Errorf("can't parse %s: %w", inp, err)
			}
			return uint64(float64(val) * math.Pow(float64(1024), float64(i+1))), nil
		}
	}
	return strconv.ParseUint(inp, 10, 64)
}

type nopWriteCloser struct{ io.Writer }

func (n nopWriteCloser) Close() error { return nil }

func setupLog(dbg bool, secrets ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	secrets = lo.Filter(secrets, func(s string, _ int) bool { return s != "" && s != "auto" })
	if len(secrets) > 0 {
		logOpts = append(logOpts, lgr.Secret(secrets...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
