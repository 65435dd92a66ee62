package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/memoryless"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/httpspeed/internal/config"
	"github.com/m-lab/httpspeed/internal/controller"
	"github.com/m-lab/httpspeed/internal/history"
	"github.com/m-lab/httpspeed/internal/kvstore"
	"github.com/m-lab/httpspeed/internal/persistence"
	"github.com/m-lab/httpspeed/pkg/client"
	"github.com/m-lab/httpspeed/pkg/speedtest/model"
	"github.com/m-lab/httpspeed/pkg/speedtest/spec"
	"github.com/m-lab/httpspeed/pkg/version"
)

const clientName = "speedtest-client"

var (
	flagConfig        = flag.String("config", "", "Path to a YAML configuration file")
	flagPingURL       = flag.String("ping", spec.DefaultPingURL, "Latency probe URL")
	flagDownloadURL   = flag.String("download", spec.DefaultDownloadURL, "Download probe URL ("+spec.BytesPlaceholder+" is replaced with the size)")
	flagUploadURL     = flag.String("upload", spec.DefaultUploadURL, "Upload probe URL")
	flagDownloadBytes = flag.Int64("download-bytes", spec.DefaultDownloadBytes, "Download size in bytes")
	flagUploadBytes   = flag.Int64("upload-bytes", spec.DefaultUploadBytes, "Upload size in bytes")
	flagTimeout       = flag.Duration("timeout", spec.DefaultTimeout, "Timeout for each request (0 to disable)")
	flagStore         = flag.String("store", kvstore.BackendFS, "History store backend (fs, sqlite or memory)")
	flagStorePath     = flag.String("store-path", "", "History store directory (fs) or database file (sqlite)")
	flagDataDir       = flag.String("datadir", "", "If set, directory to write client archival data to")
	flagMID           = flag.String("mid", "", "Measurement ID to use (default: a new UUID for each test)")
	flagCount         = flag.Int("count", 1, "Number of tests to run")
	flagInterval      = flag.Duration("interval", time.Minute, "Average interval between tests when count > 1")
	flagHistory       = flag.Bool("history", false, "Print the stored history and exit")
	flagNoVerify      = flag.Bool("no-verify", false, "Skip TLS certificate verification")
	flagDebug         = flag.Bool("debug", false, "Enable debug logging")
)

// setFlags returns the names of the flags set on the command line or via
// the environment.
func setFlags() map[string]bool {
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

// loadConfig reads the configuration file, if any, and applies the
// explicitly set flags on top of it.
func loadConfig() config.Config {
	cfg := config.Default()
	if *flagConfig != "" {
		var err error
		cfg, err = config.LoadConfig(*flagConfig)
		rtx.Must(err, "cannot load config from %s", *flagConfig)
	}
	set := setFlags()
	if *flagConfig == "" || set["ping"] {
		cfg.Endpoints.Ping = *flagPingURL
	}
	if *flagConfig == "" || set["download"] {
		cfg.Endpoints.Download = *flagDownloadURL
	}
	if *flagConfig == "" || set["upload"] {
		cfg.Endpoints.Upload = *flagUploadURL
	}
	if *flagConfig == "" || set["download-bytes"] {
		cfg.Transfer.DownloadBytes = *flagDownloadBytes
	}
	if *flagConfig == "" || set["upload-bytes"] {
		cfg.Transfer.UploadBytes = *flagUploadBytes
	}
	if *flagConfig == "" || set["timeout"] {
		d := config.Duration(*flagTimeout)
		cfg.Timeout = &d
	}
	if *flagConfig == "" || set["store"] {
		cfg.Store.Backend = *flagStore
		cfg.Store.Path = ""
	}
	if set["store-path"] {
		cfg.Store.Path = *flagStorePath
	}
	if set["datadir"] {
		cfg.DataDir = *flagDataDir
	}
	rtx.Must(cfg.Finalize(), "invalid configuration")
	return cfg
}

// runner is the Engine driven by the controller. It creates a client with
// a new measurement ID for every test and archives the outcome.
type runner struct {
	config  client.Config
	mid     string
	dataDir string
}

func (r *runner) RunFullTest(ctx context.Context) (model.TestResult, error) {
	cfg := r.config
	if r.mid != "" {
		cfg.MeasurementID = r.mid
	} else {
		cfg.MeasurementID = uuid.NewString()
	}
	cl := client.New(clientName, version.Version, cfg)
	log.Debug("starting test", "mid", cfg.MeasurementID)

	archive := model.ClientArchivalData{
		Version:       version.Version,
		MeasurementID: cfg.MeasurementID,
		StartTime:     time.Now(),
		PingURL:       cfg.PingURL,
		DownloadURL:   cfg.DownloadURL,
		UploadURL:     cfg.UploadURL,
		DownloadBytes: cfg.DownloadBytes,
		UploadBytes:   cfg.UploadBytes,
	}
	result, err := cl.RunFullTest(ctx)
	archive.EndTime = time.Now()
	if err != nil {
		archive.Failure = err.Error()
	} else {
		archive.Result = result
	}
	if r.dataDir != "" {
		df, werr := persistence.WriteDataFile(r.dataDir, spec.Datatype, "client",
			cfg.MeasurementID, archive)
		if werr != nil {
			log.Error("failed to write client archival data", "mid", cfg.MeasurementID,
				"error", werr)
		} else {
			log.Debug("archival data written", "path", df.Path)
		}
	}
	return result, err
}

func printHistory(h model.History) {
	fmt.Println()
	if len(h) == 0 {
		fmt.Println("No results yet.")
		return
	}
	fmt.Println("History (most recent first):")
	for _, r := range h {
		fmt.Printf("  %s  ping: %4d ms  download: %8.2f Mb/s  upload: %8.2f Mb/s\n",
			r.Timestamp, r.PingMS, r.DownloadMbps, r.UploadMbps)
	}
}

// wait blocks for a randomized interval around -interval. It returns false
// if ctx is canceled first.
func wait(ctx context.Context) bool {
	timer, err := memoryless.NewTimer(memoryless.Config{
		Min:      *flagInterval / 2,
		Expected: *flagInterval,
		Max:      *flagInterval * 2,
	})
	rtx.Must(err, "invalid interval")
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not parse env args")

	if *flagDebug {
		log.SetLevel(log.DebugLevel)
	}
	if *flagCount < 1 || *flagInterval <= 0 {
		log.Fatal("invalid count or interval", "count", *flagCount, "interval", *flagInterval)
	}

	cfg := loadConfig()
	kvs, err := kvstore.Open(cfg.Store.Backend, cfg.Store.Path)
	rtx.Must(err, "cannot open history store")
	closeStore := func() {}
	if c, ok := kvs.(io.Closer); ok {
		closeStore = func() { c.Close() }
	}
	defer closeStore()

	em := &controller.Emitter{Emitter: client.HumanReadable{Debug: *flagDebug}}
	clientConfig := cfg.ClientConfig()
	clientConfig.Emitter = em
	clientConfig.NoVerify = *flagNoVerify
	ctl := controller.New(&runner{
		config:  clientConfig,
		mid:     *flagMID,
		dataDir: cfg.DataDir,
	}, history.New(kvs))
	em.Controller = ctl

	if *flagHistory {
		printHistory(ctl.History())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	failures := 0
	for i := 0; i < *flagCount; i++ {
		if i > 0 {
			if !wait(ctx) {
				log.Info("interrupted", "completed", i)
				break
			}
		}
		if _, err := ctl.Run(ctx); err != nil {
			failures++
		}
	}
	printHistory(ctl.History())
	if failures > 0 {
		closeStore()
		os.Exit(1)
	}
}
