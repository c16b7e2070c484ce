package main

import(
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/abworrall/soss-contam/pkg/catalog"
	"github.com/abworrall/soss-contam/pkg/fieldsim"
	"github.com/abworrall/soss-contam/pkg/logger"
	"github.com/abworrall/soss-contam/pkg/skycoord"
)

var(
	fVerbosity int
	fRA string
	fDec string
	fCatalog string
	fModels string
	fConfig string
	fCompanion string
	fOutputDir string
	fPNG bool
	fTonemapper string
	fStep float64
	fWorkers int
	fLogFile string
)

func init() {
	flag.IntVar(&fVerbosity, "v", 0, "how verbose to get")
	flag.StringVar(&fRA, "ra", "", "target RA: sexagesimal hours, decimal hours ('4.42h'), or decimal degrees")
	flag.StringVar(&fDec, "dec", "", "target Dec, sexagesimal or decimal degrees")
	flag.StringVar(&fCatalog, "catalog", "", "YAML point source catalog around the target")
	flag.StringVar(&fModels, "models", "", "trace model directory (grid.yaml, field/, order1/, order2/)")
	flag.StringVar(&fConfig, "config", "", "YAML config file; defaults are used for anything it doesn't set")
	flag.StringVar(&fCompanion, "companion", "", "extra source, as 'dRA,dDec,J,H,K' (arcsec, arcsec, mags)")
	flag.StringVar(&fOutputDir, "o", "cube", "output directory")
	flag.BoolVar(&fPNG, "png", false, "write a false colour PNG of every plane")
	flag.StringVar(&fTonemapper, "tonemapper", "", "also write tonemapped PNGs: "+fieldsim.ListTonemappers())
	flag.Float64Var(&fStep, "step", 0, "position angle step, degrees (overrides the config)")
	flag.IntVar(&fWorkers, "workers", -1, "angles to composite in parallel; 0 means one per CPU")
	flag.StringVar(&fLogFile, "log", "", "also log to this file")
	flag.Parse()

	level := "info"
	if fVerbosity > 0 {
		level = "debug"
	}
	if err := logger.Init(level, fLogFile); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	logger.Sugar.Infof("soss-fieldsim starting")
}

func parseCompanion(s string) (*fieldsim.Companion, error) {
	if s == "" {
		return nil, nil
	}
	bits := strings.Split(s, ",")
	if len(bits) != 5 {
		return nil, fmt.Errorf("companion %q: want 5 comma separated values, got %d", s, len(bits))
	}
	vals := make([]float64, 5)
	for i, bit := range bits {
		v, err := strconv.ParseFloat(strings.TrimSpace(bit), 64)
		if err != nil {
			return nil, fmt.Errorf("companion %q: %w", s, err)
		}
		vals[i] = v
	}
	return &fieldsim.Companion{DRA: vals[0], DDec: vals[1], J: vals[2], H: vals[3], K: vals[4]}, nil
}

func main() {
	defer logger.Sync()
	log := logger.Sugar

	cfg := fieldsim.NewConfig()
	if fConfig != "" {
		var err error
		if cfg, err = fieldsim.LoadConfig(fConfig); err != nil {
			log.Fatal(err)
		}
	}

	// Override the config file with command line args, if relevant
	if fStep > 0 { cfg.Sweep.Step = fStep }
	if fWorkers >= 0 { cfg.Workers = fWorkers }
	if fVerbosity > cfg.Verbosity { cfg.Verbosity = fVerbosity }

	if fRA == "" || fDec == "" || fCatalog == "" || fModels == "" {
		log.Fatal("-ra, -dec, -catalog and -models are all required")
	}
	target, err := skycoord.Parse(fRA, fDec)
	if err != nil {
		log.Fatal(err)
	}
	comp, err := parseCompanion(fCompanion)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.Verbosity > 0 {
		log.Infof("Final configuration:-\n\n%s\n", cfg.AsYaml())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	traces, err := fieldsim.OpenTraceIndex(ctx, fModels, cfg.Workers, log)
	if err != nil {
		log.Fatalf("trace models: %v", err)
	}

	stars, ss, err := fieldsim.QueryField(ctx, cfg, catalog.FileCatalog{Path: fCatalog}, target, comp, log)
	if err != nil {
		log.Fatal(err)
	}
	if err := traces.Meta.Colors.ClassifyStars(stars); err != nil {
		log.Fatal(err)
	}
	for _, s := range stars {
		log.Debugf("%s", s)
	}

	e, err := fieldsim.NewEngine(cfg, traces, log)
	if err != nil {
		log.Fatal(err)
	}

	cube, err := e.Run(ctx, stars, ss)
	if err != nil {
		if cube == nil || !errors.Is(err, context.Canceled) {
			log.Fatalf("simulation failed: %v", err)
		}
		log.Warnf("interrupted, writing the %d/%d completed angles", len(cube.Completed()), len(cube.Angles()))
	}

	cs, err := fieldsim.WriteCube(fOutputDir, cube, fieldsim.OutputOptions{PNG: fPNG, Tonemapper: fTonemapper})
	if err != nil {
		log.Fatalf("writing %s: %v", fOutputDir, err)
	}

	if !cs.Reference {
		log.Warnf("no target trace in %s; contamination is not normalized", fOutputDir)
	}
	log.Infof("%s written to %s", cube, fOutputDir)
	log.Infof("contamination per angle (%% of target flux):\n%s", cs.ContaminationHistogram)
}
