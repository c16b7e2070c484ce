package main

// modelgrid inspects a directory of model spectra, and pulls spectra out
// of it (interpolating between nodes as needed).
//
//   modelgrid [flags] info DIR
//   modelgrid [flags] -teff 3300 -logg 4.5 -feh 0 get DIR

import(
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/abworrall/soss-contam/pkg/logger"
	"github.com/abworrall/soss-contam/pkg/modelgrid"
)

var(
	fVerbosity int
	fTeff, fLogg, fFeH float64
	fWave string
	fBins int
	fWorkers int
	fOutputFilename string
	fYaml bool
)

func init() {
	flag.IntVar(&fVerbosity, "v", 0, "how verbose to get")
	flag.Float64Var(&fTeff, "teff", 3300, "effective temperature (K)")
	flag.Float64Var(&fLogg, "logg", 4.5, "log surface gravity")
	flag.Float64Var(&fFeH, "feh", 0, "metallicity")
	flag.StringVar(&fWave, "wave", "", "restrict the wavelength range, as 'min,max' in microns")
	flag.IntVar(&fBins, "bins", 0, "rebin spectra to this many wavelengths")
	flag.IntVar(&fWorkers, "workers", 0, "parallel model loads; 0 means one per CPU")
	flag.StringVar(&fOutputFilename, "o", "", "for get: save the spectrum as a YAML model file")
	flag.BoolVar(&fYaml, "yaml", false, "for info: print YAML")
	flag.Parse()

	level := "warn"
	if fVerbosity > 0 {
		level = "debug"
	}
	logger.Init(level, "")
}

func parseRange(s string) (modelgrid.Range, error) {
	bits := strings.Split(s, ",")
	if len(bits) != 2 {
		return modelgrid.Range{}, fmt.Errorf("range %q: want 'min,max'", s)
	}
	var r modelgrid.Range
	for i, bit := range bits {
		v, err := strconv.ParseFloat(strings.TrimSpace(bit), 64)
		if err != nil {
			return r, fmt.Errorf("range %q: %w", s, err)
		}
		r[i] = v
	}
	return r, nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: modelgrid [flags] info|get DIR\n")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	defer logger.Sync()
	log := logger.Sugar

	if flag.NArg() != 2 {
		usage()
	}
	cmd, dir := flag.Arg(0), flag.Arg(1)
	ctx := context.Background()

	g, err := modelgrid.New(ctx, modelgrid.NewDirStore(dir, log), log)
	if err != nil {
		log.Fatal(err)
	}
	g.Workers = fWorkers

	if fWave != "" || fBins > 0 {
		opts := modelgrid.DefaultRestrictOptions()
		opts.NBins = fBins
		if fWave != "" {
			if opts.Wave, err = parseRange(fWave); err != nil {
				log.Fatal(err)
			}
		}
		if err := g.Restrict(opts); errors.Is(err, modelgrid.ErrEmptyRestriction) {
			log.Warnf("%v; using the whole grid", err)
		}
	}

	switch cmd {
	case "info":
		if fYaml {
			fmt.Print(g.Info().AsYaml())
		} else {
			fmt.Print(g.Info())
		}

	case "get":
		pt, err := g.Get(ctx, fTeff, fLogg, fFeH)
		if err != nil {
			log.Fatal(err)
		}
		s := pt.Spectrum()

		switch p := pt.(type) {
		case *modelgrid.ExactPoint:
			fmt.Printf("%s: grid node, from %s\n", s.Params, p.Filename)
		case *modelgrid.InterpolatedPoint:
			fmt.Printf("%s: interpolated from %d nodes %v\n", s.Params, len(p.Corners), p.Corners)
		}
		if s.NWave() > 0 {
			fmt.Printf("  %d wavelengths, %g-%g um\n", s.NWave(), s.Wave[0], s.Wave[s.NWave()-1])
		}
		for m, row := range s.Flux {
			mu := "-"
			if m < len(s.Mu) {
				mu = fmt.Sprintf("%g", s.Mu[m])
			}
			if len(row) == 0 {
				fmt.Printf("  mu[%d]=%-6s no flux\n", m, mu)
				continue
			}
			fmt.Printf("  mu[%d]=%-6s flux min %g, max %g, mean %g\n", m, mu, floats.Min(row), floats.Max(row),
				floats.Sum(row)/float64(len(row)))
		}

		if fOutputFilename != "" {
			hdr := map[string]interface{}{"teff": s.Teff, "logg": s.Logg, "feh": s.FeH}
			for k, v := range s.Meta {
				if _, exists := hdr[strings.ToLower(k)]; !exists {
					hdr[k] = v
				}
			}
			// Wave goes back to Angstrom, as model files hold it
			wave := make([]float64, s.NWave())
			floats.ScaleTo(wave, 1e4, s.Wave)
			raw := &modelgrid.RawPoint{Flux: s.Flux, Mu: s.Mu, Wave: wave}
			if err := modelgrid.WriteYAMLPoint(fOutputFilename, hdr, raw); err != nil {
				log.Fatal(err)
			}
			log.Infof("spectrum written to '%s'", fOutputFilename)
		}

	default:
		usage()
	}
}
