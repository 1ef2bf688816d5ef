package main

import(
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/abworrall/varstar/pkg/pipeline"
	"github.com/abworrall/varstar/pkg/star"
)

// starFlags collects repeated -var / -ref flags.
type starFlags struct {
	specs   []star.Spec
	withMag bool
}

func (sf *starFlags)String() string {
	strs := []string{}
	for _, s := range sf.specs {
		strs = append(strs, s.String())
	}
	return strings.Join(strs, " ")
}

// Set parses "x,y" (variable) or "x,y,mag" (reference).
func (sf *starFlags)Set(v string) error {
	bits := strings.Split(v, ",")
	want := 2
	if sf.withMag { want = 3 }
	if len(bits) != want {
		return fmt.Errorf("'%s': want %d comma separated values", v, want)
	}

	s := star.Spec{}
	var err error
	if s.X, err = strconv.Atoi(strings.TrimSpace(bits[0])); err != nil {
		return fmt.Errorf("'%s': bad x: %v", v, err)
	} else if s.Y, err = strconv.Atoi(strings.TrimSpace(bits[1])); err != nil {
		return fmt.Errorf("'%s': bad y: %v", v, err)
	}
	if sf.withMag {
		m, err := strconv.ParseFloat(strings.TrimSpace(bits[2]), 64)
		if err != nil {
			return fmt.Errorf("'%s': bad magnitude: %v", v, err)
		}
		s.Mag = &m
	}
	sf.specs = append(sf.specs, s)
	return nil
}

var(
	fVerbosity int
	fGlobalOffset bool
	fGauss bool
	fHalfWidth int
	fHalfHeight int
	fUpsample int
	fBin int
	fChannels string
	fBackground string
	fPeriodMin float64
	fPeriodMax float64
	fPeriodStep float64
	fOutputDir string
	fOverlays bool
	fDumpFrames bool
	fCFA bool

	fVar = starFlags{}
	fRefs = starFlags{withMag: true}
)

func init() {
	flag.IntVar(&fVerbosity, "v", 0, "how verbose to get")

	flag.BoolVar(&fGlobalOffset, "global", false, "register whole frames, rather than a window around each star")
	flag.BoolVar(&fGauss, "gauss", true, "re-center each star with a Gaussian fit on every frame")
	flag.IntVar(&fHalfWidth, "hw", 20, "half width of the tracking window, in pixels")
	flag.IntVar(&fHalfHeight, "hh", 20, "half height of the tracking window, in pixels")
	flag.IntVar(&fUpsample, "upsample", 20, "subpixel registration precision is 1/upsample")
	flag.IntVar(&fBin, "bin", 1, "bin frames NxN before anything else")
	flag.BoolVar(&fCFA, "cfa", false, "frames are undebayered RGGB mosaics")

	flag.StringVar(&fChannels, "channels", "G", "comma separated color channels to process (R,G,B)")
	flag.StringVar(&fBackground, "background", "median", "sky background method (median, sigmaclip-mean, sigmaclip-median, mean)")
	flag.Float64Var(&fPeriodMin, "pmin", 0.02, "shortest trial period, in days")
	flag.Float64Var(&fPeriodMax, "pmax", 10, "longest trial period, in days")
	flag.Float64Var(&fPeriodStep, "pstep", 0.01, "trial period step, in days (0 means work it out from the data)")

	flag.StringVar(&fOutputDir, "o", ".", "directory for the output files")
	flag.BoolVar(&fOverlays, "overlays", false, "write a PNG per frame, with the apertures drawn on")
	flag.BoolVar(&fDumpFrames, "dumpframes", false, "write each calibrated frame as a Radiance HDR file")

	flag.Var(&fVar, "var", "x,y of the variable star on the first frame")
	flag.Var(&fRefs, "ref", "x,y,mag of a reference star on the first frame (repeatable)")
	flag.Parse()

	log.Printf("varstar starting\n")
}

// applyFlags overrides the loaded config with any flags that were
// explicitly given.
func applyFlags(s *pipeline.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "v":          s.Verbosity = fVerbosity
		case "global":     s.GlobalOffset = fGlobalOffset
		case "gauss":      s.Gauss = fGauss
		case "hw":         s.HalfWidth = fHalfWidth
		case "hh":         s.HalfHeight = fHalfHeight
		case "upsample":   s.Upsample = fUpsample
		case "bin":        s.BinX, s.BinY = fBin, fBin
		case "cfa":        s.CFA = fCFA
		case "channels":   s.Channels = strings.Split(fChannels, ",")
		case "background": s.Background = fBackground
		case "pmin":       s.Periods.Min = fPeriodMin
		case "pmax":       s.Periods.Max = fPeriodMax
		case "pstep":      s.Periods.Step = fPeriodStep
		case "o":          s.OutputDir = fOutputDir
		case "overlays":   s.Overlays = fOverlays
		case "dumpframes": s.DumpFrames = fDumpFrames
		}
	})

	// Stars given on the command line replace any from the config.
	if len(fVar.specs) + len(fRefs.specs) > 0 {
		s.Stars = nil
		for i, v := range fVar.specs {
			v.Name = "Var"
			if i > 0 { v.Name = fmt.Sprintf("Var%d", i+1) }
			s.Stars = append(s.Stars, v)
		}
		for i, r := range fRefs.specs {
			r.Name = fmt.Sprintf("Ref%d", i+1)
			s.Stars = append(s.Stars, r)
		}
	}
}

func main() {
	s := pipeline.NewSession()
	s.Override = applyFlags
	if err := s.LoadFilesAndDirs(flag.Args()...); err != nil {
		log.Fatal(err)
	}

	if s.Verbosity > 0 {
		log.Printf("Final configuration:-\n\n%s\n", s.Config.AsYaml())
	}
	log.Printf("Loaded: %s\n", s)

	results, err := s.Run()
	if err != nil {
		log.Fatalf("Run failed: %v\n", err)
	}

	if err := s.WriteOutputs(results); err != nil {
		log.Fatalf("Writing outputs failed: %v\n", err)
	}
}
