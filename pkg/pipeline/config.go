package pipeline

import(
	"fmt"
	"io/ioutil"
	"log"

	"gopkg.in/yaml.v2"

	"github.com/abworrall/varstar/pkg/frame"
	"github.com/abworrall/varstar/pkg/lightcurve"
	"github.com/abworrall/varstar/pkg/photometry"
	"github.com/abworrall/varstar/pkg/star"
	"github.com/abworrall/varstar/pkg/track"
)

type Config struct {
	Verbosity         int          `yaml:"verbosity"`

	// Tracking
	GlobalOffset      bool         `yaml:"global_offset"`
	Gauss             bool         `yaml:"gauss"`
	HalfHeight        int          `yaml:"hh"`
	HalfWidth         int          `yaml:"hw"`
	RefineHalfHeight  int          `yaml:"refine_hh,omitempty"`
	RefineHalfWidth   int          `yaml:"refine_hw,omitempty"`
	GlobalCrop        int          `yaml:"global_crop,omitempty"`
	Upsample          int          `yaml:"upsample"`

	// The first star with no magnitude is the variable
	Stars           []star.Spec    `yaml:"stars"`

	// Frame preparation
	CFA               bool         `yaml:"cfa"`
	BinX              int          `yaml:"bin_x"`
	BinY              int          `yaml:"bin_y"`
	Channels        []string       `yaml:"channels"`
	CalibrationStack  string       `yaml:"calibration_stack"`

	// Photometry and period search
	Background        string       `yaml:"background"`
	Periods           lightcurve.PeriodRange `yaml:"periods"`
	NumEstimates      int          `yaml:"num_estimates"`
	PeakDistance      int          `yaml:"peak_distance"`
	RoundPeriods      bool         `yaml:"round_periods"`

	// Outputs
	OutputDir         string       `yaml:"output_dir"`
	DumpFrames        bool         `yaml:"dump_frames"`
	Overlays          bool         `yaml:"overlays"`
}

func NewConfig() Config {
	return Config{
		Gauss:            true,
		HalfHeight:       20,
		HalfWidth:        20,
		Upsample:         20,
		BinX:             1,
		BinY:             1,
		Channels:         []string{"G"},
		CalibrationStack: string(frame.StackMedian),
		Background:       string(photometry.Median),
		Periods:          lightcurve.DefaultPeriodRange(),
		NumEstimates:     2,
		PeakDistance:     20,
		RoundPeriods:     true,
		OutputDir:        ".",
	}
}

func newConfigFromYaml(b []byte) (Config, error) {
	c := NewConfig()
	err := yaml.Unmarshal(b, &c)
	return c, err
}

func loadConfig(filename string) (Config, error) {
	contents, err := ioutil.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("config read %s: %v", filename, err)
	}
	return newConfigFromYaml(contents)
}

func (c Config)AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		log.Fatalf("Can't marshal config yaml: %v\n", err)
	}
	return string(b)
}

// Validate checks the parts of the config that would otherwise only
// blow up halfway through a run.
func (c Config)Validate() error {
	if len(c.Stars) == 0 {
		return fmt.Errorf("config: no stars")
	}
	nVar := 0
	for _, s := range c.Stars {
		if s.Mag == nil { nVar++ }
	}
	if nVar == 0 {
		return fmt.Errorf("config: no variable star (a star with no magnitude)")
	} else if nVar == len(c.Stars) {
		return fmt.Errorf("config: no reference stars (stars with a magnitude)")
	}

	if _, err := c.GetChannels(); err != nil {
		return err
	} else if _, err := photometry.ParseMethod(c.Background); err != nil {
		return fmt.Errorf("config: %v", err)
	}
	switch frame.StackMode(c.CalibrationStack) {
	case frame.StackMedian, frame.StackMean:
	default:
		return fmt.Errorf("config: no calibration stack mode '%s'", c.CalibrationStack)
	}
	return nil
}

func (c Config)GetChannels() ([]frame.Channel, error) {
	if len(c.Channels) == 0 {
		return nil, fmt.Errorf("config: no channels")
	}
	chans := []frame.Channel{}
	seen := map[frame.Channel]bool{}
	for _, s := range c.Channels {
		ch, err := frame.ParseChannel(s)
		if err != nil {
			return nil, fmt.Errorf("config: %v", err)
		}
		if !seen[ch] {
			chans = append(chans, ch)
			seen[ch] = true
		}
	}
	return chans, nil
}

func (c Config)TrackConfig() track.Config {
	return track.Config{
		Verbosity:        c.Verbosity,
		GlobalOffset:     c.GlobalOffset,
		Gauss:            c.Gauss,
		HalfHeight:       c.HalfHeight,
		HalfWidth:        c.HalfWidth,
		RefineHalfHeight: c.RefineHalfHeight,
		RefineHalfWidth:  c.RefineHalfWidth,
		GlobalCrop:       c.GlobalCrop,
		Upsample:         c.Upsample,
	}
}

func (c Config)PhotometryOptions() photometry.Options {
	opts := photometry.DefaultOptions()
	opts.Method, _ = photometry.ParseMethod(c.Background)
	return opts
}
