package pipeline

import(
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/abworrall/varstar/pkg/frame"
)

// The directories a session's frames are sorted into. A file's type
// comes from the nearest enclosing directory with one of these names;
// anything else is a light frame.
var dirTypes = map[string]frame.ImageType{
	"light_frames": frame.Light,
	"bias_frames":  frame.Bias,
	"dark_frames":  frame.Dark,
	"flat_fields":  frame.Flat,
}

// A Session is one observing run: the frames loaded from disk, sorted
// by type, and the config that goes with them.
type Session struct {
	Config
	RunID     string

	// Override is applied to the config once any config files have been
	// read, before the frames are loaded.
	Override  func(c *Config)

	Lights  []*frame.Frame
	Bias    []*frame.Frame
	Darks   []*frame.Frame
	Flats   []*frame.Frame

	tiffs   []string
	yamls   []string
}

func NewSession() *Session {
	return &Session{
		Config: NewConfig(),
		RunID:  uuid.New().String(),
	}
}

func (s *Session)String() string {
	return fmt.Sprintf("Session[%s: %d lights, %d bias, %d darks, %d flats]",
		s.RunID, len(s.Lights), len(s.Bias), len(s.Darks), len(s.Flats))
}

// LoadFilesAndDirs loads everything under the args. Config files are
// read before any frames, so their settings (e.g. CFA) apply to all of
// them.
func (s *Session)LoadFilesAndDirs(args ...string) error {
	for _, arg := range args {
		if err := s.collect(arg); err != nil {
			return err
		}
	}

	for _, filename := range s.yamls {
		cfg, err := loadConfig(filename)
		if err != nil {
			return fmt.Errorf("Loading %s as config YAML failed: %v", filename, err)
		}
		s.Config = cfg
		log.Printf("Loaded base configuration from %s\n", filename)
	}
	if s.Override != nil {
		s.Override(&s.Config)
	}

	for _, filename := range s.tiffs {
		t := imageTypeOf(filename)
		f, err := frame.LoadTIFF(filename, t, frame.LoadOptions{CFA: s.CFA})
		if err != nil {
			return fmt.Errorf("Loading %s as TIFF failed: %v", filename, err)
		}
		switch t {
		case frame.Light: s.Lights = append(s.Lights, f)
		case frame.Bias:  s.Bias = append(s.Bias, f)
		case frame.Dark:  s.Darks = append(s.Darks, f)
		case frame.Flat:  s.Flats = append(s.Flats, f)
		}
		if s.Verbosity > 1 {
			log.Printf("loaded %s\n", f)
		}
	}
	s.tiffs, s.yamls = nil, nil

	// Tracking needs the lights in the order they were taken.
	sort.SliceStable(s.Lights, func(i, j int) bool {
		if s.Lights[i].JD != s.Lights[j].JD {
			return s.Lights[i].JD < s.Lights[j].JD
		}
		return s.Lights[i].LoadFilename < s.Lights[j].LoadFilename
	})

	return nil
}

func (s *Session)collect(arg string) error {
	item, err := os.Stat(arg)

	switch {
	case err != nil:
		return fmt.Errorf("load %s: %v", arg, err)

	case item.IsDir():
		contents, err := ioutil.ReadDir(arg)
		if err != nil {
			return fmt.Errorf("readdir %s: %v", arg, err)
		}
		for _, content := range contents {
			if err := s.collect(filepath.Join(arg, content.Name())); err != nil {
				return err
			}
		}

	default:
		switch strings.ToLower(filepath.Ext(arg)) {
		case ".tif", ".tiff": s.tiffs = append(s.tiffs, arg)
		case ".yaml", ".yml": s.yamls = append(s.yamls, arg)
		}
	}

	return nil
}

func imageTypeOf(filename string) frame.ImageType {
	for dir := filepath.Dir(filename); ; dir = filepath.Dir(dir) {
		if t, exists := dirTypes[strings.ToLower(filepath.Base(dir))]; exists {
			return t
		}
		if parent := filepath.Dir(dir); parent == dir {
			break
		}
	}
	return frame.Light
}

// AddFrames adds frames that were loaded some other way.
func (s *Session)AddFrames(frames ...*frame.Frame) {
	for _, f := range frames {
		switch f.Type {
		case frame.Light: s.Lights = append(s.Lights, f)
		case frame.Bias:  s.Bias = append(s.Bias, f)
		case frame.Dark:  s.Darks = append(s.Darks, f)
		case frame.Flat:  s.Flats = append(s.Flats, f)
		}
	}
}

// Bin bins every loaded frame, per the config. It must be called once,
// before the channels are split out.
func (s *Session)Bin() {
	if s.BinX <= 1 && s.BinY <= 1 {
		return
	}
	for _, set := range [][]*frame.Frame{s.Lights, s.Bias, s.Darks, s.Flats} {
		for _, f := range set {
			frame.Bin(f, s.BinX, s.BinY)
		}
	}
	log.Printf("Binned all frames %dx%d\n", s.BinX, s.BinY)
}

// channelFrames splits channel `c` out of every frame, and calibrates
// the lights. The returned frames are owned by the caller.
func (s *Session)channelFrames(c frame.Channel, n *frame.Namer) ([]*frame.Frame, error) {
	extract := func(in []*frame.Frame) ([]*frame.Frame, error) {
		out := []*frame.Frame{}
		for _, f := range in {
			mono, err := frame.ExtractChannel(f, c, n)
			if err != nil {
				return nil, err
			}
			out = append(out, mono)
		}
		return out, nil
	}

	lights, err := extract(s.Lights)
	if err != nil {
		return nil, err
	}
	cs := frame.CalibrationSet{Mode: frame.StackMode(s.CalibrationStack)}
	if cs.Bias, err = extract(s.Bias); err != nil {
		return nil, err
	} else if cs.Darks, err = extract(s.Darks); err != nil {
		return nil, err
	} else if cs.Flats, err = extract(s.Flats); err != nil {
		return nil, err
	}

	if err := frame.Calibrate(lights, cs); err != nil {
		return nil, err
	}
	if s.Verbosity > 1 {
		for _, f := range lights {
			log.Printf("  %s: %s\n", f, f.Pix().Stats())
		}
	}
	return lights, nil
}
