package pipeline

import(
	"encoding/csv"
	"fmt"
	"io/ioutil"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/abworrall/varstar/pkg/frame"
)

// uniqueFilename returns dir/base.ext, or dir/base_N.ext for the first
// N that doesn't already exist.
func uniqueFilename(dir, base, ext string) string {
	filename := filepath.Join(dir, base + ext)
	for n:=1; ; n++ {
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			return filename
		}
		filename = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, n, ext))
	}
}

func writeCSV(filename string, header []string, rows [][]string) error {
	writer, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	}
	defer writer.Close()

	w := csv.NewWriter(writer)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write '%s': %v", filename, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write '%s': %v", filename, err)
	}
	return nil
}

func ff(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

// WriteOutputs writes the CSV files for each channel that succeeded,
// the run archive, and the optional images.
func (s *Session)WriteOutputs(results []ChannelResult) error {
	dir := s.OutputDir
	if dir == "" { dir = "." }
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("output dir '%s': %v", dir, err)
	}

	for _, res := range results {
		if res.Err != nil {
			continue
		}
		if err := writeChannelCSVs(dir, res); err != nil {
			return err
		}
		if s.Overlays {
			if err := writeOverlays(dir, res); err != nil {
				return err
			}
		}
		if s.DumpFrames {
			if err := dumpFrames(dir, res.Track.Frames); err != nil {
				return err
			}
		}
	}

	filename := filepath.Join(dir, fmt.Sprintf("run_%s.cbor", s.RunID))
	if err := WriteArchive(filename, s.NewArchive(results)); err != nil {
		return err
	}
	log.Printf("Wrote run archive %s\n", filename)
	return nil
}

func writeChannelCSVs(dir string, res ChannelResult) error {
	ch := res.Channel.String()

	rows := [][]string{}
	for _, p := range res.Curve.Points {
		rows = append(rows, []string{p.Frame, ff(p.JD), ff(p.Mag), ff(p.Err), ff(p.SNR)})
	}
	filename := uniqueFilename(dir, "lightcurve_" + ch, ".csv")
	if err := writeCSV(filename, []string{"frame", "jd", "mag", "err", "snr"}, rows); err != nil {
		return err
	}
	log.Printf("Wrote %s\n", filename)

	rows = [][]string{}
	for i, f := range res.Track.Frames {
		o := res.Track.Offsets[i]
		rows = append(rows, []string{f.Name, ff(f.JD), ff(o.DY), ff(o.DX)})
	}
	filename = uniqueFilename(dir, "offsets_" + ch, ".csv")
	if err := writeCSV(filename, []string{"frame", "jd", "dy", "dx"}, rows); err != nil {
		return err
	}

	if res.Periodogram != nil {
		rows = [][]string{}
		for i, p := range res.Periodogram.Periods {
			rows = append(rows, []string{ff(p), ff(res.Periodogram.Power[i])})
		}
		filename = uniqueFilename(dir, "periodogram_" + ch, ".csv")
		if err := writeCSV(filename, []string{"period", "power"}, rows); err != nil {
			return err
		}
	}
	return nil
}

func dumpFrames(dir string, frames []*frame.Frame) error {
	for _, f := range frames {
		if err := frame.WriteHDR(f, filepath.Join(dir, f.Name + ".hdr")); err != nil {
			return err
		}
	}
	if len(frames) > 0 {
		f := frames[0]
		return f.Pix().ToImg(f.String(), filepath.Join(dir, f.Name + ".png"))
	}
	return nil
}

// The Archive is a self-contained record of a run, for later tools
// (e.g. the stacker) to pick up without re-tracking.
type Archive struct {
	RunID      string            `cbor:"run_id"`
	Created    time.Time         `cbor:"created"`
	Config     Config            `cbor:"config"`
	Channels []ArchiveChannel    `cbor:"channels"`
}

type ArchiveChannel struct {
	Channel     string           `cbor:"channel"`
	Error       string           `cbor:"error,omitempty"`
	Frames    []ArchiveFrame     `cbor:"frames"`
	Stars     []ArchiveStar      `cbor:"stars"`
	Periods   []ArchivePeriod    `cbor:"periods"`
}

type ArchiveFrame struct {
	Name          string   `cbor:"name"`
	LoadFilename  string   `cbor:"file"`
	JD            float64  `cbor:"jd"`
	ExposureTime  float64  `cbor:"exposure"`
	DY, DX        float64  // cumulative offset from the first frame
	Mag           float64  `cbor:"mag"`    // NaN if dropped from the lightcurve
	MagErr        float64  `cbor:"mag_err"`
}

type ArchiveStar struct {
	Name       string          `cbor:"name"`
	IsVar      bool            `cbor:"is_var"`
	Magnitude  float64         `cbor:"mag"`
	Entries  []ArchiveEntry    `cbor:"entries"`
}

type ArchiveEntry struct {
	X, Y       float64
	R          float64  `cbor:"r"`
	Gap        float64  `cbor:"gap"`
	Width      float64  `cbor:"width"`
	Refined    bool     `cbor:"refined"`
	Flux       float64  `cbor:"flux"`   // NaN if not measured
	Sky        float64  `cbor:"sky"`
	SNR        float64  `cbor:"snr"`
}

type ArchivePeriod struct {
	Period  float64  `cbor:"period"`
	Err     float64  `cbor:"err"`
	Power   float64  `cbor:"power"`
}

func (s *Session)NewArchive(results []ChannelResult) Archive {
	a := Archive{
		RunID:   s.RunID,
		Created: time.Now().UTC(),
		Config:  s.Config,
	}

	for _, res := range results {
		ac := ArchiveChannel{Channel: res.Channel.String()}
		if res.Err != nil {
			ac.Error = res.Err.Error()
			a.Channels = append(a.Channels, ac)
			continue
		}

		mags := map[string][2]float64{}
		for _, p := range res.Curve.Points {
			mags[p.Frame] = [2]float64{p.Mag, p.Err}
		}
		nan := math.NaN()
		for i, f := range res.Track.Frames {
			af := ArchiveFrame{
				Name:         f.Name,
				LoadFilename: f.LoadFilename,
				JD:           f.JD,
				ExposureTime: f.ExposureTime,
				DY:           res.Track.Offsets[i].DY,
				DX:           res.Track.Offsets[i].DX,
				Mag:          nan,
				MagErr:       nan,
			}
			if m, exists := mags[f.Name]; exists {
				af.Mag, af.MagErr = m[0], m[1]
			}
			ac.Frames = append(ac.Frames, af)
		}

		for si, st := range res.Table.Stars {
			as := ArchiveStar{Name: st.Name, IsVar: st.IsVar, Magnitude: st.Magnitude}
			for fi, e := range st.Entries() {
				ae := ArchiveEntry{
					X: e.X, Y: e.Y,
					R: e.R, Gap: e.Gap, Width: e.Width,
					Refined: e.Refined,
					Flux: nan, Sky: nan, SNR: nan,
				}
				if m := res.Table.Get(si, fi); m != nil {
					ae.Flux, ae.Sky, ae.SNR = m.Flux, m.Background, m.SNR
				}
				as.Entries = append(as.Entries, ae)
			}
			ac.Stars = append(ac.Stars, as)
		}

		for _, e := range res.Estimates {
			ac.Periods = append(ac.Periods, ArchivePeriod{e.Period, e.Err, e.Power})
		}
		a.Channels = append(a.Channels, ac)
	}

	return a
}

func WriteArchive(filename string, a Archive) error {
	b, err := cbor.Marshal(a)
	if err != nil {
		return fmt.Errorf("archive encode: %v", err)
	}
	if err := ioutil.WriteFile(filename, b, 0644); err != nil {
		return fmt.Errorf("archive write '%s': %v", filename, err)
	}
	return nil
}

func ReadArchive(filename string) (Archive, error) {
	b, err := ioutil.ReadFile(filename)
	if err != nil {
		return Archive{}, fmt.Errorf("archive read '%s': %v", filename, err)
	}
	var a Archive
	if err := cbor.Unmarshal(b, &a); err != nil {
		return Archive{}, fmt.Errorf("archive decode '%s': %v", filename, err)
	}
	return a, nil
}

// Channel returns the archived channel named `ch`.
func (a Archive)Channel(ch frame.Channel) (ArchiveChannel, error) {
	for _, ac := range a.Channels {
		if ac.Channel == ch.String() {
			if ac.Error != "" {
				return ac, fmt.Errorf("archive %s: channel %s failed: %s", a.RunID, ch, ac.Error)
			}
			return ac, nil
		}
	}
	return ArchiveChannel{}, fmt.Errorf("archive %s: no channel %s", a.RunID, ch)
}
