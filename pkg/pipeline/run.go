package pipeline

import(
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/abworrall/varstar/pkg/frame"
	"github.com/abworrall/varstar/pkg/lightcurve"
	"github.com/abworrall/varstar/pkg/photometry"
	"github.com/abworrall/varstar/pkg/track"
)

// ChannelResult is everything worked out for one color channel.
type ChannelResult struct {
	Channel      frame.Channel
	Track       *track.Result
	Table       *photometry.Table
	Curve       *lightcurve.Curve
	Periodogram *lightcurve.Periodogram
	Estimates  []lightcurve.Estimate
	Report       Report
	Err          error
}

// Run processes each requested channel. Channels are independent of
// each other, so each gets its own goroutine; within a channel the
// frames are tracked in order.
func (s *Session)Run() ([]ChannelResult, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	} else if len(s.Lights) == 0 {
		return nil, fmt.Errorf("run: no light frames")
	}
	chans, _ := s.GetChannels()

	s.Bin()

	var wg sync.WaitGroup
	resultsChan := make(chan ChannelResult, len(chans))
	for _, c := range chans {
		wg.Add(1)
		go func(c frame.Channel) {
			defer wg.Done()
			resultsChan<- s.runChannel(c)
		}(c)
	}
	wg.Wait()
	close(resultsChan)

	results := []ChannelResult{}
	for res := range resultsChan {
		results = append(results, res)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Channel < results[j].Channel })

	nFailed := 0
	for _, res := range results {
		if res.Err != nil {
			log.Printf("channel %s failed: %v\n", res.Channel, res.Err)
			nFailed++
		}
	}
	if nFailed == len(results) {
		return results, fmt.Errorf("run: all %d channels failed", nFailed)
	}
	return results, nil
}

func (s *Session)runChannel(c frame.Channel) ChannelResult {
	res := ChannelResult{Channel: c}
	fail := func(err error) ChannelResult {
		res.Err = fmt.Errorf("channel %s: %w", c, err)
		return res
	}

	lights, err := s.channelFrames(c, frame.NewNamer())
	if err != nil {
		return fail(err)
	}

	tr, err := track.New(lights, s.TrackConfig())
	if err != nil {
		return fail(err)
	}
	if res.Track, err = tr.Run(s.Stars); err != nil {
		return fail(err)
	}

	if res.Table, err = photometry.MeasureAll(res.Track.Catalog, s.PhotometryOptions()); err != nil {
		return fail(err)
	}

	if res.Curve, err = lightcurve.Differential(res.Table); err != nil {
		return fail(err)
	}
	res.Report = newReport(res.Track, res.Table)

	if len(res.Curve.Points) >= 3 {
		lc := res.Curve
		if res.Periodogram, err = lightcurve.LombScargle(lc.Times(), lc.Mags(), lc.Errs(), s.Periods); err != nil {
			log.Printf("channel %s: no periodogram: %v\n", res.Channel, err)
		} else {
			res.Estimates = res.Periodogram.EstimatePeriods(s.NumEstimates, s.PeakDistance, s.RoundPeriods)
		}
	}

	log.Printf("channel %s: %s", c, res.Report)
	for i, e := range res.Estimates {
		log.Printf("channel %s: period candidate %d: %s\n", c, i+1, e)
	}
	return res
}
