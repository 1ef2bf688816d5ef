package main

// vstack takes the archive from a varstar run, and uses the frame
// offsets it found to stack the light frames into one deep image.

import(
	"flag"
	"log"

	"github.com/abworrall/varstar/pkg/frame"
	"github.com/abworrall/varstar/pkg/pipeline"
)

var(
	fVerbosity int
	fChannel string
	fMode string
	fOutputBase string
	fTonemapper string
)

func init() {
	flag.IntVar(&fVerbosity, "v", 0, "how verbose to get")
	flag.StringVar(&fChannel, "channel", "G", "which channel from the run to stack")
	flag.StringVar(&fMode, "mode", "median", "how to combine the frames (median, mean)")
	flag.StringVar(&fOutputBase, "o", "stacked", "output filename, without extension")
	flag.StringVar(&fTonemapper, "tonemapper", "", "also write a tonemapped PNG: "+frame.ListTonemappers())
	flag.Parse()

	log.Printf("vstack starting\n")
}

func main() {
	if flag.NArg() != 1 {
		log.Fatal("usage: vstack [flags] run_<id>.cbor")
	}
	a, err := pipeline.ReadArchive(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	c, err := frame.ParseChannel(fChannel)
	if err != nil {
		log.Fatal(err)
	}
	ac, err := a.Channel(c)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("run %s: stacking %d frames in %s (not calibrated)\n", a.RunID, len(ac.Frames), c)

	n := frame.NewNamer()
	aligned := []*frame.Frame{}
	for _, af := range ac.Frames {
		raw, err := frame.LoadTIFF(af.LoadFilename, frame.Light, frame.LoadOptions{CFA: a.Config.CFA})
		if err != nil {
			log.Fatal(err)
		}
		frame.Bin(raw, a.Config.BinX, a.Config.BinY)
		f, err := frame.ExtractChannel(raw, c, n)
		if err != nil {
			log.Fatal(err)
		}

		// The offset is how far the field moved since the first frame, so
		// move it back by that much.
		if f, err = frame.Shift(f, -af.DX, -af.DY); err != nil {
			log.Fatal(err)
		}
		if fVerbosity > 0 {
			log.Printf("  %s: shifted by (%.2f,%.2f)\n", af.Name, -af.DX, -af.DY)
		}
		aligned = append(aligned, f)
	}

	stacked, err := frame.Stack(aligned, frame.StackMode(fMode))
	if err != nil {
		log.Fatal(err)
	}

	if err := frame.WriteHDR(stacked, fOutputBase + ".hdr"); err != nil {
		log.Fatal(err)
	}
	if err := stacked.Pix().ToImg(a.RunID, fOutputBase + ".png"); err != nil {
		log.Fatal(err)
	}
	log.Printf("wrote %s.hdr and %s.png\n", fOutputBase, fOutputBase)

	if fTonemapper != "" {
		img, err := frame.Tonemap(stacked, fTonemapper)
		if err != nil {
			log.Fatal(err)
		}
		filename := fOutputBase + "-" + fTonemapper + ".png"
		if err := frame.WritePNG(img, filename); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %s\n", filename)
	}
}
