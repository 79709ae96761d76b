package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"

	"github.com/esimov/rotodet"
	"github.com/esimov/rotodet/utils"
)

const helpBanner = `
┬─┐┌─┐┌┬┐┌─┐┌┬┐┌─┐┌┬┐
├┬┘│ │ │ │ │ ││├┤  │
┴└─└─┘ ┴ └─┘─┴┘└─┘ ┴

Rotation invariant face detector.
    Version: %s

Usage:
    rotodet -cc <classifier> [flags]
    rotodet -cc <classifier> [flags] <minSize> <qCutoff> <image> [<output>]

`

// pipeName is the file name that indicates stdin/stdout is being used.
const pipeName = "-"

// Version indicates the current build version.
var Version string

func main() {
	log.SetFlags(0)

	def := rotodet.DefaultProcessor()

	var (
		source      = flag.String("in", "", "Source image, directory or URL")
		destination = flag.String("out", pipeName, "Destination file or directory")
		cascade     = flag.String("cc", "", "Cascade classifier")
		minSize     = flag.Int("min", def.MinSize, "Minimum face size")
		maxSize     = flag.Int("max", 0, "Maximum face size (defaults to the shorter image edge)")
		shiftFactor = flag.Float64("shift", def.ShiftFactor, "Window stride as a fraction of the window size")
		scaleFactor = flag.Float64("scale", def.ScaleFactor, "Window size growth between scales")
		qThreshold  = flag.Float64("q", def.QThreshold, "Minimum cluster confidence")
		maxDets     = flag.Int("maxdet", rotodet.DefaultMaxDetections, "Raw detection capacity")
		noCluster   = flag.Bool("nocluster", false, "Output the raw detections")
		annotate    = flag.Bool("draw", false, "Draw the detections and save the annotated image")
		markColor   = flag.String("color", def.MarkColor, "Detection marker color")
		blurRadius  = flag.Float64("blur", 0, "Gaussian blur radius applied before detection")
		fitSize     = flag.Int("fit", 0, "Downscale images larger than this size before detection")
		strict      = flag.Bool("strict", false, "Fail on out of image samples instead of clamping them")
		workers     = flag.Int("conc", runtime.NumCPU(), "Number of files to process concurrently")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, helpBanner, Version)
		flag.PrintDefaults()
	}
	flag.Parse()

	proc := &rotodet.Processor{
		MinSize:       *minSize,
		MaxSize:       *maxSize,
		ShiftFactor:   *shiftFactor,
		ScaleFactor:   *scaleFactor,
		QThreshold:    *qThreshold,
		MaxDetections: *maxDets,
		BlurRadius:    *blurRadius,
		MaxImageSize:  *fitSize,
		MarkColor:     *markColor,
		Classifier:    *cascade,
		NoCluster:     *noCluster,
		Annotate:      *annotate,
		Strict:        *strict,
	}

	// Positional form: the minimum face size,
	// the confidence cutoff and the image, followed by an optional annotated output.
	if args := flag.Args(); len(args) > 0 || *source == "" {
		switch len(args) {
		case 3, 4:
			size, err := strconv.Atoi(args[0])
			if err != nil {
				fatal("invalid minimum face size %q", args[0])
			}
			q, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				fatal("invalid confidence cutoff %q", args[1])
			}
			proc.MinSize, proc.QThreshold = size, q
			*source = args[2]
			*destination = pipeName
			proc.Annotate = false
			if len(args) == 4 {
				*destination = args[3]
				proc.Annotate = true
			}
		case 0, 1, 2:
			flag.Usage()
			fatal("video capture is not supported, please provide an image")
		default:
			flag.Usage()
			fatal("unsupported number of arguments: %d", len(args))
		}
	}

	if len(proc.Classifier) == 0 {
		fatal("please specify a face classifier with the -cc flag")
	}

	op := &rotodet.Ops{
		Src:      *source,
		Dst:      *destination,
		PipeName: pipeName,
		Workers:  *workers,
	}
	if err := proc.Execute(op); err != nil {
		log.Fatalf("%s\n\t%s\n",
			utils.DecorateText("Error detecting faces:", utils.ErrorMessage),
			utils.DecorateText(err.Error(), utils.DefaultMessage),
		)
	}
}

func fatal(format string, args ...any) {
	log.Fatal(utils.DecorateText(fmt.Sprintf(format, args...), utils.ErrorMessage))
}
