/*
Package rotodet is a rotation invariant face detection library. It sweeps a window over
every position, scale and one of ten in-plane rotations of a grayscale image, evaluates a
cascade of binary decision trees on each window and merges the overlapping hits into
scored detections.

The classifier is loaded from a packed binary blob, the same format produced by the pico
family of training tools. The package also provides a command line interface which prints
the detections or draws them over the source image. To check the supported flags type:

	$ rotodet --help

In case you wish to integrate the API in a self constructed environment here is a simple example:

	package main

	import (
		"fmt"
		"os"

		"github.com/esimov/rotodet"
	)

	func main() {
		data, err := os.ReadFile("facefinder")
		if err != nil {
			panic(err)
		}
		det, err := rotodet.NewDetector(data)
		if err != nil {
			panic(err)
		}

		res, err := det.Detect(rotodet.DetectParams{
			CascadeParams: rotodet.CascadeParams{
				MinSize:     100,
				MaxSize:     640,
				ShiftFactor: 0.1,
				ScaleFactor: 1.2,
				ImageParams: rotodet.ImageParams{
					Pixels: pixels, // grayscale, row-major
					Rows:   rows,
					Cols:   cols,
					Dim:    cols,
				},
			},
			QCutoff: 10,
			Cluster: true,
		})
		if err != nil {
			fmt.Printf("Error detecting faces: %s", err.Error())
		}
		for _, d := range res.Detections {
			fmt.Println(d.Row, d.Col, d.Scale, d.Q)
		}
	}

For video streams the Worker type runs the detector on its own goroutine and drops the
frames arriving while a scan is still in progress.
*/
package rotodet
