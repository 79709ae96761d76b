package rotodet

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/esimov/rotodet/utils"
	"golang.org/x/term"
)

// maxWorkers sets the maximum number of concurrently running workers.
const maxWorkers = 20

// validExtensions lists the supported source image files.
var validExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif"}

// encodeExtensions lists the image files the annotated output can be saved as.
var encodeExtensions = []string{".jpg", ".jpeg", ".png", ".bmp"}

// Ops holds the source and destination of a detection run.
// Src and Dst can be files, directories or the pipe name;
// Src can also be an image URL.
type Ops struct {
	Src, Dst, PipeName string
	Workers            int
}

// result holds the relevant information about the detection process of a single file.
type result struct {
	path string
	err  error
}

// Execute runs the detector over the source: a single file, a pipe, a URL or
// every supported image of a directory, processed concurrently.
// It returns the first error encountered.
func (p *Processor) Execute(op *Ops) error {
	if p.Spinner == nil {
		p.Spinner = utils.NewSpinner(fmt.Sprintf("%s %s",
			utils.DecorateText("◎ ROTODET", utils.StatusMessage),
			utils.DecorateText("⇢ detecting faces...", utils.DefaultMessage),
		), time.Millisecond*80, true)
	}
	if err := p.loadDetector(); err != nil {
		return err
	}

	// Restore the cursor visibility on CTRL-C.
	signalChan := make(chan os.Signal, 1)
	signalDone := make(chan struct{})
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(signalChan)
		close(signalDone)
	}()
	go func() {
		select {
		case <-signalChan:
			p.Spinner.RestoreCursor()
			os.Exit(1)
		case <-signalDone:
		}
	}()

	src := op.Src
	if utils.IsValidUrl(op.Src) {
		f, err := utils.DownloadImage(op.Src)
		if err != nil {
			return fmt.Errorf("failed to load the source image: %w", err)
		}
		defer os.Remove(f.Name())
		f.Close()
		src = f.Name()
	}

	var (
		fs  os.FileInfo
		err error
	)
	if src == op.PipeName {
		fs, err = os.Stdin.Stat()
	} else {
		fs, err = os.Stat(src)
	}
	if err != nil {
		return fmt.Errorf("failed to load the source image: %w", err)
	}

	now := time.Now()

	switch mode := fs.Mode(); {
	case mode.IsDir():
		if err := op.processDir(p, src); err != nil {
			return err
		}
	case mode.IsRegular() || mode&os.ModeNamedPipe != 0 || mode&os.ModeCharDevice != 0:
		if p.Annotate && op.Dst != op.PipeName {
			ext := strings.ToLower(filepath.Ext(op.Dst))
			if !isValidExtension(ext, encodeExtensions) {
				return fmt.Errorf("%v file type not supported", ext)
			}
		}
		if err := op.process(p, src, op.Dst); err != nil {
			return err
		}
		op.printOpStatus(op.Dst)
	default:
		return fmt.Errorf("unsupported source: %s", src)
	}

	fmt.Fprintf(os.Stderr, "\nExecution time: %s\n", utils.DecorateText(utils.FormatTime(time.Since(now)), utils.SuccessMessage))
	return nil
}

// processDir runs the detector concurrently over every image of the directory tree.
// The outputs are written into the destination directory under the source base name,
// with a .txt extension when the detections are printed.
func (op *Ops) processDir(p *Processor, src string) error {
	if _, err := os.Stat(op.Dst); err != nil {
		if err := os.MkdirAll(op.Dst, 0755); err != nil {
			return fmt.Errorf("unable to create the destination directory: %w", err)
		}
	}

	workers := op.Workers
	if workers <= 0 || workers > maxWorkers {
		workers = runtime.NumCPU()
	}

	var (
		wg       sync.WaitGroup
		firstErr error
	)
	ch := make(chan result)
	done := make(chan interface{})
	defer close(done)

	paths, errc := walkDir(done, src, validExtensions)

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			op.consumer(p, ch, done, paths)
		}()
	}

	// Close the channel after the values are consumed.
	go func() {
		defer close(ch)
		wg.Wait()
	}()

	for res := range ch {
		if res.err != nil {
			fmt.Fprintf(os.Stderr, "%s %s\n",
				utils.DecorateText(filepath.Base(res.path), utils.ErrorMessage),
				utils.DecorateText(res.err.Error(), utils.DefaultMessage),
			)
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		op.printOpStatus(res.path)
	}

	if err := <-errc; err != nil {
		return err
	}
	return firstErr
}

// consumer reads the path names from the paths channel and runs the detector over them.
func (op *Ops) consumer(
	p *Processor,
	res chan<- result,
	done <-chan interface{},
	paths <-chan string,
) {
	for src := range paths {
		dst := filepath.Join(op.Dst, destName(src, p.Annotate))
		err := op.run(p, src, dst)

		select {
		case <-done:
			return
		case res <- result{
			path: dst,
			err:  err,
		}:
		}
	}
}

// destName returns the output file name for the source image. Annotated images
// keep the source name unless its format cannot be encoded, then they are saved as PNG.
func destName(src string, annotate bool) string {
	base := filepath.Base(src)
	ext := filepath.Ext(base)
	if !annotate {
		return strings.TrimSuffix(base, ext) + ".txt"
	}
	if !isValidExtension(strings.ToLower(ext), encodeExtensions) {
		return strings.TrimSuffix(base, ext) + ".png"
	}
	return base
}

// process runs the detector over a single image showing the progress indicator.
func (op *Ops) process(p *Processor, in, out string) error {
	p.Spinner.Start()
	err := op.run(p, in, out)
	if err != nil {
		p.Spinner.StopMsg = fmt.Sprintf("%s %s\n",
			utils.DecorateText("◎ ROTODET", utils.StatusMessage),
			utils.DecorateText("detection failed ✘", utils.ErrorMessage),
		)
	} else {
		p.Spinner.StopMsg = fmt.Sprintf("%s %s\n",
			utils.DecorateText("◎ ROTODET", utils.StatusMessage),
			utils.DecorateText("detection finished ✔", utils.SuccessMessage),
		)
	}
	p.Spinner.Stop()

	return err
}

// run runs the detector over a single image and removes the destination on failure.
func (op *Ops) run(p *Processor, in, out string) (err error) {
	src, dst, err := op.pathToFile(in, out, p.Annotate)
	if err != nil {
		return err
	}

	defer func() {
		if f, ok := src.(*os.File); ok && f != os.Stdin {
			if err := f.Close(); err != nil {
				log.Printf("could not close the opened file: %v", err)
			}
		}
	}()
	defer func() {
		f, ok := dst.(*os.File)
		if !ok || f == os.Stdout {
			return
		}
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(f.Name())
		}
	}()

	return p.Process(src, dst)
}

// pathToFile converts the source and destination paths to readable and writable files.
func (op *Ops) pathToFile(in, out string, binary bool) (io.Reader, io.Writer, error) {
	var (
		src io.Reader
		dst io.Writer
		err error
	)
	// Check if the source is a pipe name or a regular file.
	if in == op.PipeName {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return nil, nil, errors.New("`-` should be used with a pipe for stdin")
		}
		src = os.Stdin
	} else {
		src, err = os.Open(in)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to open the source file: %w", err)
		}
	}

	// Check if the destination is a pipe name or a regular file.
	// Only the printed detections are allowed to go to a terminal.
	if out == op.PipeName {
		if binary && term.IsTerminal(int(os.Stdout.Fd())) {
			if f, ok := src.(*os.File); ok && f != os.Stdin {
				f.Close()
			}
			return nil, nil, errors.New("`-` should be used with a pipe for stdout")
		}
		dst = os.Stdout
	} else {
		dst, err = os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			if f, ok := src.(*os.File); ok && f != os.Stdin {
				f.Close()
			}
			return nil, nil, fmt.Errorf("unable to create the destination file: %w", err)
		}
	}
	return src, dst, nil
}

// printOpStatus displays the path of the generated output.
func (op *Ops) printOpStatus(fname string) {
	if fname != op.PipeName {
		fmt.Fprintf(os.Stderr, "The result has been saved as: %s %s\n",
			utils.DecorateText(filepath.Base(fname), utils.SuccessMessage),
			utils.DefaultColor,
		)
	}
}

// walkDir starts a new goroutine to walk the specified directory tree
// in recursive manner and sends the path of each regular file to a new channel.
// It finishes in case the done channel is getting closed.
func walkDir(
	done <-chan interface{},
	src string,
	srcExts []string,
) (<-chan string, <-chan error) {
	pathChan := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		// Close the paths channel after Walk returns.
		defer close(pathChan)

		errChan <- filepath.Walk(src, func(path string, f os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !f.Mode().IsRegular() {
				return nil
			}
			if !isValidExtension(strings.ToLower(filepath.Ext(f.Name())), srcExts) {
				return nil
			}

			select {
			case <-done:
				return errors.New("directory walk cancelled")
			case pathChan <- path:
			}
			return nil
		})
	}()
	return pathChan, errChan
}

// isValidExtension checks for the supported extensions.
func isValidExtension(ext string, extensions []string) bool {
	for _, ex := range extensions {
		if ex == ext {
			return true
		}
	}
	return false
}
