/*
Example program running the license plate reader on a camera, video file or
stream.  The annotated preview is served as MJPEG and recognized plates are
published to websocket viewers.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/swdee/go-alpr/camera"
	"github.com/swdee/go-alpr/classifier"
	"github.com/swdee/go-alpr/config"
	"github.com/swdee/go-alpr/display"
	"github.com/swdee/go-alpr/pipeline"
	"github.com/swdee/go-alpr/tracker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// platformSetup prepares the host for the compiled in backends, it is set
// by backends built for a specific board
var platformSetup func(cfg config.Config, log *zap.SugaredLogger)

func main() {

	envFiles := flag.String("e", ".env", "Comma delimited list of .env files to load")
	cameraDev := flag.String("c", "", "Camera device index, video file or stream URL")
	httpAddr := flag.String("a", "", "HTTP Address to run server on, format address:port")
	detModel := flag.String("m", "", "Plate detector model file")
	ocrModel := flag.String("o", "", "Character detector model file")
	backend := flag.String("b", "", fmt.Sprintf("Inference backend for both stages %v", classifier.Backends()))
	debug := flag.Bool("debug", false, "Draw raw detections, trails and tracker diagnostics")
	dev := flag.Bool("dev", false, "Use human readable development logging")

	flag.Parse()

	cfg, err := config.Load(strings.Split(*envFiles, ",")...)

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// flags override the environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "c":
			cfg.Camera = *cameraDev
		case "a":
			cfg.HTTPAddr = *httpAddr
		case "m":
			cfg.Detector.ModelFile = *detModel
		case "o":
			cfg.OCR.ModelFile = *ocrModel
		case "b":
			cfg.Detector.Backend = *backend
			cfg.OCR.Backend = *backend
		case "debug":
			cfg.Debug = *debug
		}
	})

	log, err := newLogger(cfg.LogLevel, *dev)

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}

	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatalw("detector stopped", "error", err)
	}

	log.Info("done")
}

// newLogger builds a production JSON logger or a development console logger
func newLogger(level string, dev bool) (*zap.SugaredLogger, error) {

	lvl, err := zapcore.ParseLevel(level)

	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()

	if dev {
		zc = zap.NewDevelopmentConfig()
	}

	zc.Level = zap.NewAtomicLevelAt(lvl)

	l, err := zc.Build()

	if err != nil {
		return nil, err
	}

	return l.Sugar(), nil
}

// run wires the camera, classifiers, pipeline, tracker and display together
// and blocks until interrupted
func run(cfg config.Config, log *zap.SugaredLogger) error {

	err := cfg.Validate()

	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	smoothing, _ := cfg.Smoothing()

	if platformSetup != nil {
		platformSetup(cfg, log)
	}

	cfg.Detector.Logger = log.Named("detector")
	cfg.OCR.Logger = log.Named("ocr")

	detector, err := classifier.Open(cfg.Detector)

	if err != nil {
		return fmt.Errorf("error initializing plate detector: %w", err)
	}

	defer detector.Close()

	ocr, err := classifier.Open(cfg.OCR)

	if err != nil {
		return fmt.Errorf("error initializing character detector: %w", err)
	}

	defer ocr.Close()

	cam, err := camera.Open(camera.Config{
		Device:      cfg.Camera,
		Width:       cfg.PreviewWidth,
		Height:      cfg.PreviewHeight,
		Orientation: cfg.SensorOrientation,
		Logger:      log.Named("camera"),
	})

	if err != nil {
		return fmt.Errorf("error initializing camera: %w", err)
	}

	defer cam.Close()

	trk := tracker.New(tracker.Config{
		MatchThreshold: cfg.TrackIoU,
		MaxMissed:      cfg.TrackMaxMissed,
		Smoothing:      smoothing,
		MinSize:        tracker.DefaultConfig().MinSize,
		TrailLength:    tracker.DefaultConfig().TrailLength,
		Logger:         log.Named("tracker"),
	})

	overlay := display.NewOverlay(cfg.JPEGQuality, log.Named("overlay"))
	defer overlay.Close()

	if cfg.Debug {
		overlay.AddCallback(trk.DrawDebug)
	} else {
		overlay.AddCallback(trk.Draw)
	}

	status, err := newStatus(cfg.FontFile)

	if err != nil {
		return fmt.Errorf("error initializing font face: %w", err)
	}

	defer status.Close()
	overlay.AddCallback(status.Draw)

	pcfg := pipeline.DefaultConfig()
	pcfg.DetectThreshold = cfg.DetectThreshold
	pcfg.RecognizeThreshold = cfg.RecognizeThreshold
	pcfg.SensorOrientation = cfg.SensorOrientation
	pcfg.MaintainAspect = cfg.MaintainAspect
	pcfg.Filter.Binarize = cfg.Binarize
	pcfg.Logger = log.Named("pipeline")

	proc, err := pipeline.New(pcfg, detector, ocr, trk, overlay)

	if err != nil {
		return fmt.Errorf("error creating pipeline: %w", err)
	}

	defer proc.Close()

	hub := display.NewHub(log.Named("hub"))

	proc.SetListener(pipeline.ListenerFunc(func(r pipeline.Result) {
		status.OnResult(r)
		hub.OnResult(r)
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if err := proc.Start(ctx); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/stream", overlay)
	mux.Handle("/ws", hub)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(indexPage))
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	g.Go(func() error { return ignoreCanceled(hub.Run(ctx)) })
	g.Go(func() error { return ignoreCanceled(overlay.Run(ctx)) })

	g.Go(func() error {
		var frameSize image.Point

		err := cam.Run(ctx, func(f *camera.Frame) {
			// streams only report their size once frames arrive, the preview
			// is drawn unrotated in frame coordinates
			if sz := f.Size(); sz != frameSize {
				frameSize = sz
				trk.SetFrameConfiguration(sz.X, sz.Y, 0)
			}

			overlay.SetBackground(f.Mat)
			proc.OnNewFrame(f)
		})

		if errors.Is(err, camera.ErrEndOfStream) {
			log.Infow("capture ended", "stats", proc.Stats())
		}

		return ignoreCanceled(err)
	})

	g.Go(func() error {
		log.Infof("Open browser and view video at http://%s/", cfg.HTTPAddr)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	log.Infow("pipeline stats", "stats", proc.Stats())

	return err
}

// ignoreCanceled treats shutdown by context as a clean exit
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, camera.ErrEndOfStream) {
		return nil
	}
	return err
}
