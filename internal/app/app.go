package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"facecapture/internal/config"
	"facecapture/internal/logger"
	"facecapture/internal/model"
	"facecapture/internal/routes"
	"facecapture/internal/service/capture"
	"facecapture/internal/service/capture/webcam"
	"facecapture/internal/service/classifier"
	"facecapture/internal/service/landmark"
	"facecapture/internal/service/pipeline"
	"facecapture/internal/service/websocket"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config     *config.Config
	logger     *logger.Logger
	hubService *websocket.HubService
	controller *pipeline.Controller
}

// NewApp loads the configuration and wires the pipeline to its camera,
// landmark sidecar, classifier and snapshot hub.
func NewApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create logger")
	}

	app, err := newApp(cfg, log)
	if err != nil {
		log.Close()
		return nil, err
	}
	return app, nil
}

func newApp(cfg *config.Config, log *logger.Logger) (*App, error) {
	devices := capture.NewDevices()
	hub := websocket.NewHubService(log)
	httpClient := &http.Client{}

	landmarkOpts := landmark.Options{
		MaxFaces:               cfg.MaxFaces,
		RefineLandmarks:        cfg.RefineLandmarks,
		MinDetectionConfidence: cfg.MinDetectionConfidence,
		MinTrackingConfidence:  cfg.MinTrackingConfidence,
		LandmarkCount:          cfg.LandmarkCount,
	}
	cameraOpts := webcam.Options{
		Target:          cfg.VideoTarget,
		Width:           cfg.FrameWidth,
		Height:          cfg.FrameHeight,
		TargetFPS:       cfg.TargetFPS,
		MaxReadFailures: cfg.MaxReadFailures,
	}

	ctrl, err := pipeline.New(pipeline.Options{
		NewSource: func() capture.Source {
			return webcam.NewCamera(cameraOpts, devices, log)
		},
		NewExtractor: func(ctx context.Context) (landmark.Extractor, error) {
			return landmark.NewClient(cfg.LandmarkURL, landmarkOpts, httpClient)
		},
		Classifier: classifier.NewClient(cfg.ClassifierURL, cfg.ClassifierTimeout, httpClient),
		WindowSize: cfg.WindowSize,
		OnWindowChange: func(window []model.Label) {
			log.Info("🙂 Window: %v", window)
		},
		OnError: func(err error) {
			var camErr *capture.Error
			if errors.As(err, &camErr) {
				log.Error("Camera error (%s): %v", camErr.Kind, err)
				return
			}
			log.Warning("Pipeline error: %v", err)
		},
		Logger: log,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create pipeline")
	}

	ctrl.Subscribe(func(snap pipeline.Snapshot) {
		message, err := json.Marshal(snap)
		if err != nil {
			log.Error("Encoding snapshot: %v", err)
			return
		}
		hub.Broadcast(message)
	})

	return &App{
		config:     cfg,
		logger:     log,
		hubService: hub,
		controller: ctrl,
	}, nil
}

// Run serves HTTP and the snapshot hub until ctx is cancelled, then stops
// the pipeline and releases the camera.
func (a *App) Run(ctx context.Context) error {
	defer a.logger.Close()

	router := routes.SetupRoutes(a.controller, a.hubService, a.logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Port),
		Handler: router,
	}

	fmt.Printf("🚀 Face Capture Server\n")
	fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
	fmt.Printf("📷 Camera: %s\n", a.config.VideoTarget)
	fmt.Printf("🧭 Landmarks: %s\n", a.config.LandmarkURL)
	fmt.Printf("🤖 Classifier: %s\n", a.config.ClassifierURL)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.hubService.Run(gctx)
	})

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if a.config.AutoStart {
		if err := a.controller.Start(gctx); err != nil {
			// The server stays up so the pipeline can be restarted over HTTP.
			a.logger.Error("Auto-start failed: %v", err)
		}
	}

	err := g.Wait()

	if stopErr := a.controller.Stop(); stopErr != nil {
		a.logger.Warning("Stopping pipeline: %v", stopErr)
	}
	a.logger.Info("Server stopped")
	return err
}
