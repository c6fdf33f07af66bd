package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port         int    `yaml:"port"`
	LogDirectory string `yaml:"log_dir"`

	// Camera
	VideoTarget     string  `yaml:"video_target"` // Device index ("0") or a path/URL
	FrameWidth      int     `yaml:"frame_width"`
	FrameHeight     int     `yaml:"frame_height"`
	TargetFPS       float64 `yaml:"target_fps"`        // 0 = device default
	MaxReadFailures int     `yaml:"max_read_failures"` // Consecutive failed reads before the device counts as disconnected

	// Landmark extractor sidecar
	LandmarkURL            string  `yaml:"landmark_url"`
	LandmarkCount          int     `yaml:"landmark_count"`
	MaxFaces               int     `yaml:"max_faces"`
	RefineLandmarks        bool    `yaml:"refine_landmarks"`
	MinDetectionConfidence float64 `yaml:"min_detection_confidence"`
	MinTrackingConfidence  float64 `yaml:"min_tracking_confidence"`

	// Classifier
	ClassifierURL     string        `yaml:"classifier_url"`
	ClassifierTimeout time.Duration `yaml:"classifier_timeout"`

	WindowSize int  `yaml:"window_size"`
	AutoStart  bool `yaml:"auto_start"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Port:                   8080,
		LogDirectory:           filepath.Join(".", "logs"),
		VideoTarget:            "0",
		FrameWidth:             640,
		FrameHeight:            480,
		MaxReadFailures:        30,
		LandmarkURL:            "http://localhost:5001/",
		LandmarkCount:          468,
		MaxFaces:               1,
		RefineLandmarks:        true,
		MinDetectionConfidence: 0.5,
		MinTrackingConfidence:  0.5,
		ClassifierURL:          "http://localhost:5000/",
		ClassifierTimeout:      5 * time.Second,
		WindowSize:             4,
	}
}

// Load builds the config from defaults, an optional YAML file named by
// CONFIG_FILE, a .env file and finally the process environment.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config file %s", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "parse config file %s", path)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnvAsInt("PORT", c.Port)
	c.LogDirectory = getEnv("LOG_DIR", c.LogDirectory)

	c.VideoTarget = getEnv("VIDEO_TARGET", c.VideoTarget)
	c.FrameWidth = getEnvAsInt("FRAME_WIDTH", c.FrameWidth)
	c.FrameHeight = getEnvAsInt("FRAME_HEIGHT", c.FrameHeight)
	c.TargetFPS = getEnvAsFloat("TARGET_FPS", c.TargetFPS)
	c.MaxReadFailures = getEnvAsInt("MAX_READ_FAILURES", c.MaxReadFailures)

	c.LandmarkURL = getEnv("LANDMARK_URL", c.LandmarkURL)
	c.LandmarkCount = getEnvAsInt("LANDMARK_COUNT", c.LandmarkCount)
	c.MaxFaces = getEnvAsInt("MAX_FACES", c.MaxFaces)
	c.RefineLandmarks = getEnvAsBool("REFINE_LANDMARKS", c.RefineLandmarks)
	c.MinDetectionConfidence = getEnvAsFloat("MIN_DETECTION_CONFIDENCE", c.MinDetectionConfidence)
	c.MinTrackingConfidence = getEnvAsFloat("MIN_TRACKING_CONFIDENCE", c.MinTrackingConfidence)

	c.ClassifierURL = getEnv("CLASSIFIER_URL", c.ClassifierURL)
	c.ClassifierTimeout = getEnvAsDuration("CLASSIFIER_TIMEOUT", c.ClassifierTimeout)

	c.WindowSize = getEnvAsInt("WINDOW_SIZE", c.WindowSize)
	c.AutoStart = getEnvAsBool("AUTO_START", c.AutoStart)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return errors.Errorf("invalid port %d", c.Port)
	case c.FrameWidth <= 0 || c.FrameHeight <= 0:
		return errors.Errorf("invalid frame size %dx%d", c.FrameWidth, c.FrameHeight)
	case c.TargetFPS < 0:
		return errors.Errorf("invalid target fps %v", c.TargetFPS)
	case c.MaxReadFailures <= 0:
		return errors.Errorf("invalid max read failures %d", c.MaxReadFailures)
	case c.LandmarkCount <= 0:
		return errors.Errorf("invalid landmark count %d", c.LandmarkCount)
	case c.MaxFaces <= 0:
		return errors.Errorf("invalid max faces %d", c.MaxFaces)
	case c.MinDetectionConfidence < 0 || c.MinDetectionConfidence > 1:
		return errors.Errorf("min detection confidence %v out of range [0,1]", c.MinDetectionConfidence)
	case c.MinTrackingConfidence < 0 || c.MinTrackingConfidence > 1:
		return errors.Errorf("min tracking confidence %v out of range [0,1]", c.MinTrackingConfidence)
	case c.ClassifierURL == "":
		return errors.New("classifier url must be set")
	case c.LandmarkURL == "":
		return errors.New("landmark url must be set")
	case c.ClassifierTimeout <= 0:
		return errors.Errorf("invalid classifier timeout %v", c.ClassifierTimeout)
	case c.WindowSize <= 0:
		return errors.Errorf("invalid window size %d", c.WindowSize)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("750ms") or plain seconds ("5").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
