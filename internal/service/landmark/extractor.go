// Package landmark holds the face landmark extraction contract.
package landmark

import (
	"context"
	"net/url"
	"strconv"

	"facecapture/internal/model"
)

// Extractor turns a frame into at most one landmark set.
//
// A nil set with a nil error means no face was detected in the frame; that
// is not an error. Close releases any resources held by the extractor.
type Extractor interface {
	Extract(ctx context.Context, frame model.Frame) (*model.LandmarkSet, error)
	Close() error
}

// Options mirrors the face mesh settings requested from the detector.
type Options struct {
	MaxFaces               int
	RefineLandmarks        bool
	MinDetectionConfidence float64
	MinTrackingConfidence  float64
	// LandmarkCount is the exact number of points kept per face.
	LandmarkCount int
}

// DefaultOptions returns single-face, refined-landmark settings.
func DefaultOptions() Options {
	return Options{
		MaxFaces:               1,
		RefineLandmarks:        true,
		MinDetectionConfidence: 0.5,
		MinTrackingConfidence:  0.5,
		LandmarkCount:          model.DefaultLandmarkCount,
	}
}

func (o Options) query() url.Values {
	q := url.Values{}
	q.Set("max_faces", strconv.Itoa(o.MaxFaces))
	q.Set("refine_landmarks", strconv.FormatBool(o.RefineLandmarks))
	q.Set("min_detection_confidence", strconv.FormatFloat(o.MinDetectionConfidence, 'f', -1, 64))
	q.Set("min_tracking_confidence", strconv.FormatFloat(o.MinTrackingConfidence, 'f', -1, 64))
	return q
}
