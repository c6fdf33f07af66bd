package model

import "time"

// Frame is a single captured camera image.
// Data holds the JPEG encoding of the image and must not be modified after
// the frame has been handed to the pipeline.
type Frame struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Data      []byte    `json:"-"`
}

// Label names a classified state, e.g. "happy".
type Label string
