package capture

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
)

// videoDevicePath is the V4L2 node for a numeric device index.
var videoDevicePath = "/dev/video%d"

// ProbeDevice tells a missing device apart from one the process may not
// open, which OpenCV reports as the same open failure. Targets that are not
// a device index, and platforms other than Linux, are not probed.
func ProbeDevice(target string) error {
	if runtime.GOOS != "linux" {
		return nil
	}
	index, err := strconv.Atoi(target)
	if err != nil {
		return nil
	}

	f, err := os.OpenFile(fmt.Sprintf(videoDevicePath, index), os.O_RDWR, 0)
	if err != nil {
		return openError(target, err)
	}
	return f.Close()
}

func openError(target string, err error) error {
	switch {
	case os.IsPermission(err):
		return &Error{Kind: KindPermissionDenied, Target: target, Err: err}
	case os.IsNotExist(err):
		return &Error{Kind: KindDeviceUnavailable, Target: target, Err: err}
	default:
		return nil
	}
}
