//go:build !linux || !cgo

package capture

import (
	"fmt"

	"deskxr/internal/geom"
	"deskxr/internal/types"
)

func OpenXShm(displayName string, rect geom.Rect) (types.MediaCapturer, error) {
	return nil, fmt.Errorf("xshm capture needs linux with cgo")
}
