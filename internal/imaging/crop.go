// Package imaging fits captured grayscale frames to the configured output size.
package imaging

import "fmt"

// Margins is the number of pixels removed from each side by CenterCrop.
type Margins struct {
	Left, Right, Top, Bottom int
}

// CenterMargins splits the excess of src over dst. The left and top margins
// get the floor of half the excess, the right and bottom the remainder.
func CenterMargins(srcW, srcH, dstW, dstH int) Margins {
	dx, dy := srcW-dstW, srcH-dstH
	return Margins{
		Left:   dx / 2,
		Right:  dx - dx/2,
		Top:    dy / 2,
		Bottom: dy - dy/2,
	}
}

// CenterCrop copies the centered dstW x dstH window out of a srcW x srcH
// one-byte-per-pixel image into a new buffer.
func CenterCrop(src []byte, srcW, srcH, dstW, dstH int) ([]byte, error) {
	if len(src) < srcW*srcH {
		return nil, fmt.Errorf("crop: buffer holds %d bytes, %dx%d needs %d", len(src), srcW, srcH, srcW*srcH)
	}
	if dstW > srcW || dstH > srcH || dstW <= 0 || dstH <= 0 {
		return nil, fmt.Errorf("crop: cannot crop %dx%d to %dx%d", srcW, srcH, dstW, dstH)
	}

	m := CenterMargins(srcW, srcH, dstW, dstH)
	dst := make([]byte, dstW*dstH)
	for y := 0; y < dstH; y++ {
		start := (y+m.Top)*srcW + m.Left
		copy(dst[y*dstW:(y+1)*dstW], src[start:start+dstW])
	}
	return dst, nil
}

// Fits reports whether a srcW x srcH frame can be center-cropped to dstW x dstH.
func Fits(srcW, srcH, dstW, dstH int) bool {
	return srcW >= dstW && srcH >= dstH
}
