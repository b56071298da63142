package imaging

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Resize scales a one-byte-per-pixel image to dstW x dstH with Lanczos
// interpolation and returns a new buffer.
func Resize(src []byte, srcW, srcH, dstW, dstH int) ([]byte, error) {
	if len(src) < srcW*srcH {
		return nil, fmt.Errorf("resize: buffer holds %d bytes, %dx%d needs %d", len(src), srcW, srcH, srcW*srcH)
	}

	in, err := gocv.NewMatFromBytes(srcH, srcW, gocv.MatTypeCV8UC1, src[:srcW*srcH])
	if err != nil {
		return nil, fmt.Errorf("resize: %w", err)
	}
	defer in.Close()

	out := gocv.NewMat()
	defer out.Close()

	gocv.Resize(in, &out, image.Pt(dstW, dstH), 0, 0, gocv.InterpolationLanczos4)
	if out.Empty() || out.Cols() != dstW || out.Rows() != dstH {
		return nil, fmt.Errorf("resize: produced %dx%d, expected %dx%d", out.Cols(), out.Rows(), dstW, dstH)
	}
	return out.ToBytes(), nil
}
