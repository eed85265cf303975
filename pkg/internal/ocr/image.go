package ocr

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // 注册 GIF 解码
	_ "image/jpeg" // 注册 JPEG 解码
	_ "image/png"  // 注册 PNG 解码
	"io"
	"math"

	_ "golang.org/x/image/bmp" // 注册 BMP 解码
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp" // 注册 WebP 解码

	"github.com/yeisme/docvault/pkg/internal/errs"
)

// minRotation 小于该角度（度）时不旋转.
const minRotation = 0.05

// Decode 解码图像，失败时返回 ErrImageDecode.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, errs.Wrap(errs.ErrImageDecode, err)
	}

	return img, nil
}

// Resize 将长边缩放到 target 像素，同时转换为灰度.
func Resize(src image.Image, target int) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	if w >= h {
		h = max(1, int(math.Round(float64(h)*float64(target)/float64(w))))
		w = target
	} else {
		w = max(1, int(math.Round(float64(w)*float64(target)/float64(h))))
		h = target
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	return dst
}

// Rotate 将图像绕中心顺时针旋转 degrees 度，画布扩展到能容纳整个结果，空白处填充白色.
func Rotate(src *image.Gray, degrees float64) *image.Gray {
	if math.Abs(degrees) < minRotation {
		return src
	}

	rad := degrees * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)

	b := src.Bounds()
	sw, sh := float64(b.Dx()), float64(b.Dy())
	dw := int(math.Ceil(math.Abs(sw*cos) + math.Abs(sh*sin)))
	dh := int(math.Ceil(math.Abs(sw*sin) + math.Abs(sh*cos)))

	dst := image.NewGray(image.Rect(0, 0, dw, dh))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	scx, scy := float64(b.Min.X)+sw/2, float64(b.Min.Y)+sh/2
	dcx, dcy := float64(dw)/2, float64(dh)/2

	// 源坐标到目标坐标的仿射变换
	m := f64.Aff3{
		cos, -sin, dcx - cos*scx + sin*scy,
		sin, cos, dcy - sin*scx - cos*scy,
	}
	draw.CatmullRom.Transform(dst, m, src, b, draw.Over, nil)

	return dst
}

// WriteTIFF 以无损压缩的 TIFF 写出图像.
func WriteTIFF(w io.Writer, img image.Image) error {
	if err := tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		return fmt.Errorf("encode tiff: %w", err)
	}

	return nil
}
