package ocr

import (
	"image"
	"math"
)

// 霍夫变换参数：在 [-20°, 20°) 内以 0.2° 为步长搜索文本行角度.
const (
	alphaStart = -20.0
	alphaStep  = 0.2
	alphaSteps = 200
	// darkThreshold 灰度低于该值视为前景.
	darkThreshold = 140
	// topLines 参与平均的最强直线数量.
	topLines = 20
)

type houghLine struct {
	count int
	alpha float64
}

// SkewAngle 估计文本行相对水平方向的倾斜角（度）.
// 只统计图像中间一半高度内前景区域的下边缘像素，取累加器中最强的若干直线的平均角度；
// 候选直线不足时返回 0.
func SkewAngle(img *image.Gray) float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if w < 4 || h < 4 {
		return 0
	}

	sinA := make([]float64, alphaSteps)
	cosA := make([]float64, alphaSteps)

	for i := range alphaSteps {
		rad := alphaOf(i) * math.Pi / 180
		sinA[i], cosA[i] = math.Sin(rad), math.Cos(rad)
	}

	dMin := -w
	dCount := 2 * (w + h)
	acc := make([]int32, dCount*alphaSteps)

	dark := func(x, y int) bool {
		return img.GrayAt(b.Min.X+x, b.Min.Y+y).Y < darkThreshold
	}

	for y := h / 4; y < h*3/4; y++ {
		for x := 1; x < w-2; x++ {
			if !dark(x, y) || dark(x, y+1) {
				continue
			}

			for a := range alphaSteps {
				d := int(float64(y)*cosA[a] - float64(x)*sinA[a] - float64(dMin))
				if d < 0 || d >= dCount {
					continue
				}

				acc[d*alphaSteps+a]++
			}
		}
	}

	top := strongest(acc, topLines)
	if len(top) < topLines {
		return 0
	}

	var sum float64
	for _, l := range top {
		sum += l.alpha
	}

	return sum / float64(len(top))
}

func alphaOf(i int) float64 {
	return alphaStart + float64(i)*alphaStep
}

// strongest 返回计数最高的 n 个累加器单元，按计数降序.
func strongest(acc []int32, n int) []houghLine {
	top := make([]houghLine, 0, n)

	for i, c := range acc {
		if c == 0 {
			continue
		}

		if len(top) == n && int(c) <= top[n-1].count {
			continue
		}

		line := houghLine{count: int(c), alpha: alphaOf(i % alphaSteps)}

		pos := len(top)
		for pos > 0 && top[pos-1].count < line.count {
			pos--
		}

		if len(top) < n {
			top = append(top, houghLine{})
		}

		copy(top[pos+1:], top[pos:len(top)-1])
		top[pos] = line
	}

	return top
}
