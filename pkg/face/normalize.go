package face

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// MaxEdge 归一化后最长边
	MaxEdge = 1920
	// DefaultMaxBytes 人脸服务接受的最大图片字节数
	DefaultMaxBytes = 5 << 20

	maxFetchBytes = 32 << 20
)

var jpegQualities = []int{90, 80, 70, 60, 50}

// Fetch 下载图片原始字节
func Fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageFetch, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrImageFetch, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageFetch, err)
	}
	if len(data) > maxFetchBytes {
		return nil, fmt.Errorf("%w: 原图超过 %d 字节", ErrImageTooLarge, maxFetchBytes)
	}
	return data, nil
}

// Normalize 将图片转换为人脸服务可接受的格式。
// 已经是 JPEG/PNG 且尺寸、大小都在范围内时原样返回；
// 否则按最长边缩放到 MaxEdge 以内并以递减质量重新编码为 JPEG。
func Normalize(data []byte, maxBytes int) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("face: 无法识别的图片格式: %w", err)
	}
	if (format == "jpeg" || format == "png") &&
		cfg.Width <= MaxEdge && cfg.Height <= MaxEdge && len(data) <= maxBytes {
		return data, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("face: 图片解码失败: %w", err)
	}
	img := downscale(src, MaxEdge)

	var buf bytes.Buffer
	for _, q := range jpegQualities {
		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
			return nil, fmt.Errorf("face: JPEG编码失败: %w", err)
		}
		if buf.Len() <= maxBytes {
			return buf.Bytes(), nil
		}
	}
	return nil, fmt.Errorf("%w: 最低质量下仍有 %d 字节", ErrImageTooLarge, buf.Len())
}

func downscale(src image.Image, maxEdge int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxEdge && h <= maxEdge {
		return src
	}
	if w >= h {
		h = h * maxEdge / w
		w = maxEdge
	} else {
		w = w * maxEdge / h
		h = maxEdge
	}
	dst := image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
