// Package rembg 调用 rembg HTTP 服务（U2-Net）生成前景掩码
package rembg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/NotanProEnhanced/madewithwords-segmentation/config"
	"github.com/NotanProEnhanced/madewithwords-segmentation/service"
	"github.com/NotanProEnhanced/madewithwords-segmentation/utils"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// Client 实现 service.Segmenter
type Client struct {
	endpoint     string
	model        string
	maxDimension int
	httpClient   *http.Client
}

var _ service.Segmenter = (*Client)(nil)

func New(cfg *config.RembgConfig) *Client {
	return &Client{
		endpoint:     strings.TrimRight(cfg.URL, "/") + "/api/remove",
		model:        cfg.Model,
		maxDimension: cfg.MaxDimension,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
	}
}

// ProduceMask 上传图像并取回掩码；超大图像先缩小发送，结果再放大回原尺寸
func (c *Client) ProduceMask(ctx context.Context, img image.Image) (*service.Mask, error) {
	width, height := img.Bounds().Dx(), img.Bounds().Dy()

	send := img
	if c.maxDimension > 0 && max(width, height) > c.maxDimension {
		send = imaging.Fit(img, c.maxDimension, c.maxDimension, imaging.Lanczos)
	}

	body, contentType, err := encodeUpload(send)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("model", c.model)
	q.Set("om", "true")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"?"+q.Encode(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build rembg request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rembg request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rembg returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	out, err := imaging.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode rembg response: %w", err)
	}

	sent := send.Bounds()
	if got := out.Bounds(); got.Dx() != sent.Dx() || got.Dy() != sent.Dy() {
		return nil, fmt.Errorf("rembg mask is %dx%d, sent %dx%d", got.Dx(), got.Dy(), sent.Dx(), sent.Dy())
	}

	mask := service.MaskFromImage(out)
	if sent.Dx() != width || sent.Dy() != height {
		utils.Logger.Debug("upscaling rembg mask",
			zap.Int("from_width", sent.Dx()),
			zap.Int("to_width", width))
		mask = resizeMask(mask, width, height)
	}
	return mask, nil
}

func encodeUpload(img image.Image) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if err := imaging.Encode(part, img, imaging.PNG); err != nil {
		return nil, "", fmt.Errorf("failed to encode upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

// resizeMask 线性插值缩放掩码，imaging 输出 NRGBA，取 R 通道即灰度值
func resizeMask(m *service.Mask, width, height int) *service.Mask {
	scaled := imaging.Resize(m.Gray(), width, height, imaging.Linear)
	out := service.NewMask(width, height)
	for y := 0; y < height; y++ {
		row := scaled.Pix[y*scaled.Stride:]
		for x := 0; x < width; x++ {
			out.Pix[y*width+x] = row[x*4]
		}
	}
	return out
}
