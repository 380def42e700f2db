package model

// BBox 前景边界框，w/h 为 0 表示未检测到前景
type BBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"w"`
	Height int `json:"h"`
}

// Empty 是否为空框
func (b BBox) Empty() bool {
	return b.Width == 0 && b.Height == 0
}

// SegmentResult 分割结果
type SegmentResult struct {
	MaskID     string  `json:"mask_id"`
	BBox       BBox    `json:"bbox"`
	Coverage   float64 `json:"coverage"`
	Confidence float64 `json:"confidence"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Model      string  `json:"model"`
	ElapsedMs  int64   `json:"ms"`
}

// SegmentResponse 分割接口响应
type SegmentResponse struct {
	Success bool   `json:"ok"`
	MaskURL string `json:"mask_url"`
	SegmentResult
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Success    bool   `json:"ok"`
	Service    string `json:"service"`
	Model      string `json:"model"`
	TTLSeconds int64  `json:"ttl_seconds"`
	Entries    int    `json:"entries"`
	Version    string `json:"version,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
