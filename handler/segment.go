package handler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/NotanProEnhanced/madewithwords-segmentation/config"
	"github.com/NotanProEnhanced/madewithwords-segmentation/middleware"
	"github.com/NotanProEnhanced/madewithwords-segmentation/model"
	"github.com/NotanProEnhanced/madewithwords-segmentation/service"
	"github.com/NotanProEnhanced/madewithwords-segmentation/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// multipartOverhead 为 multipart 边界与表单头预留的字节数
const multipartOverhead = 64 << 10

type SegmentHandler struct {
	cfg          *config.Config
	segmentation *service.SegmentationService
	version      string
}

type segmentForm struct {
	Image *multipart.FileHeader `form:"image" binding:"required"`
}

func NewSegmentHandler(cfg *config.Config, segmentation *service.SegmentationService, version string) *SegmentHandler {
	return &SegmentHandler{
		cfg:          cfg,
		segmentation: segmentation,
		version:      version,
	}
}

// Register 注册分割、掩码与健康检查路由，/api/v1 下同时提供一份
func (h *SegmentHandler) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.POST("/segment", h.Segment)
	r.GET("/mask/:file", h.FetchMask)

	api := r.Group("/api/v1")
	{
		api.POST("/segment", h.Segment)
		api.GET("/mask/:file", h.FetchMask)
	}
}

// Segment 处理图片上传并返回掩码信息
func (h *SegmentHandler) Segment(c *gin.Context) {
	// 限制请求体大小，超限时不再解析剩余内容
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.Upload.MaxSize+multipartOverhead)

	var form segmentForm
	if err := c.ShouldBind(&form); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.tooLarge(c)
			return
		}
		utils.Logger.Warn("missing image field", zap.Error(err))
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "missing_image",
			Message: "请上传图片文件",
		})
		return
	}
	file := form.Image

	// 验证文件大小
	if file.Size > h.cfg.Upload.MaxSize {
		h.tooLarge(c)
		return
	}

	// 类型仅作记录，能否处理以解码结果为准
	if contentType := file.Header.Get("Content-Type"); !h.isExpectedType(contentType) {
		utils.Logger.Info("unexpected upload content type",
			zap.String("content_type", contentType),
			zap.String("request_id", c.GetString(middleware.RequestIDKey)))
	}

	data, err := readUpload(file, h.cfg.Upload.MaxSize)
	if err != nil {
		utils.Logger.Error("failed to read upload", zap.Error(err))
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "upload_unreadable",
			Message: "读取上传文件失败",
		})
		return
	}

	utils.Logger.Info("file uploaded",
		zap.String("filename", file.Filename),
		zap.Int64("size", file.Size),
		zap.String("request_id", c.GetString(middleware.RequestIDKey)))

	result, err := h.segmentation.Segment(c.Request.Context(), data)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SegmentResponse{
		Success:       true,
		MaskURL:       h.maskURL(c, result.MaskID),
		SegmentResult: *result,
	})
}

// FetchMask 返回 PNG 掩码，路径参数可带 .png 后缀
func (h *SegmentHandler) FetchMask(c *gin.Context) {
	id := strings.TrimSuffix(c.Param("file"), ".png")

	data, err := h.segmentation.FetchMask(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", data)
}

// Health 健康检查
func (h *SegmentHandler) Health(c *gin.Context) {
	st := h.segmentation.Status(c.Request.Context())
	c.JSON(http.StatusOK, model.HealthResponse{
		Success:    true,
		Service:    st.Service,
		Model:      st.Model,
		TTLSeconds: st.TTLSeconds,
		Entries:    st.Entries,
		Version:    h.version,
	})
}

// fail 将服务错误映射为状态码与错误码
func (h *SegmentHandler) fail(c *gin.Context, err error) {
	kind := service.KindOf(err)

	status, message := http.StatusInternalServerError, "图片处理失败"
	switch kind {
	case service.KindEmptyInput:
		status, message = http.StatusBadRequest, "上传文件为空"
	case service.KindDecode:
		status, message = http.StatusBadRequest, "无法解析图片"
	case service.KindNotFound:
		status, message = http.StatusNotFound, "掩码不存在或已过期"
	case service.KindUnknown:
		kind = service.KindProcessingFailed
	}

	fields := []zap.Field{
		zap.String("error_code", kind.Code()),
		zap.String("request_id", c.GetString(middleware.RequestIDKey)),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		utils.Logger.Error("request failed", fields...)
		message = err.Error()
	} else {
		utils.Logger.Warn("request rejected", fields...)
	}

	c.JSON(status, model.ErrorResponse{
		Error:   kind.Code(),
		Message: message,
	})
}

func (h *SegmentHandler) maskURL(c *gin.Context, id string) string {
	base := strings.TrimRight(h.cfg.Server.BaseURL, "/")
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + c.Request.Host
	}
	return base + "/mask/" + id + ".png"
}

func (h *SegmentHandler) tooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, model.ErrorResponse{
		Error:   "file_too_large",
		Message: fmt.Sprintf("文件大小超过限制 (%d MB)", h.cfg.Upload.MaxSize/(1024*1024)),
	})
}

// isExpectedType 比较时忽略 charset 等参数
func (h *SegmentHandler) isExpectedType(contentType string) bool {
	if len(h.cfg.Upload.AllowedTypes) == 0 || contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	for _, allowed := range h.cfg.Upload.AllowedTypes {
		if strings.EqualFold(mediaType, allowed) {
			return true
		}
	}
	return false
}

func readUpload(file *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(io.LimitReader(f, limit))
}
