package handler

import (
	"errors"
	"fmt"
	"image"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/TIANLI0/D2Nodes/config"
	"github.com/TIANLI0/D2Nodes/model"
	"github.com/TIANLI0/D2Nodes/node"
	"github.com/TIANLI0/D2Nodes/service"
	"github.com/TIANLI0/D2Nodes/utils"
	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type UploadHandler struct {
	cfg      *config.Config
	registry *node.Registry
}

func NewUploadHandler(cfg *config.Config, registry *node.Registry) *UploadHandler {
	return &UploadHandler{
		cfg:      cfg,
		registry: registry,
	}
}

// Upload 接收一组图片并导出为 PSD
func (h *UploadHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		utils.Logger.Error("failed to parse multipart form", zap.Error(err))
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "请上传图片文件",
			Error:   err.Error(),
		})
		return
	}

	files := form.File["images"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "请上传图片文件",
		})
		return
	}
	if h.cfg.Upload.MaxFiles > 0 && len(files) > h.cfg.Upload.MaxFiles {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: fmt.Sprintf("文件数量超过限制 (%d)", h.cfg.Upload.MaxFiles),
		})
		return
	}

	imgs := make([]image.Image, 0, len(files))
	for _, file := range files {
		img, status, err := h.load(c, file)
		if err != nil {
			c.JSON(status, model.ErrorResponse{
				Success: false,
				Message: err.Error(),
			})
			return
		}
		imgs = append(imgs, img)
	}

	batch, err := service.StackImages(imgs)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "图片尺寸必须一致",
			Error:   err.Error(),
		})
		return
	}

	inputs := node.Inputs{"images": batch}
	for _, field := range []string{"filename_prefix", "file_mode", "alpha_name", "alpha_name_mode"} {
		if v, ok := c.GetPostForm(field); ok && v != "" {
			inputs[field] = v
		}
	}

	res, err := h.registry.Invoke(c.Request.Context(), node.SavePSD, inputs)
	if err != nil {
		status := statusFor(err)
		utils.Logger.Error("failed to export psd", zap.Error(err))
		c.JSON(status, model.ErrorResponse{
			Success: false,
			Message: "导出失败",
			Error:   err.Error(),
		})
		return
	}

	written, _ := res.UI["files"].([]string)
	fallback, _ := res.UI["fallback"].(bool)
	message := "导出成功"
	if fallback {
		message = "PSD 导出失败，已保存为 PNG"
	}

	c.JSON(http.StatusOK, model.UploadResponse{
		Success: true,
		Message: message,
		Data: &model.ExportResult{
			Files:    written,
			Fallback: fallback,
			Images:   batch.Dim(0),
			Width:    batch.Dim(2),
			Height:   batch.Dim(1),
		},
	})
}

// load 校验并解码单个上传文件，返回失败时应使用的状态码
func (h *UploadHandler) load(c *gin.Context, file *multipart.FileHeader) (image.Image, int, error) {
	// 验证文件大小
	if file.Size > h.cfg.Upload.MaxSize {
		return nil, http.StatusBadRequest, fmt.Errorf("文件大小超过限制 (%d MB)", h.cfg.Upload.MaxSize/(1024*1024))
	}

	// 验证文件类型
	if !h.isAllowedType(file.Header.Get("Content-Type")) {
		return nil, http.StatusBadRequest, errors.New("不支持的文件类型，仅支持 JPEG/PNG")
	}

	if err := os.MkdirAll(h.cfg.Upload.UploadDir, 0755); err != nil {
		utils.Logger.Error("failed to create upload directory", zap.Error(err))
		return nil, http.StatusInternalServerError, errors.New("保存文件失败")
	}

	filename := fmt.Sprintf("%d%s", utils.GenerateID(), filepath.Ext(file.Filename))
	savePath := filepath.Join(h.cfg.Upload.UploadDir, filename)
	if err := c.SaveUploadedFile(file, savePath); err != nil {
		utils.Logger.Error("failed to save file", zap.Error(err))
		return nil, http.StatusInternalServerError, errors.New("保存文件失败")
	}

	// 确保文件在处理完成后被删除（如果配置启用）
	if h.cfg.Upload.CleanupTempFiles {
		defer func() {
			if err := os.Remove(savePath); err != nil {
				utils.Logger.Warn("failed to delete temp file",
					zap.String("file", savePath),
					zap.Error(err))
			}
		}()
	}

	md5, err := utils.FileMD5(savePath)
	if err != nil {
		utils.Logger.Warn("failed to calculate md5", zap.Error(err))
	}

	img, err := imaging.Open(savePath)
	if err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("无法解码图片 %s", file.Filename)
	}

	utils.Logger.Info("file uploaded",
		zap.String("filename", file.Filename),
		zap.String("md5", md5),
		zap.Int64("size", file.Size))

	return img, http.StatusOK, nil
}

func (h *UploadHandler) isAllowedType(contentType string) bool {
	for _, allowed := range h.cfg.Upload.AllowedTypes {
		if strings.EqualFold(contentType, allowed) {
			return true
		}
	}
	return false
}
