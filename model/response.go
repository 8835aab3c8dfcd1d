package model

// ExportResult PSD 导出结果
type ExportResult struct {
	Files    []string `json:"files"`
	Fallback bool     `json:"fallback"`
	Images   int      `json:"images"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
}

// UploadResponse 上传响应
type UploadResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Data    *ExportResult `json:"data,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
