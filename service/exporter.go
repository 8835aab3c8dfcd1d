package service

import (
	"fmt"
	"image"
	"strconv"
	"sync"

	"github.com/TIANLI0/D2Nodes/psd"
	"github.com/TIANLI0/D2Nodes/tensor"
	"github.com/TIANLI0/D2Nodes/utils"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

type FileMode string

const (
	SingleFile FileMode = "single_file"
	MultiFile  FileMode = "multi_file"
)

type AlphaNameMode string

const (
	AlphaNameSimple AlphaNameMode = "simple"
	AlphaNameSuffix AlphaNameMode = "suffix"
)

// ExportOptions D2 Save PSD 的参数
type ExportOptions struct {
	FilenamePrefix string
	FileMode       FileMode
	AlphaName      string
	AlphaNameMode  AlphaNameMode
}

func (o ExportOptions) validate() error {
	if o.FileMode != SingleFile && o.FileMode != MultiFile {
		return fmt.Errorf("%w: file mode %q", ErrInvalidOptions, o.FileMode)
	}
	if o.AlphaNameMode != AlphaNameSimple && o.AlphaNameMode != AlphaNameSuffix {
		return fmt.Errorf("%w: alpha name mode %q", ErrInvalidOptions, o.AlphaNameMode)
	}
	return nil
}

// WriteResult 单个文件的写入结果
type WriteResult struct {
	Path string
	Err  error
}

// ExportReport 一次导出的结果，FellBack 为 true 时 Fallback 记录逐张 PNG 的结果
type ExportReport struct {
	Documents []WriteResult
	Fallback  []WriteResult
	FellBack  bool
	Cause     error
}

// Written 返回成功写入的文件路径
func (r *ExportReport) Written() []string {
	var out []string
	for _, list := range [][]WriteResult{r.Documents, r.Fallback} {
		for _, res := range list {
			if res.Err == nil && res.Path != "" {
				out = append(out, res.Path)
			}
		}
	}
	return out
}

// DocumentWriter 写出分层文档
type DocumentWriter interface {
	WriteDocument(path string, doc *psd.Document) error
}

// FlatWriter 写出单帧位图
type FlatWriter interface {
	WriteFlat(path string, img image.Image) error
}

type PSDWriter struct{}

func (PSDWriter) WriteDocument(path string, doc *psd.Document) error {
	return psd.Save(path, doc)
}

type PNGWriter struct{}

func (PNGWriter) WriteFlat(path string, img image.Image) error {
	return imaging.Save(img, path)
}

// Exporter 把图像批次导出为 PSD，失败时退回逐张 PNG
type Exporter struct {
	// 保护文件计数器的解析与写入
	mu        sync.Mutex
	outputDir string
	extractor *AlphaExtractor
	docs      DocumentWriter
	flat      FlatWriter
}

func NewExporter(outputDir string, docs DocumentWriter, flat FlatWriter) *Exporter {
	if docs == nil {
		docs = PSDWriter{}
	}
	if flat == nil {
		flat = PNGWriter{}
	}
	return &Exporter{
		outputDir: outputDir,
		extractor: NewAlphaExtractor(),
		docs:      docs,
		flat:      flat,
	}
}

type plannedDocument struct {
	path string
	doc  *psd.Document
}

// Export 只在输入或输出路径无效时返回错误，写入失败由报告记录
func (e *Exporter) Export(batch *tensor.Tensor, opts ExportOptions) (*ExportReport, error) {
	n, _, _, _, err := imageDims(batch)
	if err != nil {
		return nil, err
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	savePath, err := ResolveSavePath(e.outputDir, opts.FilenamePrefix)
	if err != nil {
		return nil, err
	}

	report := &ExportReport{}
	cause := e.writeDocuments(batch, opts, savePath, report)
	if cause == nil {
		return report, nil
	}

	utils.Logger.Warn("psd export failed, saving images as png",
		zap.String("prefix", opts.FilenamePrefix),
		zap.Error(cause))
	report.FellBack = true
	report.Cause = cause
	report.Fallback = e.writeFallback(batch, n, savePath)
	return report, nil
}

func (e *Exporter) writeDocuments(batch *tensor.Tensor, opts ExportOptions, savePath SavePath, report *ExportReport) error {
	planned, err := e.plan(batch, opts, savePath)
	if err != nil {
		return err
	}

	for i, p := range planned {
		if err := e.docs.WriteDocument(p.path, p.doc); err != nil {
			report.Documents = append(report.Documents, WriteResult{Path: p.path, Err: err})
			return fmt.Errorf("write %s: %w", p.path, err)
		}
		report.Documents = append(report.Documents, WriteResult{Path: p.path})
		utils.Logger.Info("psd saved",
			zap.String("file", p.path),
			zap.Int("index", i+1),
			zap.Int("total", len(planned)),
			zap.Int("layers", len(p.doc.Layers)))
	}
	return nil
}

// plan 构建所有文档，single_file 模式逆序处理使第一张图像位于最上层
func (e *Exporter) plan(batch *tensor.Tensor, opts ExportOptions, savePath SavePath) ([]plannedDocument, error) {
	n, h, w, c := batch.Dim(0), batch.Dim(1), batch.Dim(2), batch.Dim(3)
	withAlpha := c == 4

	if opts.FileMode == SingleFile {
		doc := psd.NewDocument(w, h)
		for k := 0; k < n; k++ {
			layerName := fmt.Sprintf("Layer %d", k+1)
			if err := e.appendImage(doc, batch, n-1-k, layerName, opts, withAlpha); err != nil {
				return nil, err
			}
		}
		return []plannedDocument{{path: savePath.File(0, "", "psd"), doc: doc}}, nil
	}

	planned := make([]plannedDocument, 0, n)
	for i := 0; i < n; i++ {
		doc := psd.NewDocument(w, h)
		if err := e.appendImage(doc, batch, i, "Layer 1", opts, withAlpha); err != nil {
			return nil, err
		}
		planned = append(planned, plannedDocument{path: savePath.File(i, strconv.Itoa(i), "psd"), doc: doc})
	}
	return planned, nil
}

// appendImage 有 alpha 时先追加掩码图层，再追加 RGB 图层
func (e *Exporter) appendImage(doc *psd.Document, batch *tensor.Tensor, index int, layerName string, opts ExportOptions, withAlpha bool) error {
	img, err := batch.Index(index)
	if err != nil {
		return err
	}
	mask, rgb, err := e.extractor.Extract(img)
	if err != nil {
		return fmt.Errorf("image %d: %w", index, err)
	}

	if withAlpha {
		maskImg, err := MaskToNRGBA(mask)
		if err != nil {
			return err
		}
		if err := doc.Append(psd.Layer{Name: alphaLayerName(layerName, opts), Pixels: maskImg}); err != nil {
			return err
		}
	}

	rgbImg, err := TensorToNRGBA(rgb)
	if err != nil {
		return err
	}
	return doc.Append(psd.Layer{Name: layerName, Pixels: rgbImg})
}

func alphaLayerName(layerName string, opts ExportOptions) string {
	if opts.AlphaNameMode == AlphaNameSuffix {
		return layerName + "_" + opts.AlphaName
	}
	return opts.AlphaName
}

// writeFallback 逐张写 PNG，单张失败只记录日志
func (e *Exporter) writeFallback(batch *tensor.Tensor, n int, savePath SavePath) []WriteResult {
	results := make([]WriteResult, 0, n)
	for i := 0; i < n; i++ {
		path := savePath.File(i, strconv.Itoa(i), "png")
		err := e.writeFlat(batch, i, path)
		if err != nil {
			utils.Logger.Warn("png fallback failed", zap.String("file", path), zap.Error(err))
		}
		results = append(results, WriteResult{Path: path, Err: err})
	}
	return results
}

func (e *Exporter) writeFlat(batch *tensor.Tensor, i int, path string) error {
	img, err := batch.Index(i)
	if err != nil {
		return err
	}
	nrgba, err := TensorToNRGBA(img)
	if err != nil {
		return err
	}
	return e.flat.WriteFlat(path, nrgba)
}
