package node

import (
	"context"

	"github.com/TIANLI0/D2Nodes/config"
	"github.com/TIANLI0/D2Nodes/service"
	"github.com/TIANLI0/D2Nodes/utils"
	"go.uber.org/zap"
)

const (
	Category = "D2/Image"

	ApplyAlphaChannel = "D2 Apply Alpha Channel"
	SavePSD           = "D2 Save PSD"
	ExtractAlpha      = "D2 Extract Alpha"
)

// D2Nodes 三个 D2 节点共用的服务
type D2Nodes struct {
	compositor *service.AlphaCompositor
	extractor  *service.AlphaExtractor
	exporter   *service.Exporter
}

func NewD2Nodes(compositor *service.AlphaCompositor, extractor *service.AlphaExtractor, exporter *service.Exporter) *D2Nodes {
	return &D2Nodes{
		compositor: compositor,
		extractor:  extractor,
		exporter:   exporter,
	}
}

// Descriptors 返回节点描述符，Save PSD 的默认值取自配置
func (n *D2Nodes) Descriptors(output config.OutputConfig, export config.ExportConfig) []Descriptor {
	return []Descriptor{
		{
			Name:        ApplyAlphaChannel,
			DisplayName: "Apply Alpha Channel",
			Category:    Category,
			Inputs: []InputSpec{
				{Name: "image", Type: TypeImage},
				{Name: "mask", Type: TypeMask},
				{Name: "invert_mask", Type: TypeBoolean, Default: false},
			},
			Outputs: []OutputSpec{{Name: "IMAGE", Type: TypeImage}},
			Entry:   n.applyAlphaChannel,
		},
		{
			Name:        SavePSD,
			DisplayName: "Save PSD",
			Category:    Category,
			Inputs: []InputSpec{
				{Name: "images", Type: TypeImage},
				{Name: "filename_prefix", Type: TypeString, Default: output.FilenamePrefix},
				{Name: "file_mode", Type: TypeCombo, Default: export.FileMode,
					Choices: []string{string(service.SingleFile), string(service.MultiFile)}},
				{Name: "alpha_name", Type: TypeString, Default: export.AlphaName},
				{Name: "alpha_name_mode", Type: TypeCombo, Default: export.AlphaNameMode,
					Choices: []string{string(service.AlphaNameSimple), string(service.AlphaNameSuffix)}},
			},
			OutputNode: true,
			Entry:      n.savePSD,
		},
		{
			Name:        ExtractAlpha,
			DisplayName: "Extract Alpha",
			Category:    Category,
			Inputs: []InputSpec{
				{Name: "image", Type: TypeImage},
			},
			Outputs: []OutputSpec{
				{Name: "MASK", Type: TypeMask},
				{Name: "IMAGE", Type: TypeImage},
			},
			Entry: n.extractAlpha,
		},
	}
}

func (n *D2Nodes) applyAlphaChannel(_ context.Context, in Inputs) (*Result, error) {
	out, err := n.compositor.Composite(in.Tensor("image"), in.Tensor("mask"), in.Bool("invert_mask"))
	if err != nil {
		return nil, err
	}
	return &Result{Outputs: []any{out}}, nil
}

func (n *D2Nodes) extractAlpha(_ context.Context, in Inputs) (*Result, error) {
	masks, rgbs, err := n.extractor.ExtractBatch(in.Tensor("image"))
	if err != nil {
		return nil, err
	}
	// IMAGE 输出保持 RGBA，alpha 恒为不透明
	rgba, err := service.OpaqueAlpha(rgbs)
	if err != nil {
		return nil, err
	}
	return &Result{Outputs: []any{masks, rgba}}, nil
}

func (n *D2Nodes) savePSD(_ context.Context, in Inputs) (*Result, error) {
	report, err := n.exporter.Export(in.Tensor("images"), service.ExportOptions{
		FilenamePrefix: in.String("filename_prefix"),
		FileMode:       service.FileMode(in.String("file_mode")),
		AlphaName:      in.String("alpha_name"),
		AlphaNameMode:  service.AlphaNameMode(in.String("alpha_name_mode")),
	})
	if err != nil {
		return nil, err
	}

	files := report.Written()
	utils.Logger.Info("save psd finished",
		zap.Strings("files", files),
		zap.Bool("fallback", report.FellBack))

	return &Result{UI: map[string]any{
		"files":    files,
		"fallback": report.FellBack,
	}}, nil
}
