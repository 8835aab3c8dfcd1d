package model

import (
	"encoding/json"

	"github.com/TIANLI0/D2Nodes/tensor"
)

// TensorPayload JSON 中的张量，数据按行优先展开
type TensorPayload struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

func NewTensorPayload(t *tensor.Tensor) *TensorPayload {
	return &TensorPayload{Shape: t.Shape(), Data: t.Data()}
}

// Tensor 转换为张量，形状需通过 tensor.CheckShape 且数据长度与之一致
func (p *TensorPayload) Tensor() (*tensor.Tensor, error) {
	return tensor.FromData(p.Data, p.Shape...)
}

// NodeInput 节点输入声明
type NodeInput struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Default  any      `json:"default,omitempty"`
	Choices  []string `json:"choices,omitempty"`
	Optional bool     `json:"optional,omitempty"`
}

// NodeOutput 节点输出声明
type NodeOutput struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// NodeInfo 节点描述
type NodeInfo struct {
	Name        string       `json:"name"`
	DisplayName string       `json:"display_name"`
	Category    string       `json:"category"`
	Inputs      []NodeInput  `json:"inputs"`
	Outputs     []NodeOutput `json:"outputs"`
	OutputNode  bool         `json:"output_node"`
}

// InvokeRequest 节点调用请求，值的解析取决于节点声明的输入类型
type InvokeRequest struct {
	Inputs map[string]json.RawMessage `json:"inputs"`
}

// OutputValue 单个输出
type OutputValue struct {
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Tensor *TensorPayload `json:"tensor,omitempty"`
	Value  any            `json:"value,omitempty"`
}

// InvokeResponse 节点调用响应
type InvokeResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Node    string         `json:"node"`
	Outputs []OutputValue  `json:"outputs"`
	UI      map[string]any `json:"ui,omitempty"`
	Cached  bool           `json:"cached"`
}
