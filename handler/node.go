package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/TIANLI0/D2Nodes/model"
	"github.com/TIANLI0/D2Nodes/node"
	"github.com/TIANLI0/D2Nodes/service"
	"github.com/TIANLI0/D2Nodes/tensor"
	"github.com/TIANLI0/D2Nodes/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ResultCache 节点结果缓存，未命中时 Get 返回 nil
type ResultCache interface {
	GetResult(ctx context.Context, key string) ([]byte, error)
	SetResult(ctx context.Context, key string, data []byte) error
}

type NodeHandler struct {
	registry *node.Registry
	cache    ResultCache
	maxBody  int64
}

// NewNodeHandler cache 可以为 nil，maxBody <= 0 时不限制请求体大小
func NewNodeHandler(registry *node.Registry, cache ResultCache, maxBody int64) *NodeHandler {
	return &NodeHandler{
		registry: registry,
		cache:    cache,
		maxBody:  maxBody,
	}
}

// List 返回所有节点描述
func (h *NodeHandler) List(c *gin.Context) {
	descs := h.registry.List()
	infos := make([]model.NodeInfo, 0, len(descs))
	for _, d := range descs {
		infos = append(infos, nodeInfo(d))
	}
	c.JSON(http.StatusOK, infos)
}

// Get 返回单个节点描述
func (h *NodeHandler) Get(c *gin.Context) {
	d, ok := h.registry.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Success: false,
			Message: "节点不存在",
		})
		return
	}
	c.JSON(http.StatusOK, nodeInfo(d))
}

// Invoke 执行节点
func (h *NodeHandler) Invoke(c *gin.Context) {
	name := c.Param("name")
	d, ok := h.registry.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Success: false,
			Message: "节点不存在",
			Error:   name,
		})
		return
	}

	reader := c.Request.Body
	if h.maxBody > 0 {
		reader = http.MaxBytesReader(c.Writer, reader, h.maxBody)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, model.ErrorResponse{
			Success: false,
			Message: "读取请求失败",
			Error:   err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	cacheKey := ""
	if h.cache != nil && !d.OutputNode {
		cacheKey = utils.KeyMD5([]byte(name), body)
		if resp := h.cached(ctx, cacheKey); resp != nil {
			utils.Logger.Info("cache hit", zap.String("node", name), zap.String("cache_key", cacheKey))
			c.JSON(http.StatusOK, resp)
			return
		}
	}

	var req model.InvokeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "请求格式错误",
			Error:   err.Error(),
		})
		return
	}

	inputs, err := decodeInputs(d, req.Inputs)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "输入参数错误",
			Error:   err.Error(),
		})
		return
	}

	res, err := h.registry.Invoke(ctx, name, inputs)
	if err != nil {
		status := statusFor(err)
		utils.Logger.Error("node execution failed", zap.String("node", name), zap.Error(err))
		c.JSON(status, model.ErrorResponse{
			Success: false,
			Message: "节点执行失败",
			Error:   err.Error(),
		})
		return
	}

	resp := model.InvokeResponse{
		Success: true,
		Message: "执行成功",
		Node:    name,
		Outputs: encodeOutputs(d, res),
		UI:      res.UI,
	}

	if cacheKey != "" {
		h.store(ctx, cacheKey, &resp)
	}

	c.JSON(http.StatusOK, resp)
}

// statusFor 输入类错误返回 400，其余为 500
func statusFor(err error) int {
	for _, target := range []error{
		node.ErrUnknownNode,
		node.ErrInvalidInput,
		tensor.ErrShapeMismatch,
		tensor.ErrTooLarge,
		service.ErrImageShape,
		service.ErrChannelCount,
		service.ErrUnsupportedMaskShape,
		service.ErrMaskBatchMismatch,
		service.ErrEmptyBatch,
		service.ErrInvalidOptions,
	} {
		if errors.Is(err, target) {
			if target == node.ErrUnknownNode {
				return http.StatusNotFound
			}
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func (h *NodeHandler) cached(ctx context.Context, key string) *model.InvokeResponse {
	data, err := h.cache.GetResult(ctx, key)
	if err != nil {
		utils.Logger.Warn("failed to get cache", zap.Error(err))
		return nil
	}
	if data == nil {
		return nil
	}
	var resp model.InvokeResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		utils.Logger.Warn("failed to unmarshal cached result", zap.String("cache_key", key), zap.Error(err))
		return nil
	}
	resp.Cached = true
	return &resp
}

func (h *NodeHandler) store(ctx context.Context, key string, resp *model.InvokeResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		utils.Logger.Warn("failed to marshal result", zap.Error(err))
		return
	}
	if err := h.cache.SetResult(ctx, key, data); err != nil {
		utils.Logger.Warn("failed to set cache", zap.Error(err))
	}
}

// decodeInputs 按节点声明的类型解析原始 JSON
func decodeInputs(d *node.Descriptor, raw map[string]json.RawMessage) (node.Inputs, error) {
	inputs := make(node.Inputs, len(raw))
	for name, value := range raw {
		spec := findInput(d, name)
		if spec == nil {
			return nil, fmt.Errorf("%s has no input %q", d.Name, name)
		}
		v, err := decodeValue(spec.Type, value)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}
		inputs[name] = v
	}
	return inputs, nil
}

func decodeValue(typ node.ValueType, raw json.RawMessage) (any, error) {
	switch typ {
	case node.TypeImage, node.TypeMask:
		var p model.TensorPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p.Tensor()
	case node.TypeBoolean:
		var b bool
		err := json.Unmarshal(raw, &b)
		return b, err
	case node.TypeString, node.TypeCombo:
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	default:
		return nil, fmt.Errorf("unsupported type %s", typ)
	}
}

func findInput(d *node.Descriptor, name string) *node.InputSpec {
	for i := range d.Inputs {
		if d.Inputs[i].Name == name {
			return &d.Inputs[i]
		}
	}
	return nil
}

func encodeOutputs(d *node.Descriptor, res *node.Result) []model.OutputValue {
	out := make([]model.OutputValue, len(res.Outputs))
	for i, v := range res.Outputs {
		spec := d.Outputs[i]
		out[i] = model.OutputValue{Name: spec.Name, Type: string(spec.Type)}
		if t, ok := v.(*tensor.Tensor); ok {
			out[i].Tensor = model.NewTensorPayload(t)
		} else {
			out[i].Value = v
		}
	}
	return out
}

func nodeInfo(d *node.Descriptor) model.NodeInfo {
	info := model.NodeInfo{
		Name:        d.Name,
		DisplayName: d.DisplayName,
		Category:    d.Category,
		Inputs:      make([]model.NodeInput, 0, len(d.Inputs)),
		Outputs:     make([]model.NodeOutput, 0, len(d.Outputs)),
		OutputNode:  d.OutputNode,
	}
	for _, in := range d.Inputs {
		info.Inputs = append(info.Inputs, model.NodeInput{
			Name:     in.Name,
			Type:     string(in.Type),
			Default:  in.Default,
			Choices:  in.Choices,
			Optional: in.Optional,
		})
	}
	for _, out := range d.Outputs {
		info.Outputs = append(info.Outputs, model.NodeOutput{Name: out.Name, Type: string(out.Type)})
	}
	return info
}
