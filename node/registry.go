// Package node 定义节点描述符和启动时构建的只读注册表
package node

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/TIANLI0/D2Nodes/tensor"
)

var (
	ErrUnknownNode    = errors.New("unknown node")
	ErrDuplicateNode  = errors.New("duplicate node name")
	ErrInvalidInput   = errors.New("invalid node input")
	ErrInvalidOutputs = errors.New("node returned unexpected outputs")
)

// ValueType 节点输入输出的类型
type ValueType string

const (
	TypeImage   ValueType = "IMAGE"
	TypeMask    ValueType = "MASK"
	TypeString  ValueType = "STRING"
	TypeBoolean ValueType = "BOOLEAN"
	TypeCombo   ValueType = "COMBO"
)

// InputSpec 单个输入的声明
type InputSpec struct {
	Name     string    `json:"name"`
	Type     ValueType `json:"type"`
	Default  any       `json:"default,omitempty"`
	Choices  []string  `json:"choices,omitempty"`
	Optional bool      `json:"optional,omitempty"`
}

type OutputSpec struct {
	Name string    `json:"name"`
	Type ValueType `json:"type"`
}

// Inputs 校验后的输入值，张量为 *tensor.Tensor
type Inputs map[string]any

func (in Inputs) Tensor(name string) *tensor.Tensor {
	t, _ := in[name].(*tensor.Tensor)
	return t
}

func (in Inputs) String(name string) string {
	s, _ := in[name].(string)
	return s
}

func (in Inputs) Bool(name string) bool {
	b, _ := in[name].(bool)
	return b
}

// Result 节点执行结果，Outputs 与 Descriptor.Outputs 一一对应，UI 供输出节点回报文件等信息
type Result struct {
	Outputs []any
	UI      map[string]any
}

// EntryFunc 节点入口
type EntryFunc func(ctx context.Context, in Inputs) (*Result, error)

// Descriptor 节点描述符
type Descriptor struct {
	Name        string
	DisplayName string
	Category    string
	Inputs      []InputSpec
	Outputs     []OutputSpec
	OutputNode  bool
	Entry       EntryFunc
}

// Registry 启动时构建，之后只读，可并发使用
type Registry struct {
	nodes map[string]*Descriptor
}

func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{nodes: make(map[string]*Descriptor, len(descs))}
	for i := range descs {
		d := descs[i]
		if d.Name == "" || d.Entry == nil {
			return nil, fmt.Errorf("node %d: name and entry are required", i)
		}
		if _, ok := r.nodes[d.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, d.Name)
		}
		r.nodes[d.Name] = &d
	}
	return r, nil
}

func (r *Registry) Get(name string) (*Descriptor, bool) {
	d, ok := r.nodes[name]
	return d, ok
}

// List 按名称排序返回所有描述符
func (r *Registry) List() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.nodes))
	for _, d := range r.nodes {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke 校验输入、补全默认值后调用节点
func (r *Registry) Invoke(ctx context.Context, name string, in Inputs) (*Result, error) {
	d, ok := r.nodes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, name)
	}

	validated, err := d.Validate(in)
	if err != nil {
		return nil, err
	}

	res, err := d.Entry(ctx, validated)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &Result{}
	}
	if len(res.Outputs) != len(d.Outputs) {
		return nil, fmt.Errorf("%w: %s returned %d values, declares %d", ErrInvalidOutputs, name, len(res.Outputs), len(d.Outputs))
	}
	return res, nil
}

// Validate 返回补全默认值后的新输入表
func (d *Descriptor) Validate(in Inputs) (Inputs, error) {
	out := make(Inputs, len(d.Inputs))
	for _, spec := range d.Inputs {
		v, ok := in[spec.Name]
		if !ok || v == nil {
			if spec.Default != nil {
				out[spec.Name] = spec.Default
				continue
			}
			if spec.Optional {
				continue
			}
			return nil, fmt.Errorf("%w: %s requires %q", ErrInvalidInput, d.Name, spec.Name)
		}
		if err := spec.check(v); err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidInput, d.Name, spec.Name, err)
		}
		out[spec.Name] = v
	}
	for name := range in {
		if d.input(name) == nil {
			return nil, fmt.Errorf("%w: %s has no input %q", ErrInvalidInput, d.Name, name)
		}
	}
	return out, nil
}

func (d *Descriptor) input(name string) *InputSpec {
	for i := range d.Inputs {
		if d.Inputs[i].Name == name {
			return &d.Inputs[i]
		}
	}
	return nil
}

func (s InputSpec) check(v any) error {
	switch s.Type {
	case TypeImage, TypeMask:
		if _, ok := v.(*tensor.Tensor); !ok {
			return fmt.Errorf("want tensor, got %T", v)
		}
	case TypeString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("want string, got %T", v)
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("want boolean, got %T", v)
		}
	case TypeCombo:
		str, ok := v.(string)
		if !ok {
			return fmt.Errorf("want string, got %T", v)
		}
		for _, c := range s.Choices {
			if c == str {
				return nil
			}
		}
		return fmt.Errorf("%q is not one of %v", str, s.Choices)
	default:
		return fmt.Errorf("unknown type %s", s.Type)
	}
	return nil
}
