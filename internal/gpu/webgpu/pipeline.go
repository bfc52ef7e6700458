package webgpu

import (
	"errors"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/matjam/wayper/internal/gpu"
)

// Binding slots of the single bind group layout.
const (
	bindingSampler  = 0
	bindingPrevious = 1
	bindingCurrent  = 2
	bindingUniform  = 3
)

var errForeignResource = errors.New("resource was not created by the webgpu backend")

type Pipeline struct {
	dev        *Device
	pipeline   *wgpu.RenderPipeline
	layout     *wgpu.BindGroupLayout
	sampler    *wgpu.Sampler
	uniform    *wgpu.Buffer
	vertices   *wgpu.Buffer
	indices    *wgpu.Buffer
	indexCount uint32
}

type BindGroup struct {
	group *wgpu.BindGroup
}

func (b *BindGroup) Release() {
	if b.group != nil {
		b.group.Release()
		b.group = nil
	}
}

func (d *Device) CreatePipeline(desc gpu.PipelineDesc) (gpu.Pipeline, error) {
	if d.device == nil {
		return nil, gpu.ErrNoDevice
	}

	p := &Pipeline{dev: d, indexCount: desc.IndexCount}
	if err := p.init(desc); err != nil {
		p.Release()
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) init(desc gpu.PipelineDesc) error {
	dev := p.dev.device

	module, err := dev.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: desc.Label + " shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: desc.Shader,
		},
	})
	if err != nil {
		return fmt.Errorf("create shader module: %w", err)
	}
	defer module.Release()

	textureLayout := wgpu.TextureBindingLayout{
		SampleType:    wgpu.TextureSampleTypeFloat,
		ViewDimension: wgpu.TextureViewDimension2D,
	}

	p.layout, err = dev.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: desc.Label + " bind group layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    bindingSampler,
				Visibility: wgpu.ShaderStageFragment,
				Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering},
			},
			{
				Binding:    bindingPrevious,
				Visibility: wgpu.ShaderStageFragment,
				Texture:    textureLayout,
			},
			{
				Binding:    bindingCurrent,
				Visibility: wgpu.ShaderStageFragment,
				Texture:    textureLayout,
			},
			{
				Binding:    bindingUniform,
				Visibility: wgpu.ShaderStageFragment,
				Buffer: wgpu.BufferBindingLayout{
					Type:           wgpu.BufferBindingTypeUniform,
					MinBindingSize: desc.UniformSize,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}

	layout, err := dev.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label + " pipeline layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{p.layout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	defer layout.Release()

	p.pipeline, err = dev.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: desc.VertexEntry,
			Buffers: []wgpu.VertexBufferLayout{
				{
					ArrayStride: desc.VertexStride,
					StepMode:    wgpu.VertexStepModeVertex,
					// position then uv
					Attributes: []wgpu.VertexAttribute{
						{Format: wgpu.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
						{Format: wgpu.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 1},
					},
				},
			},
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: desc.FragEntry,
			Targets: []wgpu.ColorTargetState{
				{
					Format:    wgpu.TextureFormat(desc.Format),
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fmt.Errorf("create render pipeline: %w", err)
	}

	p.sampler, err = dev.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         desc.Label + " sampler",
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return fmt.Errorf("create sampler: %w", err)
	}

	if p.vertices, err = p.buffer(desc.Label+" vertices", desc.Vertices, wgpu.BufferUsageVertex); err != nil {
		return err
	}
	if p.indices, err = p.buffer(desc.Label+" indices", desc.Indices, wgpu.BufferUsageIndex); err != nil {
		return err
	}
	if p.uniform, err = p.buffer(desc.Label+" uniform", make([]byte, desc.UniformSize), wgpu.BufferUsageUniform); err != nil {
		return err
	}

	return nil
}

func (p *Pipeline) buffer(label string, data []byte, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	buf, err := p.dev.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)),
		Usage: usage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create buffer %s: %w", label, err)
	}
	p.dev.queue.WriteBuffer(buf, 0, data)
	return buf, nil
}

func (p *Pipeline) CreateBindGroup(label string, previous, current gpu.Texture) (gpu.BindGroup, error) {
	prev, ok := previous.(*Texture)
	if !ok {
		return nil, errForeignResource
	}
	curr, ok := current.(*Texture)
	if !ok {
		return nil, errForeignResource
	}
	if prev.view == nil || curr.view == nil {
		return nil, gpu.ErrReleased
	}

	group, err := p.dev.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  label,
		Layout: p.layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: bindingSampler, Sampler: p.sampler},
			{Binding: bindingPrevious, TextureView: prev.view},
			{Binding: bindingCurrent, TextureView: curr.view},
			{Binding: bindingUniform, Buffer: p.uniform, Offset: 0, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group %s: %w", label, err)
	}
	return &BindGroup{group: group}, nil
}

func (p *Pipeline) WriteUniform(data []byte) error {
	if p.uniform == nil {
		return gpu.ErrReleased
	}
	p.dev.queue.WriteBuffer(p.uniform, 0, data)
	return nil
}

func (p *Pipeline) Draw(surface gpu.Surface, group gpu.BindGroup) error {
	s, ok := surface.(*Surface)
	if !ok {
		return errForeignResource
	}
	bg, ok := group.(*BindGroup)
	if !ok {
		return errForeignResource
	}
	if !s.configured {
		return gpu.ErrNotConfigured
	}
	if bg.group == nil {
		return gpu.ErrReleased
	}

	frame, err := s.surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("acquire surface texture: %w", err)
	}
	defer frame.Release()

	view, err := frame.CreateView(nil)
	if err != nil {
		return fmt.Errorf("create surface view: %w", err)
	}
	defer view.Release()

	encoder, err := p.dev.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       view,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 1},
			},
		},
	})
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, bg.group, nil)
	pass.SetVertexBuffer(0, p.vertices, 0, wgpu.WholeSize)
	pass.SetIndexBuffer(p.indices, wgpu.IndexFormatUint16, 0, wgpu.WholeSize)
	pass.DrawIndexed(p.indexCount, 1, 0, 0, 0)
	pass.End()

	commands, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("finish command encoder: %w", err)
	}
	defer commands.Release()

	p.dev.queue.Submit(commands)
	s.surface.Present()
	return nil
}

func (p *Pipeline) Release() {
	for _, b := range []*wgpu.Buffer{p.uniform, p.vertices, p.indices} {
		if b != nil {
			b.Release()
		}
	}
	p.uniform, p.vertices, p.indices = nil, nil, nil

	if p.sampler != nil {
		p.sampler.Release()
		p.sampler = nil
	}
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
	if p.layout != nil {
		p.layout.Release()
		p.layout = nil
	}
}
