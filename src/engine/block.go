package engine

import (
	"fmt"

	"fixflow/src/dataflow"
	"fixflow/src/fixed"
)

// shortcutKind is the static 3-way shortcut variant selected at construction.
type shortcutKind int

const (
	shortcutNone shortcutKind = iota
	shortcutIdentity
	shortcutProjected
)

// residualAdd is the elementwise saturating add joining the main path and the
// shortcut path. One stage; the two tokens arrive on the same tick by
// construction of the delay lines.
type residualAdd struct {
	format fixed.Format
	name   string
	mon    *dataflow.OverflowMonitor

	main     dataflow.Token
	shortcut dataflow.Token
	out      dataflow.Token
}

func (r *residualAdd) Push(t *dataflow.Tensor) {
	r.main = dataflow.Token{Valid: true, Data: t}
}

func (r *residualAdd) PushShortcut(t *dataflow.Tensor) {
	r.shortcut = dataflow.Token{Valid: true, Data: t}
}

func (r *residualAdd) Output() (*dataflow.Tensor, bool) {
	return r.out.Data, r.out.Valid
}

func (r *residualAdd) Reset() {
	r.main = dataflow.Token{}
	r.shortcut = dataflow.Token{}
	r.out = dataflow.Token{}
}

func (r *residualAdd) Tick() {
	if r.main.Valid != r.shortcut.Valid {
		panic(fmt.Errorf("engine: %s main and shortcut tokens desynchronized", r.name))
	}
	if !r.main.Valid {
		r.out = dataflow.Token{}
		return
	}
	a := r.main.Data
	b := r.shortcut.Data
	if !a.SameShape(b) {
		panic(fmt.Errorf("engine: %s shortcut shape mismatch", r.name))
	}
	dst := dataflow.NewTensor(a.Rows(), a.Cols(), a.Channels())
	av, bv, ov := a.Data(), b.Data(), dst.Data()
	clipped := 0
	for i := range av {
		sum := int64(av[i]) + int64(bv[i])
		v, clip := r.format.Saturate(sum)
		ov[i] = v
		if clip {
			clipped++
		}
	}
	r.mon.Note(r.name, clipped)
	r.main = dataflow.Token{}
	r.shortcut = dataflow.Token{}
	r.out = dataflow.Token{Valid: true, Data: dst}
}

// BlockConfig fixes one inverted-residual block at construction time. Nothing
// here mutates at run time.
type BlockConfig struct {
	Kernel          int
	Stride          int
	InChannels      int
	ExpandChannels  int
	OutChannels     int
	InRows          int
	InCols          int
	SqueezeExcite   bool
	SqueezeChannels int
	Activation      ActKind
}

// Block is the inverted-residual unit: pointwise expand -> BN -> activation ->
// depthwise (stride, padding kernel/2) -> BN -> activation -> pointwise
// project -> BN -> optional squeeze-excite -> shortcut join. The shortcut is
// chosen statically: identity when stride is 1 and the channel counts match,
// a pointwise+BN projection when stride is 1 and they differ, and absent
// otherwise.
type Block struct {
	cfg  BlockConfig
	name string

	expand   *PointwiseConv2D
	bn1      *BatchNorm
	act1     *Activation
	dw       *DepthwiseConv2D
	bn2      *BatchNorm
	act2     *Activation
	project  *PointwiseConv2D
	bn3      *BatchNorm
	se       *SqueezeExcite
	shortcut shortcutKind

	shortProj  *PointwiseConv2D
	shortNorm  *BatchNorm
	shortDelay *dataflow.Delay
	shortStage dataflow.Token
	adder      *residualAdd

	staged  dataflow.Token
	latency int

	outRows, outCols int
}

// NewBlock validates the configuration and builds the block.
func NewBlock(format fixed.Format, cfg BlockConfig, name string, mon *dataflow.OverflowMonitor) (*Block, error) {
	if cfg.Activation != ActReLU && cfg.Activation != ActHSwish {
		return nil, fmt.Errorf("engine: %s activation must be relu or hswish, got %s", name, cfg.Activation)
	}
	if cfg.SqueezeExcite && cfg.SqueezeChannels <= 0 {
		return nil, fmt.Errorf("engine: %s squeeze-excite enabled with squeezed width %d", name, cfg.SqueezeChannels)
	}

	expand, err := NewPointwiseConv2D(format, cfg.InChannels, cfg.ExpandChannels, cfg.InRows, cfg.InCols, name+".expand", mon)
	if err != nil {
		return nil, err
	}
	bn1, err := NewBatchNorm(format, cfg.ExpandChannels, name+".expand_norm", mon)
	if err != nil {
		return nil, err
	}
	act1, err := NewActivation(format, cfg.Activation, name+".act1", mon)
	if err != nil {
		return nil, err
	}
	dw, err := NewDepthwiseConv2D(format, cfg.ExpandChannels, cfg.Kernel, cfg.Stride, cfg.Kernel/2, cfg.InRows, cfg.InCols, name+".depthwise", mon)
	if err != nil {
		return nil, err
	}
	bn2, err := NewBatchNorm(format, cfg.ExpandChannels, name+".depthwise_norm", mon)
	if err != nil {
		return nil, err
	}
	act2, err := NewActivation(format, cfg.Activation, name+".act2", mon)
	if err != nil {
		return nil, err
	}
	outRows, outCols := dw.OutRows(), dw.OutCols()
	project, err := NewPointwiseConv2D(format, cfg.ExpandChannels, cfg.OutChannels, outRows, outCols, name+".project", mon)
	if err != nil {
		return nil, err
	}
	bn3, err := NewBatchNorm(format, cfg.OutChannels, name+".project_norm", mon)
	if err != nil {
		return nil, err
	}

	b := &Block{
		cfg:     cfg,
		name:    name,
		expand:  expand,
		bn1:     bn1,
		act1:    act1,
		dw:      dw,
		bn2:     bn2,
		act2:    act2,
		project: project,
		bn3:     bn3,
		outRows: outRows,
		outCols: outCols,
	}

	mainLatency := expand.Latency() + bn1.Latency() + act1.Latency() +
		dw.Latency() + bn2.Latency() + act2.Latency() +
		project.Latency() + bn3.Latency()
	if cfg.SqueezeExcite {
		se, err := NewSqueezeExcite(format, outRows, outCols, cfg.OutChannels, cfg.SqueezeChannels, name+".se", mon)
		if err != nil {
			return nil, err
		}
		b.se = se
		mainLatency += se.Latency()
	}

	switch {
	case cfg.Stride != 1:
		b.shortcut = shortcutNone
	case cfg.InChannels == cfg.OutChannels:
		b.shortcut = shortcutIdentity
		b.shortDelay = dataflow.NewDelay(mainLatency)
	default:
		b.shortcut = shortcutProjected
		proj, err := NewPointwiseConv2D(format, cfg.InChannels, cfg.OutChannels, cfg.InRows, cfg.InCols, name+".shortcut", mon)
		if err != nil {
			return nil, err
		}
		norm, err := NewBatchNorm(format, cfg.OutChannels, name+".shortcut_norm", mon)
		if err != nil {
			return nil, err
		}
		b.shortProj = proj
		b.shortNorm = norm
		b.shortDelay = dataflow.NewDelay(mainLatency - proj.Latency() - norm.Latency())
	}

	b.latency = mainLatency
	if b.shortcut != shortcutNone {
		b.adder = &residualAdd{format: format, name: name + ".residual", mon: mon}
		b.latency++
	}
	return b, nil
}

// Expand exposes the expand convolution for the weight loader.
func (b *Block) Expand() *PointwiseConv2D { return b.expand }

// ExpandNorm exposes the expand batch-norm for the weight loader.
func (b *Block) ExpandNorm() *BatchNorm { return b.bn1 }

// Depthwise exposes the depthwise convolution for the weight loader.
func (b *Block) Depthwise() *DepthwiseConv2D { return b.dw }

// DepthwiseNorm exposes the depthwise batch-norm for the weight loader.
func (b *Block) DepthwiseNorm() *BatchNorm { return b.bn2 }

// Project exposes the project convolution for the weight loader.
func (b *Block) Project() *PointwiseConv2D { return b.project }

// ProjectNorm exposes the project batch-norm for the weight loader.
func (b *Block) ProjectNorm() *BatchNorm { return b.bn3 }

// SE exposes the squeeze-excite sub-pipeline, or nil when disabled.
func (b *Block) SE() *SqueezeExcite { return b.se }

// ShortcutProj exposes the projection convolution of a projected shortcut, or
// nil for the other variants.
func (b *Block) ShortcutProj() *PointwiseConv2D { return b.shortProj }

// ShortcutNorm exposes the projection batch-norm, or nil.
func (b *Block) ShortcutNorm() *BatchNorm { return b.shortNorm }

// OutRows returns the output spatial height.
func (b *Block) OutRows() int { return b.outRows }

// OutCols returns the output spatial width.
func (b *Block) OutCols() int { return b.outCols }

// OutChannels returns the output channel count.
func (b *Block) OutChannels() int { return b.cfg.OutChannels }

// Latency returns the fixed pipeline depth of the whole block.
func (b *Block) Latency() int { return b.latency }

// Push presents the input tensor for this tick.
func (b *Block) Push(t *dataflow.Tensor) {
	if t.Rows() != b.cfg.InRows || t.Cols() != b.cfg.InCols || t.Channels() != b.cfg.InChannels {
		panic(fmt.Errorf("engine: %s expects %dx%dx%d, got %dx%dx%d",
			b.name, b.cfg.InRows, b.cfg.InCols, b.cfg.InChannels, t.Rows(), t.Cols(), t.Channels()))
	}
	b.staged = dataflow.Token{Valid: true, Data: t}
}

// Output returns the block result delivered this tick, if any.
func (b *Block) Output() (*dataflow.Tensor, bool) {
	if b.adder != nil {
		return b.adder.Output()
	}
	if b.se != nil {
		return b.se.Output()
	}
	return b.bn3.Output()
}

// Reset drops every in-flight token.
func (b *Block) Reset() {
	b.staged = dataflow.Token{}
	b.expand.Reset()
	b.bn1.Reset()
	b.act1.Reset()
	b.dw.Reset()
	b.bn2.Reset()
	b.act2.Reset()
	b.project.Reset()
	b.bn3.Reset()
	if b.se != nil {
		b.se.Reset()
	}
	if b.shortProj != nil {
		b.shortProj.Reset()
	}
	if b.shortNorm != nil {
		b.shortNorm.Reset()
	}
	if b.shortDelay != nil {
		b.shortDelay.Reset()
	}
	b.shortStage = dataflow.Token{}
	if b.adder != nil {
		b.adder.Reset()
	}
}

// Tick advances the whole block one stage: feed the staged input into the
// main path and the shortcut path, advance every constituent, then move
// tokens across the internal wires for the next tick.
func (b *Block) Tick() {
	if b.staged.Valid {
		b.expand.Push(b.staged.Data)
		if b.shortcut == shortcutProjected {
			b.shortProj.Push(b.staged.Data)
		}
	}
	var identityTok dataflow.Token
	if b.shortcut == shortcutIdentity {
		identityTok = b.shortDelay.Tick(b.staged)
	}
	b.staged = dataflow.Token{}

	b.expand.Tick()
	b.bn1.Tick()
	b.act1.Tick()
	b.dw.Tick()
	b.bn2.Tick()
	b.act2.Tick()
	b.project.Tick()
	b.bn3.Tick()
	if b.se != nil {
		b.se.Tick()
	}
	var projectedTok dataflow.Token
	if b.shortcut == shortcutProjected {
		// The delay line consumes the norm output staged on the previous
		// tick, keeping projection+norm+delay at exactly the main path depth.
		projectedTok = b.shortDelay.Tick(b.shortStage)
		b.shortStage = dataflow.Token{}
		b.shortProj.Tick()
		b.shortNorm.Tick()
		if t, ok := b.shortProj.Output(); ok {
			b.shortNorm.Push(t)
		}
		if t, ok := b.shortNorm.Output(); ok {
			b.shortStage = dataflow.Token{Valid: true, Data: t}
		}
	}
	if b.adder != nil {
		b.adder.Tick()
	}

	if t, ok := b.expand.Output(); ok {
		b.bn1.Push(t)
	}
	if t, ok := b.bn1.Output(); ok {
		b.act1.Push(t)
	}
	if t, ok := b.act1.Output(); ok {
		b.dw.Push(t)
	}
	if t, ok := b.dw.Output(); ok {
		b.bn2.Push(t)
	}
	if t, ok := b.bn2.Output(); ok {
		b.act2.Push(t)
	}
	if t, ok := b.act2.Output(); ok {
		b.project.Push(t)
	}
	if t, ok := b.project.Output(); ok {
		b.bn3.Push(t)
	}

	var mainOut *dataflow.Tensor
	var mainOk bool
	if b.se != nil {
		if t, ok := b.bn3.Output(); ok {
			b.se.Push(t)
		}
		mainOut, mainOk = b.se.Output()
	} else {
		mainOut, mainOk = b.bn3.Output()
	}

	if b.adder != nil {
		if mainOk {
			b.adder.Push(mainOut)
		}
		switch b.shortcut {
		case shortcutIdentity:
			if identityTok.Valid {
				b.adder.PushShortcut(identityTok.Data)
			}
		case shortcutProjected:
			if projectedTok.Valid {
				b.adder.PushShortcut(projectedTok.Data)
			}
		}
	}
}
