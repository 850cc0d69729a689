package network

import (
	"fmt"

	"fixflow/src/dataflow"
	"fixflow/src/engine"
	"fixflow/src/fixed"
	"fixflow/src/loader"
)

// component is the structural contract every chained engine satisfies: accept
// at most one tensor per tick, advance one stage per tick, deliver in FIFO
// order after a fixed latency.
type component interface {
	Push(*dataflow.Tensor)
	Tick()
	Output() (*dataflow.Tensor, bool)
	Latency() int
	Reset()
}

// Stats is the instrumentation snapshot rolled up per network. It is
// diagnostic only; results do not depend on it.
type Stats struct {
	Ticks         int64
	Accepted      int64
	Delivered     int64
	Overflows     int64
	LastSaturated string
}

// Network is the full pipeline: stem convolution + batch-norm + hard-swish,
// the eleven-block chain, final pointwise convolution + batch-norm +
// hard-swish, global average pooling and the two-layer classifier head. A
// single Tick advances every component one stage; valid tokens ripple down
// the chain at each component's fixed latency. Ready is always asserted:
// a new image may be accepted every tick, overlapping inferences pipeline
// without buffering or stalling.
type Network struct {
	format fixed.Format
	cfg    *Config
	mon    *dataflow.OverflowMonitor

	stem     *engine.Conv2D
	stemNorm *engine.BatchNorm
	stemAct  *engine.Activation

	blocks []*engine.Block

	final     *engine.PointwiseConv2D
	finalNorm *engine.BatchNorm
	finalAct  *engine.Activation

	pool *engine.AvgPool

	hidden     *engine.Linear
	hiddenNorm *engine.BatchNorm
	hiddenAct  *engine.Activation
	classifier *engine.Linear

	chain   []component
	pending dataflow.Token
	out     dataflow.Token
	latency int

	ticks     int64
	accepted  int64
	delivered int64
}

// New builds the network from the configuration and the eleven-entry block
// table. All geometry is fixed here; construction fails fast on any
// structural misconfiguration.
func New(cfg *Config) (*Network, error) {
	format, err := fixed.NewFormat(cfg.DataWidth, cfg.FracBits)
	if err != nil {
		return nil, err
	}
	mon := dataflow.NewOverflowMonitor()
	n := &Network{format: format, cfg: cfg, mon: mon}

	stem, err := engine.NewConv2D(format, cfg.ImageChannels, cfg.StemChannels, 3, 2, 1,
		cfg.ImageRows, cfg.ImageCols, "stem", mon)
	if err != nil {
		return nil, err
	}
	stemNorm, err := engine.NewBatchNorm(format, cfg.StemChannels, "stem_norm", mon)
	if err != nil {
		return nil, err
	}
	stemAct, err := engine.NewActivation(format, engine.ActHSwish, "stem_act", mon)
	if err != nil {
		return nil, err
	}
	n.stem, n.stemNorm, n.stemAct = stem, stemNorm, stemAct
	n.chain = append(n.chain, stem, stemNorm, stemAct)

	rows, cols, channels := stem.OutRows(), stem.OutCols(), cfg.StemChannels
	for i, spec := range SmallConfig() {
		bc := engine.BlockConfig{
			Kernel:         spec.Kernel,
			Stride:         spec.Stride,
			InChannels:     channels,
			ExpandChannels: spec.Expand,
			OutChannels:    spec.Out,
			InRows:         rows,
			InCols:         cols,
			SqueezeExcite:  spec.SE,
			Activation:     spec.Activation,
		}
		if spec.SE {
			bc.SqueezeChannels = squeezeWidth(spec.Out)
		}
		blk, err := engine.NewBlock(format, bc, fmt.Sprintf("block%d", i+1), mon)
		if err != nil {
			return nil, err
		}
		n.blocks = append(n.blocks, blk)
		n.chain = append(n.chain, blk)
		rows, cols, channels = blk.OutRows(), blk.OutCols(), blk.OutChannels()
	}

	final, err := engine.NewPointwiseConv2D(format, channels, cfg.FinalChannels, rows, cols, "final", mon)
	if err != nil {
		return nil, err
	}
	finalNorm, err := engine.NewBatchNorm(format, cfg.FinalChannels, "final_norm", mon)
	if err != nil {
		return nil, err
	}
	finalAct, err := engine.NewActivation(format, engine.ActHSwish, "final_act", mon)
	if err != nil {
		return nil, err
	}
	n.final, n.finalNorm, n.finalAct = final, finalNorm, finalAct
	n.chain = append(n.chain, final, finalNorm, finalAct)

	pool, err := engine.NewGlobalAvgPool(format, rows, cols, cfg.FinalChannels, "pool", mon)
	if err != nil {
		return nil, err
	}
	n.pool = pool
	n.chain = append(n.chain, pool)

	hidden, err := engine.NewLinear(format, cfg.FinalChannels, cfg.HiddenUnits, "hidden", mon)
	if err != nil {
		return nil, err
	}
	hiddenNorm, err := engine.NewBatchNorm(format, cfg.HiddenUnits, "hidden_norm", mon)
	if err != nil {
		return nil, err
	}
	hiddenAct, err := engine.NewActivation(format, engine.ActHSwish, "hidden_act", mon)
	if err != nil {
		return nil, err
	}
	classifier, err := engine.NewLinear(format, cfg.HiddenUnits, cfg.NumClasses, "classifier", mon)
	if err != nil {
		return nil, err
	}
	n.hidden, n.hiddenNorm, n.hiddenAct, n.classifier = hidden, hiddenNorm, hiddenAct, classifier
	n.chain = append(n.chain, hidden, hiddenNorm, hiddenAct, classifier)

	for _, c := range n.chain {
		n.latency += c.Latency()
	}
	return n, nil
}

// Format returns the fixed-point format of this instance.
func (n *Network) Format() fixed.Format {
	return n.format
}

// Monitor returns the shared overflow monitor.
func (n *Network) Monitor() *dataflow.OverflowMonitor {
	return n.mon
}

// Latency returns the statically known tick count between accepting an image
// and delivering its class-score vector.
func (n *Network) Latency() int {
	return n.latency
}

// NumBlocks returns the length of the block chain.
func (n *Network) NumBlocks() int {
	return len(n.blocks)
}

// Push presents an input image for this tick. Ready is always asserted, so a
// new image may be pushed every tick regardless of downstream occupancy.
func (n *Network) Push(img *dataflow.Tensor) {
	if img.Rows() != n.cfg.ImageRows || img.Cols() != n.cfg.ImageCols || img.Channels() != n.cfg.ImageChannels {
		panic(fmt.Errorf("network: expects %dx%dx%d image, got %dx%dx%d",
			n.cfg.ImageRows, n.cfg.ImageCols, n.cfg.ImageChannels, img.Rows(), img.Cols(), img.Channels()))
	}
	n.pending = dataflow.Token{Valid: true, Data: img}
	n.accepted++
}

// Output returns the class-score vector delivered this tick, if any.
func (n *Network) Output() (*dataflow.Tensor, bool) {
	return n.out.Data, n.out.Valid
}

// Tick advances every component one pipeline stage and moves tokens across
// the component boundaries for the next tick.
func (n *Network) Tick() {
	if n.pending.Valid {
		n.chain[0].Push(n.pending.Data)
		n.pending = dataflow.Token{}
	}

	for _, c := range n.chain {
		c.Tick()
	}

	for i := 0; i+1 < len(n.chain); i++ {
		if t, ok := n.chain[i].Output(); ok {
			n.chain[i+1].Push(t)
		}
	}

	if t, ok := n.chain[len(n.chain)-1].Output(); ok {
		n.out = dataflow.Token{Valid: true, Data: t}
		n.delivered++
	} else {
		n.out = dataflow.Token{}
	}
	n.ticks++
}

// Reset drops every in-flight token and clears the instrumentation.
func (n *Network) Reset() {
	n.pending = dataflow.Token{}
	n.out = dataflow.Token{}
	for _, c := range n.chain {
		c.Reset()
	}
	n.mon.Reset()
	n.ticks = 0
	n.accepted = 0
	n.delivered = 0
}

// Stats returns the current instrumentation snapshot.
func (n *Network) Stats() Stats {
	return Stats{
		Ticks:         n.ticks,
		Accepted:      n.accepted,
		Delivered:     n.delivered,
		Overflows:     n.mon.Count(),
		LastSaturated: n.mon.LastStage(),
	}
}

// RegisterBanks registers every weight and affine-parameter bank with the
// loading collaborator. The core only consumes the populated storage; the
// write protocol itself lives in the loader.
func (n *Network) RegisterBanks(ld *loader.Loader) {
	ld.Register("stem.weight", n.stem.Weights())
	ld.Register("stem_norm.weight", n.stemNorm.EffectiveWeights())
	ld.Register("stem_norm.bias", n.stemNorm.EffectiveBiases())

	for i, blk := range n.blocks {
		prefix := fmt.Sprintf("block%d", i+1)
		ld.Register(prefix+".expand.weight", blk.Expand().Weights())
		ld.Register(prefix+".expand_norm.weight", blk.ExpandNorm().EffectiveWeights())
		ld.Register(prefix+".expand_norm.bias", blk.ExpandNorm().EffectiveBiases())
		ld.Register(prefix+".depthwise.weight", blk.Depthwise().Weights())
		ld.Register(prefix+".depthwise_norm.weight", blk.DepthwiseNorm().EffectiveWeights())
		ld.Register(prefix+".depthwise_norm.bias", blk.DepthwiseNorm().EffectiveBiases())
		ld.Register(prefix+".project.weight", blk.Project().Weights())
		ld.Register(prefix+".project_norm.weight", blk.ProjectNorm().EffectiveWeights())
		ld.Register(prefix+".project_norm.bias", blk.ProjectNorm().EffectiveBiases())
		if se := blk.SE(); se != nil {
			ld.Register(prefix+".se.reduce.weight", se.Reduce().Weights())
			ld.Register(prefix+".se.reduce.bias", se.Reduce().Biases())
			ld.Register(prefix+".se.reduce_norm.weight", se.ReduceNorm().EffectiveWeights())
			ld.Register(prefix+".se.reduce_norm.bias", se.ReduceNorm().EffectiveBiases())
			ld.Register(prefix+".se.expand.weight", se.Expand().Weights())
			ld.Register(prefix+".se.expand.bias", se.Expand().Biases())
			ld.Register(prefix+".se.expand_norm.weight", se.ExpandNorm().EffectiveWeights())
			ld.Register(prefix+".se.expand_norm.bias", se.ExpandNorm().EffectiveBiases())
		}
		if proj := blk.ShortcutProj(); proj != nil {
			ld.Register(prefix+".shortcut.weight", proj.Weights())
			ld.Register(prefix+".shortcut_norm.weight", blk.ShortcutNorm().EffectiveWeights())
			ld.Register(prefix+".shortcut_norm.bias", blk.ShortcutNorm().EffectiveBiases())
		}
	}

	ld.Register("final.weight", n.final.Weights())
	ld.Register("final_norm.weight", n.finalNorm.EffectiveWeights())
	ld.Register("final_norm.bias", n.finalNorm.EffectiveBiases())
	ld.Register("hidden.weight", n.hidden.Weights())
	ld.Register("hidden.bias", n.hidden.Biases())
	ld.Register("hidden_norm.weight", n.hiddenNorm.EffectiveWeights())
	ld.Register("hidden_norm.bias", n.hiddenNorm.EffectiveBiases())
	ld.Register("classifier.weight", n.classifier.Weights())
	ld.Register("classifier.bias", n.classifier.Biases())
}

// Block exposes one block of the chain for inspection and tests.
func (n *Network) Block(i int) *engine.Block {
	return n.blocks[i]
}
