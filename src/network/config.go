// Package network composes the datapath engines into the full
// MobileNetV3-Small-shaped inference pipeline: stem convolution, eleven
// parameterized inverted-residual blocks, final pointwise convolution, global
// pooling and the two-layer classifier head, all advanced by one global tick.
package network

import (
	"fixflow/src/engine"
	"fixflow/src/misc"
)

// Config bundles the construction-time parameters of one pipeline instance.
type Config struct {
	DataWidth     int
	FracBits      int
	ImageRows     int
	ImageCols     int
	ImageChannels int
	StemChannels  int
	FinalChannels int
	HiddenUnits   int
	NumClasses    int
}

// LoadConfig pulls the pipeline parameters from the shared ConfigLoader.
func LoadConfig(loader *misc.ConfigLoader) *Config {
	config := new(Config)

	config.DataWidth = loader.DataWidth()
	config.FracBits = loader.FracBits()
	config.ImageRows = loader.ImageSize()
	config.ImageCols = loader.ImageSize()
	config.ImageChannels = loader.ImageChannels()
	config.StemChannels = 16
	config.FinalChannels = 576
	config.HiddenUnits = 1024
	config.NumClasses = loader.NumClasses()

	return config
}

// DefaultConfig returns the stock MobileNetV3-Small geometry at Q(8,4).
func DefaultConfig() *Config {
	return &Config{
		DataWidth:     8,
		FracBits:      4,
		ImageRows:     224,
		ImageCols:     224,
		ImageChannels: 3,
		StemChannels:  16,
		FinalChannels: 576,
		HiddenUnits:   1024,
		NumClasses:    1000,
	}
}

// BlockSpec parameterizes one inverted-residual block of the chain.
type BlockSpec struct {
	Kernel     int
	Expand     int
	Out        int
	Stride     int
	SE         bool
	Activation engine.ActKind
}

// SmallConfig returns the eleven-block MobileNetV3-Small table. The chain is
// built by invoking one parameterized block constructor per entry rather than
// replicating eleven hand-specialized units.
func SmallConfig() []BlockSpec {
	return []BlockSpec{
		{Kernel: 3, Expand: 16, Out: 16, Stride: 2, SE: true, Activation: engine.ActReLU},
		{Kernel: 3, Expand: 72, Out: 24, Stride: 2, SE: false, Activation: engine.ActReLU},
		{Kernel: 3, Expand: 88, Out: 24, Stride: 1, SE: false, Activation: engine.ActReLU},
		{Kernel: 5, Expand: 96, Out: 40, Stride: 2, SE: true, Activation: engine.ActHSwish},
		{Kernel: 5, Expand: 240, Out: 40, Stride: 1, SE: true, Activation: engine.ActHSwish},
		{Kernel: 5, Expand: 240, Out: 40, Stride: 1, SE: true, Activation: engine.ActHSwish},
		{Kernel: 5, Expand: 120, Out: 48, Stride: 1, SE: true, Activation: engine.ActHSwish},
		{Kernel: 5, Expand: 144, Out: 48, Stride: 1, SE: true, Activation: engine.ActHSwish},
		{Kernel: 5, Expand: 288, Out: 96, Stride: 2, SE: true, Activation: engine.ActHSwish},
		{Kernel: 5, Expand: 576, Out: 96, Stride: 1, SE: true, Activation: engine.ActHSwish},
		{Kernel: 5, Expand: 576, Out: 96, Stride: 1, SE: true, Activation: engine.ActHSwish},
	}
}

// squeezeWidth derives the reduced channel count of a squeeze-excite
// sub-pipeline: a quarter of the gated channels rounded up to a multiple of
// eight, never below eight.
func squeezeWidth(channels int) int {
	w := (channels/4 + 7) / 8 * 8
	if w < 8 {
		w = 8
	}
	return w
}
