package misc

type ConfigLoader struct{}

type runtimeConfig struct {
	dataWidth     int
	fracBits      int
	imageSize     int
	imageChannels int
	numClasses    int
	numInferences int
	dumpScores    bool
}

var globalConfig = runtimeConfig{
	dataWidth:     8,
	fracBits:      4,
	imageSize:     224,
	imageChannels: 3,
	numClasses:    1000,
	numInferences: 1,
	dumpScores:    false,
}

// ConfigureRuntime pulls the fixed-point format and network geometry
// parameters from the command line into the package-level defaults.
func ConfigureRuntime(parser *CommandLineParser) {
	if parser == nil {
		return
	}

	globalConfig.dataWidth = int(parser.IntParameter("data_width"))
	globalConfig.fracBits = int(parser.IntParameter("frac_bits"))
	globalConfig.imageSize = int(parser.IntParameter("image_size"))
	globalConfig.imageChannels = int(parser.IntParameter("image_channels"))
	globalConfig.numClasses = int(parser.IntParameter("num_classes"))
	globalConfig.numInferences = int(parser.IntParameter("num_inferences"))
	globalConfig.dumpScores = parser.IntParameter("dump_scores") != 0
}

func (this *ConfigLoader) Init() {}

func (this *ConfigLoader) DataWidth() int {
	return globalConfig.dataWidth
}

func (this *ConfigLoader) FracBits() int {
	return globalConfig.fracBits
}

func (this *ConfigLoader) ImageSize() int {
	return globalConfig.imageSize
}

func (this *ConfigLoader) ImageChannels() int {
	return globalConfig.imageChannels
}

func (this *ConfigLoader) NumClasses() int {
	return globalConfig.numClasses
}

func (this *ConfigLoader) NumInferences() int {
	return globalConfig.numInferences
}

func (this *ConfigLoader) DumpScores() bool {
	return globalConfig.dumpScores
}
