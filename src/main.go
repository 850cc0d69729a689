package main

import (
	"fmt"
	"os"
	"strings"

	"fixflow/src/dataflow"
	"fixflow/src/loader"
	"fixflow/src/misc"
	"fixflow/src/network"
)

func main() {
	command_line_parser := InitCommandLineParser()
	command_line_parser.Parse(os.Args)

	if command_line_parser.IsArgSet("help") {
		fmt.Printf("%s", command_line_parser.StringifyHelpMsgs())
	} else {
		command_line_validator := new(misc.CommandLineValidator)
		command_line_validator.Init(command_line_parser)
		command_line_validator.Validate()

		misc.ConfigureRuntime(command_line_parser)

		config_loader := new(misc.ConfigLoader)
		config_loader.Init()

		config := network.LoadConfig(config_loader)

		net, err := network.New(config)
		if err != nil {
			panic(err)
		}

		fmt.Printf(
			"[fixflow] pipeline ready: %d blocks, Q(%d,%d), end-to-end latency %d ticks\n",
			net.NumBlocks(),
			config.DataWidth,
			config.FracBits,
			net.Latency(),
		)

		weight_loader := loader.NewLoader()
		net.RegisterBanks(weight_loader)

		weight_loader.Begin()
		SeedParameters(weight_loader, config, command_line_parser.IntParameter("weight_seed"))
		weight_loader.Finish()

		if !weight_loader.Done() {
			panic(fmt.Errorf("parameter load failed: %v", weight_loader.Err()))
		}

		fmt.Printf(
			"[fixflow] loaded %d parameter words across %d banks\n",
			weight_loader.TotalWords(),
			len(weight_loader.Banks()),
		)

		num_inferences := config_loader.NumInferences()

		pushed := 0
		received := 0
		for received < num_inferences {
			if pushed < num_inferences {
				net.Push(SynthesizeImage(config, pushed))
				pushed++
			}

			net.Tick()

			if scores, ok := net.Output(); ok {
				ReportScores(config_loader, received, scores)
				received++
			}
		}

		stats := net.Stats()
		fmt.Printf(
			"[fixflow] done: %d ticks, %d accepted, %d delivered, %d saturations",
			stats.Ticks,
			stats.Accepted,
			stats.Delivered,
			stats.Overflows,
		)
		if stats.Overflows > 0 {
			fmt.Printf(" (last at %s)", stats.LastSaturated)
		}
		fmt.Println()
	}
}

// SeedParameters fills every registered bank through the write protocol with
// small deterministic values, standing in for a trained checkpoint. Norm scale
// banks are seeded around 1.0 so the signal survives the fused affine stages.
func SeedParameters(weight_loader *loader.Loader, config *network.Config, seed int64) {
	one := int32(1) << config.FracBits
	state := uint64(seed)*6364136223846793005 + 1442695040888963407

	for _, bank := range weight_loader.Banks() {
		norm_scale := strings.HasSuffix(bank.Name, "norm.weight")

		values := make([]int32, bank.Size())
		for i := range values {
			state = state*6364136223846793005 + 1442695040888963407
			jitter := int32(state>>33)%5 - 2
			if norm_scale {
				values[i] = one + jitter
			} else {
				values[i] = jitter
			}
		}
		if err := weight_loader.LoadBank(bank.Name, values); err != nil {
			panic(err)
		}
	}
}

// SynthesizeImage builds a deterministic gradient test image, offset per
// inference so overlapping inferences stay distinguishable.
func SynthesizeImage(config *network.Config, index int) *dataflow.Tensor {
	img := dataflow.NewTensor(config.ImageRows, config.ImageCols, config.ImageChannels)

	one := int32(1) << config.FracBits
	for r := 0; r < config.ImageRows; r++ {
		for c := 0; c < config.ImageCols; c++ {
			for ch := 0; ch < config.ImageChannels; ch++ {
				img.Set(r, c, ch, int32((r+c+ch+index)%3)*one/4)
			}
		}
	}

	return img
}

// ReportScores prints the argmax class for one delivered score vector, plus
// the raw scores when dump_scores is set.
func ReportScores(config_loader *misc.ConfigLoader, index int, scores *dataflow.Tensor) {
	best_class := 0
	best_score := scores.At(0, 0, 0)
	for ch := 1; ch < scores.Channels(); ch++ {
		if score := scores.At(0, 0, ch); score > best_score {
			best_class = ch
			best_score = score
		}
	}

	fmt.Printf("[fixflow] inference %d: class %d (raw score %d)\n", index, best_class, best_score)

	if config_loader.DumpScores() {
		for ch := 0; ch < scores.Channels(); ch++ {
			fmt.Printf("  class %4d: %d\n", ch, scores.At(0, 0, ch))
		}
	}
}

func InitCommandLineParser() *misc.CommandLineParser {
	command_line_parser := new(misc.CommandLineParser)
	command_line_parser.Init()

	command_line_parser.AddOption(misc.INT, "help", "0", "print this help message")

	command_line_parser.AddOption(misc.INT, "data_width", "8", "fixed-point word width in bits")
	command_line_parser.AddOption(misc.INT, "frac_bits", "4", "fixed-point fractional bits")

	command_line_parser.AddOption(misc.INT, "image_size", "224", "input image height and width")
	command_line_parser.AddOption(misc.INT, "image_channels", "3", "input image channels")
	command_line_parser.AddOption(misc.INT, "num_classes", "1000", "classifier output classes")

	command_line_parser.AddOption(
		misc.INT,
		"num_inferences",
		"1",
		"number of images to push through the pipeline",
	)
	command_line_parser.AddOption(
		misc.INT,
		"weight_seed",
		"42",
		"seed for the synthetic parameter banks",
	)
	command_line_parser.AddOption(
		misc.INT,
		"dump_scores",
		"0",
		"print the full score vector per inference (0|1)",
	)

	return command_line_parser
}
