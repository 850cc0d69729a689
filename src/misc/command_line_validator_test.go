package misc

import "testing"

func newValidatorParser(args ...string) *CommandLineParser {
	command_line_parser := new(CommandLineParser)
	command_line_parser.Init()
	command_line_parser.AddOption(INT, "data_width", "8", "fixed-point word width")
	command_line_parser.AddOption(INT, "frac_bits", "4", "fixed-point fractional bits")
	command_line_parser.AddOption(INT, "image_size", "224", "input image size")
	command_line_parser.AddOption(INT, "image_channels", "3", "input image channels")
	command_line_parser.AddOption(INT, "num_classes", "1000", "classifier classes")
	command_line_parser.AddOption(INT, "num_inferences", "1", "inference count")

	command_line_parser.Parse(append([]string{"fixflow"}, args...))
	return command_line_parser
}

func expectValidatePanic(t *testing.T, msg string, args ...string) {
	t.Helper()
	command_line_validator := new(CommandLineValidator)
	command_line_validator.Init(newValidatorParser(args...))

	defer func() {
		if recover() == nil {
			t.Fatalf("%s: expected panic", msg)
		}
	}()
	command_line_validator.Validate()
}

func TestValidatorAcceptsDefaults(t *testing.T) {
	command_line_validator := new(CommandLineValidator)
	command_line_validator.Init(newValidatorParser())
	command_line_validator.Validate()
}

func TestValidatorRejectsBadParameters(t *testing.T) {
	expectValidatePanic(t, "narrow word", "--data_width=2")
	expectValidatePanic(t, "wide word", "--data_width=32")
	expectValidatePanic(t, "too many fractional bits", "--data_width=8", "--frac_bits=7")
	expectValidatePanic(t, "negative fractional bits", "--frac_bits=-1")
	expectValidatePanic(t, "tiny image", "--image_size=16")
	expectValidatePanic(t, "no channels", "--image_channels=0")
	expectValidatePanic(t, "no classes", "--num_classes=0")
	expectValidatePanic(t, "no inferences", "--num_inferences=0")
}

func TestConfigureRuntimePullsParameters(t *testing.T) {
	command_line_parser := new(CommandLineParser)
	command_line_parser.Init()
	command_line_parser.AddOption(INT, "data_width", "8", "fixed-point word width")
	command_line_parser.AddOption(INT, "frac_bits", "4", "fixed-point fractional bits")
	command_line_parser.AddOption(INT, "image_size", "224", "input image size")
	command_line_parser.AddOption(INT, "image_channels", "3", "input image channels")
	command_line_parser.AddOption(INT, "num_classes", "1000", "classifier classes")
	command_line_parser.AddOption(INT, "num_inferences", "1", "inference count")
	command_line_parser.AddOption(INT, "dump_scores", "0", "dump raw scores")
	command_line_parser.Parse([]string{"fixflow", "--image_size=64", "--num_classes=10", "--dump_scores=1"})

	saved := globalConfig
	defer func() { globalConfig = saved }()
	ConfigureRuntime(command_line_parser)

	config_loader := new(ConfigLoader)
	config_loader.Init()
	if config_loader.ImageSize() != 64 {
		t.Fatalf("image size: want 64, got %d", config_loader.ImageSize())
	}
	if config_loader.NumClasses() != 10 {
		t.Fatalf("classes: want 10, got %d", config_loader.NumClasses())
	}
	if !config_loader.DumpScores() {
		t.Fatal("dump_scores not picked up")
	}
}
