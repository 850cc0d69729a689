package misc

import (
	"strings"
	"testing"
)

func TestCommandLineParserDefaultsAndOverrides(t *testing.T) {
	command_line_parser := new(CommandLineParser)
	command_line_parser.Init()
	command_line_parser.AddOption(INT, "data_width", "8", "fixed-point word width")
	command_line_parser.AddOption(STRING, "run_name", "default", "run label")

	command_line_parser.Parse([]string{"fixflow", "--data_width=12"})

	if got := command_line_parser.IntParameter("data_width"); got != 12 {
		t.Fatalf("data_width: want 12, got %d", got)
	}
	if got := command_line_parser.StringParameter("run_name"); got != "default" {
		t.Fatalf("run_name: want default, got %s", got)
	}
	if !command_line_parser.IsArgSet("data_width") {
		t.Fatal("data_width should report set")
	}
	if command_line_parser.IsArgSet("run_name") {
		t.Fatal("run_name should not report set")
	}
}

func TestCommandLineParserRejectsUnknownOption(t *testing.T) {
	command_line_parser := new(CommandLineParser)
	command_line_parser.Init()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown option")
		}
	}()
	command_line_parser.Parse([]string{"fixflow", "--nonsense=1"})
}

func TestCommandLineParserRejectsDuplicateRegistration(t *testing.T) {
	command_line_parser := new(CommandLineParser)
	command_line_parser.Init()
	command_line_parser.AddOption(INT, "frac_bits", "4", "fractional bits")

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for duplicate option")
		}
	}()
	command_line_parser.AddOption(INT, "frac_bits", "4", "fractional bits")
}

func TestCommandLineParserTypeMismatchPanics(t *testing.T) {
	command_line_parser := new(CommandLineParser)
	command_line_parser.Init()
	command_line_parser.AddOption(STRING, "run_name", "x", "run label")

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for int read of a string option")
		}
	}()
	command_line_parser.IntParameter("run_name")
}

func TestStringifyHelpMsgsIsSorted(t *testing.T) {
	command_line_parser := new(CommandLineParser)
	command_line_parser.Init()
	command_line_parser.AddOption(INT, "zeta", "1", "last")
	command_line_parser.AddOption(INT, "alpha", "1", "first")

	help := command_line_parser.StringifyHelpMsgs()
	if strings.Index(help, "--alpha") > strings.Index(help, "--zeta") {
		t.Fatal("help messages are not sorted by option name")
	}
}
