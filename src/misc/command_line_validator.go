package misc

import (
	"errors"
	"fmt"
)

type CommandLineValidator struct {
	command_line_parser *CommandLineParser
}

func (this *CommandLineValidator) Init(command_line_parser *CommandLineParser) {
	this.command_line_parser = command_line_parser
}

func (this *CommandLineValidator) Validate() {
	data_width := this.command_line_parser.IntParameter("data_width")
	if data_width < 4 || data_width > 16 {
		err := fmt.Errorf("data_width %d is not in [4, 16]", data_width)
		panic(err)
	}

	frac_bits := this.command_line_parser.IntParameter("frac_bits")
	if frac_bits < 0 || frac_bits > data_width-2 {
		err := fmt.Errorf("frac_bits %d is not in [0, %d]", frac_bits, data_width-2)
		panic(err)
	}

	image_size := this.command_line_parser.IntParameter("image_size")
	if image_size < 32 {
		err := errors.New("image_size < 32")
		panic(err)
	}

	if this.command_line_parser.IntParameter("image_channels") <= 0 {
		err := errors.New("image_channels <= 0")
		panic(err)
	}

	if this.command_line_parser.IntParameter("num_classes") <= 0 {
		err := errors.New("num_classes <= 0")
		panic(err)
	}

	if this.command_line_parser.IntParameter("num_inferences") <= 0 {
		err := errors.New("num_inferences <= 0")
		panic(err)
	}
}
