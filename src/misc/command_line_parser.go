package misc

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type OptionType int

const (
	INT OptionType = iota
	STRING
)

type option struct {
	option_type   OptionType
	name          string
	default_value string
	value         string
	is_set        bool
	help_msg      string
}

// CommandLineParser registers typed options with defaults and parses
// --name=value style arguments.
type CommandLineParser struct {
	options map[string]*option
}

func (this *CommandLineParser) Init() {
	this.options = make(map[string]*option)
}

func (this *CommandLineParser) AddOption(option_type OptionType, name string, default_value string, help_msg string) {
	if _, ok := this.options[name]; ok {
		err := fmt.Errorf("option %s is already registered", name)
		panic(err)
	}

	this.options[name] = &option{
		option_type:   option_type,
		name:          name,
		default_value: default_value,
		value:         default_value,
		help_msg:      help_msg,
	}
}

func (this *CommandLineParser) Parse(args []string) {
	for _, arg := range args[1:] {
		if !strings.HasPrefix(arg, "--") {
			continue
		}

		body := strings.TrimPrefix(arg, "--")
		name := body
		value := ""
		if idx := strings.Index(body, "="); idx >= 0 {
			name = body[:idx]
			value = body[idx+1:]
		}

		opt, ok := this.options[name]
		if !ok {
			err := fmt.Errorf("option %s is not registered", name)
			panic(err)
		}

		opt.value = value
		opt.is_set = true
	}
}

func (this *CommandLineParser) IsArgSet(name string) bool {
	opt, ok := this.options[name]
	if !ok {
		return false
	}

	return opt.is_set
}

func (this *CommandLineParser) IntParameter(name string) int64 {
	opt, ok := this.options[name]
	if !ok {
		err := fmt.Errorf("option %s is not registered", name)
		panic(err)
	}

	if opt.option_type != INT {
		err := fmt.Errorf("option %s is not an int option", name)
		panic(err)
	}

	value, parse_err := strconv.ParseInt(opt.value, 10, 64)
	if parse_err != nil {
		panic(parse_err)
	}

	return value
}

func (this *CommandLineParser) StringParameter(name string) string {
	opt, ok := this.options[name]
	if !ok {
		err := fmt.Errorf("option %s is not registered", name)
		panic(err)
	}

	if opt.option_type != STRING {
		err := fmt.Errorf("option %s is not a string option", name)
		panic(err)
	}

	return opt.value
}

func (this *CommandLineParser) StringifyHelpMsgs() string {
	names := make([]string, 0, len(this.options))
	for name := range this.options {
		names = append(names, name)
	}
	sort.Strings(names)

	var builder strings.Builder
	for _, name := range names {
		opt := this.options[name]
		builder.WriteString(fmt.Sprintf("--%s (default: %s): %s\n", opt.name, opt.default_value, opt.help_msg))
	}

	return builder.String()
}
