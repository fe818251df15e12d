// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing for chat-ui.
package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdAsk
	CmdChat
	CmdModels
	CmdSearch
	CmdHistory
	CmdConfig
	CmdVersion
	CmdHelp
)

var commandNames = map[Command]string{
	CmdTUI:     "tui",
	CmdAsk:     "ask",
	CmdChat:    "chat",
	CmdModels:  "models",
	CmdSearch:  "search",
	CmdHistory: "history",
	CmdConfig:  "config",
	CmdVersion: "version",
	CmdHelp:    "help",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Model          string
	Temperature    float64
	TemperatureSet bool
	URL            string
	NoStream       bool
	Search         bool
	NoSearch       bool
	Verbose        bool
	Quiet          bool
	JSON           bool
	ConfigPath     string

	// Command-specific
	Query      string
	Subcommand string
	Target     string // conversation reference for history show/delete/export
	ConfigKey  string
	ConfigVal  string
	Format     string
	Output     string
	Limit      int
	Confirm    bool

	// Raw args (remaining after flag parsing)
	Raw []string

	// Err is set when the command line could not be parsed.
	Err error
}

const usageText = `chat-ui - terminal chat for OpenAI-compatible completion servers

Usage:
  chat-ui                          Start the TUI (default)
  chat-ui tui --resume <ref>       Continue a saved conversation in the TUI
  chat-ui ask "question"           Ask a single question (use - to read stdin)
  chat-ui chat                     Interactive line-mode chat
  chat-ui models                   List models offered by the server
  chat-ui search "query"           Run a web search
  chat-ui history [subcommand]     Saved conversations
  chat-ui config [subcommand]      Configuration
  chat-ui version                  Show version information

History Commands:
  chat-ui history list             List saved conversations
    --limit N                      Show at most N (default: 20)
  chat-ui history search <text>    Find conversations by title or content
  chat-ui history show <ref>       Print a conversation
  chat-ui history export <ref>     Export a conversation
    --format md|json               Export format (default: md)
    --output FILE                  Write to FILE instead of stdout
  chat-ui history delete <ref>     Delete a conversation
  chat-ui history clear --confirm  Delete every conversation
  chat-ui history resume <ref>     Continue a conversation in the TUI

  <ref> is a list number (1 = most recent) or a unique ID prefix.

Config Commands:
  chat-ui config show              Show the effective configuration
  chat-ui config get <key>         Show one value (e.g. chat.temperature)
  chat-ui config set <key> <value> Change a value in the config file
  chat-ui config keys              List every key
  chat-ui config path              Show the config file location

Global Flags:
  -m, --model NAME        Model to use
  -t, --temperature T     Sampling temperature
  --url URL               Completion server base URL
  --no-stream             Wait for the whole reply instead of streaming
  --search                Ground replies with a web search
  --no-search             Never search automatically
  --config FILE           Use FILE instead of ~/.chat-ui/config.toml
  -v, --verbose           Debug logging on stderr
  -q, --quiet             Minimal output
  --json                  Output in JSON format

Environment:
  CHATUI_API_BASE_URL, CHATUI_API_KEY, CHATUI_MODEL, CHATUI_TEMPERATURE,
  CHATUI_LOG_LEVEL, CHATUI_SEARCH_PROVIDER, CHATUI_HOME

Examples:
  chat-ui ask "What is a goroutine?"
  git diff | chat-ui ask -
  chat-ui --model qwen2.5-7b-instruct chat
  chat-ui history export 1 --format json --output chat.json
  chat-ui config set chat.temperature 0.2

Version: %s
`

// PrintUsage writes the usage/help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// VersionData is the --json payload of the version command.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "chat-ui version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go:         %s\n", runtime.Version())
}

// Parse parses os.Args.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses a command line (without the program name) and returns
// the command and args. Parse problems are reported through Args.Err.
func ParseArgs(argv []string) (Command, Args) {
	remaining, parsedArgs := parseGlobalFlags(argv)
	if parsedArgs.Err != nil {
		return CmdHelp, parsedArgs
	}

	// If no remaining args, default to TUI
	if len(remaining) == 0 {
		return CmdTUI, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsedArgs.Raw = remaining

	switch cmd {
	case "tui":
		parsedArgs.Target = NewArgParser(remaining).Flag("resume")
		return CmdTUI, parsedArgs

	case "ask", "a":
		parsedArgs.Query = strings.TrimSpace(strings.Join(remaining, " "))
		return CmdAsk, parsedArgs

	case "chat", "repl":
		return CmdChat, parsedArgs

	case "models", "model":
		return CmdModels, parsedArgs

	case "search":
		parseSearchArgs(&parsedArgs, remaining)
		return CmdSearch, parsedArgs

	case "history", "sessions", "hist":
		parseHistoryArgs(&parsedArgs, remaining)
		if parsedArgs.Subcommand == "resume" {
			if parsedArgs.Target == "" {
				parsedArgs.Err = NewUsageError("history resume needs a conversation number or ID")
				return CmdHelp, parsedArgs
			}
			return CmdTUI, parsedArgs
		}
		return CmdHistory, parsedArgs

	case "config", "cfg":
		parseConfigArgs(&parsedArgs, remaining)
		return CmdConfig, parsedArgs

	case "version", "--version":
		return CmdVersion, parsedArgs

	case "help", "-h", "--help":
		return CmdHelp, parsedArgs

	default:
		parsedArgs.Err = unknownCommand(cmd)
		return CmdHelp, parsedArgs
	}
}

func unknownCommand(cmd string) error {
	if suggestion := SuggestCommand(cmd); suggestion != "" {
		return NewUsageError(fmt.Sprintf("unknown command %q (did you mean %q?)", cmd, suggestion))
	}
	return NewUsageError(fmt.Sprintf("unknown command %q, run 'chat-ui help' for usage", cmd))
}

// parseGlobalFlags extracts global flags from anywhere on the command line
// and returns the remaining args. Everything after "--" is left untouched.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsedArgs Args

	// value returns the flag's argument for "--flag value" and "--flag=value".
	value := func(i *int, name, arg string) (string, bool) {
		if v, ok := strings.CutPrefix(arg, name+"="); ok {
			return v, true
		}
		if *i+1 < len(args) {
			*i++
			return args[*i], true
		}
		parsedArgs.Err = NewUsageError(fmt.Sprintf("flag %s needs a value", name))
		return "", false
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		name := arg
		if idx := strings.Index(arg, "="); idx > 0 && strings.HasPrefix(arg, "-") {
			name = arg[:idx]
		}

		switch name {
		case "--":
			remaining = append(remaining, args[i+1:]...)
			return remaining, parsedArgs
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "-v", "--verbose":
			parsedArgs.Verbose = true
		case "--json":
			parsedArgs.JSON = true
		case "--no-stream":
			parsedArgs.NoStream = true
		case "--search":
			parsedArgs.Search = true
		case "--no-search":
			parsedArgs.NoSearch = true
		case "-m", "--model":
			if v, ok := value(&i, name, arg); ok {
				parsedArgs.Model = strings.TrimSpace(v)
			}
		case "--url":
			if v, ok := value(&i, name, arg); ok {
				parsedArgs.URL = strings.TrimSpace(v)
			}
		case "--config":
			if v, ok := value(&i, name, arg); ok {
				parsedArgs.ConfigPath = v
			}
		case "-t", "--temperature":
			v, ok := value(&i, name, arg)
			if !ok {
				break
			}
			t, err := strconv.ParseFloat(v, 64)
			if err != nil {
				parsedArgs.Err = NewUsageError(fmt.Sprintf("invalid temperature %q: must be a number", v))
				break
			}
			parsedArgs.Temperature = t
			parsedArgs.TemperatureSet = true
		default:
			remaining = append(remaining, arg)
		}
		if parsedArgs.Err != nil {
			return nil, parsedArgs
		}
	}

	return remaining, parsedArgs
}

// parseSearchArgs parses "search <query> [--limit N]".
func parseSearchArgs(args *Args, remaining []string) {
	p := NewArgParser(remaining)
	args.Query = strings.TrimSpace(strings.Join(p.PositionalFrom(0), " "))
	args.Limit = p.FlagIntOrDefault("limit", 0)
}

// parseHistoryArgs parses history subcommands.
func parseHistoryArgs(args *Args, remaining []string) {
	p := NewArgParser(remaining)
	args.Subcommand = strings.ToLower(p.Subcommand())
	if args.Subcommand == "" {
		args.Subcommand = "list"
	}
	if args.Subcommand == "search" || args.Subcommand == "find" {
		args.Query = strings.TrimSpace(strings.Join(p.PositionalFrom(1), " "))
	} else {
		args.Target = p.Positional(1)
	}
	args.Format = strings.ToLower(p.FlagOrDefault("format", "md"))
	args.Output = p.Flag("output")
	if args.Output == "" {
		args.Output = p.Flag("o")
	}
	args.Limit = p.FlagIntOrDefault("limit", 20)
	args.Confirm = p.BoolFlag("confirm") || p.BoolFlag("yes") || p.BoolFlag("y")
}

// parseConfigArgs parses "config [show|get|set|keys|path|reset] [key] [value]".
func parseConfigArgs(args *Args, remaining []string) {
	var words []string
	for _, arg := range remaining {
		if arg == "--confirm" || arg == "-y" {
			args.Confirm = true
			continue
		}
		words = append(words, arg)
	}
	if len(words) == 0 {
		args.Subcommand = "show"
		return
	}
	args.Subcommand = strings.ToLower(words[0])
	if len(words) > 1 {
		args.ConfigKey = words[1]
	}
	if len(words) > 2 {
		args.ConfigVal = strings.Join(words[2:], " ")
	}
}
