package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"pathwatch/internal/config"
)

const (
	exitCodeSuccess = 0
	exitCodeUsage   = 1
)

type options struct {
	config.Config
	ShowVersion bool
}

func parseArgs(args []string, errOut io.Writer) (options, error) {
	fs := flag.NewFlagSet("pathwatch", flag.ContinueOnError)
	fs.SetOutput(errOut)

	configPath := fs.String("config", "", "YAML config file (env: PATHWATCH_CONFIG)")
	recursive := fs.Bool("recursive", false, "Watch directories recursively")
	monitor := fs.Bool("monitor", false, "Keep watching after the first change")
	quiet := fs.Bool("quiet", false, "Suppress the startup banner")
	events := fs.String("events", "", "Comma-separated kinds: create,modify,delete,move (default: all)")
	formatFlag := fs.String("format", "", "Output format tokens (default: \"%T %w%f %e\")")
	exclude := fs.String("exclude", "", "Regular expression of paths to ignore")
	iexclude := fs.String("iexclude", "", "Case-insensitive variant of --exclude")
	execute := fs.String("exec", "", "Command to run after each emitted event")
	param := fs.String("param", "", "Argument string for the exec command")
	timeout := fs.Int("timeout", config.DefaultTimeoutSeconds, "Exec timeout in seconds")
	listen := fs.String("listen", "", "Serve /events and /metrics on this address (env: PATHWATCH_LISTEN)")
	ptyFlag := fs.Bool("pty", false, "Run the exec command under a pseudo-terminal")
	stats := fs.Bool("stats", false, "Dump metrics to stderr at shutdown")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warning, error (env: PATHWATCH_LOG_LEVEL)")
	poll := fs.Duration("poll", 0, "Flush tick period (default: 100ms)")
	quiescence := fs.Duration("quiescence", 0, "Idle time before a pending event flushes (default: 75ms)")

	var help, showVersion bool
	fs.BoolVar(&help, "help", false, "Show this help message")
	fs.BoolVar(&help, "h", false, "Show this help message")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVar(&showVersion, "v", false, "Print version and exit")

	fs.Usage = func() {
		printUsage(fs.Output())
	}

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if help {
		fs.Usage()
		return options{}, flag.ErrHelp
	}
	if showVersion {
		return options{ShowVersion: true}, nil
	}

	cfg := config.Default()

	filePath := strings.TrimSpace(*configPath)
	if filePath == "" {
		filePath = strings.TrimSpace(os.Getenv("PATHWATCH_CONFIG"))
	}
	if filePath != "" {
		if err := cfg.ApplyFile(filePath); err != nil {
			fmt.Fprintln(errOut, err)
			return options{}, err
		}
	}
	if cfg.Listen == "" {
		cfg.Listen = strings.TrimSpace(os.Getenv("PATHWATCH_LISTEN"))
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = strings.TrimSpace(os.Getenv("PATHWATCH_LOG_LEVEL"))
	}

	// Explicitly set flags win over file and environment.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "recursive":
			cfg.Recursive = *recursive
		case "monitor":
			cfg.Monitor = *monitor
		case "quiet":
			cfg.Quiet = *quiet
		case "events":
			cfg.Events = splitEvents(*events)
		case "format":
			cfg.Format = *formatFlag
		case "exclude":
			cfg.Exclude = *exclude
			cfg.ExcludeInsensitive = false
		case "iexclude":
			cfg.Exclude = *iexclude
			cfg.ExcludeInsensitive = true
		case "exec":
			cfg.Execute = *execute
		case "param":
			cfg.Param = *param
		case "timeout":
			cfg.TimeoutSeconds = *timeout
		case "listen":
			cfg.Listen = *listen
		case "pty":
			cfg.Pty = *ptyFlag
		case "stats":
			cfg.Stats = *stats
		case "log-level":
			cfg.LogLevel = *logLevel
		case "poll":
			cfg.Poll = *poll
		case "quiescence":
			cfg.Quiescence = *quiescence
		}
	})

	if fs.NArg() > 0 {
		cfg.Roots = fs.Args()
	}
	if len(cfg.Roots) == 0 {
		fs.Usage()
		return options{}, fmt.Errorf("at least one path is required")
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(errOut, err)
		return options{}, err
	}

	return options{Config: cfg}, nil
}

func splitEvents(value string) []string {
	parts := strings.Split(value, ",")
	tokens := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			tokens = append(tokens, part)
		}
	}
	return tokens
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage: pathwatch [options] <path> [<path>...]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Watch filesystem paths and report coalesced change events")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")
	writeOption(out, "--recursive", "Watch directories recursively")
	writeOption(out, "--monitor", "Keep watching after the first change (default: exit after it)")
	writeOption(out, "--quiet", "Suppress the startup banner")
	writeOption(out, "--events LIST", "Comma-separated kinds: create,modify,delete,move (default: all)")
	writeOption(out, "--format TOKENS", "Output format; %e kind, %f name, %w directory, %T timestamp")
	writeOption(out, "--exclude RE", "Regular expression of paths to ignore")
	writeOption(out, "--iexclude RE", "Case-insensitive variant of --exclude")
	writeOption(out, "--exec CMD", "Command to run after each emitted event")
	writeOption(out, "--param ARGS", "Argument string for the exec command")
	writeOption(out, "--timeout SECONDS", "Exec timeout in seconds (default: 10)")
	writeOption(out, "--pty", "Run the exec command under a pseudo-terminal")
	writeOption(out, "--listen ADDR", "Serve /events and /metrics on this address")
	writeOption(out, "--config FILE", "YAML config file")
	writeOption(out, "--poll DURATION", "Flush tick period (default: 100ms)")
	writeOption(out, "--quiescence DURATION", "Idle time before a pending event flushes (default: 75ms)")
	writeOption(out, "--stats", "Dump metrics to stderr at shutdown")
	writeOption(out, "--log-level LEVEL", "debug, info, warning, error")
	writeOption(out, "--help", "Show this help message")
	writeOption(out, "--version", "Print version and exit")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Examples:")
	fmt.Fprintln(out, "  pathwatch --events modify --monitor ./src")
	fmt.Fprintln(out, "  pathwatch --recursive --exec make --param test ./src ./docs")
	fmt.Fprintln(out, "  pathwatch --monitor --listen 127.0.0.1:7817 /var/data")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Exit codes:")
	fmt.Fprintln(out, "  0  Normal shutdown")
	fmt.Fprintln(out, "  1  Usage or startup error")
}

func writeOption(out io.Writer, name, desc string) {
	fmt.Fprintf(out, "  %-22s %s\n", name, desc)
}
