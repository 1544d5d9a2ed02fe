package cmd

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/VectorBits/pocshift/src/internal/ui"
)

// CLIConfig holds the flags of every subcommand; each command reads the ones
// it needs.
type CLIConfig struct {
	Command    string
	ConfigPath string
	Address    string
	Chain      string
	Block      uint64
	File       string
	Dir        string
	Triage     string
	Hash       string
	Output     string
	Workers    int
	Proxy      string
	TraceDir   string
	Verbose    bool
	Validate   bool
	Unlock     bool
}

var commands = map[string]string{
	"ingest":      "Ingest one contract source file or project directory",
	"ingest-dir":  "Ingest every <address>_<chain> entry under a directory",
	"poc":         "Migrate a directory of PoCs using their triage metadata",
	"match":       "Find candidates for a stored PoC or a code fragment",
	"sweep":       "Match pending contracts and PoCs against each other",
	"instantiate": "Fill a migrated template for one contract",
	"validate":    "Replay a PoC template against its candidates",
	"report":      "Write a markdown report of a PoC and its candidates",
}

var commandOrder = []string{"ingest", "ingest-dir", "poc", "match", "sweep", "instantiate", "validate", "report"}

func isHexAddress(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}

func (c *CLIConfig) ValidateArgs() error {
	switch c.Command {
	case "ingest":
		if c.File == "" {
			return errors.New("-file is required: a .sol file or a project directory")
		}
		if c.Address != "" && !isHexAddress(c.Address) {
			return fmt.Errorf("invalid address: %s", c.Address)
		}
	case "ingest-dir":
		if c.Dir == "" {
			return errors.New("-dir is required")
		}
	case "poc":
		if c.Dir == "" || c.Triage == "" {
			return errors.New("-dir and -triage are required")
		}
	case "match":
		if c.Hash == "" && c.File == "" {
			return errors.New("-hash or -file is required")
		}
	case "instantiate":
		if c.Hash == "" || !isHexAddress(c.Address) || c.Chain == "" {
			return errors.New("-hash, -addr and -c are required")
		}
	case "validate", "report":
		if c.Hash == "" {
			return errors.New("-hash is required")
		}
	case "sweep":
	default:
		return fmt.Errorf("unknown command: %s", c.Command)
	}
	if c.Workers < 0 {
		return errors.New("-workers must be positive")
	}
	return nil
}

func showGeneralHelp() {
	fmt.Println(ui.Cyan + "USAGE:" + ui.Reset)
	fmt.Println("  pocshift <COMMAND> [OPTIONS]")
	fmt.Println()

	fmt.Println(ui.Cyan + "COMMANDS:" + ui.Reset)
	for _, name := range commandOrder {
		fmt.Printf("  %-25s %s\n", name, commands[name])
	}
	fmt.Println()

	fmt.Println(ui.Cyan + "COMMON OPTIONS:" + ui.Reset)
	fmt.Printf("  %-25s %s\n", "-config <path>", "Settings file (default: config/settings.yaml)")
	fmt.Printf("  %-25s %s\n", "-proxy <url>", "Proxy URL (HTTP/SOCKS5) for RPC and explorer")
	fmt.Printf("  %-25s %s\n", "-v", "Verbose output")
	fmt.Println()

	fmt.Println(ui.Cyan + "EXAMPLES:" + ui.Reset)
	fmt.Println(ui.Gray + "  # Build the corpus" + ui.Reset)
	fmt.Println("  pocshift ingest-dir -dir contracts/bsc")
	fmt.Println("  pocshift ingest -file Pool.sol -addr 0x123... -c bsc")
	fmt.Println()
	fmt.Println(ui.Gray + "  # Migrate PoCs and look for clones" + ui.Reset)
	fmt.Println("  pocshift poc -dir DeFiHackLabs/src/test -triage triage.yaml")
	fmt.Println("  pocshift sweep")
	fmt.Println("  pocshift validate -hash 1a2b3c4d5e6f")
}

func showCommandHelp(name string, fs *flag.FlagSet) {
	fmt.Println(ui.Cyan + strings.ToUpper(name) + ui.Reset)
	fmt.Println(ui.Gray + commands[name] + ui.Reset)
	fmt.Println()
	fmt.Println(ui.Cyan + "OPTIONS:" + ui.Reset)
	fs.PrintDefaults()
}

// ParseFlags parses "<command> [flags]".
func ParseFlags(args []string) (*CLIConfig, error) {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		showGeneralHelp()
		return nil, flag.ErrHelp
	}
	name := args[0]
	if _, ok := commands[name]; !ok {
		showGeneralHelp()
		return nil, fmt.Errorf("unknown command: %s", name)
	}

	cfg := &CLIConfig{Command: name}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() { showCommandHelp(name, fs) }

	fs.StringVar(&cfg.ConfigPath, "config", "", "Settings file path")
	fs.StringVar(&cfg.Proxy, "proxy", "", "Optional HTTP proxy, e.g. http://127.0.0.1:7897")
	fs.BoolVar(&cfg.Verbose, "v", false, "Verbose output")
	fs.StringVar(&cfg.Address, "addr", "", "Contract address")
	fs.StringVar(&cfg.Chain, "c", "", "Chain name as configured in settings.yaml (eth, bsc, ...)")
	fs.Uint64Var(&cfg.Block, "block", 0, "Fork block for instantiate (default: the PoC's block)")
	fs.StringVar(&cfg.File, "file", "", "Source file, project directory or code fragment file")
	fs.StringVar(&cfg.Dir, "dir", "", "Input directory")
	fs.StringVar(&cfg.Triage, "triage", "", "Triage YAML with PoC metadata")
	fs.StringVar(&cfg.Hash, "hash", "", "PoC template hash")
	fs.StringVar(&cfg.Output, "o", "", "Output file or directory")
	fs.IntVar(&cfg.Workers, "workers", 0, "Concurrent PoC workers (default from settings)")
	fs.StringVar(&cfg.TraceDir, "traces", "", "Directory of recorded forge outputs to replay")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate new candidates after matching")
	fs.BoolVar(&cfg.Unlock, "unlock", false, "Clear a matching lock left by a killed sweep and exit")

	if err := fs.Parse(args[1:]); err != nil {
		return nil, err
	}
	cfg.Address = strings.TrimSpace(cfg.Address)
	cfg.Chain = strings.ToLower(strings.TrimSpace(cfg.Chain))

	if err := cfg.ValidateArgs(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Run() error {
	cfg, err := ParseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigChan)
		close(sigChan)
	}()

	go func() {
		count := 0
		for range sigChan {
			count++
			if count == 1 {
				fmt.Fprintln(os.Stderr, "\nInterrupt received, stopping... (press Ctrl+C again to force exit)")
				cancel()
				continue
			}
			fmt.Fprintln(os.Stderr, "\nForce exiting...")
			os.Exit(130)
		}
	}()

	return Execute(ctx, cfg)
}

func PrintFatal(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}

	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
