package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/gentam/norflash"
	"github.com/gentam/norflash/internal/config"
)

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

func fatalUsage(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(2)
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
	norflash <command> [arguments]

Commands:
	info	 print flash ID, geometry and status registers
	read	 read flash memory
	write	 write flash memory
	erase	 erase sectors or the entire flash
	bench	 measure read throughput and verify erase/write

Common arguments:
	-c file	 YAML configuration
	-bus	 sim, ftdi, spidev or rpio (overrides the configuration)
	-p	 protocol variant: std, dual, dio, quad, qio, qpi
	-q	 transaction queue size
	-v	 debug logging

The sim bus is an in-memory chip that starts erased on every run.
`)
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
	}

	switch cmd := flag.Arg(0); cmd {
	case "info":
		infoCommand(flag.Args()[1:])
	case "read":
		readCommand(flag.Args()[1:])
	case "write":
		writeCommand(flag.Args()[1:])
	case "erase":
		eraseCommand(flag.Args()[1:])
	case "bench":
		benchCommand(flag.Args()[1:])
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %q\n", cmd)
		usage()
	}
}

// options are the arguments every command accepts.
type options struct {
	configPath string
	bus        string
	variant    string
	queue      int
	verbose    bool

	cfg *config.Config
}

func (o *options) register(fs *flag.FlagSet) {
	fs.StringVar(&o.configPath, "c", "", "YAML configuration file")
	fs.StringVar(&o.bus, "bus", "", "bus kind (sim, ftdi, spidev, rpio)")
	fs.StringVar(&o.variant, "p", "", "protocol variant")
	fs.IntVar(&o.queue, "q", 0, "transaction queue size")
	fs.BoolVar(&o.verbose, "v", false, "debug logging")
}

// load reads the configuration file, if any, and applies the flags on top.
func (o *options) load() *config.Config {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			fatalf("config load failed: %v", err)
		}
	}
	if o.bus != "" {
		cfg.Bus.Kind = o.bus
	}
	if o.variant != "" {
		cfg.Variant = o.variant
	}
	if o.queue != 0 {
		cfg.Queue = o.queue
	}
	if o.verbose {
		cfg.LogLevel = "debug"
	}
	if err := config.Validate(cfg); err != nil {
		fatalUsage("config validation failed: %v", err)
	}
	o.cfg = cfg
	return cfg
}

// open initializes the flash described by the options. The returned function
// terminates it and closes the bus.
func (o *options) open() (*norflash.Flash, norflash.Config, func()) {
	cfg := o.load()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(log)

	bus, closeBus, err := openBus(cfg)
	if err != nil {
		fatalf("open %s bus failed: %v", cfg.Bus.Kind, err)
	}
	fc, err := cfg.FlashConfig()
	if err != nil {
		fatalf("%v", err)
	}

	f := norflash.New(bus, cfg.FlashVariant(), norflash.WithLogger(log))
	if err := f.Init(fc); err != nil {
		closeBus()
		fatalf("flash init failed: %v", err)
	}
	return f, fc, func() {
		if err := f.Term(); err != nil {
			fmt.Fprintln(os.Stderr, "flash term failed:", err)
		}
		if err := closeBus(); err != nil {
			fmt.Fprintln(os.Stderr, "bus close failed:", err)
		}
	}
}
