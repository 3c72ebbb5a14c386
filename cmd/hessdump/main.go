// hessdump converts Hessian 2 streams to and from text notation and other
// data formats, and summarizes value graphs.
//
// Settings come from HESSDUMP_* environment variables first; flags
// override them.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	env "github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/dadrian/hessian"
	"github.com/dadrian/hessian/framing"
)

type config struct {
	From     string `env:"FROM" envDefault:"hessian"`
	To       string `env:"TO" envDefault:"text"`
	Color    string `env:"COLOR" envDefault:"auto"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"warn"`
	Compress string `env:"COMPRESS" envDefault:"none"`

	In     string
	Out    string
	Framed bool
	Info   bool
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "hessdump: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(args []string, stderr io.Writer) (*config, error) {
	var cfg config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "HESSDUMP_"}); err != nil {
		return nil, errors.Wrap(err, "environment")
	}

	flagSet := pflag.NewFlagSet("hessdump", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&cfg.In, "in", "-", "input file, or - for stdin")
	flagSet.StringVar(&cfg.Out, "out", "-", "output file, or - for stdout")
	flagSet.StringVar(&cfg.From, "from", cfg.From, "input format: "+strings.Join(inputFormats, "|"))
	flagSet.StringVar(&cfg.To, "to", cfg.To, "output format: "+strings.Join(outputFormats, "|"))
	flagSet.BoolVar(&cfg.Framed, "framed", false, "hessian input/output is split into packet-framed messages")
	flagSet.StringVar(&cfg.Compress, "compress", cfg.Compress, "stream compression for framed data: none|zstd|lz4")
	flagSet.StringVar(&cfg.Color, "color", cfg.Color, "colorize text output: auto|always|never")
	flagSet.BoolVar(&cfg.Info, "info", false, "print a summary of each value instead of converting")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug|info|warn|error")
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if flagSet.NArg() > 0 {
		return nil, errors.Newf("unexpected argument %q", flagSet.Arg(0))
	}
	return &cfg, nil
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return errors.Wrapf(err, "log level %q", cfg.LogLevel)
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	compression, err := framing.ParseCompression(cfg.Compress)
	if err != nil {
		return err
	}
	if compression != framing.CompressionNone && !cfg.Framed {
		return errors.New("--compress needs --framed")
	}

	var colorOn bool
	switch cfg.Color {
	case "always":
		colorOn = true
	case "never":
	case "auto":
		colorOn = cfg.Out == "-" && !color.NoColor
	default:
		return errors.Newf("unknown color mode %q", cfg.Color)
	}

	in := stdin
	if cfg.In != "-" {
		f, err := os.Open(cfg.In)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	out := stdout
	if cfg.Out != "-" {
		f, err := os.Create(cfg.Out)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
		colorOn = colorOn && cfg.Color == "always"
	}

	s := session{
		cfg:         cfg,
		logger:      logger,
		compression: compression,
		color:       colorOn,
	}
	values, err := s.read(in)
	if err != nil {
		return errors.Wrapf(err, "read %s", cfg.From)
	}
	logger.Debug("hessdump: input read", slog.Int("values", len(values)), slog.String("from", cfg.From))
	if cfg.Info {
		return s.info(out, values)
	}
	return errors.Wrapf(s.write(out, values), "write %s", cfg.To)
}

type session struct {
	cfg         *config
	logger      *slog.Logger
	compression framing.Compression
	color       bool
}

func (s *session) codecOptions() []hessian.Option {
	return []hessian.Option{hessian.WithLogger(s.logger)}
}

func (s *session) framingOptions() []framing.Option {
	return []framing.Option{
		framing.WithCompression(s.compression),
		framing.WithLogger(s.logger),
		framing.WithCodecOptions(s.codecOptions()...),
	}
}
