// Package core contains the main struct of the software.
package core

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	"github.com/Icey-Glitch/mpv/internal/conf"
	"github.com/Icey-Glitch/mpv/internal/confwatcher"
	"github.com/Icey-Glitch/mpv/internal/logger"
	"github.com/Icey-Glitch/mpv/internal/packet"
	"github.com/Icey-Glitch/mpv/internal/recorder"
)

var version = "v0.0.0"

var cli struct {
	Version bool   `help:"print version."`
	Conf    string `help:"path to the configuration file." short:"c" default:"mpv-record.yml"`
	Input   string `arg:"" help:"path of the input MPEG-TS file ('-' for standard input)."`
	Output  string `arg:"" help:"path of the output file; the container format is inferred from the extension."`
}

// Core is an instance of the program.
type Core struct {
	ctx         context.Context
	ctxCancel   func()
	confPath    string
	conf        *conf.Conf
	logger      *logger.Logger
	confWatcher *confwatcher.ConfWatcher

	// out
	done chan struct{}
}

// New allocates a Core.
func New(args []string) (*Core, bool) {
	parser, err := kong.New(&cli,
		kong.Description("mpv-record "+version),
		kong.UsageOnError())
	if err != nil {
		panic(err)
	}

	_, err = parser.Parse(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERR:", err)
		return nil, false
	}

	if cli.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	p := &Core{
		ctx:       ctx,
		ctxCancel: ctxCancel,
		confPath:  cli.Conf,
		done:      make(chan struct{}),
	}

	p.conf, err = conf.Load(p.confPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERR:", err)
		ctxCancel()
		return nil, false
	}

	err = p.createResources()
	if err != nil {
		if p.logger != nil {
			p.Log(logger.Error, "%s", err)
		} else {
			fmt.Fprintln(os.Stderr, "ERR:", err)
		}
		p.closeResources()
		ctxCancel()
		return nil, false
	}

	go p.run()

	return p, true
}

// Close closes Core and waits for all goroutines to return.
func (p *Core) Close() {
	p.ctxCancel()
	<-p.done
}

// Wait waits for the Core to exit.
func (p *Core) Wait() {
	<-p.done
}

// Log implements logger.Writer.
func (p *Core) Log(level logger.Level, format string, args ...interface{}) {
	p.logger.Log(level, format, args...)
}

func (p *Core) createResources() error {
	var err error
	p.logger, err = logger.New(
		p.conf.LogLevelParsed,
		p.conf.LogDestinationsParsed,
		p.LogFileAbs(),
		p.conf.SysLogPrefix,
	)
	if err != nil {
		return err
	}

	p.Log(logger.Info, "mpv-record %s", version)
	p.Log(logger.Info, "recording session %s", uuid.New())

	p.confWatcher, err = confwatcher.New(p.confPath)
	if err != nil {
		return err
	}

	return nil
}

// LogFileAbs returns the log file path.
func (p *Core) LogFileAbs() string {
	return p.conf.LogFile
}

func (p *Core) closeResources() {
	if p.confWatcher != nil {
		p.confWatcher.Close()
		p.confWatcher = nil
	}

	if p.logger != nil {
		p.logger.Close()
		p.logger = nil
	}
}

func (p *Core) reloadConf() {
	newConf, err := conf.Load(p.confPath)
	if err != nil {
		p.Log(logger.Error, "cannot reload configuration: %s", err)
		return
	}

	p.conf = newConf
	p.logger.SetLevel(newConf.LogLevelParsed)
	p.Log(logger.Info, "configuration reloaded")
}

func (p *Core) run() {
	defer close(p.done)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	jobDone := make(chan error, 1)
	go func() {
		jobDone <- p.record()
	}()

outer:
	for {
		select {
		case <-p.confWatcher.Watch():
			p.reloadConf()

		case <-interrupt:
			p.Log(logger.Info, "shutting down gracefully")
			p.ctxCancel()

		case <-p.ctx.Done():
			<-jobDone
			break outer

		case err := <-jobDone:
			if err != nil {
				p.Log(logger.Error, "%s", err)
			}
			break outer
		}
	}

	p.closeResources()
	p.ctxCancel()
}

func (p *Core) record() error {
	var f *os.File
	if cli.Input == "-" {
		f = os.Stdin
	} else {
		var err error
		f, err = os.Open(cli.Input)
		if err != nil {
			return err
		}
		defer f.Close()
	}

	source := &mpegtsSource{
		Reader: f,
		Parent: p,
	}
	err := source.Initialize(p.ctx)
	if err != nil {
		return err
	}

	rec := &recorder.Recorder{
		Destination: cli.Output,
		Streams:     source.Streams(),
		Pool:        packet.NewPool(p.conf.PacketPoolSize),
		Parent:      p,
	}
	err = rec.Initialize()
	if err != nil {
		return err
	}
	defer rec.Close()

	return source.Run(p.ctx, rec, time.Duration(p.conf.DiscontinuityThreshold))
}
