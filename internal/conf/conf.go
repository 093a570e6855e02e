// Package conf contains the struct that holds the configuration of the software.
package conf

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/Icey-Glitch/mpv/internal/logger"
)

// Conf is the configuration of the program.
type Conf struct {
	// logging
	LogLevel              string               `yaml:"logLevel"`
	LogLevelParsed        logger.Level         `yaml:"-"`
	LogDestinations       []string             `yaml:"logDestinations"`
	LogDestinationsParsed []logger.Destination `yaml:"-"`
	LogFile               string               `yaml:"logFile"`
	SysLogPrefix          string               `yaml:"sysLogPrefix"`

	// recording
	PacketPoolSize         int      `yaml:"packetPoolSize"`
	DiscontinuityThreshold Duration `yaml:"discontinuityThreshold"`
}

// Load reads the configuration from a file. The default configuration
// file is optional; an explicitly given one must exist.
func Load(fpath string) (*Conf, error) {
	conf := &Conf{}

	err := func() error {
		if fpath == DefaultConfPath {
			if _, err := os.Stat(fpath); err != nil {
				return nil
			}
		}

		byts, err := os.ReadFile(fpath)
		if err != nil {
			return err
		}

		return yaml.UnmarshalStrict(byts, conf)
	}()
	if err != nil {
		return nil, err
	}

	err = conf.fillAndCheck()
	if err != nil {
		return nil, err
	}

	return conf, nil
}

// DefaultConfPath is the configuration file path used when none is given.
const DefaultConfPath = "mpv-record.yml"

func (conf *Conf) fillAndCheck() error {
	if conf.LogLevel == "" {
		conf.LogLevel = "info"
	}
	switch conf.LogLevel {
	case "error":
		conf.LogLevelParsed = logger.Error

	case "warn":
		conf.LogLevelParsed = logger.Warn

	case "info":
		conf.LogLevelParsed = logger.Info

	case "debug":
		conf.LogLevelParsed = logger.Debug

	default:
		return fmt.Errorf("unsupported log level: %s", conf.LogLevel)
	}

	if len(conf.LogDestinations) == 0 {
		conf.LogDestinations = []string{"stdout"}
	}
	conf.LogDestinationsParsed = nil
	for _, dest := range conf.LogDestinations {
		switch dest {
		case "stdout":
			conf.LogDestinationsParsed = append(conf.LogDestinationsParsed, logger.DestinationStdout)

		case "file":
			conf.LogDestinationsParsed = append(conf.LogDestinationsParsed, logger.DestinationFile)

		case "syslog":
			conf.LogDestinationsParsed = append(conf.LogDestinationsParsed, logger.DestinationSyslog)

		default:
			return fmt.Errorf("unsupported log destination: %s", dest)
		}
	}
	if conf.LogFile == "" {
		conf.LogFile = "mpv-record.log"
	}
	if conf.SysLogPrefix == "" {
		conf.SysLogPrefix = "mpv-record"
	}

	if conf.PacketPoolSize < 0 {
		return fmt.Errorf("packetPoolSize can not be negative")
	}

	if conf.DiscontinuityThreshold == 0 {
		conf.DiscontinuityThreshold = Duration(10 * time.Second)
	}
	if conf.DiscontinuityThreshold < 0 {
		return fmt.Errorf("discontinuityThreshold can not be negative")
	}

	return nil
}
