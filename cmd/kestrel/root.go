// Command kestrel is a thin demonstration binary over the storage engine:
// it is not a SQL front-end, just enough cobra-driven plumbing to exercise
// pager/heap/index/lock/txn/execute end to end from the command line.
//
// A persistent cobra.Command with PersistentPreRunE doing config-file
// loading and logrus setup before any subcommand runs.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kestreldb/kestrel/config"
)

var (
	rootCmd = &cobra.Command{
		Use:               "kestrel",
		Short:             "A disk-backed relational storage engine",
		Long:              "Kestrel is a disk-backed heap/B+-tree storage engine with strict 2PL transactions.",
		PersistentPreRunE: kestrelPreRun,
		PersistentPostRun: kestrelPostRun,
	}

	configFile = "kestrel.hcl"
	dataDir    string
	logFile    string
	logLevel   string
	logStderr  bool
	logWriter  io.WriteCloser

	cfg config.Config
)

func init() {
	fs := rootCmd.PersistentFlags()
	fs.StringVar(&configFile, "config-file", configFile, "`file` to load config from")
	fs.StringVar(&dataDir, "data-dir", "", "override the configured data directory")
	fs.StringVar(&logFile, "log-file", "", "override the configured log file")
	fs.StringVar(&logLevel, "log-level", "", "override the configured log level")
	fs.BoolVarP(&logStderr, "log-stderr", "s", false, "log to standard error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func kestrelPreRun(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configFile)
	if err != nil {
		return fmt.Errorf("kestrel: %s", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logrus.SetFormatter(&logrus.TextFormatter{DisableLevelTruncation: true})
	if !logStderr && cfg.LogFile != "" {
		logWriter, err = os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			logWriter = nil
			return fmt.Errorf("kestrel: %s", err)
		}
		logrus.SetOutput(logWriter)
	}

	ll, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("kestrel: %s", err)
	}
	logrus.SetLevel(ll)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("kestrel: %s", err)
	}

	logrus.WithField("pid", os.Getpid()).Info("kestrel starting")
	return nil
}

func kestrelPostRun(cmd *cobra.Command, args []string) {
	logrus.WithField("pid", os.Getpid()).Info("kestrel done")
	if logWriter != nil {
		logWriter.Close()
	}
}
