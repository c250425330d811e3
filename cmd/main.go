package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/WrongProvider/quemVota-sub000/serv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const defaultConfigName = "dev.yml"

var (
	log   *zap.SugaredLogger
	level zap.AtomicLevel
	conf  *serv.Config

	cpath  string
	output string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "quemvota",
		Short:         "Query the public data of the parliament",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cpath, "path", "./config", "path to config files")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "json", "output format: json or yaml")

	rootCmd.AddCommand(politiciansCmd())
	rootCmd.AddCommand(timelineCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(getCmd())
	rootCmd.AddCommand(testCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the config from cpath and builds the logger. A missing config
// file falls back to defaults and QV_ environment variables.
func setup(cpath string) {
	var err error

	cf := filepath.Join(cpath, configName())
	if _, statErr := os.Stat(cf); statErr == nil {
		conf, err = serv.ReadInConfig(cf)
	} else {
		conf, err = serv.NewConfig()
	}
	if err != nil {
		fatal(err)
	}

	if err := conf.Validate(); err != nil {
		fatal(err)
	}

	var zlog *zap.Logger
	zlog, level = serv.NewLogger(conf)
	log = zlog.Sugar()
}

// configName picks the config file from QV_ENV (dev.yml when unset).
func configName() string {
	switch env := os.Getenv("QV_ENV"); env {
	case "":
		return defaultConfigName
	default:
		return env + ".yml"
	}
}

func newService() *serv.Service {
	s, err := serv.NewService(conf, log.Desugar())
	if err != nil {
		fatal(err)
	}
	return s
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func fatal(err error) {
	if log != nil {
		log.Fatal(err)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

// printOut writes v to stdout in the selected output format. Field names
// follow the json tags in both formats.
func printOut(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding output")
	}

	switch output {
	case "json":
		fmt.Println(string(b))
		return nil

	case "yaml", "yml":
		var doc any
		if err := yaml.Unmarshal(b, &doc); err != nil {
			return errors.Wrap(err, "encoding output")
		}
		yb, err := yaml.Marshal(doc)
		if err != nil {
			return errors.Wrap(err, "encoding output")
		}
		fmt.Print(string(yb))
		return nil

	default:
		return fmt.Errorf("unknown output format: %s", output)
	}
}
