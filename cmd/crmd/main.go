package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/matheus3301/wppcrm/internal/config"
	"github.com/matheus3301/wppcrm/internal/daemon"
	"github.com/matheus3301/wppcrm/internal/instance"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance name (overrides config default)")
	configFlag := flag.String("config", "", "config file (default ~/.wppcrm/config.toml)")
	addrFlag := flag.String("addr", "", "listen address (overrides server.addr)")
	flag.Parse()

	configPath := *configFlag
	if configPath == "" {
		configPath = instance.ConfigPath()
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	name, err := instance.Resolve(*instanceFlag, cfg.DefaultInstance)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Instance: name, ConfigPath: configPath, Addr: *addrFlag}),
	)

	app.Run()
}
