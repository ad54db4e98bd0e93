package main

import (
	"flag"
	"fmt"
	"os"

	"skote-admin/config"
	"skote-admin/core/appbootstrap"
	"skote-admin/core/utils"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	envHelp := flag.Bool("env-help", false, "print the supported environment variables and exit")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *envHelp {
		fmt.Println(config.Usage())
		return
	}

	logger := utils.NewLogger()
	logger.SetDebug(*debug)
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("config: %v", err)
		os.Exit(1)
	}
	if err := appbootstrap.Run(cfg, logger); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}
