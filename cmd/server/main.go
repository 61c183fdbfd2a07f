package main

import (
	"github.com/freightwise/shipmentqa/internal/server"
	"github.com/freightwise/shipmentqa/internal/util"
	"github.com/freightwise/shipmentqa/pkg/logger"
	"github.com/freightwise/shipmentqa/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
