package main

import (
	"github.com/knowledgesnode/backend/internal/server"
	"github.com/knowledgesnode/backend/internal/util"
	"github.com/knowledgesnode/backend/pkg/logger"
	"github.com/knowledgesnode/backend/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
		JSON:  util.GetEnv("LOG_FORMAT") == "json",
	})
	logger.Init(consoleLogger)

	server.Init()
}
