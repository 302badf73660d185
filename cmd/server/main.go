package main

import (
	"github.com/studyontology/backend/internal/server"
	"github.com/studyontology/backend/internal/util"
	"github.com/studyontology/backend/pkg/logger"
	"github.com/studyontology/backend/pkg/logger/console"
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
