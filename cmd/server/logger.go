package main

import (
	"os"

	"go.uber.org/zap"
)

// newLogger creates the process-wide structured logger. LOG_LEVEL=debug
// switches on per-client debit logging in the processor.
func newLogger() (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.InitialFields = map[string]interface{}{
		"service": "budget-engine",
	}

	if os.Getenv("LOG_LEVEL") == "debug" {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	return config.Build()
}
