// Package logging centralizes zap logger construction so cmd/ingestion and
// cmd/worker configure it identically.
package logging

import "go.uber.org/zap"

// New builds a zap logger appropriate for the given environment name.
func New(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
