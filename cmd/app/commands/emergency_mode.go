package commands

import (
	"context"
	"fmt"

	"github.com/allisson/auditpipe/internal/app"
	"github.com/allisson/auditpipe/internal/config"
)

// RunEmergencyMode turns global emergency shedding on or off. The mode must
// be exactly "on" or "off".
func RunEmergencyMode(ctx context.Context, io IOTuple, mode string) error {
	var enabled bool
	switch mode {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		return fmt.Errorf("invalid mode %q: must be \"on\" or \"off\"", mode)
	}

	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	sheddingUseCase, err := container.SheddingUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize shedding use case: %w", err)
	}

	if err := sheddingUseCase.SetEmergencyMode(ctx, enabled); err != nil {
		return fmt.Errorf("failed to set emergency mode: %w", err)
	}

	fmt.Fprintf(io.Writer, "emergency mode set to %s\n", mode)
	return nil
}
