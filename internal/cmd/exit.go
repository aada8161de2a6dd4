package cmd

import (
	"errors"
	"fmt"
	"os"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"

	apperrors "github.com/pagewire/pagewire/internal/errors"
)

// ConfigError marks failures to read or validate configuration.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return e.Err.Error() }

func (e *ConfigError) Unwrap() error { return e.Err }

// exitOK is reported for a nil error.
const exitOK foundry.ExitCode = 0

// ExitCodeFor maps a command error to a foundry exit code. Exhausted retries
// and upstream failures report the service as unavailable.
func ExitCodeFor(err error) foundry.ExitCode {
	if err == nil {
		return exitOK
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return foundry.ExitConfigInvalid
	}
	if errors.Is(err, os.ErrNotExist) {
		return foundry.ExitFileNotFound
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindRetriesExhausted, apperrors.KindThrottled, apperrors.KindServerFault, apperrors.KindTransient:
		return foundry.ExitExternalServiceUnavailable
	default:
		return foundry.ExitFailure
	}
}

// ExitWithCodeStderr writes msg, err and the exit code metadata to stderr and
// exits. Use it before a logger exists or after the command tree returned.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v (exit code: %d)\n", msg, err, exitCode)
		os.Exit(int(exitCode))
	}

	switch envelope := asEnvelope(err); {
	case envelope != nil:
		fmt.Fprintf(os.Stderr, "FATAL: %s [%s]: %s\n", msg, envelope.Code, envelope.Message)
	case err != nil:
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	default:
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	}
	fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)

	os.Exit(info.Code)
}

func asEnvelope(err error) *gferrors.ErrorEnvelope {
	var envelope *gferrors.ErrorEnvelope
	if errors.As(err, &envelope) {
		return envelope
	}
	return nil
}
