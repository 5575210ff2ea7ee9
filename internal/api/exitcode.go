package api

import "errors"

// CLI exit codes (spec §6.1).
const (
	ExitSuccess           = 0
	ExitUsageError        = 1
	ExitUnknownCI         = 2
	ExitTransportFailure  = 3
	ExitTimeout           = 4
	ExitRegistryInconsist = 5
)

// ExitCode maps an error returned from a CLI-invoked operation to the
// process exit code spec §6.1 specifies.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var nf *NotFoundError
	if errors.As(err, &nf) && nf.ResourceType == "ci" {
		return ExitUnknownCI
	}

	var te *TransportError
	if errors.As(err, &te) {
		return ExitTransportFailure
	}

	var to *TimeoutError
	if errors.As(err, &to) {
		return ExitTimeout
	}

	var pf *PersistFailedError
	if errors.As(err, &pf) {
		return ExitRegistryInconsist
	}

	return ExitUsageError
}
