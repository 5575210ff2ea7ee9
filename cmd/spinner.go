package cmd

import (
	"time"

	"github.com/briandowns/spinner"
)

// newSpinner builds the progress indicator shown around requests that can
// take a noticeable moment (launching a child process, waiting on its
// health check).
func newSpinner(suffix string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = suffix
	return s
}
