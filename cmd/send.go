package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	sendExecute bool
	sendStream  bool
)

// registerSendFlags wires the `-x` shorthand flag onto rootCmd, since the
// bare `aish <ci-name> "message"` invocation has no dedicated subcommand
// to attach flags to (spec §6.1). `-x` is a plain switch: it takes no
// delimiter argument, and the request carries no per-message delimiter, so
// the target tool's configured delimiter always applies.
func registerSendFlags(c *cobra.Command) {
	c.Flags().BoolVarP(&sendExecute, "execute", "x", false, "set the execute flag on the message")
	c.Flags().BoolVar(&sendStream, "stream", false, "stream the response as it arrives")
}

func runSend(c *cobra.Command, name, message string) error {
	cl := newClient()

	if sendStream {
		return cl.stream("/tools/send-message", sendMessageRequest{
			AIName: name, Message: message, Stream: true, Execute: sendExecute,
		}, func(delta string) { fmt.Fprint(c.OutOrStdout(), delta) })
	}

	var out sendMessageResponse
	if err := cl.post("/tools/send-message", sendMessageRequest{
		AIName: name, Message: message, Execute: sendExecute,
	}, &out); err != nil {
		return err
	}
	fmt.Fprintln(c.OutOrStdout(), out.Response)
	return nil
}

// sendMessageRequest/Response mirror internal/mcpapi's wire shapes; the
// CLI talks to the server as a plain HTTP client and has no access to
// its unexported types.
type sendMessageRequest struct {
	AIName  string `json:"ai_name"`
	Message string `json:"message"`
	Stream  bool   `json:"stream,omitempty"`
	Execute bool   `json:"execute,omitempty"`
}

type sendMessageResponse struct {
	Response string `json:"response"`
}
