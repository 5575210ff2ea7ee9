package supervisor

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"aish/internal/api"
)

// healthCheckTimeout bounds how long probeHealth waits for a response
// before treating the launch as failed (spec §4.5 step 7).
const healthCheckTimeout = 3 * time.Second

// probeHealth dials the freshly bridged tool and sends a capability_query
// message, treating any reply within healthCheckTimeout as success. The
// three named strategies (version/ping/status) share this mechanism; they
// differ only in which content the adapter is expected to understand, a
// distinction future adapter-specific probes can specialize on.
func probeHealth(port int, kind string) error {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), healthCheckTimeout)
	if err != nil {
		return fmt.Errorf("health check dial failed: %w", err)
	}
	defer conn.Close()

	probe := api.Message{From: api.SenderSystem, Type: api.MessageCapabilityQuery, Content: kind}
	data, err := json.Marshal(probe)
	if err != nil {
		return err
	}
	conn.SetDeadline(time.Now().Add(healthCheckTimeout))
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("health check write failed: %w", err)
	}

	reader := bufio.NewReader(conn)
	if _, err := reader.ReadBytes('\n'); err != nil {
		return fmt.Errorf("health check received no response: %w", err)
	}
	return nil
}
