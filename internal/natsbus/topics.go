package natsbus

import "fmt"

// Topic patterns for swarm event delivery.

func TopicSwarmEvents(runID string) string {
	return fmt.Sprintf("events.swarm.%s", runID)
}

func TopicSwarmTarget(runID, targetURL string) string {
	return fmt.Sprintf("swarm.%s.target.%s", runID, sanitizeToken(targetURL))
}

const (
	TopicEventsAll   = "events.>"
	TopicEventsSwarm = "events.swarm.*"
)

// sanitizeToken makes an arbitrary string safe for use as a NATS subject
// token (no dots, spaces, or wildcard characters).
func sanitizeToken(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '.', ' ', '*', '>', '/':
			out = append(out, '_')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}
