package frame

import (
	"fmt"
	"strings"
	"time"

	stompframe "github.com/go-stomp/stomp/v3/frame"
)

// EOL is the heart-beat payload.
var EOL = []byte{'\n'}

// FormatHeartBeat renders a heart-beat header value.
func FormatHeartBeat(outgoing, incoming time.Duration) string {
	return fmt.Sprintf("%d,%d", outgoing.Milliseconds(), incoming.Milliseconds())
}

// ParseHeartBeat parses "x,y" into two durations. An empty value means no
// heart-beating.
func ParseHeartBeat(v string) (time.Duration, time.Duration, error) {
	if v == "" {
		return 0, 0, nil
	}
	x, y, err := stompframe.ParseHeartBeat(strings.ReplaceAll(v, " ", ""))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: heart-beat %q: %v", ErrMalformed, v, err)
	}
	return x, y, nil
}

// NegotiateHeartBeat combines the client's wish with the server's CONNECTED
// header. Zero disables the corresponding direction.
func NegotiateHeartBeat(clientOut, clientIn, serverOut, serverIn time.Duration) (send, recv time.Duration) {
	if clientOut > 0 && serverIn > 0 {
		send = max(clientOut, serverIn)
	}
	if clientIn > 0 && serverOut > 0 {
		recv = max(clientIn, serverOut)
	}
	return send, recv
}
