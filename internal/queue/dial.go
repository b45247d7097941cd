package queue

import (
	"context"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	brokerHeartbeat = 10 * time.Second
	// handshakeTimeout applies when ctx carries no deadline of its own.
	handshakeTimeout = 30 * time.Second
)

// brokerConfig is amqp.Dial's configuration with the TCP connect and the
// AMQP handshake bounded by ctx.
func brokerConfig(ctx context.Context) amqp.Config {
	return amqp.Config{
		Heartbeat: brokerHeartbeat,
		Locale:    "en_US",
		Dial:      contextDial(ctx),
	}
}

// contextDial connects within ctx and holds the socket to ctx's deadline
// until the handshake is done; the library clears the deadline once the
// connection is open.
func contextDial(ctx context.Context) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		deadline, ok := ctx.Deadline()
		if !ok {
			deadline = time.Now().Add(handshakeTimeout)
		}
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	}
}
