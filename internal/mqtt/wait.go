package mqtt

import (
	"net"
	"net/url"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DialFunc opens a network connection within timeout. net.DialTimeout
// satisfies it.
type DialFunc func(network, address string, timeout time.Duration) (net.Conn, error)

// BrokerAddress returns host:port for a broker URL, filling in the default
// port for its scheme.
func BrokerAddress(broker string) (string, error) {
	u, err := url.Parse(broker)
	if err != nil {
		return "", errors.Wrapf(err, "parse broker %q", broker)
	}
	if u.Hostname() == "" {
		return "", errors.Errorf("broker %q has no host", broker)
	}
	if u.Port() != "" {
		return u.Host, nil
	}

	port := "1883"
	switch u.Scheme {
	case "ssl", "tls", "mqtts", "tcps":
		port = "8883"
	case "ws":
		port = "80"
	case "wss":
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// WaitForBroker blocks until the broker accepts a TCP connection, trying up
// to retries more times at a fixed interval. retries <= 0 means a single try.
// Each attempt is abandoned after timeout even if dial ignores it, so the
// whole wait lasts at most (retries+1) * (timeout+interval). The caller
// decides whether a final failure matters; the connection manager keeps
// retrying either way.
func WaitForBroker(broker string, retries int, interval, timeout time.Duration, dial DialFunc, log *logrus.Entry) error {
	addr, err := BrokerAddress(broker)
	if err != nil {
		return err
	}

	attempt := 0
	op := func() error {
		attempt++
		if err := dialWithin(dial, addr, timeout); err != nil {
			log.WithError(err).Debugf("broker not reachable (attempt %d)", attempt)
			return err
		}
		return nil
	}

	var b backoff.BackOff = &backoff.StopBackOff{}
	if retries > 0 {
		b = backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(retries))
	}
	if err := backoff.Retry(op, b); err != nil {
		return errors.Wrapf(err, "broker %s unreachable after %d attempts", addr, attempt)
	}
	log.Infof("broker %s reachable", addr)
	return nil
}

type dialResult struct {
	conn net.Conn
	err  error
}

// dialWithin runs one dial and gives up after timeout. A connection that
// completes after the deadline is closed once it arrives.
func dialWithin(dial DialFunc, addr string, timeout time.Duration) error {
	done := make(chan dialResult, 1)
	go func() {
		conn, err := dial("tcp", addr, timeout)
		done <- dialResult{conn: conn, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			return r.err
		}
		return r.conn.Close()
	case <-timer.C:
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return errors.Errorf("dial %s: no answer within %v", addr, timeout)
	}
}
