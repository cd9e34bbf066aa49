package httpapi

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"os"
	"strconv"
	"strings"
)

// ErrNoPort is returned when no port in the range can be bound
var ErrNoPort = errors.New("no available port")

// Listen binds host on the preferred port when it is free, otherwise on a
// random free port in [start, end]. The listener is returned bound, so the
// chosen port cannot be taken between discovery and use.
func Listen(host string, preferred, start, end int) (net.Listener, error) {
	if preferred > 0 {
		if ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(preferred))); err == nil {
			return ln, nil
		}
	}
	if start <= 0 || end < start {
		return nil, fmt.Errorf("%w: invalid range %d-%d", ErrNoPort, start, end)
	}

	ports := make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		ports = append(ports, p)
	}
	rand.Shuffle(len(ports), func(i, j int) { ports[i], ports[j] = ports[j], ports[i] })

	for _, port := range ports {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			return ln, nil
		}
	}
	return nil, fmt.Errorf("%w in range %d-%d", ErrNoPort, start, end)
}

// Port returns the TCP port of a listener, or 0
func Port(ln net.Listener) int {
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// WritePortFile records port in path so local clients can find the server
func WritePortFile(path string, port int) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(strconv.Itoa(port)+"\n"), 0o644)
}

// ReadPortFile reads a port written by WritePortFile
func ReadPortFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse port file %s: %w", path, err)
	}
	return port, nil
}

// RemovePortFile deletes the port file; a missing file is not an error
func RemovePortFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
