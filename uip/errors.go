package uip

import "github.com/pkg/errors"

var (
	// ErrConnectRefused is returned by Client.Connect when the engine reports the connection closed before
	// it was established
	ErrConnectRefused = errors.New("uip: connection refused")
	// ErrConnectTimeout is returned by Client.Connect when the connection was not established within
	// CreateOptions.ConnectTimeout
	ErrConnectTimeout = errors.New("uip: connect timed out")
	// ErrBufferFull is returned by WriteByte when no buffer space could be found for the byte
	ErrBufferFull = errors.New("uip: buffer full")
	// ErrNoSocket is returned when every UDP socket is in use
	ErrNoSocket = errors.New("uip: no free socket")
)
