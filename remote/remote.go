// Package remote exposes a minimal TCP command channel for external signal
// controllers. Frames are 4-byte big-endian length-prefixed JSON, one command
// per frame, one response per command.
package remote

import (
	"encoding/json"
	"fmt"
	"net"
)

type Command struct {
	Action         string   `json:"action"` // set_signal | set_automatic | summary
	IntersectionID string   `json:"intersection_id,omitempty"`
	Approach       string   `json:"approach,omitempty"`
	Signal         string   `json:"signal,omitempty"`
	Duration       *float64 `json:"duration,omitempty"`
}

type Response struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Summary interface{} `json:"summary,omitempty"`
}

func readFrame(conn net.Conn) ([]byte, error) {
	lenBuf := make([]byte, 4)
	bytesRead := 0
	for bytesRead < 4 {
		n, err := conn.Read(lenBuf[bytesRead:])
		if err != nil {
			return nil, fmt.Errorf("failed to read message length: %w", err)
		}
		bytesRead += n
	}

	msgLen := (int(lenBuf[0]) << 24) | (int(lenBuf[1]) << 16) | (int(lenBuf[2]) << 8) | int(lenBuf[3])

	buf := make([]byte, msgLen)
	bytesRead = 0
	for bytesRead < msgLen {
		n, err := conn.Read(buf[bytesRead:])
		if err != nil {
			return nil, fmt.Errorf("failed to read message: %w", err)
		}
		bytesRead += n
	}

	return buf, nil
}

func writeFrame(conn net.Conn, data []byte) error {
	msgLen := len(data)
	lenBuf := []byte{
		byte(msgLen >> 24),
		byte(msgLen >> 16),
		byte(msgLen >> 8),
		byte(msgLen),
	}

	if _, err := conn.Write(lenBuf); err != nil {
		return fmt.Errorf("failed to send message length: %w", err)
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

func ReadCommand(conn net.Conn) (*Command, error) {
	buf, err := readFrame(conn)
	if err != nil {
		return nil, err
	}

	var cmd Command
	if err := json.Unmarshal(buf, &cmd); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return &cmd, nil
}

func WriteCommand(conn net.Conn, cmd *Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return writeFrame(conn, data)
}

func ReadResponse(conn net.Conn) (*Response, error) {
	buf, err := readFrame(conn)
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal(buf, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return &resp, nil
}

func WriteResponse(conn net.Conn, resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return writeFrame(conn, data)
}
