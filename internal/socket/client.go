package socket

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

var ErrClosedEarly = errors.New("socket closed before the end of the reply")

type Client struct {
	conn net.Conn
	r    *bufio.Reader
}

func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("could not connect to wayper socket at %s: %w", path, err)
	}
	return &Client{conn: conn, r: bufio.NewReader(conn)}, nil
}

// Send writes cmd and collects the replies up to, not including, the End record.
func (c *Client) Send(cmd Command) ([]Output, error) {
	b, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	if _, err := c.conn.Write(append(b, '\n')); err != nil {
		return nil, fmt.Errorf("write command: %w", err)
	}

	var outputs []Output
	for {
		line, err := c.r.ReadBytes('\n')
		if len(line) > 0 {
			var out Output
			if jerr := json.Unmarshal(line, &out); jerr != nil {
				return outputs, fmt.Errorf("parse reply: %w", jerr)
			}
			if out.Kind == OutEnd {
				return outputs, nil
			}
			outputs = append(outputs, out)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return outputs, ErrClosedEarly
			}
			return outputs, fmt.Errorf("read reply: %w", err)
		}
	}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Send dials path, sends one command and hangs up.
func Send(path string, cmd Command) ([]Output, error) {
	c, err := Dial(path)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.Send(cmd)
}
