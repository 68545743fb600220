package harness

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"

	"harness/internal/cradle"
)

// writeFrame writes a length-prefixed payload: a 4-byte big-endian length
// followed by that many bytes. This is the JSON-framing the command and
// status channels use to cross the process boundary between the harness
// and its child over a Unix domain socket.
func writeFrame(w io.Writer, payload []byte) error {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(payload)))
	if _, err := w.Write(length[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFrame reads one length-prefixed payload written by writeFrame.
func readFrame(r io.Reader) ([]byte, error) {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return nil, err
	}
	payload := make([]byte, binary.BigEndian.Uint32(length[:]))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// commandSender is the parent-side half of the command channel: HTTP
// handlers enqueue commands here, which are framed and written to the
// child's control connection in FIFO order.
type commandSender struct {
	conn net.Conn
}

func (s *commandSender) Send(cmd cradle.Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return writeFrame(s.conn, payload)
}

// commandReceiver is the child-side half: it reads framed commands off the
// control connection and feeds them into a buffered Go channel so the
// cradle's PollCommand stays a local, non-blocking channel receive.
type commandReceiver struct {
	conn net.Conn
	out  chan cradle.Command
}

// newCommandReceiver starts a background goroutine draining conn into a
// buffered channel, and returns that channel for use with
// cradle.Base.SetQueues.
func newCommandReceiver(conn net.Conn) <-chan cradle.Command {
	r := &commandReceiver{conn: conn, out: make(chan cradle.Command, 64)}
	go r.run()
	return r.out
}

func (r *commandReceiver) run() {
	defer close(r.out)
	for {
		payload, err := readFrame(r.conn)
		if err != nil {
			return
		}
		var cmd cradle.Command
		if err := json.Unmarshal(payload, &cmd); err != nil {
			continue
		}
		r.out <- cmd
	}
}

// statusSender is the child-side half of the status channel: the cradle's
// PublishStatus feeds values into a local channel, and a background
// goroutine frames and writes each one to the status connection.
type statusSender struct {
	conn net.Conn
}

// newStatusSender starts a background goroutine forwarding values sent on
// the returned channel to conn, and returns that channel for use with
// cradle.Base.SetQueues.
func newStatusSender(conn net.Conn) chan<- any {
	in := make(chan any, 1)
	s := &statusSender{conn: conn}
	go s.run(in)
	return in
}

func (s *statusSender) run(in <-chan any) {
	for value := range in {
		payload, err := json.Marshal(value)
		if err != nil {
			continue
		}
		if err := writeFrame(s.conn, payload); err != nil {
			return
		}
	}
}

// statusReceiver is the parent-side half: it drains every framed status
// value as it arrives and retains only the most recent one, matching the
// status channel's overwrite-only semantics.
type statusReceiver struct {
	conn net.Conn
}

func newStatusReceiver(conn net.Conn, onValue func(json.RawMessage)) *statusReceiver {
	r := &statusReceiver{conn: conn}
	go r.run(onValue)
	return r
}

func (r *statusReceiver) run(onValue func(json.RawMessage)) {
	for {
		payload, err := readFrame(r.conn)
		if err != nil {
			return
		}
		onValue(json.RawMessage(payload))
	}
}
