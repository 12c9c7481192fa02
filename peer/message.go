package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"

	pairtopology "github.com/octu0/pair-topology"
	"github.com/pkg/errors"
)

var (
	bufferPool = &sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 1024))
		},
	}
)

type messageType uint8

const (
	commandMessage messageType = iota + 1
	disconnectMessage
)

func (m messageType) String() string {
	switch m {
	case commandMessage:
		return "msg<Command>"
	case disconnectMessage:
		return "msg<Disconnect>"
	}
	return "unknown message"
}

type message struct {
	Type     messageType                 `json:"type"`
	NodeID   string                      `json:"node-id"`
	Command  pairtopology.PeerCommand    `json:"command,omitempty"`
	LinkLoss pairtopology.LinkLossReason `json:"link-loss,omitempty"`
}

func marshalMessage(out io.Writer, msg message) error {
	if err := json.NewEncoder(out).Encode(msg); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func unmarshalMessage(in io.Reader) (message, error) {
	msg := message{}
	if err := json.NewDecoder(in).Decode(&msg); err != nil {
		return message{}, errors.WithStack(err)
	}
	return msg, nil
}

func (l *Link) sendMessage(targetNodeID string, msg message) error {
	buf := bufferPool.Get().(*bytes.Buffer)
	defer bufferPool.Put(buf)
	buf.Reset()

	msg.NodeID = l.node.ID()
	if err := marshalMessage(buf, msg); err != nil {
		return errors.WithStack(err)
	}
	return l.send(targetNodeID, buf.Bytes())
}

func (l *Link) readMessageLoop(ctx context.Context, ch chan []byte) {
	defer l.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case data := <-ch:
			msg, err := unmarshalMessage(bytes.NewReader(data))
			if err != nil {
				l.opt.onErrorFunc(errors.Wrapf(err, "recv data: %s", data))
				continue
			}

			switch msg.Type {
			case commandMessage:
				l.opt.logger.Printf("info: %s from %s", msg.Command, msg.NodeID)
				if l.attach(msg.NodeID) {
					// a detached peer talking again is back on the link
					l.topology().PeerLinkConnected()
				}
				l.topology().PeerCommandReceived(msg.Command)

				if msg.Command == pairtopology.PeerCommandStaticHandoverRequest {
					// the primary completes the static handover on link loss
					if err := l.disconnect(msg.NodeID, pairtopology.LinkLossStaticHandover); err != nil {
						l.opt.onErrorFunc(errors.Wrapf(err, "static handover disconnect(%s)", msg.NodeID))
					}
				}

			case disconnectMessage:
				l.opt.logger.Printf("info: disconnect from %s reason=%s", msg.NodeID, msg.LinkLoss)
				if l.detach(msg.NodeID) {
					l.topology().PeerLinkDisconnected(msg.LinkLoss)
				}
			}
		}
	}
}
