package peer

import (
	"bytes"
	"time"

	"github.com/hashicorp/memberlist"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

var (
	_ memberlist.Delegate = (*observeNodeMessage)(nil)
)

type observeNodeMessage struct {
	opt   *linkOpt
	ready *atomic.Bool
	msgCh chan []byte
	node  *node
}

func (d *observeNodeMessage) GetBroadcasts(overhead int, limit int) [][]byte {
	// nop
	return nil
}

func (d *observeNodeMessage) LocalState(join bool) []byte {
	// nop
	return nil
}

func (d *observeNodeMessage) MergeRemoteState(buf []byte, join bool) {
	// nop
}

func (d *observeNodeMessage) NodeMeta(limit int) []byte {
	buf := bytes.NewBuffer(nil)
	if err := d.node.toJSON(buf); err != nil {
		d.opt.logger.Printf("warn: node.toJSON %+v", errors.WithStack(err))
		return nil
	}
	if limit < buf.Len() {
		d.opt.logger.Printf("warn: node meta %d bytes exceeds limit %d", buf.Len(), limit)
		return nil
	}
	return buf.Bytes()
}

func (d *observeNodeMessage) NotifyMsg(msg []byte) {
	if d.ready.Load() != true {
		return // drop
	}

	// memberlist reuses msg after return
	data := make([]byte, len(msg))
	copy(data, msg)

	select {
	case d.msgCh <- data:
		// ok
	case <-time.After(d.opt.retryNodeMsgTimeout):
		d.opt.logger.Printf("warn: msgCh maybe hangup, drop msg: %s", data)
	}
}

func newObserveNodeMessage(opt *linkOpt, ready *atomic.Bool, ch chan []byte, n *node) *observeNodeMessage {
	return &observeNodeMessage{opt, ready, ch, n}
}

var (
	_ memberlist.EventDelegate = (*observeNodeEvent)(nil)
)

type nodeEvent uint8

const (
	joinEvent nodeEvent = iota + 1
	leaveEvent
)

func (e nodeEvent) String() string {
	switch e {
	case joinEvent:
		return "join"
	case leaveEvent:
		return "leave"
	}
	return "unknown event"
}

type nodeEventMsg struct {
	evt  nodeEvent
	id   string
	addr string
}

type observeNodeEvent struct {
	opt    *linkOpt
	ready  *atomic.Bool
	evtCh  chan *nodeEventMsg
	selfID string
}

func (e *observeNodeEvent) notify(evt nodeEvent, n *memberlist.Node) {
	if e.ready.Load() != true {
		return // drop
	}
	if n.Name == e.selfID {
		return
	}

	e.opt.logger.Printf("info: %s event: name=%s addr=%s", evt, n.Name, n.Address())
	msg := &nodeEventMsg{evt, n.Name, n.Address()}
	select {
	case e.evtCh <- msg:
		// ok
	case <-time.After(e.opt.retryNodeEventTimeout):
		e.opt.logger.Printf("warn: evtCh maybe hangup(%s), drop msg: %+v", evt, msg)
	}
}

func (e *observeNodeEvent) NotifyJoin(n *memberlist.Node) {
	e.notify(joinEvent, n)
}

func (e *observeNodeEvent) NotifyLeave(n *memberlist.Node) {
	e.notify(leaveEvent, n)
}

func (e *observeNodeEvent) NotifyUpdate(n *memberlist.Node) {
	// nop
}

func newObserveNodeEvent(opt *linkOpt, ready *atomic.Bool, ch chan *nodeEventMsg, selfID string) *observeNodeEvent {
	return &observeNodeEvent{opt, ready, ch, selfID}
}
