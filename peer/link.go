// Package peer carries the topology commands and the role election between
// the two nodes over memberlist.
package peer

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
	"github.com/oklog/ulid/v2"
	pairtopology "github.com/octu0/pair-topology"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

const (
	DefaultElectionInterval      = 10 * time.Millisecond
	DefaultLeaveNodeTimeout      = 10 * time.Second
	DefaultRetryNodeMsgTimeout   = 15 * time.Second
	DefaultRetryNodeEventTimeout = 15 * time.Second
)

var (
	ErrLinkInitialize = errors.New("link initialize")
	ErrNoPeer         = errors.New("no peer")
	ErrLeaveTimeout   = errors.New("leave timeout")
	errNodeNotFound   = errors.New("node not found")
)

var (
	_ pairtopology.PeerSignaller = (*Link)(nil)
)

// Topology receives the peer link events. *pairtopology.Controller
// satisfies it.
type Topology interface {
	PeerLinkConnected()
	PeerLinkDisconnected(reason pairtopology.LinkLossReason)
	PeerCommandReceived(cmd pairtopology.PeerCommand)
	PeerCommandConfirmed(cmd pairtopology.PeerCommand, err error)
	ElectionResult(outcome pairtopology.ElectionOutcome)
}

type nopTopology struct{}

func (nopTopology) PeerLinkConnected()                                   {}
func (nopTopology) PeerLinkDisconnected(pairtopology.LinkLossReason)     {}
func (nopTopology) PeerCommandReceived(pairtopology.PeerCommand)         {}
func (nopTopology) PeerCommandConfirmed(pairtopology.PeerCommand, error) {}
func (nopTopology) ElectionResult(pairtopology.ElectionOutcome)          {}

type (
	ULIDGeneratorFunc func() string
	OnErrorFunc       func(error)
)

func DefaultULIDGeneratorFunc() string {
	return ulid.Make().String()
}

func DefaultOnErrorFunc(err error) {
	log.Printf("error: %+v", err)
}

type LinkOptFunc func(*linkOpt)

type linkOpt struct {
	electionInterval      time.Duration
	leaveNodeTimeout      time.Duration
	retryNodeMsgTimeout   time.Duration
	retryNodeEventTimeout time.Duration
	ulidGeneratorFunc     ULIDGeneratorFunc
	onErrorFunc           OnErrorFunc
	logger                *log.Logger
}

func WithElectionInterval(d time.Duration) LinkOptFunc {
	return func(o *linkOpt) {
		o.electionInterval = d
	}
}

func WithLeaveNodeTimeout(d time.Duration) LinkOptFunc {
	return func(o *linkOpt) {
		o.leaveNodeTimeout = d
	}
}

func WithRetryNodeMsgTimeout(d time.Duration) LinkOptFunc {
	return func(o *linkOpt) {
		o.retryNodeMsgTimeout = d
	}
}

func WithRetryNodeEventTimeout(d time.Duration) LinkOptFunc {
	return func(o *linkOpt) {
		o.retryNodeEventTimeout = d
	}
}

func WithULIDGeneratorFunc(f ULIDGeneratorFunc) LinkOptFunc {
	return func(o *linkOpt) {
		o.ulidGeneratorFunc = f
	}
}

func WithOnErrorFunc(f OnErrorFunc) LinkOptFunc {
	return func(o *linkOpt) {
		o.onErrorFunc = f
	}
}

func WithLogger(logger *log.Logger) LinkOptFunc {
	return func(o *linkOpt) {
		o.logger = logger
	}
}

func newLinkOpt(opts []LinkOptFunc) *linkOpt {
	opt := &linkOpt{
		electionInterval:      DefaultElectionInterval,
		leaveNodeTimeout:      DefaultLeaveNodeTimeout,
		retryNodeMsgTimeout:   DefaultRetryNodeMsgTimeout,
		retryNodeEventTimeout: DefaultRetryNodeEventTimeout,
		ulidGeneratorFunc:     DefaultULIDGeneratorFunc,
		onErrorFunc:           DefaultOnErrorFunc,
	}
	for _, f := range opts {
		f(opt)
	}
	return opt
}

// Link is one node's end of the peer link. Membership and link events are
// dropped until Attach.
type Link struct {
	opt        *linkOpt
	mu         *sync.RWMutex
	wg         *sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	ready      *atomic.Bool
	finding    *atomic.Bool
	node       *node
	list       *memberlist.Memberlist
	topo       Topology
	detached   map[string]bool
	findCancel context.CancelFunc
	findSeq    uint64
}

func (l *Link) ID() string {
	return l.node.ID()
}

func (l *Link) Address() string {
	return l.list.LocalNode().Address()
}

// Connect joins the memberlist of the peer at addr.
func (l *Link) Connect(addr string) error {
	if addr == l.Address() {
		return nil // skip self join
	}

	l.opt.logger.Printf("info: connect %s", addr)
	if _, err := l.list.Join([]string{addr}); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Attach starts delivering events to t. A peer that is already a member is
// reported as connected.
func (l *Link) Attach(t Topology) error {
	l.mu.Lock()
	if l.ready.Load() {
		l.mu.Unlock()
		return errors.Wrapf(ErrLinkInitialize, "already attached")
	}
	l.topo = t
	l.ready.Store(true)
	l.mu.Unlock()

	if _, err := l.peer(); err == nil {
		t.PeerLinkConnected()
	}
	return nil
}

func (l *Link) topology() Topology {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.topo
}

// SendPeerCommand sends cmd in the background. The outcome is reported
// through Topology.PeerCommandConfirmed.
func (l *Link) SendPeerCommand(cmd pairtopology.PeerCommand) error {
	peer, err := l.peer()
	if err != nil {
		return errors.WithStack(err)
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		err := l.sendMessage(peer.Name, message{Type: commandMessage, Command: cmd})
		if err != nil {
			err = errors.Wrapf(err, "send %s to %s", cmd, peer.Name)
		}
		l.topology().PeerCommandConfirmed(cmd, err)
	}()
	return nil
}

// SendPeerCommandSync returns once cmd was handed to the peer. Nothing is
// reported through Topology.PeerCommandConfirmed.
func (l *Link) SendPeerCommandSync(cmd pairtopology.PeerCommand) error {
	peer, err := l.peer()
	if err != nil {
		return errors.WithStack(err)
	}
	if err := l.sendMessage(peer.Name, message{Type: commandMessage, Command: cmd}); err != nil {
		return errors.Wrapf(err, "send %s to %s", cmd, peer.Name)
	}
	return nil
}

// DisconnectPeer tells the peer to drop the link and reports the link loss
// locally.
func (l *Link) DisconnectPeer() error {
	peer, err := l.peer()
	if err != nil {
		return errors.WithStack(err)
	}
	if err := l.disconnect(peer.Name, pairtopology.LinkLossNormal); err != nil {
		return errors.WithStack(err)
	}
	if l.detach(peer.Name) {
		l.topology().PeerLinkDisconnected(pairtopology.LinkLossNormal)
	}
	return nil
}

func (l *Link) disconnect(peerID string, reason pairtopology.LinkLossReason) error {
	return l.sendMessage(peerID, message{Type: disconnectMessage, LinkLoss: reason})
}

// detach marks peerID as disconnected until it joins again. It reports
// false when the peer was already detached.
func (l *Link) detach(peerID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.detached[peerID] {
		return false
	}
	l.detached[peerID] = true
	return true
}

// attach clears the detached mark, true when peerID was detached.
func (l *Link) attach(peerID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.detached[peerID] != true {
		return false
	}
	delete(l.detached, peerID)
	return true
}

// Reconnect takes back every member that was marked disconnected. It reports
// whether a peer came back, in which case the topology sees a new link.
func (l *Link) Reconnect() bool {
	back := false
	l.mu.Lock()
	for _, m := range l.list.Members() {
		if l.detached[m.Name] {
			delete(l.detached, m.Name)
			back = true
		}
	}
	l.mu.Unlock()

	if back {
		l.opt.logger.Printf("info: peer link restored")
		l.topology().PeerLinkConnected()
	}
	return back
}

// Connected reports whether an attached peer is a member.
func (l *Link) Connected() bool {
	_, err := l.peer()
	return err == nil
}

func (l *Link) peer() (*memberlist.Node, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, m := range l.list.Members() {
		if m.Name == l.node.ID() || l.detached[m.Name] {
			continue
		}
		return m, nil
	}
	return nil, errors.WithStack(ErrNoPeer)
}

func (l *Link) findNode(targetNodeID string) (*memberlist.Node, error) {
	for _, m := range l.list.Members() {
		if m.Name == targetNodeID {
			return m, nil
		}
	}
	return nil, errors.Wrapf(errNodeNotFound, "target node-id=%s", targetNodeID)
}

func (l *Link) send(targetNodeID string, data []byte) error {
	targetNode, err := l.findNode(targetNodeID)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := l.list.SendReliable(targetNode, data); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (l *Link) readNodeEventLoop(ctx context.Context, ch chan *nodeEventMsg) {
	defer l.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-ch:
			switch msg.evt {
			case joinEvent:
				l.attach(msg.id)
				l.topology().PeerLinkConnected()
			case leaveEvent:
				if l.detach(msg.id) {
					l.topology().PeerLinkDisconnected(pairtopology.LinkLossNormal)
				}
				// a node that left may come back under the same name
				l.attach(msg.id)
			}
		}
	}
}

// Leave announces this node leaving the memberlist.
func (l *Link) Leave() error {
	if err := l.list.Leave(l.opt.leaveNodeTimeout); err != nil {
		return errors.Wrapf(ErrLeaveTimeout, "timeout = %s: %+v", l.opt.leaveNodeTimeout, err)
	}
	return nil
}

func (l *Link) Shutdown() error {
	l.CancelFindRole()

	if err := l.list.Shutdown(); err != nil {
		return errors.WithStack(err)
	}

	l.cancel()
	l.wg.Wait()
	return nil
}

func newLink(ctx context.Context, cancel context.CancelFunc, opt *linkOpt, ready *atomic.Bool, n *node, list *memberlist.Memberlist) *Link {
	return &Link{
		opt:        opt,
		mu:         new(sync.RWMutex),
		wg:         new(sync.WaitGroup),
		ctx:        ctx,
		cancel:     cancel,
		ready:      ready,
		finding:    atomic.NewBool(false),
		node:       n,
		list:       list,
		topo:       nopTopology{},
		detached:   make(map[string]bool),
		findCancel: nopCancelFunc,
	}
}

// CreateLink starts memberlist with conf. conf.Name identifies the node.
func CreateLink(parent context.Context, conf *memberlist.Config, funcs ...LinkOptFunc) (*Link, error) {
	opt := newLinkOpt(funcs)
	if opt.logger == nil {
		opt.logger = log.New(os.Stderr, conf.Name+" ", log.Ldate|log.Ltime|log.Lshortfile)
	}

	ctx, cancel := context.WithCancel(parent)
	ready := atomic.NewBool(false)
	msgCh := make(chan []byte)
	evtCh := make(chan *nodeEventMsg)

	n := newNode(conf.Name, opt.ulidGeneratorFunc())
	conf.Delegate = newObserveNodeMessage(opt, ready, msgCh, n)
	conf.Events = newObserveNodeEvent(opt, ready, evtCh, n.ID())

	list, err := memberlist.Create(conf)
	if err != nil {
		cancel()
		return nil, errors.Wrapf(ErrLinkInitialize, "memberlist: %+v", err)
	}
	opt.logger.SetPrefix(fmt.Sprintf("%s(%s) ", n.ID(), list.LocalNode().Address()))

	l := newLink(ctx, cancel, opt, ready, n, list)
	l.wg.Add(2)
	go l.readMessageLoop(ctx, msgCh)
	go l.readNodeEventLoop(ctx, evtCh)
	return l, nil
}
