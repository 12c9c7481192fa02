package main

import (
	"context"
	"time"

	"github.com/hashicorp/memberlist"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	pairtopology "github.com/octu0/pair-topology"
	"github.com/octu0/pair-topology/internal/config"
	"github.com/octu0/pair-topology/peer"
	"github.com/octu0/pair-topology/preserved"
)

type storeCloser interface {
	pairtopology.PreservedRoleStore
	Close() error
}

type memoryStore struct {
	*preserved.Memory
}

func (memoryStore) Close() error {
	return nil
}

func openStore(path string, logger *zap.Logger) (storeCloser, error) {
	if path == "" {
		return memoryStore{preserved.NewMemory()}, nil
	}
	p, err := preserved.OpenPebble(path, logger)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return p, nil
}

func memberlistConfig(cfg *config.Config, logger *zap.Logger) *memberlist.Config {
	conf := memberlist.DefaultLANConfig()
	conf.Name = cfg.Node.Name
	conf.BindAddr = cfg.Node.BindAddr
	conf.BindPort = cfg.Node.BindPort
	conf.AdvertiseAddr = conf.BindAddr
	conf.AdvertisePort = conf.BindPort
	conf.EnableCompression = false
	conf.Logger = zap.NewStdLog(logger)
	return conf
}

// node is one member of the pair: its link, the executor running its goals
// and the controller on top.
type node struct {
	link  *peer.Link
	exec  *pairtopology.ProcedureExecutor
	ctrl  *pairtopology.Controller
	store storeCloser
	notes chan pairtopology.Notification
}

// startNode opens the store and the link, creates the controller and joins
// the pair.
func startNode(ctx context.Context, cfg *config.Config, logger *zap.Logger, linkOpts ...peer.LinkOptFunc) (*node, error) {
	behaviour, err := cfg.ToBehaviour()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	store, err := openStore(cfg.Store.Path, logger.Named("store"))
	if err != nil {
		return nil, errors.Wrap(err, "store open")
	}

	opts := append([]peer.LinkOptFunc{
		peer.WithLogger(zap.NewStdLog(logger.Named("link"))),
		peer.WithOnErrorFunc(func(err error) {
			logger.Error("link", zap.Error(err))
		}),
	}, linkOpts...)
	link, err := peer.CreateLink(ctx, memberlistConfig(cfg, logger.Named("memberlist")), opts...)
	if err != nil {
		store.Close()
		return nil, errors.WithStack(err)
	}

	proc := newProcedures(ctx, link, cfg.Node.Join, logger.Named("goal"))
	decision := newExternalDecision(logger.Named("decision"))
	exec := pairtopology.NewProcedureExecutor(ctx, proc.scripts(), zap.NewStdLog(logger.Named("executor")))

	notes := make(chan pairtopology.Notification, 16)
	ctrl, err := pairtopology.Create(ctx, exec,
		pairtopology.WithBehaviour(behaviour),
		pairtopology.WithPeerPaired(cfg.Node.Paired),
		pairtopology.WithLogger(zap.NewStdLog(logger.Named("controller"))),
		pairtopology.WithPeerSignaller(link),
		pairtopology.WithElectionService(proc),
		pairtopology.WithDecisionSource(decision),
		pairtopology.WithPreservedRoleStore(store),
		pairtopology.WithObserveFunc(func(c *pairtopology.Controller, n pairtopology.Notification) {
			logger.Info("notification", zap.Stringer("notification", n))
			select {
			case notes <- n:
			default:
				// nobody waits
			}
		}),
		pairtopology.WithTransitionFunc(func(from, to pairtopology.State) {
			logger.Debug("transition", zap.Stringer("from", from), zap.Stringer("to", to))
		}),
		pairtopology.WithFatalFunc(func(err error) {
			logger.Fatal("topology", zap.Error(err))
		}),
	)
	if err != nil {
		exec.Close()
		link.Shutdown()
		store.Close()
		return nil, errors.WithStack(err)
	}

	proc.ctrl = ctrl
	decision.ctrl = ctrl
	n := &node{
		link:  link,
		exec:  exec,
		ctrl:  ctrl,
		store: store,
		notes: notes,
	}
	if err := link.Attach(ctrl); err != nil {
		n.Close()
		return nil, errors.WithStack(err)
	}

	ctrl.Start()
	ctrl.Join()
	return n, nil
}

// Leave hands the role over when possible and stops the controller.
func (n *node) Leave(timeout time.Duration, logger *zap.Logger) {
	n.ctrl.Leave(false)
	if _, ok := waitNotification(n.notes, pairtopology.LeaveRequestCompleted, timeout); ok != true {
		logger.Warn("leave timeout")
	}
	n.ctrl.Stop()
	if _, ok := waitNotification(n.notes, pairtopology.StopCompleted, timeout); ok != true {
		logger.Warn("stop timeout")
	}
	if err := n.link.Leave(); err != nil {
		logger.Warn("link leave", zap.Error(err))
	}
}

func (n *node) Close() {
	n.ctrl.Shutdown()
	n.exec.Close()
	n.link.Shutdown()
	n.store.Close()
}

// waitNotification blocks until a notification of typ arrives or timeout.
func waitNotification(ch chan pairtopology.Notification, typ pairtopology.NotificationType, timeout time.Duration) (pairtopology.Notification, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case n := <-ch:
			if n.Type == typ {
				return n, true
			}
		case <-deadline:
			return pairtopology.Notification{}, false
		}
	}
}
