package peer

import (
	"bytes"
	"context"
	"sort"
	"time"

	pairtopology "github.com/octu0/pair-topology"
	"github.com/pkg/errors"
)

var (
	_ pairtopology.ElectionService = (*Link)(nil)
)

// electRole orders the members by ULID, the lowest one becomes primary.
func electRole(selfID string, members []nodeMeta) pairtopology.ElectionOutcome {
	if len(members) < 2 {
		return pairtopology.ElectionNoPeer
	}

	sorted := make([]nodeMeta, len(members))
	copy(sorted, members)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ULID < sorted[j].ULID
	})

	if sorted[0].ID == selfID {
		return pairtopology.ElectionPrimary
	}
	return pairtopology.ElectionSecondary
}

func (l *Link) listNodes() []nodeMeta {
	members := l.list.Members()
	m := make([]nodeMeta, 0, len(members))
	for _, member := range members {
		meta, err := fromJSON(bytes.NewReader(member.Meta))
		if err != nil {
			l.opt.logger.Printf("warn: fromJSON(%s):%+v", member.Meta, errors.WithStack(err))
			continue
		}
		m = append(m, meta)
	}
	return m
}

// Elect waits for the peer to show up and decides the role of this node.
// When ctx ends first the outcome is ElectionNoPeer and ctx.Err() is
// returned.
func (l *Link) Elect(ctx context.Context) (pairtopology.ElectionOutcome, error) {
	for {
		nodes := l.listNodes()
		if 2 <= len(nodes) {
			outcome := electRole(l.node.ID(), nodes)
			l.opt.logger.Printf("info: elected %s among %d nodes", outcome, len(nodes))
			return outcome, nil
		}

		select {
		case <-ctx.Done():
			return pairtopology.ElectionNoPeer, errors.WithStack(ctx.Err())
		case <-time.After(l.opt.electionInterval):
			// continue
		}
	}
}

// FindRole runs Elect in the background and reports the outcome to the
// attached topology. A running search is replaced.
func (l *Link) FindRole(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(l.ctx, timeout)

	l.mu.Lock()
	l.findCancel()
	l.findCancel = cancel
	l.findSeq += 1
	seq := l.findSeq
	l.mu.Unlock()

	l.finding.Store(true)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer cancel()

		outcome, err := l.Elect(ctx)
		if errors.Is(err, context.Canceled) {
			return
		}

		l.mu.Lock()
		current := seq == l.findSeq
		if current {
			l.finding.Store(false)
		}
		l.mu.Unlock()

		if current {
			l.topology().ElectionResult(outcome)
		}
	}()
}

func (l *Link) CancelFindRole() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.findCancel()
	l.findCancel = nopCancelFunc
	l.findSeq += 1
	l.finding.Store(false)
}

func (l *Link) IsFindRoleActive() bool {
	return l.finding.Load()
}

func nopCancelFunc() {}
