package peer

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// nodeMeta is gossiped through memberlist node metadata. The election orders
// nodes by ULID.
type nodeMeta struct {
	ID   string `json:"id"`
	ULID string `json:"ulid"`
}

func toJSON(out io.Writer, meta nodeMeta) error {
	if err := json.NewEncoder(out).Encode(meta); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func fromJSON(in io.Reader) (nodeMeta, error) {
	meta := nodeMeta{}
	if err := json.NewDecoder(in).Decode(&meta); err != nil {
		return nodeMeta{}, errors.WithStack(err)
	}
	return meta, nil
}

type node struct {
	id   string
	ulid string
}

func (n *node) ID() string {
	return n.id
}

func (n *node) ULID() string {
	return n.ulid
}

func (n *node) meta() nodeMeta {
	return nodeMeta{
		ID:   n.id,
		ULID: n.ulid,
	}
}

func (n *node) toJSON(out io.Writer) error {
	return toJSON(out, n.meta())
}

func newNode(id, ulid string) *node {
	return &node{
		id:   id,
		ulid: ulid,
	}
}
