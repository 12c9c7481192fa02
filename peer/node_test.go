package peer

import (
	"bytes"
	"strings"
	"testing"

	pairtopology "github.com/octu0/pair-topology"
)

func TestNodeMeta(t *testing.T) {
	t.Run("toJSON/fromJSON", func(tt *testing.T) {
		sb := strings.Builder{}
		if err := newNode("test1", "01ARZ3NDEKTSV4RRFFQ69G5FAV").toJSON(&sb); err != nil {
			tt.Fatalf("toJSON: %+v", err)
		}
		meta, err := fromJSON(strings.NewReader(sb.String()))
		if err != nil {
			tt.Fatalf("fromJSON: %+v", err)
		}
		if meta.ID != "test1" {
			tt.Errorf("unserialize from json")
		}
		if meta.ULID != "01ARZ3NDEKTSV4RRFFQ69G5FAV" {
			tt.Errorf("unserialize from json")
		}
	})
	t.Run("fromJSON/broken", func(tt *testing.T) {
		if _, err := fromJSON(strings.NewReader("{")); err == nil {
			tt.Errorf("broken json accepted")
		}
	})
}

func TestMessage(t *testing.T) {
	t.Run("command", func(tt *testing.T) {
		buf := bytes.NewBuffer(nil)
		if err := marshalMessage(buf, message{
			Type:    commandMessage,
			NodeID:  "node1",
			Command: pairtopology.PeerCommandStaticHandoverRequest,
		}); err != nil {
			tt.Fatalf("%+v", err)
		}
		msg, err := unmarshalMessage(buf)
		if err != nil {
			tt.Fatalf("%+v", err)
		}
		if msg.Type != commandMessage || msg.NodeID != "node1" {
			tt.Errorf("%+v", msg)
		}
		if msg.Command != pairtopology.PeerCommandStaticHandoverRequest {
			tt.Errorf("command=%s", msg.Command)
		}
	})
	t.Run("disconnect", func(tt *testing.T) {
		buf := bytes.NewBuffer(nil)
		if err := marshalMessage(buf, message{
			Type:     disconnectMessage,
			LinkLoss: pairtopology.LinkLossStaticHandover,
		}); err != nil {
			tt.Fatalf("%+v", err)
		}
		msg, err := unmarshalMessage(buf)
		if err != nil {
			tt.Fatalf("%+v", err)
		}
		if msg.Type != disconnectMessage || msg.LinkLoss != pairtopology.LinkLossStaticHandover {
			tt.Errorf("%+v", msg)
		}
	})
}
