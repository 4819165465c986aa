// Package transport carries SignTx traffic between the untrusted host
// process and the device process over a dedicated libp2p stream, plus
// a narrow pubsub topic for fire-and-forget stage-transition telemetry
// (spec.md §6: "wire codec is an external concern... the core is
// codec-agnostic" — this package is that external concern, adapted
// from the teacher's gossip network to a 1:1 host↔device link instead
// of many-to-many block/vote gossip).
package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/multiformats/go-multiaddr"
)

const (
	// SignProtocolID is the dedicated stream protocol carrying the
	// nine SignTx sub-messages, point-to-point.
	SignProtocolID = protocol.ID("/xmr-hwsigner/sign/1.0.0")

	// TelemetryTopic carries stage-transition/error-counter
	// notifications a monitor can subscribe to; never on the
	// signing-correctness critical path.
	TelemetryTopic = "xmr-hwsigner-telemetry"

	dialTimeout = 10 * time.Second
)

// Envelope wraps one SignTx sub-message (or its response) for wire
// transfer. Kind names the stage (e.g. "init", "set_input",
// "sign_input"); Payload is the JSON-encoded types.Msg*/Resp* value.
type Envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Link is one endpoint of the host↔device stream.
type Link struct {
	host   host.Host
	pubsub *pubsub.PubSub
	ctx    context.Context
	cancel context.CancelFunc

	telemetryTopic *pubsub.Topic
}

// Listen starts a device-side (or host-side) endpoint listening on
// listenPort, ready to accept the peer's sign stream.
func Listen(listenPort int) (*Link, error) {
	ctx, cancel := context.WithCancel(context.Background())
	h, err := libp2p.New(
		libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", listenPort)),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("transport: listen: %w", err)
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		cancel()
		h.Close()
		return nil, fmt.Errorf("transport: pubsub: %w", err)
	}
	topic, err := ps.Join(TelemetryTopic)
	if err != nil {
		cancel()
		h.Close()
		return nil, fmt.Errorf("transport: join telemetry topic: %w", err)
	}
	return &Link{host: h, pubsub: ps, ctx: ctx, cancel: cancel, telemetryTopic: topic}, nil
}

// Addrs returns this endpoint's dialable multiaddrs.
func (l *Link) Addrs() []multiaddr.Multiaddr { return l.host.Addrs() }

// ID returns this endpoint's peer ID.
func (l *Link) ID() peer.ID { return l.host.ID() }

// Close shuts down the link.
func (l *Link) Close() error {
	l.cancel()
	return l.host.Close()
}

// Dial connects to a peer's sign stream at addrStr (a full
// /ip4/.../p2p/<peerid> multiaddr).
func (l *Link) Dial(addrStr string) (network.Stream, error) {
	addr, err := multiaddr.NewMultiaddr(addrStr)
	if err != nil {
		return nil, fmt.Errorf("transport: parse addr: %w", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return nil, fmt.Errorf("transport: addr info: %w", err)
	}
	ctx, cancel := context.WithTimeout(l.ctx, dialTimeout)
	defer cancel()
	if err := l.host.Connect(ctx, *info); err != nil {
		return nil, fmt.Errorf("transport: connect: %w", err)
	}
	return l.host.NewStream(ctx, info.ID, SignProtocolID)
}

// SetStreamHandler registers handler for incoming sign streams (the
// device side calls this once at startup).
func (l *Link) SetStreamHandler(handler func(network.Stream)) {
	l.host.SetStreamHandler(SignProtocolID, handler)
}

// SendEnvelope writes one length-delimited JSON envelope to stream.
func SendEnvelope(stream network.Stream, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("transport: marshal envelope: %w", err)
	}
	w := bufio.NewWriter(stream)
	if _, err := fmt.Fprintf(w, "%d\n", len(data)); err != nil {
		return fmt.Errorf("transport: write length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("transport: write payload: %w", err)
	}
	return w.Flush()
}

// ReadEnvelope reads one length-delimited JSON envelope from stream.
func ReadEnvelope(stream network.Stream) (Envelope, error) {
	r := bufio.NewReader(stream)
	var n int
	if _, err := fmt.Fscanf(r, "%d\n", &n); err != nil {
		return Envelope{}, fmt.Errorf("transport: read length: %w", err)
	}
	buf := make([]byte, n)
	if _, err := bufio_ReadFull(r, buf); err != nil {
		return Envelope{}, fmt.Errorf("transport: read payload: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		return Envelope{}, fmt.Errorf("transport: unmarshal envelope: %w", err)
	}
	return env, nil
}

func bufio_ReadFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// PublishTelemetry fire-and-forgets a stage-transition notice, mirror
// of the teacher's BroadcastVote.
func (l *Link) PublishTelemetry(stage string, errCounter int) error {
	data, err := json.Marshal(struct {
		Stage      string `json:"stage"`
		ErrCounter int    `json:"err_counter"`
	}{Stage: stage, ErrCounter: errCounter})
	if err != nil {
		return err
	}
	return l.telemetryTopic.Publish(l.ctx, data)
}

// SubscribeTelemetry returns a subscription a monitor process can read
// stage-transition notices from.
func (l *Link) SubscribeTelemetry() (*pubsub.Subscription, error) {
	return l.telemetryTopic.Subscribe()
}
