// Command device is the headless signer process: it holds the
// spend/view secrets, runs one TsxSigner session at a time, and never
// originates a network connection — it only accepts the host's
// dedicated sign stream (transport.SignProtocolID) and answers each
// sub-message in turn, exactly as spec.md §2 frames the device's role.
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"xmrhwsigner/kisync"
	"xmrhwsigner/sigerr"
	"xmrhwsigner/signer"
	"xmrhwsigner/transport"
	"xmrhwsigner/types"
	"xmrhwsigner/xmrcrypto"

	"github.com/libp2p/go-libp2p/core/network"
)

type Config struct {
	DataDir    string
	Port       int
	KeyFile    string
	TxCounter  uint64
}

func main() {
	cfg := parseFlags()

	creds, err := loadCredentials(cfg.KeyFile)
	if err != nil {
		log.Fatalf("failed to load device credentials: %v", err)
	}

	link, err := transport.Listen(cfg.Port)
	if err != nil {
		log.Fatalf("failed to start transport: %v", err)
	}

	dev := &Device{
		creds:     *creds,
		txCounter: cfg.TxCounter,
		link:      link,
	}
	link.SetStreamHandler(dev.handleStream)

	log.Printf("device started")
	log.Printf("peer ID: %s", link.ID())
	log.Printf("listening on: %v", link.Addrs())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("shutting down...")
	link.Close()
}

// Device owns exactly one TsxSigner at a time, matching the spec's
// single-threaded, exclusive-mutable-state ownership model (§5) — no
// mutex guards s.active because nothing else ever touches it
// concurrently; one stream is served at a time.
type Device struct {
	creds     types.Credentials
	txCounter uint64
	link      *transport.Link

	active *signer.TsxSigner
	sync   *kisync.Session
}

func (d *Device) handleStream(stream network.Stream) {
	defer stream.Close()
	for {
		env, err := transport.ReadEnvelope(stream)
		if err != nil {
			log.Printf("stream closed: %v", err)
			return
		}
		resp, kind := d.dispatch(env)
		out := transport.Envelope{Kind: kind, Payload: resp}
		if err := transport.SendEnvelope(stream, out); err != nil {
			log.Printf("failed to send response: %v", err)
			return
		}
	}
}

func (d *Device) dispatch(env transport.Envelope) (json.RawMessage, string) {
	switch env.Kind {
	case "init":
		var msg types.MsgInit
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return errorPayload(err), "error"
		}
		d.active = signer.New(d.creds, signer.AutoConfirmer{}, signer.BorromeanSigner{}, d.txCounter)
		d.txCounter++
		resp, err := d.active.Init(msg.Tsx)
		return encodeResult(resp, err)

	case "set_input":
		var msg types.MsgSetInput
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return errorPayload(err), "error"
		}
		resp, err := d.active.SetInput(msg.Src)
		return encodeResult(resp, err)

	case "inputs_permutation":
		var msg types.MsgInputsPermutation
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return errorPayload(err), "error"
		}
		resp, err := d.active.InputsPermutation(msg.Perm)
		return encodeResult(resp, err)

	case "input_vin_i":
		var msg types.MsgInputVinI
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return errorPayload(err), "error"
		}
		resp, err := d.active.InputVinI(msg)
		return encodeResult(resp, err)

	case "set_output":
		var msg types.MsgSetOutput
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return errorPayload(err), "error"
		}
		resp, err := d.active.SetOutput(msg.Dst, msg.HmacDest)
		return encodeResult(resp, err)

	case "all_outputs_set":
		resp, err := d.active.AllOutputsSet()
		return encodeResult(resp, err)

	case "mlsag_done":
		resp, err := d.active.MlsagDone()
		return encodeResult(resp, err)

	case "sign_input":
		var msg types.MsgSignInput
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return errorPayload(err), "error"
		}
		resp, err := d.active.SignInput(msg)
		return encodeResult(resp, err)

	case "final":
		resp, err := d.active.Final()
		d.active = nil
		return encodeResult(resp, err)

	case "kisync_start":
		sess, err := kisync.NewSession(d.creds, kisyncAutoConfirmer{}, d.txCounter)
		if err != nil {
			return errorPayload(err), "error"
		}
		d.txCounter++
		if err := sess.Start(); err != nil {
			return errorPayload(err), "error"
		}
		d.sync = sess
		return []byte("{}"), "kisync_start"

	case "kisync_sync":
		var rec types.KiSyncRecord
		if err := json.Unmarshal(env.Payload, &rec); err != nil {
			return errorPayload(err), "error"
		}
		resp, err := d.sync.Sync(rec)
		return encodeResult(resp, err)

	default:
		return errorPayload(fmt.Errorf("unknown message kind %q", env.Kind)), "error"
	}
}

type kisyncAutoConfirmer struct{}

func (kisyncAutoConfirmer) ConfirmSync() (bool, error) { return true, nil }

func encodeResult(v interface{}, err error) (json.RawMessage, string) {
	if err != nil {
		return errorPayload(err), "error"
	}
	data, marshalErr := json.Marshal(v)
	if marshalErr != nil {
		return errorPayload(marshalErr), "error"
	}
	return data, "ok"
}

func errorPayload(err error) json.RawMessage {
	status := types.StatusFatal
	if kind, ok := sigerr.KindOf(err); ok {
		switch kind {
		case sigerr.PrefixMismatch:
			status = types.StatusPrefixMismatch
		case sigerr.UserRejection:
			status = types.StatusUserRejection
		}
	}
	data, _ := json.Marshal(types.RespError{Status: status, Exc: err.Error()})
	return data
}

func parseFlags() *Config {
	dataDir := flag.String("datadir", "./device-data", "device data directory")
	port := flag.Int("port", 9100, "sign-stream listen port")
	keyFile := flag.String("keyfile", "device_keys.json", "path to device credentials file")
	txCounter := flag.Uint64("txcounter", 0, "starting session counter for key-schedule derivation")
	flag.Parse()
	return &Config{DataDir: *dataDir, Port: *port, KeyFile: *keyFile, TxCounter: *txCounter}
}

// deviceKeyFile is the on-disk shape of a device's long-term secrets.
type deviceKeyFile struct {
	SpendSecret string `json:"spend_secret"`
	ViewSecret  string `json:"view_secret"`
}

func loadCredentials(path string) (*types.Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	var kf deviceKeyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse key file: %w", err)
	}
	spendBytes, err := hex.DecodeString(kf.SpendSecret)
	if err != nil {
		return nil, fmt.Errorf("decode spend secret: %w", err)
	}
	viewBytes, err := hex.DecodeString(kf.ViewSecret)
	if err != nil {
		return nil, fmt.Errorf("decode view secret: %w", err)
	}
	spendSecret, err := xmrcrypto.DecodeScalar(spendBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid spend secret: %w", err)
	}
	viewSecret, err := xmrcrypto.DecodeScalar(viewBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid view secret: %w", err)
	}
	spendPub := xmrcrypto.ScalarMultBase(spendSecret)
	viewPub := xmrcrypto.ScalarMultBase(viewSecret)
	return &types.Credentials{
		SpendSecret: spendSecret,
		ViewSecret:  viewSecret,
		SpendPublic: spendPub,
		ViewPublic:  viewPub,
		Primary:     types.Address{SpendPub: spendPub, ViewPub: viewPub},
	}, nil
}
