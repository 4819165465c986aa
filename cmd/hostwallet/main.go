// Command hostwallet is the untrusted-host driver: it owns no secret
// key material, builds a signing request from scanned outputs and
// recipients, and walks the device through the nine SignTx stages (and
// the separate key-image-sync flow) over the dedicated sign stream,
// exactly the way spec.md §2 frames the host's role.
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"xmrhwsigner/hoststore"
	"xmrhwsigner/transport"
	"xmrhwsigner/types"
	"xmrhwsigner/xmrcrypto"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "generate":
		generateWallet()
	case "address":
		showAddress()
	case "sign":
		signTransaction()
	case "kisync":
		syncKeyImages()
	default:
		fmt.Printf("unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("usage:")
	fmt.Println("  hostwallet generate                          - generate wallet keys")
	fmt.Println("  hostwallet address                           - show wallet address")
	fmt.Println("  hostwallet sign <request.json> <device-addr> - drive a full signing session")
	fmt.Println("  hostwallet kisync <store-dir> <device-addr>  - sync key images for scanned outputs")
}

// walletFile is the host's view of its own (public) address material
// plus, for this single-user demo CLI, the secrets the device would
// normally hold exclusively (the device binary loads its own copy from
// a separate keyfile; nothing here is read by the signing flow).
type walletFile struct {
	SpendSecret string `json:"spend_secret"`
	ViewSecret  string `json:"view_secret"`
	SpendPublic string `json:"spend_public"`
	ViewPublic  string `json:"view_public"`
}

func generateWallet() {
	spendSecret := xmrcrypto.RandomScalar()
	viewSecret := xmrcrypto.RandomScalar()
	spendPub := xmrcrypto.ScalarMultBase(spendSecret)
	viewPub := xmrcrypto.ScalarMultBase(viewSecret)

	ssb, vsb := spendSecret.Bytes(), viewSecret.Bytes()
	spb, vpb := spendPub.Bytes(), viewPub.Bytes()
	wf := walletFile{
		SpendSecret: hex.EncodeToString(ssb[:]),
		ViewSecret:  hex.EncodeToString(vsb[:]),
		SpendPublic: hex.EncodeToString(spb[:]),
		ViewPublic:  hex.EncodeToString(vpb[:]),
	}

	data, err := json.MarshalIndent(wf, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal wallet: %v", err)
	}
	if err := os.WriteFile("wallet.json", data, 0600); err != nil {
		log.Fatalf("failed to save wallet: %v", err)
	}
	if err := os.WriteFile("device_keys.json", data, 0600); err != nil {
		log.Fatalf("failed to save device key file: %v", err)
	}

	fmt.Println("wallet generated successfully!")
	fmt.Println("  host copy:   wallet.json (public fields only matter to the host)")
	fmt.Println("  device copy: device_keys.json (move this onto the signer, then delete it here)")
	fmt.Println()
	fmt.Println("address:")
	fmt.Println("  view key: ", wf.ViewPublic)
	fmt.Println("  spend key:", wf.SpendPublic)
}

func loadWallet() (*walletFile, error) {
	data, err := os.ReadFile("wallet.json")
	if err != nil {
		return nil, fmt.Errorf("wallet file not found, run 'hostwallet generate' first: %w", err)
	}
	var wf walletFile
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

func showAddress() {
	wf, err := loadWallet()
	if err != nil {
		log.Fatalf("%v", err)
	}
	fmt.Println("address:")
	fmt.Println("  view key: ", wf.ViewPublic)
	fmt.Println("  spend key:", wf.SpendPublic)
}

// signRequest is the on-disk shape of a signing request file: the same
// fields as types.TsxData, JSON-friendly via xmrcrypto's Marshal/Unmarshal
// hooks on Scalar/Point.
type signRequest struct {
	Tsx     types.TsxData          `json:"tsx"`
	Sources []types.TxSourceEntry  `json:"sources"`
}

func signTransaction() {
	if len(os.Args) < 4 {
		fmt.Println("usage: hostwallet sign <request.json> <device-multiaddr>")
		os.Exit(1)
	}
	reqPath, deviceAddr := os.Args[2], os.Args[3]

	data, err := os.ReadFile(reqPath)
	if err != nil {
		log.Fatalf("failed to read request: %v", err)
	}
	var req signRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Fatalf("failed to parse request: %v", err)
	}
	req.Tsx.NumInputs = uint32(len(req.Sources))

	link, err := transport.Listen(0)
	if err != nil {
		log.Fatalf("failed to start local transport endpoint: %v", err)
	}
	defer link.Close()

	stream, err := link.Dial(deviceAddr)
	if err != nil {
		log.Fatalf("failed to dial device: %v", err)
	}
	defer stream.Close()

	store, err := hoststore.Open("./host-store")
	if err != nil {
		log.Fatalf("failed to open host store: %v", err)
	}
	defer store.Close()

	sessionID := fmt.Sprintf("session-%x", xmrcrypto.RandomScalar().Bytes())

	call := func(kind string, payload interface{}, out interface{}) {
		data, err := json.Marshal(payload)
		if err != nil {
			log.Fatalf("marshal %s: %v", kind, err)
		}
		if err := transport.SendEnvelope(stream, transport.Envelope{Kind: kind, Payload: data}); err != nil {
			log.Fatalf("send %s: %v", kind, err)
		}
		env, err := transport.ReadEnvelope(stream)
		if err != nil {
			log.Fatalf("read response to %s: %v", kind, err)
		}
		if env.Kind == "error" {
			var respErr types.RespError
			json.Unmarshal(env.Payload, &respErr)
			log.Fatalf("device rejected %s: status=%d %s", kind, respErr.Status, respErr.Exc)
		}
		if out != nil {
			if err := json.Unmarshal(env.Payload, out); err != nil {
				log.Fatalf("unmarshal response to %s: %v", kind, err)
			}
		}
	}

	var initResp types.RespInit
	call("init", types.MsgInit{Tsx: req.Tsx}, &initResp)
	log.Printf("init ok, %d destination HMACs pinned", len(initResp.HmacDests))

	for i, src := range req.Sources {
		var resp types.RespSetInput
		call("set_input", types.MsgSetInput{Src: src}, &resp)
		if err := store.SaveInputFragment(sessionID, i, hoststore.InputFragment{
			VinBytes:      resp.VinBytes,
			HmacVin:       resp.HmacVin,
			PseudoOut:     resp.PseudoOut,
			PseudoOutHmac: resp.PseudoOutHmac,
			AlphaEnc:      resp.AlphaEnc,
		}); err != nil {
			log.Fatalf("save input fragment %d: %v", i, err)
		}
	}

	perm := make([]int, len(req.Sources))
	for i := range perm {
		perm[i] = i
	}
	call("inputs_permutation", types.MsgInputsPermutation{Perm: perm}, nil)

	for i, p := range perm {
		frag, err := store.LoadInputFragment(sessionID, p)
		if err != nil {
			log.Fatalf("load input fragment %d: %v", p, err)
		}
		call("input_vin_i", types.MsgInputVinI{
			Src:           req.Sources[p],
			VinBytes:      frag.VinBytes,
			HmacVin:       frag.HmacVin,
			PseudoOut:     frag.PseudoOut,
			PseudoOutHmac: frag.PseudoOutHmac,
		}, nil)
		_ = i
	}

	for i, dst := range req.Tsx.Outputs {
		var resp types.RespSetOutput
		call("set_output", types.MsgSetOutput{Dst: dst, HmacDest: initResp.HmacDests[i]}, &resp)
	}

	var outputsDone types.RespAllOutputsSet
	call("all_outputs_set", types.MsgAllOutputsSet{}, &outputsDone)
	log.Printf("tx_prefix_hash = %x", outputsDone.TxPrefixHash)

	var mlsagDone types.RespMlsagDone
	call("mlsag_done", types.MsgMlsagDone{}, &mlsagDone)
	log.Printf("full_message = %x", mlsagDone.FullMessage)

	signatures := make([]types.RespSignInput, len(perm))
	for i, p := range perm {
		frag, err := store.LoadInputFragment(sessionID, p)
		if err != nil {
			log.Fatalf("load input fragment %d: %v", p, err)
		}
		var resp types.RespSignInput
		call("sign_input", types.MsgSignInput{
			Src:           req.Sources[p],
			VinBytes:      frag.VinBytes,
			HmacVin:       frag.HmacVin,
			PseudoOut:     frag.PseudoOut,
			PseudoOutHmac: frag.PseudoOutHmac,
			AlphaEnc:      frag.AlphaEnc,
		}, &resp)
		signatures[i] = resp
	}

	var final types.RespFinal
	call("final", types.MsgFinal{}, &final)

	if err := store.PurgeSession(sessionID); err != nil {
		log.Printf("warning: failed to purge session fragments: %v", err)
	}

	result := struct {
		Signatures []types.RespSignInput `json:"signatures"`
		Final      types.RespFinal       `json:"final"`
	}{Signatures: signatures, Final: final}
	out, _ := json.MarshalIndent(result, "", "  ")
	outFile := fmt.Sprintf("signed_%s.json", sessionID)
	if err := os.WriteFile(outFile, out, 0644); err != nil {
		log.Fatalf("failed to save signed transaction: %v", err)
	}
	fmt.Printf("signed transaction material saved to %s\n", outFile)
}

func syncKeyImages() {
	if len(os.Args) < 4 {
		fmt.Println("usage: hostwallet kisync <store-dir> <device-multiaddr>")
		os.Exit(1)
	}
	storeDir, deviceAddr := os.Args[2], os.Args[3]

	store, err := hoststore.Open(storeDir)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	transfers, err := store.ListTransferDetails()
	if err != nil {
		log.Fatalf("failed to list transfer details: %v", err)
	}
	fmt.Printf("syncing key images for %d scanned outputs\n", len(transfers))

	link, err := transport.Listen(0)
	if err != nil {
		log.Fatalf("failed to start local transport endpoint: %v", err)
	}
	defer link.Close()

	stream, err := link.Dial(deviceAddr)
	if err != nil {
		log.Fatalf("failed to dial device: %v", err)
	}
	defer stream.Close()

	if err := transport.SendEnvelope(stream, transport.Envelope{Kind: "kisync_start", Payload: []byte("{}")}); err != nil {
		log.Fatalf("send kisync_start: %v", err)
	}
	if _, err := transport.ReadEnvelope(stream); err != nil {
		log.Fatalf("read kisync_start response: %v", err)
	}

	results := make([]types.KiSyncResult, 0, len(transfers))
	for _, td := range transfers {
		outKey, err := xmrcrypto.DecodePoint(td.OutKey[:])
		if err != nil {
			log.Fatalf("decode out_key: %v", err)
		}
		txPubKey, err := xmrcrypto.DecodePoint(td.TxPubKey[:])
		if err != nil {
			log.Fatalf("decode tx_pub_key: %v", err)
		}
		additional := make([]xmrcrypto.Point, len(td.AdditionalTxPubKeys))
		for i, a := range td.AdditionalTxPubKeys {
			p, err := xmrcrypto.DecodePoint(a[:])
			if err != nil {
				log.Fatalf("decode additional tx pub key: %v", err)
			}
			additional[i] = p
		}
		rec := types.KiSyncRecord{
			OutKey:              outKey,
			TxPubKey:            txPubKey,
			AdditionalTxPubKeys: additional,
			InternalOutputIndex: td.InternalOutputIndex,
		}
		payload, err := json.Marshal(rec)
		if err != nil {
			log.Fatalf("marshal kisync record: %v", err)
		}
		if err := transport.SendEnvelope(stream, transport.Envelope{Kind: "kisync_sync", Payload: payload}); err != nil {
			log.Fatalf("send kisync_sync: %v", err)
		}
		env, err := transport.ReadEnvelope(stream)
		if err != nil {
			log.Fatalf("read kisync_sync response: %v", err)
		}
		if env.Kind == "error" {
			var respErr types.RespError
			json.Unmarshal(env.Payload, &respErr)
			log.Fatalf("device rejected kisync_sync: %s", respErr.Exc)
		}
		var res types.KiSyncResult
		if err := json.Unmarshal(env.Payload, &res); err != nil {
			log.Fatalf("unmarshal kisync result: %v", err)
		}
		results = append(results, res)
	}

	out, _ := json.MarshalIndent(results, "", "  ")
	if err := os.WriteFile("key_images.json", out, 0644); err != nil {
		log.Fatalf("failed to save key images: %v", err)
	}
	fmt.Printf("synced %d key images, saved to key_images.json\n", len(results))
}
