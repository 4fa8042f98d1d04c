// Command demo-cli interacts with a deployed FheDataHub hub.
//
// # Commands
//
// submit: Encrypt a reading and submit it to the open batch.
//
//	demo-cli submit --hub=http://localhost:8080 --key=<hex> --value=42
//
// close: Close the open batch (requires the owner key).
//
//	demo-cli close --hub=http://localhost:8080 --key=<hex>
//
// request: Request the average of a batch and wait for the result.
//
//	demo-cli request --hub=http://localhost:8080 --key=<hex> --batch=1 --wait
//
// status: Display the open batch or a decryption request.
//
//	demo-cli status --hub=http://localhost:8080
//	demo-cli status --hub=http://localhost:8080 --request=<id>
//
// Readings are encrypted with the BFV public key when --fhe-pubkey is
// given; otherwise the unencrypted demo encoding is used, matching a
// hub started without --fhe-pubkey.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/marthaediazx/FheDataHub/cmd/common"
	"github.com/marthaediazx/FheDataHub/crypto"
	"github.com/marthaediazx/FheDataHub/fhe"
	"github.com/marthaediazx/FheDataHub/protocol"
	"github.com/marthaediazx/FheDataHub/services"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "submit":
		err = runSubmit(os.Args[2:])
	case "close":
		err = runClose(os.Args[2:])
	case "request":
		err = runRequest(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`demo-cli - interact with a FheDataHub hub

Usage:
  demo-cli <command> [options]

Commands:
  submit    Encrypt and submit a reading
  close     Close the open batch
  request   Request a batch average
  status    Display batch or request state

Run 'demo-cli <command> --help' for command-specific options.`)
}

func loadKey(hexKey string) (crypto.PrivateKey, error) {
	if hexKey == "" {
		return nil, fmt.Errorf("--key is required")
	}
	return common.LoadOrGenerateSigningKey(hexKey)
}

func postSigned[T any](hubURL, path string, key crypto.PrivateKey, obj *T) ([]byte, error) {
	signed, err := protocol.NewSigned(key, obj)
	if err != nil {
		return nil, err
	}
	body, err := protocol.SerializeMessage(signed)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(hubURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hub returned %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}
	return respBody, nil
}

func getJSON(url string, out any) error {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hub returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return json.Unmarshal(body, out)
}

func runSubmit(args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	hubURL := fs.String("hub", "http://localhost:8080", "Hub base URL")
	keyHex := fs.String("key", "", "Provider Ed25519 private key (hex)")
	value := fs.Uint64("value", 0, "Reading to submit")
	fhePubKeyPath := fs.String("fhe-pubkey", "", "BFV public key file (demo encoding if empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	key, err := loadKey(*keyHex)
	if err != nil {
		return err
	}

	var encryptor fhe.Encryptor = fhe.NewPlainScheme()
	if *fhePubKeyPath != "" {
		pubKey, err := common.LoadKeyFile(*fhePubKeyPath)
		if err != nil {
			return err
		}
		encryptor, err = fhe.NewBFVScheme(pubKey)
		if err != nil {
			return fmt.Errorf("building BFV scheme: %w", err)
		}
	}

	ct, err := encryptor.Encrypt(*value)
	if err != nil {
		return fmt.Errorf("encrypting reading: %w", err)
	}

	respBody, err := postSigned(*hubURL, "/api/v1/submit", key, &services.SubmitRequest{Ciphertext: ct.Data})
	if err != nil {
		return err
	}

	var resp services.SubmitResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return err
	}
	fmt.Printf("Submitted to batch %d at index %d\n", resp.BatchID, resp.Index)
	return nil
}

func runClose(args []string) error {
	fs := flag.NewFlagSet("close", flag.ExitOnError)
	hubURL := fs.String("hub", "http://localhost:8080", "Hub base URL")
	keyHex := fs.String("key", "", "Owner Ed25519 private key (hex)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	key, err := loadKey(*keyHex)
	if err != nil {
		return err
	}

	var current protocol.Batch
	if err := getJSON(*hubURL+"/api/v1/batch/current", &current); err != nil {
		return err
	}

	respBody, err := postSigned(*hubURL, "/api/v1/close-batch", key, &services.CloseBatchRequest{BatchID: current.ID})
	if err != nil {
		return err
	}

	var resp services.CloseBatchResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return err
	}
	fmt.Printf("Closed batch %d, batch %d is now open\n", resp.ClosedID, resp.OpenedID)
	return nil
}

func runRequest(args []string) error {
	fs := flag.NewFlagSet("request", flag.ExitOnError)
	hubURL := fs.String("hub", "http://localhost:8080", "Hub base URL")
	keyHex := fs.String("key", "", "Requester Ed25519 private key (hex)")
	batchID := fs.Uint64("batch", 0, "Batch id (open batch if 0)")
	wait := fs.Bool("wait", false, "Poll until the result arrives")
	timeout := fs.Duration("timeout", time.Minute, "Polling timeout with --wait")
	if err := fs.Parse(args); err != nil {
		return err
	}

	key, err := loadKey(*keyHex)
	if err != nil {
		return err
	}

	id := *batchID
	if id == 0 {
		var current protocol.Batch
		if err := getJSON(*hubURL+"/api/v1/batch/current", &current); err != nil {
			return err
		}
		id = current.ID
	}

	respBody, err := postSigned(*hubURL, "/api/v1/request-decryption", key, &services.DecryptionRequest{BatchID: id})
	if err != nil {
		return err
	}

	var resp services.DecryptionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return err
	}
	fmt.Printf("Decryption requested for batch %d: %s\n", id, resp.RequestID)

	if !*wait {
		return nil
	}

	deadline := time.Now().Add(*timeout)
	for time.Now().Before(deadline) {
		time.Sleep(500 * time.Millisecond)

		var status services.RequestStatusResponse
		if err := getJSON(*hubURL+"/api/v1/request/"+string(resp.RequestID), &status); err != nil {
			return err
		}
		if status.Processed {
			fmt.Printf("Batch %d average: %d\n", status.BatchID, status.Average)
			return nil
		}
	}

	return fmt.Errorf("timed out waiting for request %s", resp.RequestID)
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	hubURL := fs.String("hub", "http://localhost:8080", "Hub base URL")
	batchID := fs.Uint64("batch", 0, "Show a specific batch")
	requestID := fs.String("request", "", "Show a decryption request")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *requestID != "" {
		var status services.RequestStatusResponse
		if err := getJSON(*hubURL+"/api/v1/request/"+*requestID, &status); err != nil {
			return err
		}
		if status.Processed {
			fmt.Printf("Request %s: processed, batch %d average %d\n",
				status.RequestID, status.BatchID, status.Average)
		} else {
			fmt.Printf("Request %s: pending on batch %d\n", status.RequestID, status.BatchID)
		}
		return nil
	}

	url := *hubURL + "/api/v1/batch/current"
	if *batchID != 0 {
		url = fmt.Sprintf("%s/api/v1/batch/%d", *hubURL, *batchID)
	}

	var batch protocol.Batch
	if err := getJSON(url, &batch); err != nil {
		return err
	}

	state := "open"
	if batch.Closed {
		state = "closed"
	}
	fmt.Printf("Batch %d: %s, %d submissions\n", batch.ID, state, batch.DataCount)
	return nil
}
