// Command lockctl drives a lock from the command line. By default it
// acts as a BLE central: scan for the lock, connect, write the command
// characteristic, disconnect. With -server it posts the same command to
// a running lockd over HTTP instead.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/hs-CN/remote-servo-controllor/internal/blemux"
	"github.com/hs-CN/remote-servo-controllor/internal/httputil"
	"github.com/hs-CN/remote-servo-controllor/internal/lock"
)

var (
	degree  = flag.Int("degree", -1, "Angle to command (0-180)")
	raw     = flag.String("raw", "", "Raw payload to send instead of a degree")
	addr    = flag.String("addr", "", "Connect to this adapter address instead of matching by name")
	timeout = flag.Duration("timeout", 30*time.Second, "Give up on scanning or connecting after this long")
	server  = flag.String("server", "", "Send to this lockd base URL over HTTP instead of BLE")
)

// buildPayload turns the flag values into the wire payload. A raw
// payload wins over a degree so malformed inputs can be exercised
// against a live lock.
func buildPayload(degree int, raw string) ([]byte, error) {
	if raw != "" {
		return []byte(raw), nil
	}
	if degree < 0 {
		return nil, errors.New("either -degree or -raw is required")
	}
	if degree > lock.MaxDegree {
		return nil, fmt.Errorf("degree %d is out of range (0-%d)", degree, lock.MaxDegree)
	}
	return []byte(strconv.Itoa(degree)), nil
}

// sendHTTP posts the command to lockd's /command endpoint.
func sendHTTP(client httputil.HTTPClient, baseURL, payload string) error {
	form := url.Values{"command": {payload}}
	resp, err := client.Post(
		strings.TrimRight(baseURL, "/")+"/command",
		"application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		log.Printf("%s", body)
		return nil
	case http.StatusConflict:
		return errors.New("lock is busy, try again once it settles")
	default:
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body)
	}
}

// matchesTarget reports whether an advertisement belongs to the lock
// we want. With a target address only that adapter matches; otherwise
// any advertisement carrying the lock's name or service UUID does.
func matchesTarget(wantAddr, gotAddr, localName string, hasService bool) bool {
	if wantAddr != "" {
		return strings.EqualFold(gotAddr, wantAddr)
	}
	return localName == blemux.DeviceName || hasService
}

// sendBLE finds the lock by advertisement, connects with the same
// interval window the peripheral asks for, and writes the payload to
// the command characteristic.
func sendBLE(payload []byte, wantAddr string, timeout time.Duration) error {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return fmt.Errorf("enable ble stack: %w", err)
	}

	svcUUID, err := bluetooth.ParseUUID(blemux.ServiceUUID)
	if err != nil {
		return fmt.Errorf("parse service uuid: %w", err)
	}
	charUUID, err := bluetooth.ParseUUID(blemux.CommandCharacteristicUUID)
	if err != nil {
		return fmt.Errorf("parse characteristic uuid: %w", err)
	}

	if wantAddr != "" {
		log.Printf("scanning for %s...", wantAddr)
	} else {
		log.Printf("scanning for %q...", blemux.DeviceName)
	}
	found := make(chan bluetooth.ScanResult, 1)
	go func() {
		err := adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !matchesTarget(wantAddr, result.Address.String(), result.LocalName(), result.HasServiceUUID(svcUUID)) {
				return
			}
			select {
			case found <- result:
			default:
			}
			a.StopScan()
		})
		if err != nil {
			log.Printf("scan ended: %v", err)
		}
	}()

	var result bluetooth.ScanResult
	select {
	case result = <-found:
	case <-time.After(timeout):
		adapter.StopScan()
		return fmt.Errorf("no lock found within %s", timeout)
	}
	log.Printf("found %s (RSSI %d)", result.Address, result.RSSI)

	device, err := adapter.Connect(result.Address, bluetooth.ConnectionParams{
		ConnectionTimeout: bluetooth.NewDuration(timeout),
		MinInterval:       bluetooth.NewDuration(blemux.ConnIntervalMin),
		MaxInterval:       bluetooth.NewDuration(blemux.ConnIntervalMax),
	})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer device.Disconnect()

	services, err := device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil {
		return fmt.Errorf("discover services: %w", err)
	}
	if len(services) == 0 {
		return errors.New("device does not expose the lock service")
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
	if err != nil {
		return fmt.Errorf("discover characteristics: %w", err)
	}
	if len(chars) == 0 {
		return errors.New("lock service has no command characteristic")
	}

	if _, err := chars[0].WriteWithoutResponse(payload); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	log.Printf("sent command %q", payload)
	return nil
}

func main() {
	flag.Parse()

	payload, err := buildPayload(*degree, *raw)
	if err != nil {
		flag.Usage()
		log.Fatal(err)
	}

	if *server != "" {
		client := httputil.NewStandardClient(&http.Client{Timeout: *timeout})
		if err := sendHTTP(client, *server, string(payload)); err != nil {
			log.Fatalf("send over http: %v", err)
		}
		return
	}

	if err := sendBLE(payload, *addr, *timeout); err != nil {
		log.Fatalf("send over ble: %v", err)
	}
}
