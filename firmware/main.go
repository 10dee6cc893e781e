// Standalone lock firmware for boards TinyGo can flash directly. It
// speaks the same wire protocol as the host daemon: the lock service is
// advertised under the same UUIDs, and command writes run the horn
// through the same timed drive sequence, dropping whatever arrives
// while one is in flight.
//
// Flash with:
//
//	tinygo flash -target=pico-w ./firmware
package main

import (
	"errors"
	"machine"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"tinygo.org/x/bluetooth"
	"tinygo.org/x/drivers/servo"
)

// Wire identity. Both sides of the protocol must agree on these or
// centrals will never find the lock.
const (
	deviceName        = "BLE Lock"
	advertiseInterval = 800 * time.Millisecond
)

var (
	serviceUUID               = mustParseUUID("87cde903-dd98-4bda-b3ac-ee6e1718f373")
	commandCharacteristicUUID = mustParseUUID("047c2b6b-97b5-4b0c-adba-bbea3f7fb2e2")
)

// Drive geometry. The pulse window matches the duty window the host
// daemon's PWM backends drive.
const (
	maxDegree  = 180
	restDegree = 0
	dwell      = 1000 * time.Millisecond
	settle     = 1000 * time.Millisecond
	minPulseUS = 500
	maxPulseUS = 2500
)

// GP2 sits on PWM slice 1.
const servoPin = machine.GP2

var (
	errNotANumber  = errors.New("command is not a number")
	errDegreeRange = errors.New("degree out of range")
)

func main() {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})

	horn, err := servo.New(machine.PWM1, servoPin)
	if err != nil {
		panic("servo init: " + err.Error())
	}

	commands := make(chan []byte, 1)

	// busy is the admission token. A write that wins it is executed;
	// the drive loop releases it once the horn is back at rest.
	var busy atomic.Bool
	busy.Store(true)

	adapter := bluetooth.DefaultAdapter
	must("enable BLE stack", adapter.Enable())

	adv := adapter.DefaultAdvertisement()
	must("configure advertisement", adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    deviceName,
		ServiceUUIDs: []bluetooth.UUID{serviceUUID},
		Interval:     bluetooth.NewDuration(advertiseInterval),
	}))
	must("start advertisement", adv.Start())

	var commandChar bluetooth.Characteristic
	must("add lock service", adapter.AddService(&bluetooth.Service{
		UUID: serviceUUID,
		Characteristics: []bluetooth.CharacteristicConfig{{
			Handle: &commandChar,
			UUID:   commandCharacteristicUUID,
			Flags:  bluetooth.CharacteristicWritePermission | bluetooth.CharacteristicWriteWithoutResponsePermission,
			WriteEvent: func(client bluetooth.Connection, offset int, value []byte) {
				if !busy.CompareAndSwap(false, true) {
					println("lock: is busy, dropped command", string(value))
					return
				}
				// The stack reuses value's backing array after the
				// callback returns.
				buf := make([]byte, len(value))
				copy(buf, value)
				commands <- buf
			},
		}},
	}))

	println("advertising as", deviceName)

	setDegree(horn, restDegree)
	time.Sleep(settle)
	busy.Store(false)
	println("lock: ready, resting at", restDegree)

	for payload := range commands {
		degree, err := parseDegree(payload)
		if err != nil {
			println("lock: rejected", string(payload), err.Error())
			busy.Store(false)
			continue
		}

		println("lock: set degree:", degree)
		led.High()
		setDegree(horn, degree)
		time.Sleep(dwell)
		setDegree(horn, restDegree)
		time.Sleep(settle)
		led.Low()
		busy.Store(false)
	}
}

// parseDegree interprets a raw command payload as an ASCII decimal
// angle, the same way the host daemon does. A single leading plus sign
// is tolerated; anything else that is not a digit fails.
func parseDegree(payload []byte) (uint8, error) {
	s := strings.TrimPrefix(string(payload), "+")
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, errNotANumber
	}
	if n > maxDegree {
		return uint8(n), errDegreeRange
	}
	return uint8(n), nil
}

func setDegree(horn servo.Servo, degree uint8) {
	if err := horn.SetMicroseconds(degreeToMicroseconds(degree)); err != nil {
		println("lock: servo write failed:", err.Error())
	}
}

// degreeToMicroseconds maps an angle onto the horn's pulse window, 500
// us at 0 degrees up to 2500 us at 180. Division truncates, matching
// the host's duty conversion.
func degreeToMicroseconds(degree uint8) int16 {
	return int16(minPulseUS + int(degree)*(maxPulseUS-minPulseUS)/maxDegree)
}

func mustParseUUID(s string) bluetooth.UUID {
	u, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

func must(action string, err error) {
	if err != nil {
		panic("failed to " + action + ": " + err.Error())
	}
}
