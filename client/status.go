package client

import (
	"errors"
	"fmt"
	"strings"
)

// Status words returned by the Ethereum app.
const (
	SWOK                    uint16 = 0x9000
	SWConditionNotSatisfied uint16 = 0x6985
	SWIncorrectData         uint16 = 0x6A80
	SWDeviceLocked          uint16 = 0x6B0C
	SWInsNotSupported       uint16 = 0x6D00
	SWClaNotSupported       uint16 = 0x6E00
)

// StatusError is a device-reported protocol error carrying the status word
// from the reply. It is distinct from harness/setup errors: exactly one word
// (SWConditionNotSatisfied) is an expected outcome, and only for reject
// scenarios.
type StatusError struct {
	Word uint16
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("device returned status 0x%04X (%s)", e.Word, statusText(e.Word))
}

func statusText(word uint16) string {
	switch word {
	case SWOK:
		return "ok"
	case SWConditionNotSatisfied:
		return "conditions of use not satisfied"
	case SWIncorrectData:
		return "incorrect data"
	case SWDeviceLocked:
		return "device locked"
	case SWInsNotSupported:
		return "instruction not supported"
	case SWClaNotSupported:
		return "class not supported"
	default:
		return "unknown"
	}
}

// IsStatus reports whether err is a device status error with the given word.
func IsStatus(err error, word uint16) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Word == word
}

var (
	ErrDeviceNotConnected = errors.New("ledger device is not connected")
	ErrAppNotRunning      = errors.New("ethereum app is not running on the device")
)

// mapTransportError normalizes errors surfaced by the HID transport, which
// reports status words as formatted text, into typed errors.
func mapTransportError(err error) error {
	if err == nil {
		return nil
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se
	}
	msg := err.Error()
	if strings.Contains(msg, "LedgerHID device") && strings.Contains(msg, "not found") {
		return ErrDeviceNotConnected
	}
	for _, word := range []uint16{
		SWConditionNotSatisfied,
		SWIncorrectData,
		SWDeviceLocked,
		SWInsNotSupported,
		SWClaNotSupported,
	} {
		if strings.Contains(msg, fmt.Sprintf("%x", word)) {
			return &StatusError{Word: word}
		}
	}
	return err
}
