package message

import (
	"errors"
	"strings"
)

// SenderType identifies which party authored a message.
type SenderType string

const (
	SenderClient   SenderType = "CLIENT"
	SenderOperator SenderType = "OPERATOR"
	SenderSystem   SenderType = "SYSTEM"
)

var ErrInvalidSenderType = errors.New("invalid sender type")

// ParseSenderType normalizes (uppercases+trims) and validates a sender type string.
func ParseSenderType(in string) (SenderType, error) {
	st := SenderType(strings.ToUpper(strings.TrimSpace(in)))
	if st.Valid() {
		return st, nil
	}
	return "", ErrInvalidSenderType
}

// Valid reports whether st is one of the allowed sender type constants.
func (st SenderType) Valid() bool {
	switch st {
	case SenderClient, SenderOperator, SenderSystem:
		return true
	default:
		return false
	}
}

// String returns the string representation of the SenderType.
func (st SenderType) String() string {
	return string(st)
}

// Kind distinguishes plain chat text from invoice-carrying messages.
type Kind string

const (
	KindText    Kind = "TEXT"
	KindInvoice Kind = "INVOICE"
)

var ErrInvalidKind = errors.New("invalid message kind")

// ParseKind normalizes and validates a message kind string.
func ParseKind(in string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(in)))
	if k.Valid() {
		return k, nil
	}
	return "", ErrInvalidKind
}

// Valid reports whether k is one of the allowed kind constants.
func (k Kind) Valid() bool {
	return k == KindText || k == KindInvoice
}

// String returns the string representation of the Kind.
func (k Kind) String() string {
	return string(k)
}

// DeliveryStatus is the local-only delivery state of a cached message.
type DeliveryStatus string

const (
	DeliverySending DeliveryStatus = "SENDING"
	DeliverySent    DeliveryStatus = "SENT"
	DeliveryFailed  DeliveryStatus = "FAILED"
)

// Valid reports whether ds is one of the allowed delivery status constants.
func (ds DeliveryStatus) Valid() bool {
	switch ds {
	case DeliverySending, DeliverySent, DeliveryFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of the DeliveryStatus.
func (ds DeliveryStatus) String() string {
	return string(ds)
}
