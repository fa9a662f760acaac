// Package message provides storage for bucket messages.
package message

import (
	"errors"
	"time"
)

// ErrMessageNotFound is returned when a message does not exist.
var ErrMessageNotFound = errors.New("message not found")

// DeliveryType controls how a message is presented on the device.
type DeliveryType string

const (
	// DeliveryNormal is a regular alerting notification.
	DeliveryNormal DeliveryType = "NORMAL"

	// DeliverySilent is delivered without alerting the user. On iOS it maps
	// to background priority.
	DeliverySilent DeliveryType = "SILENT"
)

// Message is a message posted to a bucket. Messages are immutable once
// created; redelivery paths work on presentation copies, never on the stored
// row.
type Message struct {
	ID           string
	BucketID     string
	DeliveryType DeliveryType
	Locale       string
	Title        string
	Body         string
	CreatedAt    time.Time
}
