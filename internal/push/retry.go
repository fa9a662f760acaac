package push

import (
	"context"
	"errors"
	"strings"

	"github.com/pushbucket/pushbucket/internal/device"
	"github.com/pushbucket/pushbucket/internal/message"
	"github.com/pushbucket/pushbucket/internal/notification"
	"github.com/pushbucket/pushbucket/internal/settings"
)

// ErrRetryNotApplicable is returned by a RetryPolicy when the failed attempt
// does not qualify for a retry.
var ErrRetryNotApplicable = errors.New("retry policy not applicable")

// RetryPolicy decides whether a failed delivery attempt gets one bounded
// retry, and how that retry is performed. Keeping the predicate, the gate and
// the retry action together means new policies can be added without touching
// the dispatch loop.
type RetryPolicy interface {
	// Applicable reports whether the policy covers this failure.
	Applicable(sendErr error, dev *device.UserDevice, s settings.DeviceSettings) bool

	// Retry performs the single retry attempt.
	Retry(ctx context.Context, a Adapter, msg *message.Message, n *notification.Notification, dev *device.UserDevice, s settings.DeviceSettings) error
}

// payloadTooLargeRetry retries an oversized iOS payload once, unencrypted,
// when the user has opted in via the UnencryptOnBigPayload setting.
type payloadTooLargeRetry struct{}

// NewPayloadTooLargeRetry returns the oversized-payload retry policy.
func NewPayloadTooLargeRetry() RetryPolicy {
	return payloadTooLargeRetry{}
}

func (payloadTooLargeRetry) Applicable(sendErr error, dev *device.UserDevice, s settings.DeviceSettings) bool {
	if sendErr == nil || dev.Platform != device.PlatformIOS {
		return false
	}
	if !s.UnencryptOnBigPayload {
		return false
	}
	return strings.Contains(sendErr.Error(), PayloadTooLargeMarker)
}

func (payloadTooLargeRetry) Retry(ctx context.Context, a Adapter, msg *message.Message, n *notification.Notification, dev *device.UserDevice, s settings.DeviceSettings) error {
	sender, ok := a.(UnencryptedSender)
	if !ok {
		return ErrRetryNotApplicable
	}
	return sender.SendUnencrypted(ctx, msg, n, dev, s)
}
