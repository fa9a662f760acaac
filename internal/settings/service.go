package settings

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pushbucket/pushbucket/internal/device"
)

// ServiceConfig holds configuration for the settings service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger
}

// Service resolves typed settings. It holds no cache: push modes and the
// passthrough target are re-read on every call so administrative changes take
// effect on the next dispatch batch.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

// NewService creates a new settings service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}
}

// DevicePair identifies a device together with its owning user.
type DevicePair struct {
	DeviceID string
	UserID   string
}

// DeviceSettings are the resolved behavioral flags and default redelivery
// intervals of one device.
type DeviceSettings struct {
	AutoAddDeleteAction           bool
	AutoAddMarkAsReadAction       bool
	AutoAddOpenNotificationAction bool
	UnencryptOnBigPayload         bool
	DefaultSnoozes                []int
	DefaultPostpones              []int
}

// DefaultDeviceSettings returns the settings applied when nothing is stored.
func DefaultDeviceSettings() DeviceSettings {
	return DeviceSettings{
		AutoAddDeleteAction:     true,
		AutoAddMarkAsReadAction: true,
	}
}

// PushMode returns the operating mode of a platform.
//
// Missing or unrecognized stored values resolve to Off; a warning is logged
// but never an error, so a misconfigured row can only switch push off.
func (s *Service) PushMode(ctx context.Context, platform device.Platform) PushMode {
	key, ok := pushModeKey(platform)
	if !ok {
		s.logger.Warn().Str("platform", string(platform)).Msg("no push mode setting for platform")
		return PushModeOff
	}

	value, err := s.repo.GetServerSetting(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrSettingNotFound) {
			s.logger.Warn().Err(err).Str("key", string(key)).Msg("failed to read push mode")
		}
		return PushModeOff
	}

	raw, ok := value.AsText()
	if !ok {
		s.logger.Warn().Str("key", string(key)).Msg("push mode setting has non-text value")
		return PushModeOff
	}

	mode, ok := ParsePushMode(raw)
	if !ok {
		s.logger.Warn().Str("key", string(key)).Str("value", raw).Msg("unrecognized push mode, defaulting to Off")
		return PushModeOff
	}

	return mode
}

// PassthroughTarget returns the configured passthrough peer server and bearer
// token. Either may be empty when unconfigured.
func (s *Service) PassthroughTarget(ctx context.Context) (server, token string) {
	server = s.StringSetting(ctx, ServerKeyPassthroughServer, "")
	token = s.StringSetting(ctx, ServerKeyPassthroughToken, "")
	return server, token
}

// StringSetting returns a text server setting, or def when unset or not text.
func (s *Service) StringSetting(ctx context.Context, key ServerKey, def string) string {
	value, err := s.repo.GetServerSetting(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrSettingNotFound) {
			s.logger.Warn().Err(err).Str("key", string(key)).Msg("failed to read server setting")
		}
		return def
	}

	if text, ok := value.AsText(); ok && text != "" {
		return text
	}
	return def
}

// ResolveDeviceSettings resolves the settings of every given device in one
// batched read. For each key a device-scoped row wins over the user-level
// row; absent or malformed rows leave the default in place.
func (s *Service) ResolveDeviceSettings(ctx context.Context, pairs []DevicePair) (map[string]DeviceSettings, error) {
	result := make(map[string]DeviceSettings, len(pairs))
	if len(pairs) == 0 {
		return result, nil
	}

	userIDs := make([]string, 0, len(pairs))
	seen := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		if !seen[p.UserID] {
			seen[p.UserID] = true
			userIDs = append(userIDs, p.UserID)
		}
	}

	keys := []UserKey{
		UserKeyAutoAddDeleteAction,
		UserKeyAutoAddMarkAsReadAction,
		UserKeyAutoAddOpenNotificationAction,
		UserKeyUnencryptOnBigPayload,
		UserKeyDefaultSnoozes,
		UserKeyDefaultPostpones,
	}

	rows, err := s.repo.GetUserSettings(ctx, userIDs, keys)
	if err != nil {
		return nil, err
	}

	for _, p := range pairs {
		result[p.DeviceID] = resolveOne(p, rows)
	}

	return result, nil
}

// resolveOne merges the rows relevant to one device. The merge rule is a pure
// function of the rows: device-scoped beats user-scoped, later writes of the
// same scope are not distinguished (the store keeps one row per scope).
func resolveOne(p DevicePair, rows []UserSettingRow) DeviceSettings {
	merged := make(map[UserKey]Value)

	// User-level first, then device-scoped rows override.
	for _, row := range rows {
		if row.UserID == p.UserID && row.DeviceID == nil {
			merged[row.Key] = row.Value
		}
	}
	for _, row := range rows {
		if row.UserID == p.UserID && row.DeviceID != nil && *row.DeviceID == p.DeviceID {
			merged[row.Key] = row.Value
		}
	}

	out := DefaultDeviceSettings()
	if v, ok := merged[UserKeyAutoAddDeleteAction]; ok {
		if b, ok := v.AsFlag(); ok {
			out.AutoAddDeleteAction = b
		}
	}
	if v, ok := merged[UserKeyAutoAddMarkAsReadAction]; ok {
		if b, ok := v.AsFlag(); ok {
			out.AutoAddMarkAsReadAction = b
		}
	}
	if v, ok := merged[UserKeyAutoAddOpenNotificationAction]; ok {
		if b, ok := v.AsFlag(); ok {
			out.AutoAddOpenNotificationAction = b
		}
	}
	if v, ok := merged[UserKeyUnencryptOnBigPayload]; ok {
		if b, ok := v.AsFlag(); ok {
			out.UnencryptOnBigPayload = b
		}
	}
	if v, ok := merged[UserKeyDefaultSnoozes]; ok {
		if minutes, ok := parseMinutesList(v); ok {
			out.DefaultSnoozes = minutes
		}
	}
	if v, ok := merged[UserKeyDefaultPostpones]; ok {
		if minutes, ok := parseMinutesList(v); ok {
			out.DefaultPostpones = minutes
		}
	}

	return out
}

// parseMinutesList parses a list of interval minutes stored either as a JSON
// array of numbers or as a comma-separated string. Malformed input yields
// unset, not an error.
func parseMinutesList(v Value) ([]int, bool) {
	text, ok := v.AsText()
	if !ok || strings.TrimSpace(text) == "" {
		return nil, false
	}
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "[") {
		var numbers []int
		if err := json.Unmarshal([]byte(text), &numbers); err != nil {
			return nil, false
		}
		return numbers, true
	}

	parts := strings.Split(text, ",")
	minutes := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, false
		}
		minutes = append(minutes, n)
	}
	return minutes, true
}

func pushModeKey(platform device.Platform) (ServerKey, bool) {
	switch platform {
	case device.PlatformIOS:
		return ServerKeyAPNPush, true
	case device.PlatformAndroid:
		return ServerKeyFirebasePush, true
	case device.PlatformWeb:
		return ServerKeyWebPush, true
	}
	return "", false
}
