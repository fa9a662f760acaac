// Package bucket provides bucket membership lookups for dispatch
// authorization.
package bucket

import "context"

// PermissionService resolves which users are authorized to read a bucket's
// messages and thus receive notifications for it.
type PermissionService interface {
	AuthorizedUserIDs(ctx context.Context, bucketID string) ([]string, error)
}
