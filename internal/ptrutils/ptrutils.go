// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package ptrutils

// PtrTo returns a pointer to the provided value.
func PtrTo[T any](v T) *T {
	return &v
}
