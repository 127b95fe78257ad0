// Package xcontext is a set of shorter names for the very stuttery context
// library, so call sites read "xcontext.T" instead of "context.Context"
// everywhere a handle is threaded through.
package xcontext

import "context"

type (
	// T is context.Context.
	T = context.Context
	// F is context.CancelFunc.
	F = context.CancelFunc
)

var (
	// Bg is context.Background.
	Bg = context.Background
	// Cancel is context.WithCancel.
	Cancel = context.WithCancel
	// Timeout is context.WithTimeout.
	Timeout = context.WithTimeout

	// Canceled is context.Canceled.
	Canceled = context.Canceled
)
