// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package azuretesting

import "time"

const (
	// LongWait is an upper bound for a test waiting on background work
	// that is expected to happen.
	LongWait = 10 * time.Second

	// ShortWait is how long a test waits for something that should not
	// happen.
	ShortWait = 50 * time.Millisecond
)
