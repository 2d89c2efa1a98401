// Package feeds implements the price aggregation engine: sources, the
// aggregated feed and its median stream.
package feeds

import "errors"

// ErrUnknownSource indicates an unregistered source name.
var ErrUnknownSource = errors.New("unknown source")
