package acmecore

import "github.com/hlandau/xlog"

// Log site. A host binary may redirect this to its own handler; see
// github.com/hlandau/xlog.
var log, Log = xlog.New("acmecore")
