package moduleapi

import "errors"

// ErrStreamingUnsupported is returned by Provider.Stream implementations
// that only support Complete.
var ErrStreamingUnsupported = errors.New("moduleapi: provider does not support streaming")

// ErrNotFound is the sentinel a Loader wraps when a module id cannot be
// resolved. The session does not inspect it: whether a Load failure is
// fatal depends only on the mount point (context and orchestrator are
// fatal; providers, tools and hooks are logged and skipped).
var ErrNotFound = errors.New("moduleapi: module not found")
