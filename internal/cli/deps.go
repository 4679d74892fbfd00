package cli

import (
	"net/http"
	"time"

	"keyrelay/internal/config"
	"keyrelay/internal/ledger"
	"keyrelay/internal/relay"
	"keyrelay/internal/secrets"
)

// Function variables for dependency injection in tests.
// Default values are the real implementations; tests may temporarily swap them.
var (
	configLoad          = config.Load
	configWriteDefault  = config.WriteDefault
	configReadDocument  = config.ReadDocument
	configWriteDocument = config.WriteDocument
	openSecrets         = secrets.DefaultStore
	openLedger          = ledger.Open
	buildRelay          = relay.Build
	statusClient        = &http.Client{Timeout: 5 * time.Second}
)
