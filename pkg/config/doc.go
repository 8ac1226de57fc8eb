// Package config resolves runtime settings for the certmint worker.
//
// Resolution order (later wins):
//
//	┌────────────┐   ┌────────────┐   ┌──────────────────┐
//	│  Default() │ → │ YAML file  │ → │ CERTMINT_* env   │
//	│  built-ins │   │ (optional) │   │ (+ .env via      │
//	└────────────┘   └────────────┘   │   godotenv)      │
//	                                  └──────────────────┘
//
// # Usage
//
//	cfg, err := config.Load("certmint.yaml")
//	if err != nil {
//	    log.Fatal("invalid configuration", err)
//	}
//	store, err := jobstore.New(cfg)
//
// # Environment variables
//
// Every field maps to an upper-snake variable with the CERTMINT_ prefix,
// e.g. store_addr → CERTMINT_STORE_ADDR. Duration variables accept Go
// duration strings ("45s", "2h") or bare integers meaning seconds.
//
// # Validation
//
// Load rejects configurations the worker cannot run with: an unknown
// store_backend or worker_layout, a job TTL below 60 seconds, zero
// concurrency, or a missing gateway URL. Callers constructing Config by
// hand should call Validate before use.
package config
