/*
Package templates caches certificate template PDFs downloaded from the file
gateway.

Certificates in a batch overwhelmingly share a template, so the cache is
what turns N downloads into one. Two tiers back it: an in-memory map for the
hot path and a disk directory that survives restarts.

# Lookup Path

	Get(ctx, templateID)
	     │
	     ▼ per-template mutex (single-flight)
	┌────────────┐  fresh   ┌─────────────────────┐
	│ memory map │────────▶ │ return bytes        │
	└─────┬──────┘          └─────────────────────┘
	      │ miss/stale
	┌─────▼──────┐  fresh   ┌─────────────────────┐
	│ disk file  │────────▶ │ promote to memory,  │
	│ <id>.pdf   │          │ return bytes        │
	└─────┬──────┘          └─────────────────────┘
	      │ miss/stale
	┌─────▼──────┐          ┌─────────────────────┐
	│  gateway   │────────▶ │ write temp + rename,│
	│  download  │          │ insert memory,      │
	└────────────┘          │ return bytes        │
	                        └─────────────────────┘

Both tiers expire after the configured TTL (default 24h), checked lazily on
access and swept by a background loop. Disk writes are atomic (temp file
plus rename) and non-fatal on failure; the memory tier stays authoritative.
Disk read failures fall through to a fresh download.

# Single-Flight

Concurrent Get calls for one template serialize on a mutex allocated per
template id, so a cold key costs exactly one gateway download no matter how
many items need it at once. Different templates download in parallel.

# Invalidation

Invalidate removes a template from both tiers; the next Get re-downloads.
CleanupExpired drops entries past the TTL and is run by Start's ticker loop
at the configured sweep interval.

# Stats

Stats returns {memory_entries, memory_bytes, disk_entries, disk_bytes,
hits, misses, downloads}, served on the ops endpoint /stats/cache. The same
figures feed the certmint_template_cache_* Prometheus series.
*/
package templates
