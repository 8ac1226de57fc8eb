/*
Package jobstore persists batch job state with a bounded lifetime and
provides the queue and lock primitives the staged worker layout runs on.

Job records are point-in-time JSON documents keyed by internal id. Every
record carries a TTL: completed work expires on its own and the store never
needs manual cleanup. An external id index makes accepted batches
discoverable by the caller-supplied pdf_job_id, which is what makes
duplicate batch submissions idempotent.

# Architecture

	┌───────────────────── JOB STORE ─────────────────────┐
	│                                                      │
	│  Store interface                                     │
	│  ┌────────────────────────────────────────────┐      │
	│  │ SaveJob / GetJob / Exists / UpdateStatus   │      │
	│  │ LookupExternal                             │      │
	│  │ Enqueue / DequeueBlocking / QueueLen       │      │
	│  │ AcquireLock / ReleaseLock                  │      │
	│  │ Ping / Close                               │      │
	│  └──────────┬──────────────────┬──────────────┘      │
	│             │                  │                     │
	│  ┌──────────▼─────────┐  ┌─────▼──────────────┐      │
	│  │    RedisStore      │  │    BoltStore       │      │
	│  │  production        │  │  embedded dev/test │      │
	│  │                    │  │                    │      │
	│  │  SET EX (jobs)     │  │  jobs bucket       │      │
	│  │  SET EX (index)    │  │  index bucket      │      │
	│  │  LPUSH/BRPOP       │  │  queues bucket     │      │
	│  │  SET NX EX / DEL   │  │  locks bucket      │      │
	│  └────────────────────┘  └────────────────────┘      │
	└──────────────────────────────────────────────────────┘

# Key Layout (Redis)

	<namespace>:job:<internal_id>    job document JSON, expiring
	<namespace>:ext:<external_id>    internal id, expiring with the job
	<namespace>:queue:<name>         list, LPUSH head / BRPOP tail
	<namespace>:lock:<key>           SET NX EX marker

The namespace defaults to "certmint" so several deployments can share one
database without key collisions.

# BoltDB Backend

BoltStore serves single-binary development setups and package tests. BoltDB
has no native expiry, so every stored value is wrapped in a record carrying
its deadline; reads treat expired records as absent and a background sweeper
deletes them for real. Blocking dequeue polls under a notify channel that
Enqueue signals, so a waiting worker wakes immediately when work arrives.

# Usage

Creating a store from configuration:

	store, err := jobstore.New(cfg)
	if err != nil {
	    return err
	}
	defer store.Close()

Persisting and reading jobs:

	if err := store.SaveJob(ctx, job); err != nil {
	    return err
	}
	job, err := store.GetJob(ctx, internalID)
	if errors.Is(err, jobstore.ErrNotFound) {
	    // expired or never accepted
	}

Staged worker idle loop:

	for {
	    entry, ok, err := store.DequeueBlocking(ctx, "items", 5*time.Second)
	    if err != nil || !ok {
	        continue
	    }
	    process(entry)
	}

# Failure Semantics

RedisStore wraps every non-blocking operation in a bounded retry: up to
three attempts with exponential backoff from 100ms capped at 2s, each
attempt under a 5s deadline. ErrNotFound and caller cancellation are never
retried. DequeueBlocking runs outside the wrapper since its callers already
loop.

# Thread Safety

Both implementations are safe for concurrent use. Locks are non-reentrant:
acquiring a held lock returns false rather than blocking.
*/
package jobstore
