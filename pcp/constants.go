package pcp

import "time"

// kWaitForDisconnect bounds how long StopAllEndpoints waits for an orderly
// disconnection handshake before releasing resources unconditionally
// (spec §5).
const kWaitForDisconnect = 5 * time.Second

// connectionHandshakeTimeout is not read by any code path: a requester
// waits in PENDING_AUTH without a time limit, until the peer accepts or
// rejects or the channel fails, and no request fails with StatusTimeout.
const connectionHandshakeTimeout = 30 * time.Second

// bwuDrainDelay is a best-effort pause between sending
// LAST_WRITE_TO_PRIOR_CHANNEL and swapping the channel manager entry,
// giving any write already queued on the old channel's writer task time
// to land before it stops being read from (spec §4.6 step 4's "drain").
const bwuDrainDelay = 50 * time.Millisecond
