// Package connection keeps a client session to an INDI server alive.
//
// A Manager dials, waits for the session to end, and redials with
// exponential backoff until its context is cancelled:
//
//	m := connection.NewManager(func(ctx context.Context) (<-chan struct{}, error) {
//	    c, err := client.Dial(ctx, addr, client.DefaultConfig())
//	    if err != nil {
//	        return nil, err
//	    }
//	    if err := c.GetProperties("", ""); err != nil {
//	        c.Close()
//	        return nil, err
//	    }
//	    return c.Done(), nil
//	}, connection.DefaultConfig())
//	err := m.Run(ctx)
//
// Delays start at 500ms and double up to 30s. Each delay gets up to 20%
// random jitter. A session that stays up for at least StableAfter resets
// the backoff.
package connection
