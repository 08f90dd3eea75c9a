// Package client implements an INDI client.
//
// A Client dials a server, mirrors every vector the server defines in a
// State, and sends getProperties, enableBLOB and new* requests:
//
//	c, err := client.Dial(ctx, "localhost:7624", client.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	if err := c.GetProperties("", ""); err != nil {
//	    return err
//	}
//	v, err := c.WaitFor(ctx, "Telescope Simulator", "CONNECTION")
//
// The mirror follows def, set and delProperty traffic. A set for a vector
// that was never defined is ignored, and a device-level delProperty drops
// the whole device.
package client
