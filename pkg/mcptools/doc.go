// Package mcptools exposes an INDI client as Model Context Protocol tools.
//
// The tools read the client's property mirror and send new* requests, so an
// assistant can inspect and drive devices on any INDI server:
//
//	c, _ := client.Dial(ctx, "localhost:7624", client.DefaultConfig())
//	c.GetProperties("", "")
//	s := mcptools.NewServer(c, "1.0.0")
//	server.ServeStdio(s)
package mcptools
