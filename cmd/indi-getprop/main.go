// Command indi-getprop prints the properties defined by an INDI server.
//
// Usage:
//
//	indi-getprop [flags] [device[.property]]
//
// Flags:
//
//	-host string      Server address (default "localhost:7624")
//	-wait duration    Stop after this long without new definitions (default 1s)
//	-timeout duration Overall time limit (default 10s)
//	-attrs            Also print each vector's state, perm and timeout
//
// Each element is printed as device.property.element=value.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/indi-protocol/indi-go/pkg/client"
	"github.com/indi-protocol/indi-go/pkg/model"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

func main() {
	host := flag.String("host", "localhost:7624", "Server address")
	wait := flag.Duration("wait", time.Second, "Stop after this long without new definitions")
	timeout := flag.Duration("timeout", 10*time.Second, "Overall time limit")
	attrs := flag.Bool("attrs", false, "Also print state, perm and timeout")
	flag.Parse()

	if flag.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "usage: indi-getprop [flags] [device[.property]]")
		os.Exit(2)
	}
	device, name := splitTarget(flag.Arg(0))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c, err := client.Dial(ctx, *host, client.DefaultConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "indi-getprop: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	activity := make(chan struct{}, 1)
	c.OnMessage(func(msg wire.Message) {
		if _, ok := msg.(*wire.DefVector); !ok {
			return
		}
		select {
		case activity <- struct{}{}:
		default:
		}
	})

	if err := c.GetProperties(device, name); err != nil {
		fmt.Fprintf(os.Stderr, "indi-getprop: %v\n", err)
		os.Exit(1)
	}

	collect(ctx, c.Done(), activity, *wait)
	dump(os.Stdout, c.State(), device, name, *attrs)
}

// splitTarget splits "device.property" at the last dot, since device names
// may contain dots but property names do not.
func splitTarget(arg string) (device, name string) {
	if arg == "" {
		return "", ""
	}
	if i := strings.LastIndex(arg, "."); i > 0 {
		return arg[:i], arg[i+1:]
	}
	return arg, ""
}

// collect returns once no definition has arrived for idle, or when ctx or
// the connection ends.
func collect(ctx context.Context, done <-chan struct{}, activity <-chan struct{}, idle time.Duration) {
	timer := time.NewTimer(idle)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-timer.C:
			return
		case <-activity:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(idle)
		}
	}
}

func dump(w io.Writer, state *client.State, device, name string, attrs bool) {
	devices := state.Devices()
	if device != "" {
		devices = []string{device}
	}
	for _, dev := range devices {
		for _, v := range state.Properties(dev) {
			if name != "" && v.Name != name {
				continue
			}
			prefix := v.Device + "." + v.Name
			if attrs {
				fmt.Fprintf(w, "%s._STATE=%s\n", prefix, v.State)
				if v.Kind != model.KindLight {
					fmt.Fprintf(w, "%s._PERM=%s\n", prefix, v.Perm)
				}
				fmt.Fprintf(w, "%s._TIMEOUT=%g\n", prefix, v.Timeout)
			}
			for _, el := range v.Elements {
				fmt.Fprintf(w, "%s.%s=%s\n", prefix, el.Name, client.ElementValue(v.Kind, el))
			}
		}
	}
}
