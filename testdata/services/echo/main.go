// Command echo is a test fixture for the registry's spawn path. It accepts
// the same (runtime-config-file, scope-config-file) argv the registry passes
// to every scope worker it execs, but never dials back to the registry's
// "ready" RPC — it simply idles until signalled. Tests use it to exercise
// Locate's spawn-timeout behaviour against a real child process instead of a
// fake.
package main

import (
	"os"
	"os/signal"
)

func main() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	<-ch
}
