// lambdaterm - terminate Lambda Labs Cloud instances from CI.
// Request. Publish. Wait.
package main

import (
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, os.LookupEnv))
}
