package main

import (
	"fmt"
	"os"

	"github.com/choria-io/fisk"
)

var version = "development"

var configFile string

func main() {
	app := fisk.New("caparica-proxy", "Signs outbound API requests with the Caparica HMAC scheme")
	app.Version(version)
	app.Flag("config", "Config file to use").Short('c').StringVar(&configFile)

	serve := app.Command("serve", "Runs the signing forward proxy").Default()
	serve.Action(runServe)

	sc := &signCommand{}
	sign := app.Command("sign", "Prints the signing headers for a single request")
	sign.Arg("url", "Request URL including the query string").Required().StringVar(&sc.url)
	sign.Flag("method", "Request method").Short('X').Default("GET").StringVar(&sc.method)
	sign.Action(sc.run)

	sl := &sealCommand{}
	seal := app.Command("seal", "Encrypts a client secret for the Redis identity store")
	seal.Arg("secret", "Plaintext client secret").Required().StringVar(&sl.secret)
	seal.Action(sl.run)

	if _, err := app.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "caparica-proxy: %v\n", err)
		os.Exit(1)
	}
}
