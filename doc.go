// Package one provides a Go client for the OpenNebula XML-RPC API.
//
// The client does not wrap every API method. It provides a generic
// [Client.Call] that takes the method name and its parameters, casts Go
// values into the forms the server expects, sends the session credential
// and turns the response into a navigable document, a scalar or a typed
// error.
//
// # Installation
//
//	go get github.com/privaz/one-go
//
// # Quick Start
//
//	package main
//
//	import (
//	    "context"
//	    "fmt"
//	    "log"
//
//	    one "github.com/privaz/one-go"
//	)
//
//	func main() {
//	    client, err := one.NewClient("http://frontend:2633/RPC2", "oneadmin:secret")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    host, err := client.CallNode(context.Background(), "host.info", 0)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(host.Get("NAME"), host.Template("TEMPLATE").Text("ARCH"))
//	}
//
// # Parameters
//
// Scalars are sent unchanged. Maps are cast to text with [Cast]: an
// attribute vector (KEY = "VALUE" lines) when their first value is a
// scalar, XML markup when it is itself a map. A template read from a
// response can be modified and sent back as is:
//
//	tmpl := host.Template("TEMPLATE")
//	tmpl.Set("NOTES", "Just a test")
//	_, err = client.Call(ctx, "host.update", 0, tmpl, 1)
//
// Enumerations such as [HostStatusDisabled] are sent by value.
//
// # Client Configuration
//
// The client is configured with functional options:
//
//	client, err := one.NewClient(endpoint, session,
//	    one.WithTimeout(time.Minute),
//	    one.WithLogger(logger),
//	    one.WithMetrics(prometheus.DefaultRegisterer),
//	)
//
// or from a TOML file and the ONE_* environment variables:
//
//	cfg, err := one.LoadConfig("/etc/one/client.toml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.ApplyEnv(); err != nil {
//	    log.Fatal(err)
//	}
//	client, err := one.NewClientFromConfig(cfg)
//
// # Error Handling
//
// Every failure is an *[Error]. Its kind follows the server error code:
//
//	_, err := client.Call(ctx, "host.info", 42)
//	switch {
//	case errors.Is(err, one.ErrNotFound):
//	    // no such host
//	case errors.Is(err, one.ErrAuthentication):
//	    // bad session
//	}
//
// # Testing
//
// Package fixture provides a [Transport] that records calls against a live
// endpoint and replays them offline.
//
// # Thread Safety
//
// A [Client] is safe for concurrent use. Templates are not: do not modify
// one template from several goroutines.
package one
