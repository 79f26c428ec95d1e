// Package quichttp binds HTTP request/response semantics to a multiplexed
// QUIC stream transport.
//
// The binding never touches sockets itself. It sequences header and body
// frames into request and response objects, enforces that each direction ends
// with exactly one fin, normalizes loose client input into validated request
// descriptors and dispatches every server stream to a handler exactly once.
//
// # Overview
//
// The module consists of several packages:
//
//   - pkg/protocol: request descriptors, headers and the request normalizer
//   - pkg/client: the request side (IncomingResponse, UploadWriter)
//   - pkg/server: the serving side (Server, IncomingRequest, OutgoingResponse)
//   - pkg/transport: the transport contract and an in-memory loopback
//   - pkg/transport/quic: the QUIC implementation built on quic-go
//   - pkg/observability: Prometheus metrics and OpenTelemetry tracing
//   - pkg/config: YAML server configuration
//
// # Serving
//
//	srv, err := quichttp.NewServer("cert.pem", "key.pem", quichttp.DefaultTransportConfig(),
//	    quichttp.HandlerFunc(func(req *quichttp.IncomingRequest, res *quichttp.OutgoingResponse) {
//	        req.OnHeaders(func(ev server.HeadersEvent) {
//	            if ev.Fin {
//	                _ = res.WriteData([]byte("hello"), true)
//	            }
//	        })
//	    }))
//	if err != nil {
//	    return err
//	}
//	if err := srv.Listen("0.0.0.0", 4433); err != nil {
//	    return err
//	}
//
// # Fetching
//
//	c := quichttp.NewFetcher(quichttp.DefaultTransportConfig())
//	defer c.Close()
//
//	resp, err := c.Get(ctx, quichttp.URL("https://example.com:4433/"))
//	if err != nil {
//	    return err
//	}
//	res, err := resp.Wait(ctx)
package quichttp
