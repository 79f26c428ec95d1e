// Package client provides the request side of the HTTP-over-QUIC binding.
//
// A Client turns loose request input into a validated descriptor, hands it to
// a transport.Fetcher and returns an IncomingResponse that publishes the
// response as events:
//
//   - headers: the status line, then trailers;
//   - data: body chunks in arrival order;
//   - response: the aggregated response once the stream finished;
//   - error: transport failures, timeouts and malformed responses.
//
// After the first terminal event every observer is detached.
//
// # Sending a Request
//
//	c := client.New(fetcher, client.WithLogger(logging.Default()))
//
//	resp, err := c.Get(ctx, protocol.URL("https://example.com:4433/"))
//	if err != nil {
//	    // invalid input or the request could not be created
//	    return err
//	}
//	res, err := resp.Wait(ctx)
//
// The verbs start the request before returning. Observers that must see every
// frame are passed along with the call:
//
//	resp, err := c.Get(ctx, protocol.URL("https://example.com:4433/"),
//	    client.ObserveHeaders(func(ev client.HeadersEvent) { /* ... */ }),
//	    client.ObserveData(func(ev client.DataEvent) { /* ... */ }),
//	)
//
// PrepareAs returns the same request unstarted.
//
// # Chunked Uploads
//
// A request created with IsChunkedUpload streams its body through Write. The
// last chunk carries fin; writing after it fails with a stream state error:
//
//	resp, err := c.Prepare(ctx, protocol.RequestConfig{
//	    URL:             "https://example.com:4433/upload",
//	    Method:          "POST",
//	    IsChunkedUpload: true,
//	})
//	resp.OnData(func(ev client.DataEvent) { /* ... */ })
//	_ = resp.Start()
//	_ = resp.Write([]byte("part 1"), false)
//	_ = resp.Write(nil, true)
package client
