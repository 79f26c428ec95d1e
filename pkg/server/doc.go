// Package server implements the serving side of the HTTP-over-QUIC binding.
//
// A Server receives session and stream notifications from a transport.Engine
// and dispatches every new stream to a Handler exactly once. The handler gets:
//
//   - IncomingRequest: publishes the request head, body chunks and trailers as
//     events, validating the pseudo-headers before anything is published;
//   - OutgoingResponse: writes the response, always headers before data.
//
// # Creating a Server
//
//	srv, err := server.New(server.Config{
//	    CertPath: "cert.pem",
//	    KeyPath:  "key.pem",
//	}, quic.NewEngineFactory(quic.DefaultConfig()), server.HandlerFunc(echo))
//	if err != nil {
//	    // missing handler or unreadable certificate material
//	    return err
//	}
//	if err := srv.Listen("0.0.0.0", 4433); err != nil {
//	    return err
//	}
//	defer srv.Shutdown()
//
// # Handlers
//
// The handler runs when the stream is created, before the request head
// arrives. It registers observers on the request and answers through the
// response:
//
//	func echo(req *server.IncomingRequest, res *server.OutgoingResponse) {
//	    req.OnHeaders(func(ev server.HeadersEvent) {
//	        if !ev.Trailers {
//	            _ = res.WriteHeaders(200, ev.Headers, ev.Fin)
//	        }
//	    })
//	    req.OnData(func(ev server.DataEvent) {
//	        _ = res.WriteData(ev.Data, ev.Fin)
//	    })
//	}
//
// A request whose head lacks :method, :scheme, :authority or :path publishes
// an error event and is answered with status 400 unless the handler already
// sent headers.
package server
