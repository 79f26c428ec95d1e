// Command quic-fetch sends one request over QUIC and writes the response body
// to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	quichttp "github.com/ajitpratap0/quic-http-go"
	"github.com/ajitpratap0/quic-http-go/pkg/client"
	"github.com/ajitpratap0/quic-http-go/pkg/logging"
	"github.com/ajitpratap0/quic-http-go/pkg/protocol"
	"github.com/ajitpratap0/quic-http-go/pkg/transport/quic"
)

type headerFlags map[string]string

func (h headerFlags) String() string { return fmt.Sprint(map[string]string(h)) }

func (h headerFlags) Set(v string) error {
	name, value, ok := strings.Cut(v, ":")
	if !ok {
		return fmt.Errorf("header %q is not name:value", v)
	}
	h[strings.TrimSpace(name)] = strings.TrimSpace(value)
	return nil
}

func main() {
	headers := headerFlags{}
	var (
		method   = flag.String("X", "GET", "request method")
		data     = flag.String("d", "", "request body")
		upload   = flag.Bool("upload", false, "stream stdin as a chunked request body")
		stream   = flag.Bool("stream", false, "write body chunks as they arrive")
		include  = flag.Bool("i", false, "print the response head to stderr")
		insecure = flag.Bool("k", false, "skip certificate verification")
		timeout  = flag.Duration("timeout", protocol.DefaultTimeout, "request timeout")
		retries  = flag.Int("retries", 0, "retries on 5xx responses")
		logLevel = flag.String("log-level", "warn", "debug, info, warn, error or fatal")
	)
	flag.Var(headers, "H", "request header name:value (repeatable)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: quic-fetch [flags] URL")
		os.Exit(2)
	}

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quic-fetch: %v\n", err)
		os.Exit(2)
	}
	quichttp.SetMinLogLevel(level)
	logger := logging.NewDevelopment()

	in := protocol.RequestConfig{
		URL:              flag.Arg(0),
		Method:           *method,
		IsChunkedUpload:  *upload,
		IsStreamResponse: *stream,
		MaxRetriesOn5xx:  *retries,
		Timeout:          *timeout,
		Headers:          headers,
	}
	if *data != "" {
		in.Payload = []byte(*data)
	}

	cfg := quic.DefaultConfig()
	cfg.InsecureSkipVerify = *insecure
	cfg.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := quichttp.NewFetcher(cfg, client.WithLogger(logger))
	status, err := fetch(ctx, c, in, *include)
	_ = c.Close()
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "quic-fetch: %v\n", err)
		os.Exit(1)
	}
	if status >= 400 {
		os.Exit(22)
	}
}

func fetch(ctx context.Context, c *client.Client, in protocol.RequestConfig, include bool) (int, error) {
	resp, err := c.Prepare(ctx, in)
	if err != nil {
		return 0, err
	}

	resp.OnHeaders(func(ev client.HeadersEvent) {
		if include {
			printHead(ev)
		}
	})
	if in.IsStreamResponse {
		resp.OnData(func(ev client.DataEvent) {
			_, _ = os.Stdout.Write(ev.Data)
		})
	}

	if err := resp.Start(); err != nil {
		return 0, err
	}

	if up := resp.Upload(); up != nil {
		w := up.Stream()
		if _, err := io.Copy(w, os.Stdin); err != nil {
			return 0, err
		}
		if err := w.Close(); err != nil {
			return 0, err
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, in.Timeout+5*time.Second)
	defer cancel()
	res, err := resp.Wait(waitCtx)
	if err != nil {
		return 0, err
	}
	if !in.IsStreamResponse {
		_, _ = os.Stdout.Write(res.Body)
	}
	return res.Status, nil
}

func printHead(ev client.HeadersEvent) {
	if !ev.Trailers {
		fmt.Fprintf(os.Stderr, "< :status %d\n", ev.Status)
	}
	names := make([]string, 0, len(ev.Headers))
	for name := range ev.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "< %s: %s\n", name, ev.Headers[name])
	}
}
