package modules

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/astrasm/astra-go/internal/corelog"
	"github.com/astrasm/astra-go/internal/httpclient"
	"github.com/astrasm/astra-go/internal/jobqueue"
	"github.com/astrasm/astra-go/internal/safeurl"
	"github.com/astrasm/astra-go/internal/scripthost"
	"github.com/astrasm/astra-go/internal/streamgraph"
	"github.com/astrasm/astra-go/internal/tscore"
	"github.com/astrasm/astra-go/internal/wake"
	"github.com/astrasm/astra-go/internal/worker"
)

const logTagHTTPSource = "source.http"

func init() {
	scripthost.Default.Register(scripthost.Manifest{
		Name: "source.http",
		Type: scripthost.Streaming,
		New:  func() scripthost.Instance { return &HTTPSource{} },
	})
}

// HTTPSource pulls a live TS over HTTP and pumps it into the graph,
// re-synchronizing to 0x47 across chunk boundaries and reconnecting
// with backoff when the upstream drops.
type HTTPSource struct {
	streamgraph.Base

	url       string
	reconnect bool
	policy    httpclient.ReconnectPolicy

	client *http.Client
	ctx    context.Context
	cancel context.CancelFunc
}

// Init reads the required "url" option (http/https only), the optional
// "reconnect" flag (default true) and the optional "attempts" cap per
// connect.
func (s *HTTPSource) Init(h scripthost.Host) error {
	u, ok := h.OptionStr("url")
	if !ok || u == "" {
		return fmt.Errorf("source.http: missing required option \"url\"")
	}
	if !safeurl.IsHTTPOrHTTPS(u) {
		return fmt.Errorf("source.http: unsupported url %q", safeurl.Redact(u))
	}
	s.url = u

	s.reconnect = true
	if v, ok := h.OptionBool("reconnect"); ok {
		s.reconnect = v
	}
	s.policy = httpclient.DefaultReconnectPolicy
	if n, ok := h.OptionInt("attempts"); ok && n > 0 {
		s.policy.MaxAttempts = n
	}

	s.client = httpclient.Streaming()
	s.Base = streamgraph.NewBase("source.http:"+safeurl.Redact(u), streamgraph.KindSource)
	s.Base.Bind(s)
	return nil
}

// Node returns this instance's graph participation.
func (s *HTTPSource) Node() streamgraph.Node { return s }

// Send fans pkt out to every attached child.
func (s *HTTPSource) Send(pkt []byte) { s.SendToChildren(pkt) }

// Pump connects to the upstream on an auxiliary goroutine and delivers
// packets to the graph through jobs, waking the main loop after each
// batch.
func (s *HTTPSource) Pump(jobs *jobqueue.Queue, wk *wake.Pipe, sup *worker.Supervisor) {
	s.ctx, s.cancel = context.WithCancel(context.Background())

	sup.Start(s, func(any) any {
		s.streamLoop(jobs, wk)
		return nil
	}, func(any, any) {
		corelog.Infof(logTagHTTPSource, "%s: stopped", s.Name())
	})
}

func (s *HTTPSource) streamLoop(jobs *jobqueue.Queue, wk *wake.Pipe) {
	for {
		resp, err := httpclient.Connect(s.ctx, s.client, s.url, s.policy)
		if err != nil {
			if s.ctx.Err() == nil {
				corelog.Errorf(logTagHTTPSource, "%s: %v", s.Name(), err)
			}
			return
		}

		s.copyStream(resp.Body, jobs, wk)
		resp.Body.Close()

		if s.ctx.Err() != nil || !s.reconnect {
			return
		}
		corelog.Warningf(logTagHTTPSource, "%s: stream ended, reconnecting", s.Name())
	}
}

// copyStream reads the response body until error or cancellation,
// framing bytes into packets and handing them to the main loop in
// batches of up to readBatch.
func (s *HTTPSource) copyStream(body io.Reader, jobs *jobqueue.Queue, wk *wake.Pipe) {
	var batch [][]byte
	fr := &tscore.Framer{Emit: func(pkt []byte) {
		cp := make([]byte, tscore.PacketSize)
		copy(cp, pkt)
		batch = append(batch, cp)
	}}

	flush := func() {
		if len(batch) == 0 {
			return
		}
		packets := batch
		batch = nil
		jobs.Push(s, func() {
			for _, pkt := range packets {
				s.Send(pkt)
			}
		})
		wk.Wake()
	}

	buf := make([]byte, tscore.PacketSize*readBatch)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			fr.Write(buf[:n])
			flush()
		}
		if err != nil {
			return
		}
	}
}

// Stop aborts the current connection and any pending reconnect wait.
func (s *HTTPSource) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Destroy aborts the stream; the supervisor's onClose handles the
// rest.
func (s *HTTPSource) Destroy() {
	s.Stop()
}
