package node

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/bitfsorg/chunkd/digest"
	"github.com/bitfsorg/chunkd/protocol"
	"github.com/bitfsorg/chunkd/provider"
)

const shutdownTimeout = 10 * time.Second

// Handler serves the provider protocol (when enabled) and the node's
// verified cache at GET /chunks/{id}, the route accelerator clients use.
func (n *Node) Handler() http.Handler {
	m := n.mux
	if m == nil {
		m = protocol.NewMux(n.log, n.obs)
	}
	srv := protocol.NewServer(m, n.log)
	srv.Router().HandleFunc("/chunks/{id}", n.serveChunk).Methods(http.MethodGet)
	return srv
}

// serveChunk answers only from the local cache so that nodes listing
// each other as accelerators never forward requests in a loop.
func (n *Node) serveChunk(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !digest.Valid(id) {
		http.Error(w, "invalid chunk id", http.StatusBadRequest)
		return
	}
	data, err := n.cache.Get(id)
	if err != nil || !digest.Verify(id, data) {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// Serve listens on the configured addresses until ctx is done. A local
// provider is announced once its listener is up.
func (n *Node) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	servers := []*http.Server{{Addr: n.cfg.ListenAddr, Handler: n.Handler(), ReadHeaderTimeout: 10 * time.Second}}
	if n.prom != nil {
		servers = append(servers, &http.Server{Addr: n.cfg.MetricsAddr, Handler: n.prom.Handler(), ReadHeaderTimeout: 10 * time.Second})
	}

	for _, s := range servers {
		ln, err := net.Listen("tcp", s.Addr)
		if err != nil {
			return err
		}
		n.log.WithField("addr", ln.Addr().String()).Info("listening")
		g.Go(func() error {
			if err := s.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if n.providerKey != nil {
		g.Go(func() error { return n.announce(ctx) })
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, s := range servers {
			errs = append(errs, s.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

func (n *Node) announce(ctx context.Context) error {
	host := n.cfg.ProviderHost
	if host == "" {
		host = "localhost"
	}
	return provider.Announce(ctx, &provider.LogAnnouncer{Log: n.log}, provider.Announcement{
		Connection: provider.ConnectionString("chunkd", host, n.cfg.ProviderPort, n.ProviderID()),
		Collateral: n.cfg.Collateral,
		CostPerKB:  n.cfg.CostPerKB,
	})
}
