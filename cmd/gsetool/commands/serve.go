package commands

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/marmos91/gse/internal/metrics"
	"github.com/marmos91/gse/internal/obslog"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose gsetool's Prometheus metrics over HTTP",
	Long: `Start an HTTP server exposing /metrics and /healthz, for use behind
a Prometheus scrape config while other gsetool commands (or a future
encapsulation pipeline sharing the same process) record against the
package-level metrics registry.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "address to listen on (overrides config metrics.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	metrics.New(nil)

	addr := serveAddr
	if addr == "" {
		addr = fmt.Sprintf(":%d", Cfg().Metrics.Port)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	obslog.Info("serving metrics", "addr", addr)
	server := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	return server.ListenAndServe()
}
