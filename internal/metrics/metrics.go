package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Order submissions sent to the brokerage"},
		[]string{"symbol", "side"},
	)
	OrderAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "order_attempts_total", Help: "Order submission attempts by option right"},
		[]string{"right"},
	)
	OrderOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "order_outcomes_total", Help: "Terminal order outcomes"},
		[]string{"status"},
	)
	DuplicateRiskTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "order_duplicate_risk_total", Help: "Orders that needed more than one submission"},
	)
	GatewayConnectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "gateway_connect_attempts_total", Help: "Gateway connect attempts by result"},
		[]string{"result"},
	)
	GatewayUp = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "gateway_up", Help: "1 when the gateway session is connected"},
	)
	CandidatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "screen_candidates_total", Help: "Screened tickers by result"},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(OrdersTotal, OrderAttemptsTotal, OrderOutcomesTotal, DuplicateRiskTotal)
	prometheus.MustRegister(GatewayConnectAttempts, GatewayUp, CandidatesTotal)
}

// Handler exposes the default registry for mounting on an existing router.
func Handler() http.Handler { return promhttp.Handler() }

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
