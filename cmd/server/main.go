// Package main - пример HTTP-сервера для работы с приборами Keithley 27XX.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/powerman/structlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/momentics/godmm/pkg/godmm"
)

var log = structlog.New()

var acquireDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "godmm_acquire_duration_seconds",
		Help: "Duration of DMM acquisition operations",
	},
	[]string{"rsrc"},
)

func init() {
	prometheus.MustRegister(acquireDuration)
}

func main() {
	addr := flag.String("addr", ":8080", "адрес HTTP-сервера")
	resources := flag.String("resources", "resources", "каталог TOML-конфигураций модулей")
	flag.Parse()

	registry, err := godmm.LoadRegistry(*resources)
	if err != nil {
		log.Fatal(err)
	}

	pool := godmm.NewDMMPool(registry)
	defer pool.CloseAll()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/init", initHandler(pool))
	mux.HandleFunc("/api/v1/mode", modeHandler(pool))
	mux.HandleFunc("/api/v1/acquire", acquireHandler(pool))
	mux.HandleFunc("/api/v1/stop", stopHandler(pool))
	mux.HandleFunc("/api/v1/resources", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, registry.Resources())
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		log.Info("сервер запущен", "addr", *addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("сервер останавливается")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}
	log.Info("сервер успешно остановлен")
}

func getDMM(pool *godmm.DMMPool, w http.ResponseWriter, r *http.Request) (*godmm.DMM, string, bool) {
	rsrc := r.URL.Query().Get("rsrc")
	if rsrc == "" {
		http.Error(w, "Параметр 'rsrc' обязателен", http.StatusBadRequest)
		return nil, "", false
	}
	dmm, err := pool.Get(rsrc)
	if err != nil {
		http.Error(w, fmt.Sprintf("Ошибка устройства: %v", err), http.StatusInternalServerError)
		return nil, "", false
	}
	return dmm, rsrc, true
}

func initHandler(pool *godmm.DMMPool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dmm, _, ok := getDMM(pool, w, r)
		if !ok {
			return
		}
		idn, err := dmm.Initialize()
		if err != nil {
			http.Error(w, fmt.Sprintf("Ошибка инициализации: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{
			"idn":      idn,
			"modes":    dmm.AvailableModes(),
			"warnings": dmm.Warnings(),
		})
	}
}

func modeHandler(pool *godmm.DMMPool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dmm, _, ok := getDMM(pool, w, r)
		if !ok {
			return
		}
		mode := r.URL.Query().Get("mode")
		if mode == "" {
			http.Error(w, "Параметр 'mode' обязателен", http.StatusBadRequest)
			return
		}
		if err := dmm.ChangeMode(mode); err != nil {
			http.Error(w, fmt.Sprintf("Ошибка переключения режима: %v", err), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func acquireHandler(pool *godmm.DMMPool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dmm, rsrc, ok := getDMM(pool, w, r)
		if !ok {
			return
		}
		start := time.Now()
		data, err := dmm.Acquire()
		if err != nil {
			http.Error(w, fmt.Sprintf("Ошибка чтения данных: %v", err), http.StatusInternalServerError)
			return
		}
		acquireDuration.WithLabelValues(rsrc).Observe(time.Since(start).Seconds())
		writeJSON(w, data)
	}
}

func stopHandler(pool *godmm.DMMPool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dmm, _, ok := getDMM(pool, w, r)
		if !ok {
			return
		}
		if err := dmm.Stop(); err != nil {
			http.Error(w, fmt.Sprintf("Ошибка остановки: %v", err), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.PrintErr(err)
	}
}
