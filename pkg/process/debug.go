// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package process

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/spacemonkeygo/monkit/v3/present"
	"go.uber.org/zap"
)

var (
	debugAddr = flag.String("debug.addr", "", "address to listen on for debug endpoints, disabled when empty")
)

func initDebug(logger *zap.Logger) error {
	if *debugAddr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", *debugAddr)
	if err != nil {
		return Error.Wrap(err)
	}
	go func() {
		logger.Debug("debug server listening", zap.Stringer("addr", ln.Addr()))
		err := (&http.Server{Handler: debugHandler(monkit.Default)}).Serve(ln)
		if err != nil {
			logger.Error("debug server died", zap.Error(err))
		}
	}()
	return nil
}

func debugHandler(r *monkit.Registry) http.Handler {
	var mux http.ServeMux
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/mon/", http.StripPrefix("/mon", present.HTTP(r)))
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, req *http.Request) {
		prometheus(w, r)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, "OK")
	})
	return &mux
}

func sanitize(val string) string {
	// metric names must match [a-zA-Z_:][a-zA-Z0-9_:]*
	if val == "" {
		return "_"
	}
	if '0' <= val[0] && val[0] <= '9' {
		val = "_" + val
	}
	return strings.Map(func(r rune) rune {
		switch {
		case 'a' <= r && r <= 'z':
			return r
		case 'A' <= r && r <= 'Z':
			return r
		case '0' <= r && r <= '9':
			return r
		default:
			return '_'
		}
	}, val)
}

// prometheus writes the registry in the prometheus text exposition format.
func prometheus(w http.ResponseWriter, r *monkit.Registry) {
	r.Stats(func(key monkit.SeriesKey, field string, val float64) {
		measurement := sanitize(key.Measurement)
		var metrics []string
		for tag, tagVal := range key.Tags.All() {
			metrics = append(metrics, sanitize(tag)+"=\""+sanitize(tagVal)+"\"")
		}
		metrics = append(metrics, "field=\""+sanitize(field)+"\"")

		_, _ = fmt.Fprintf(w, "# TYPE %s gauge\n%s{%s} %g\n",
			measurement, measurement, strings.Join(metrics, ","), val)
	})
}
