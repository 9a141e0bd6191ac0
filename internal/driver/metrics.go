/*
 *
 * Copyright 2025 The shmbus Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package driver

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	publicationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shmbus",
		Name:      "publications_total",
		Help:      "Messages published by this process.",
	})

	observationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shmbus",
		Name:      "observations_total",
		Help:      "Peer messages locked and read by this process.",
	}, []string{"peer"})

	emptyPollsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shmbus",
		Name:      "empty_polls_total",
		Help:      "Polls that found a peer with no published message yet.",
	})
)

// serveMetrics exposes the prometheus registry on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, log logrus.FieldLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Warn("metrics server stopped")
	}
}
