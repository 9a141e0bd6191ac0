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

// Package driver runs one participant of the exchange group: it publishes a
// monotonically increasing value into its own region and polls every peer's
// latest message in a loop.
package driver

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fastrand"

	"github.com/shmbus/shmbus/internal/exchange"
)

// Config holds the runtime knobs of one driver process.
type Config struct {
	// Index is this process's participant index in [0, NumProcesses).
	Index int

	// Dir is the region directory. exchange.DefaultDir() if empty.
	Dir string

	// MinInterval and MaxInterval bound the randomized sleep between
	// rounds. Defaults: 1µs and 1s.
	MinInterval time.Duration
	MaxInterval time.Duration

	// MetricsAddr, when set, exposes prometheus metrics on this address.
	MetricsAddr string

	// Logger for the loop's output. logrus standard logger if nil.
	Logger *logrus.Logger
}

// Run attaches to the group and drives the publish/observe loop until ctx
// is done. The producer is created before any consumer: every process
// publishes its region first, then waits on the others, so the group cannot
// deadlock on rendezvous.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = time.Microsecond
	}
	if cfg.MaxInterval <= cfg.MinInterval {
		cfg.MaxInterval = time.Second
	}
	log := cfg.Logger.WithField("process", cfg.Index)

	opts := exchange.Options{Index: cfg.Index, Dir: cfg.Dir, Logger: cfg.Logger}

	producer, err := exchange.NewProducer(opts)
	if err != nil {
		return err
	}
	defer producer.Close()

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, log)
	}

	log.Info("waiting for peers")
	var consumers []*exchange.Consumer
	defer func() {
		for _, c := range consumers {
			c.Close()
		}
	}()
	for peer := 0; peer < exchange.NumProcesses; peer++ {
		if peer == cfg.Index {
			continue
		}
		c, err := exchange.NewConsumer(ctx, opts, peer)
		if err != nil {
			return err
		}
		consumers = append(consumers, c)
	}
	log.Info("ready")

	var value uint64
	for {
		for _, c := range consumers {
			peer := strconv.Itoa(c.Peer())
			if !c.HasMessage() {
				log.WithField("peer", c.Peer()).Debug("peer has not published yet")
				emptyPollsTotal.Inc()
				continue
			}
			msg, err := c.Lock()
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{"peer": c.Peer(), "val": msg.Val}).Info("observed")
			observationsTotal.WithLabelValues(peer).Inc()
			if err := c.Unlock(); err != nil {
				return err
			}
		}

		value++
		if err := producer.Publish(exchange.Message{Val: value}); err != nil {
			return err
		}
		log.WithField("val", value).Debug("published")
		publicationsTotal.Inc()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(jitter(cfg.MinInterval, cfg.MaxInterval)):
		}
	}
}

// jitter picks a uniformly random duration in [min, max) with microsecond
// granularity.
func jitter(min, max time.Duration) time.Duration {
	span := uint32((max - min) / time.Microsecond)
	if span == 0 {
		return min
	}
	return min + time.Duration(fastrand.Uint32n(span))*time.Microsecond
}
