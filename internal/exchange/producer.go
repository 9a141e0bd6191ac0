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

package exchange

import (
	"fmt"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
)

// Options configure a process's attachment to the exchange group.
type Options struct {
	// Index is this process's participant index in [0, NumProcesses).
	Index int

	// Dir is the directory holding region files. DefaultDir() if empty.
	Dir string

	// Logger receives attach and recovery events. logrus standard logger
	// if nil.
	Logger logrus.FieldLogger
}

func (o *Options) normalize() error {
	if o.Index < 0 || o.Index >= NumProcesses {
		return fmt.Errorf("process index %d out of range [0, %d)", o.Index, NumProcesses)
	}
	if o.Dir == "" {
		o.Dir = DefaultDir()
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return nil
}

// Producer owns a process's outbox region and publishes its most recent
// message into it. Each process runs exactly one Producer for its own
// index; an advisory file lock on the region rejects a second live producer
// for the same index up front.
type Producer struct {
	index  int
	region *Region
	flk    *flock.Flock
	log    logrus.FieldLogger
}

// NewProducer creates or reopens the region for opts.Index, repairs any
// write left in flight by a crashed predecessor, and returns a Producer
// ready to publish. A fresh region is zero-filled by the kernel and needs
// no initialization.
func NewProducer(opts Options) (*Producer, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	log := opts.Logger.WithField("process", opts.Index)

	// The flock dies with its holder, so a crashed producer never wedges
	// its successor; only a concurrently live one is rejected.
	flk := flock.New(RegionPath(opts.Dir, opts.Index))
	held, err := flk.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock region for process %d: %w", opts.Index, err)
	}
	if !held {
		return nil, fmt.Errorf("process %d: %w", opts.Index, ErrProducerRunning)
	}

	region, err := CreateRegion(opts.Dir, opts.Index)
	if err != nil {
		flk.Unlock()
		return nil, err
	}

	region.Container().ResetWriter()
	log.WithField("region", region.Path()).Info("producer attached")

	return &Producer{
		index:  opts.Index,
		region: region,
		flk:    flk,
		log:    log,
	}, nil
}

// Publish makes msg the most recent message visible to all peers.
func (p *Producer) Publish(msg Message) error {
	return p.region.Container().Publish(msg)
}

// Index returns the producer's participant index.
func (p *Producer) Index() int {
	return p.index
}

// Close releases the producer lock and unmaps the region. The region file
// stays on disk so peers keep reading the last published message and a
// restarted producer resumes from it.
func (p *Producer) Close() error {
	err := p.region.Close()
	if uerr := p.flk.Unlock(); uerr != nil && err == nil {
		err = uerr
	}
	return err
}
