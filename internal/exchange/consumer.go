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
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// noHandle marks a Consumer with no outstanding lock.
const noHandle = -1

// Consumer attaches to one peer's region and offers lock / read / unlock of
// that peer's most recent message. It enforces the one-lock-per-process
// rule locally; the container's N+1 slot sizing depends on every consumer
// honoring it.
type Consumer struct {
	process int
	peer    int
	region  *Region
	handle  int
}

// NewConsumer attaches to peer's region on behalf of the process identified
// by opts.Index, waiting for the region to appear. The producer always
// creates its region before publishing, so waiting on file existence is the
// whole rendezvous. Retries back off to a capped interval and stop when ctx
// is done.
//
// On attach, locks left behind by this process's previous incarnation are
// dropped.
func NewConsumer(ctx context.Context, opts Options, peer int) (*Consumer, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	if peer < 0 || peer >= NumProcesses {
		return nil, fmt.Errorf("peer index %d out of range [0, %d)", peer, NumProcesses)
	}
	if peer == opts.Index {
		return nil, fmt.Errorf("process %d cannot consume its own region", peer)
	}
	log := opts.Logger.WithField("process", opts.Index).WithField("peer", peer)

	var region *Region
	open := func() error {
		r, err := OpenRegion(opts.Dir, peer)
		if err != nil {
			return err
		}
		region = r
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Millisecond
	bo.MaxInterval = 100 * time.Millisecond
	bo.MaxElapsedTime = 0
	if err := backoff.Retry(open, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("waiting for region of process %d: %w", peer, err)
	}

	region.Container().ResetReader(opts.Index)
	log.WithField("region", region.Path()).Info("consumer attached")

	return &Consumer{
		process: opts.Index,
		peer:    peer,
		region:  region,
		handle:  noHandle,
	}, nil
}

// HasMessage reports whether the peer has published at least once.
func (c *Consumer) HasMessage() bool {
	return !c.region.Container().IsEmpty()
}

// Lock pins the peer's most recent message and returns it. The returned
// message stays valid and unchanged until Unlock.
func (c *Consumer) Lock() (*Message, error) {
	if c.handle != noHandle {
		return nil, fmt.Errorf("peer %d: %w", c.peer, ErrAlreadyLocked)
	}
	h, err := c.region.Container().Lock(c.process)
	if err != nil {
		return nil, fmt.Errorf("peer %d: %w", c.peer, err)
	}
	c.handle = h
	return c.region.Container().Payload(h), nil
}

// Unlock releases the message pinned by the last Lock.
func (c *Consumer) Unlock() error {
	if c.handle == noHandle {
		return fmt.Errorf("peer %d: %w", c.peer, ErrNotLocked)
	}
	if err := c.region.Container().Unlock(c.process, c.handle); err != nil {
		return fmt.Errorf("peer %d: %w", c.peer, err)
	}
	c.handle = noHandle
	return nil
}

// Peer returns the index of the producer this consumer reads from.
func (c *Consumer) Peer() int {
	return c.peer
}

// Close unmaps the peer's region. An outstanding lock is released first so
// a cleanly exiting process does not pin a slot until its next restart.
func (c *Consumer) Close() error {
	if c.handle != noHandle {
		c.region.Container().Unlock(c.process, c.handle)
		c.handle = noHandle
	}
	return c.region.Close()
}
