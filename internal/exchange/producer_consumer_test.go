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

package exchange_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/shmbus/shmbus/internal/exchange"
)

func quietOpts(index int, dir string) exchange.Options {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return exchange.Options{Index: index, Dir: dir, Logger: log}
}

func TestProducerRejectsBadIndex(t *testing.T) {
	for _, index := range []int{-1, exchange.NumProcesses} {
		_, err := exchange.NewProducer(quietOpts(index, t.TempDir()))
		require.Error(t, err)
	}
}

func TestProducerSecondInstanceRejected(t *testing.T) {
	dir := t.TempDir()

	first, err := exchange.NewProducer(quietOpts(0, dir))
	require.NoError(t, err)
	defer first.Close()

	_, err = exchange.NewProducer(quietOpts(0, dir))
	require.ErrorIs(t, err, exchange.ErrProducerRunning)
}

func TestProducerRestartAfterClose(t *testing.T) {
	dir := t.TempDir()

	p, err := exchange.NewProducer(quietOpts(0, dir))
	require.NoError(t, err)
	require.NoError(t, p.Publish(exchange.Message{Val: 5}))
	require.NoError(t, p.Close())

	// The region file survives the producer; its successor resumes from
	// the published state and its consumers still see the last message.
	p, err = exchange.NewProducer(quietOpts(0, dir))
	require.NoError(t, err)
	defer p.Close()

	c, err := exchange.NewConsumer(context.Background(), quietOpts(1, dir), 0)
	require.NoError(t, err)
	defer c.Close()

	require.True(t, c.HasMessage())
	msg, err := c.Lock()
	require.NoError(t, err)
	require.Equal(t, uint64(5), msg.Val)
	require.NoError(t, c.Unlock())
}

func TestConsumerRejectsBadPeer(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	_, err := exchange.NewConsumer(ctx, quietOpts(0, dir), 0)
	require.Error(t, err)

	_, err = exchange.NewConsumer(ctx, quietOpts(0, dir), exchange.NumProcesses)
	require.Error(t, err)

	_, err = exchange.NewConsumer(ctx, quietOpts(0, dir), -1)
	require.Error(t, err)
}

func TestConsumerGivesUpWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// No producer ever creates region 1, so attachment must fail once the
	// context expires instead of retrying forever.
	_, err := exchange.NewConsumer(ctx, quietOpts(0, t.TempDir()), 1)
	require.Error(t, err)
}

func TestConsumerWaitsForProducer(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		c   *exchange.Consumer
		err error
	}
	done := make(chan result, 1)
	go func() {
		c, err := exchange.NewConsumer(ctx, quietOpts(1, dir), 0)
		done <- result{c, err}
	}()

	// Let the consumer spin on the missing region before the producer
	// shows up.
	time.Sleep(100 * time.Millisecond)
	p, err := exchange.NewProducer(quietOpts(0, dir))
	require.NoError(t, err)
	defer p.Close()

	r := <-done
	require.NoError(t, r.err)
	defer r.c.Close()

	require.False(t, r.c.HasMessage())
	require.NoError(t, p.Publish(exchange.Message{Val: 1}))
	require.True(t, r.c.HasMessage())
}

func TestConsumerRoundTrip(t *testing.T) {
	dir := t.TempDir()

	p, err := exchange.NewProducer(quietOpts(0, dir))
	require.NoError(t, err)
	defer p.Close()

	c, err := exchange.NewConsumer(context.Background(), quietOpts(1, dir), 0)
	require.NoError(t, err)
	defer c.Close()

	for val := uint64(1); val <= 100; val++ {
		require.NoError(t, p.Publish(exchange.Message{Val: val}))
		msg, err := c.Lock()
		require.NoError(t, err)
		require.Equal(t, val, msg.Val)
		require.NoError(t, c.Unlock())
	}
}

func TestConsumerLockDiscipline(t *testing.T) {
	dir := t.TempDir()

	p, err := exchange.NewProducer(quietOpts(0, dir))
	require.NoError(t, err)
	defer p.Close()

	c, err := exchange.NewConsumer(context.Background(), quietOpts(1, dir), 0)
	require.NoError(t, err)
	defer c.Close()

	require.ErrorIs(t, c.Unlock(), exchange.ErrNotLocked)

	_, err = c.Lock()
	require.ErrorIs(t, err, exchange.ErrLockOnEmpty)

	require.NoError(t, p.Publish(exchange.Message{Val: 1}))
	_, err = c.Lock()
	require.NoError(t, err)
	_, err = c.Lock()
	require.ErrorIs(t, err, exchange.ErrAlreadyLocked)

	require.NoError(t, c.Unlock())
	require.ErrorIs(t, c.Unlock(), exchange.ErrNotLocked)
}

func TestConsumerReattachDropsStaleLock(t *testing.T) {
	dir := t.TempDir()

	p, err := exchange.NewProducer(quietOpts(0, dir))
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Publish(exchange.Message{Val: 1}))

	// Process 1 locks and then "crashes" without unlocking: the reader bit
	// stays behind in shared memory.
	crashed, err := exchange.OpenRegion(dir, 0)
	require.NoError(t, err)
	_, err = crashed.Container().Lock(1)
	require.NoError(t, err)
	require.NoError(t, crashed.Close())

	// Its next incarnation must shed the stale bit on attach and be able
	// to lock again.
	c, err := exchange.NewConsumer(context.Background(), quietOpts(1, dir), 0)
	require.NoError(t, err)
	defer c.Close()

	msg, err := c.Lock()
	require.NoError(t, err)
	require.Equal(t, uint64(1), msg.Val)
	require.NoError(t, c.Unlock())
}

func TestConsumerCloseReleasesLock(t *testing.T) {
	dir := t.TempDir()

	p, err := exchange.NewProducer(quietOpts(0, dir))
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Publish(exchange.Message{Val: 1}))

	c, err := exchange.NewConsumer(context.Background(), quietOpts(1, dir), 0)
	require.NoError(t, err)
	_, err = c.Lock()
	require.NoError(t, err)
	require.NoError(t, c.Close())

	view, err := exchange.OpenRegion(dir, 0)
	require.NoError(t, err)
	defer view.Close()

	st := view.Container().Snapshot()
	for i := 0; i < exchange.SlotCount; i++ {
		require.Zero(t, st.Readers(i), "slot %d still carries a reader bit", i)
	}
}

func TestProducerRestartKeepsSingleWriterBit(t *testing.T) {
	dir := t.TempDir()

	p, err := exchange.NewProducer(quietOpts(0, dir))
	require.NoError(t, err)
	for val := uint64(1); val <= 5; val++ {
		require.NoError(t, p.Publish(exchange.Message{Val: val}))
	}
	require.NoError(t, p.Close())

	p, err = exchange.NewProducer(quietOpts(0, dir))
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Publish(exchange.Message{Val: 6}))

	view, err := exchange.OpenRegion(dir, 0)
	require.NoError(t, err)
	defer view.Close()

	st := view.Container().Snapshot()
	require.NotZero(t, st.CurrentSlotID)
	held := 0
	for i := 0; i < exchange.SlotCount; i++ {
		if st.WriterHeld(i) {
			held++
			require.Equal(t, int(st.CurrentSlotID-1), i)
		}
	}
	require.Equal(t, 1, held, "exactly the current slot carries the writer bit")
}
