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

import "errors"

// Every error in this package reports a broken caller contract, not a
// recoverable runtime condition. The atomic protocol itself never fails.
var (
	// ErrLockOnEmpty indicates Lock was called before any message was
	// published to the container.
	ErrLockOnEmpty = errors.New("lock on empty container")

	// ErrDoubleLock indicates Lock found the caller's reader bit already
	// set on the current slot: the process holds a lock it never released.
	ErrDoubleLock = errors.New("slot already locked by this process")

	// ErrUnlockNotHeld indicates Unlock was called with a handle whose slot
	// does not carry the caller's reader bit.
	ErrUnlockNotHeld = errors.New("unlock of a slot not locked by this process")

	// ErrNoFreeSlot indicates Publish found no reusable slot. Under the
	// one-lock-per-process rule this cannot happen; seeing it means some
	// process holds more than one lock on this container.
	ErrNoFreeSlot = errors.New("no free slot for writer")

	// ErrAlreadyLocked indicates Consumer.Lock was called while a previous
	// lock on the same Consumer is still outstanding.
	ErrAlreadyLocked = errors.New("consumer already holds a locked message")

	// ErrNotLocked indicates Consumer.Unlock was called with no outstanding
	// lock.
	ErrNotLocked = errors.New("consumer holds no locked message")

	// ErrProducerRunning indicates another live process already owns the
	// producer role for this region.
	ErrProducerRunning = errors.New("region already has a live producer")
)
