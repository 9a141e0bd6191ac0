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
	"sync/atomic"
	"unsafe"
)

// writerBit marks a slot as holding the producer's most recent message.
// Bits 0..30 below it are reader-holds-this-slot bits.
const writerBit = uint32(1) << 31

// slot is one cell of the container: a 32-bit ownership word plus the
// payload. A slot whose word is zero is free and may be reused by the
// writer. The padding keeps the payload 8-byte aligned so the layout is
// identical in every process built from this source.
type slot struct {
	usedBy atomic.Uint32
	_      [4]byte
	msg    Message
}

// Container is the shared latest-message exchange structure. It lives
// entirely inside a shared memory region and holds no pointers: a typed
// cast of the mapped bytes is all that is needed to operate on it.
//
// The zero value is a valid empty container. A freshly created region is
// zero-filled by the kernel, so creation and reattach after a crash share
// one code path with no initialization step.
//
// Exactly one process (the region's owner) may call Publish and
// ResetWriter; up to NumProcesses-1 other processes call Lock, Unlock,
// Payload and ResetReader concurrently. This split is assumed, not
// enforced.
type Container struct {
	// One-based id of the slot holding the most recent message. Zero means
	// no message has ever been published. The one-based encoding is what
	// lets all-zero memory represent the empty container.
	currentSlotID atomic.Uint32
	_             [4]byte
	slots         [SlotCount]slot
}

// ContainerSize is the byte size of the shared region backing one
// Container.
const ContainerSize = int(unsafe.Sizeof(Container{}))

// ContainerAt interprets the start of a mapped region as a Container.
// The region must be at least ContainerSize bytes and produced by a build
// with the same NumProcesses and payload layout.
func ContainerAt(mem []byte) *Container {
	return (*Container)(unsafe.Pointer(&mem[0]))
}

// IsEmpty reports whether no message has ever been published.
func (c *Container) IsEmpty() bool {
	return c.currentSlotID.Load() == 0
}

// Publish stores msg as the container's most recent message. Only the
// single producer may call it.
//
// The publication sequence is: pick the first free slot, copy the payload,
// set the writer bit (from here on readers may lock the slot), advance
// currentSlotID (the linearization point), then release the writer bit of
// the previously current slot so it can drain to free once its readers
// unlock. Between the writer-bit set and the currentSlotID store two slots
// transiently carry the writer bit; readers never lock the outgoing one
// because lock acquisition is gated on currentSlotID.
func (c *Container) Publish(msg Message) error {
	next := -1
	for i := range c.slots {
		if c.slots[i].usedBy.Load() == 0 {
			next = i
			break
		}
	}
	if next < 0 {
		// Impossible while every process holds at most one lock; seeing
		// this means the one-lock rule was violated somewhere.
		return ErrNoFreeSlot
	}

	c.slots[next].msg = msg
	c.slots[next].usedBy.Or(writerBit)

	old := c.currentSlotID.Swap(uint32(next + 1))
	if old != 0 {
		c.slots[old-1].usedBy.And(^writerBit)
	}
	return nil
}

// Lock pins the slot holding the most recent message on behalf of process
// and returns its handle. The slot's payload will not be overwritten or
// reclaimed until the matching Unlock. Several processes may hold the same
// slot simultaneously; a single process must not hold more than one lock
// per container at a time (the Consumer wrapper enforces this).
//
// The returned slot is not necessarily still the current one by the time
// Lock returns; a newer publication may have landed. The caller gets a
// consistent snapshot of some published message, at worst one generation
// stale.
func (c *Container) Lock(process int) (int, error) {
	bit := uint32(1) << uint(process)
	for {
		id := c.currentSlotID.Load()
		if id == 0 {
			return -1, ErrLockOnEmpty
		}
		s := int(id - 1)

		cur := c.slots[s].usedBy.Load()
		if cur&writerBit == 0 {
			// The slot was retired between our currentSlotID read and the
			// word load. Locking it would race the writer reusing it;
			// reread currentSlotID for a newer slot.
			continue
		}
		if cur&bit != 0 {
			return -1, ErrDoubleLock
		}
		if c.slots[s].usedBy.CompareAndSwap(cur, cur|bit) {
			return s, nil
		}
		// A lost CAS may mean the writer moved on, so restart from the
		// currentSlotID read rather than just reloading the word.
	}
}

// Unlock releases the lock process holds on the slot named by handle.
func (c *Container) Unlock(process, handle int) error {
	bit := uint32(1) << uint(process)
	if c.slots[handle].usedBy.Load()&bit == 0 {
		return ErrUnlockNotHeld
	}
	c.slots[handle].usedBy.And(^bit)
	return nil
}

// Payload returns the message held by the locked slot named by handle. The
// reference stays valid until the matching Unlock: the writer never touches
// a slot whose ownership word is nonzero.
func (c *Container) Payload(handle int) *Message {
	return &c.slots[handle].msg
}

// ResetReader drops every lock held by process, in any slot. It is
// idempotent and intended to run once on attach, clearing locks a previous
// incarnation of the process left behind when it crashed.
func (c *Container) ResetReader(process int) {
	bit := uint32(1) << uint(process)
	for i := range c.slots {
		if c.slots[i].usedBy.Load()&bit != 0 {
			c.slots[i].usedBy.And(^bit)
		}
	}
}

// ResetWriter clears the writer bit from every slot except the current one.
// It is idempotent and intended to run once when the producer attaches: a
// crash between marking a new slot and advancing currentSlotID leaves a
// stray writer bit that would otherwise pin the slot forever.
func (c *Container) ResetWriter() {
	cur := c.currentSlotID.Load()
	for i := range c.slots {
		if uint32(i+1) == cur {
			continue
		}
		if c.slots[i].usedBy.Load()&writerBit != 0 {
			c.slots[i].usedBy.And(^writerBit)
		}
	}
}

// State is a point-in-time snapshot of a container for diagnostics. The
// slot payloads are copied without locking, so a value read here may be
// mid-overwrite; the snapshot is for inspection and tests, not for
// consuming messages.
type State struct {
	CurrentSlotID uint32
	UsedBy        [SlotCount]uint32
	Values        [SlotCount]uint64
}

// WriterHeld reports whether slot i carries the writer bit.
func (s *State) WriterHeld(i int) bool {
	return s.UsedBy[i]&writerBit != 0
}

// Readers returns the reader bitmap of slot i with the writer bit masked
// off.
func (s *State) Readers(i int) uint32 {
	return s.UsedBy[i] &^ writerBit
}

// Snapshot captures the container state for diagnostics.
func (c *Container) Snapshot() State {
	var st State
	st.CurrentSlotID = c.currentSlotID.Load()
	for i := range c.slots {
		st.UsedBy[i] = c.slots[i].usedBy.Load()
		st.Values[i] = c.slots[i].msg.Val
	}
	return st
}
