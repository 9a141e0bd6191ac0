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

// Package exchange implements a lock-free, crash-tolerant latest-message
// exchange between cooperating processes over a shared memory region.
//
// Each participating process owns one region (its outbox) into which it
// publishes a single most-recent message, and attaches to every peer's
// region (its inboxes) to observe their most-recent messages. There is no
// queue: a reader sees either the latest published value or the one it
// locked before a newer write arrived.
//
// The core data structure is a fixed array of NumProcesses+1 slots plus a
// one-based "current slot" pointer. Each slot carries a single 32-bit atomic
// word that encodes both writer occupancy (bit 31) and the set of readers
// currently holding the slot (bits 0..30). A slot whose word is zero is free
// and may be reused by the writer; a slot with any bit set is pinned.
// Because a process holds at most one lock per container at a time, at most
// NumProcesses-1 readers pin distinct old slots, one slot holds the current
// message, and one more slot is always available for the next write.
//
// Every protocol step is wait-free or lock-free: the writer does one bounded
// slot scan and three atomic writes per publication; a reader runs a CAS
// loop that retries only when the slot word changed under it, because the
// writer advanced or another reader locked or unlocked the same slot, so
// every retry follows another process's progress. No mutexes,
// futexes, or any other kernel-mediated blocking primitive are involved.
//
// Any process may die at any instruction. The surviving peers keep running;
// the next incarnation of the crashed process repairs its own leftover state
// on attach (Producer runs ResetWriter, Consumer runs ResetReader) without
// quiescing the group. A fresh, zero-filled region is a valid empty
// container, so creation and crash-restart share a single attach path.
package exchange
