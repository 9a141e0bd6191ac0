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

// NumProcesses is the number of cooperating processes in the group. Every
// participant must be built with the same value; the region layout depends
// on it. Process indexes run from 0 to NumProcesses-1.
const NumProcesses = 8

// Reader bits occupy bits 0..30 of a slot word and bit 31 belongs to the
// writer, so at most 31 processes are addressable.
var _ [31 - NumProcesses]struct{}

// SlotCount is the number of slots in a container. With NumProcesses
// participants and at most one outstanding lock per process, in the worst
// case NumProcesses-1 readers each pin a distinct old slot and one slot
// holds the current message, leaving one slot free for the next write.
const SlotCount = NumProcesses + 1

// RegionPrefix is the well-known file name prefix for region files. The
// full name of process i's region is RegionPrefix + i.
const RegionPrefix = "shmbus_"
