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

// Message is the fixed-size payload exchanged between processes. It must be
// plain data with no pointers or handles: the bytes live in shared memory
// and are read by other processes built from the same source.
//
// If a consumer needs to tell a fresh value from a re-read one, a generation
// counter would have to be added here; the protocol itself does not provide
// one.
type Message struct {
	Val uint64
}
