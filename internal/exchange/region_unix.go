//go:build unix

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
	"os"

	"golang.org/x/sys/unix"
)

// CreateRegion creates or opens process index's region file in dir and maps
// it. Create-or-open is deliberate: a fresh start gets a zero-filled file
// (a valid empty container), a restart after a crash reattaches to the
// surviving state unchanged.
func CreateRegion(dir string, index int) (*Region, error) {
	path := RegionPath(dir, index)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create region file %s: %w", path, err)
	}

	if err := file.Truncate(int64(ContainerSize)); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to resize region file %s: %w", path, err)
	}

	mem, err := mmapFile(file, ContainerSize)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to mmap region %s: %w", path, err)
	}

	return &Region{file: file, mem: mem, path: path}, nil
}

// OpenRegion maps an existing region file. It fails if the file is absent
// or its size does not match this build's container layout; both peers must
// be built from the same source with the same NumProcesses.
func OpenRegion(dir string, index int) (*Region, error) {
	path := RegionPath(dir, index)

	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open region file %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat region file %s: %w", path, err)
	}
	if info.Size() != int64(ContainerSize) {
		file.Close()
		return nil, fmt.Errorf("region %s is %d bytes, want %d: peer built with a different layout", path, info.Size(), ContainerSize)
	}

	mem, err := mmapFile(file, ContainerSize)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to mmap region %s: %w", path, err)
	}

	return &Region{file: file, mem: mem, path: path}, nil
}

// Close unmaps the region and closes its file. The container in shared
// memory is untouched; other processes keep using it.
func (r *Region) Close() error {
	var firstErr error

	if r.mem != nil {
		if err := unix.Munmap(r.mem); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("munmap failed: %w", err)
		}
		r.mem = nil
	}

	if r.file != nil {
		if err := r.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.file = nil
	}

	return firstErr
}

func mmapFile(file *os.File, size int) ([]byte, error) {
	mem, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	return mem, nil
}
