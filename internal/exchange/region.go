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
	"path/filepath"
)

// Region is a mapped shared memory region holding one Container.
type Region struct {
	file *os.File
	mem  []byte
	path string
}

// DefaultDir returns the directory region files are created in: /dev/shm
// when available, the system temporary directory otherwise.
func DefaultDir() string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// RegionPath returns the file path of process index's region inside dir.
func RegionPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("%s%d", RegionPrefix, index))
}

// RegionExists reports whether process index's region file exists in dir.
func RegionExists(dir string, index int) bool {
	_, err := os.Stat(RegionPath(dir, index))
	return err == nil
}

// RemoveRegion deletes process index's region file. Removal is an
// administrative action, never part of the protocol: a region left behind
// by a crashed process is exactly what lets its next incarnation resume.
func RemoveRegion(dir string, index int) error {
	if err := os.Remove(RegionPath(dir, index)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Container returns the typed view of the region's bytes.
func (r *Region) Container() *Container {
	return ContainerAt(r.mem)
}

// Path returns the backing file path.
func (r *Region) Path() string {
	return r.path
}
