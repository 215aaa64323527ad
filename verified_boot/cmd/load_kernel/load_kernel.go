// Copyright 2023 Google LLC. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// load_kernel runs kernel selection over a disk image described by a JSON
// partition map.
//
// Usage:
//   go run ./verified_boot/cmd/load_kernel --disk=disk.img --partitions=parts.json --key=kernel_subkey.vbpubk
package main

import (
	"context"
	"flag"
	"os"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/cmd/load_kernel/impl"
	"github.com/golang/glog"
)

var (
	disk        = flag.String("disk", "", "Disk image to load a kernel from")
	partitions  = flag.String("partitions", "", "JSON partition map of the disk")
	key         = flag.String("key", "", "Packed key which verifies kernel key blocks: the kernel subkey, or the recovery key in recovery mode")
	mode        = flag.String("mode", "normal", "One of [normal, developer, recovery]")
	kernelFloor = flag.Uint("kernel_floor", 0, "Combined kernel version floor")
	signedOnly  = flag.Bool("signed_only", false, "developer: only boot kernels with a valid key block signature")
	bufferSize  = flag.Uint64("buffer_size", 0, "Largest kernel body accepted; 0 for no limit")
	commit      = flag.Bool("commit", false, "Write tried/bad marks back to the partition map")
)

func main() {
	flag.Parse()

	if err := impl.Main(context.Background(), impl.LoadKernelOpts{
		Disk:        *disk,
		Partitions:  *partitions,
		Key:         *key,
		Mode:        *mode,
		KernelFloor: uint32(*kernelFloor),
		SignedOnly:  *signedOnly,
		BufferSize:  *bufferSize,
		Commit:      *commit,
		Out:         os.Stdout,
	}); err != nil {
		glog.Exit(err.Error())
	}
}
