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

// gbb_utility reads, edits and creates the trust anchor block of a firmware
// image.
//
// Usage:
//   go run ./verified_boot/cmd/gbb_utility --image=bios.bin
//   go run ./verified_boot/cmd/gbb_utility --mode=set --hwid='New Model' --rootkey=key.bin --image=bios.bin --output=newbios.bin
//   go run ./verified_boot/cmd/gbb_utility --mode=create --sizes=0x100,0x1000,0x3de80,0x1000 --image=gbb.blob
package main

import (
	"context"
	"flag"
	"os"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/cmd/gbb_utility/impl"
	"github.com/golang/glog"
)

var (
	mode        = flag.String("mode", "get", "One of [get, set, create]")
	image       = flag.String("image", "", "Firmware image or bare GBB file to operate on")
	output      = flag.String("output", "", "File to write a modified image to; defaults to --image")
	hwid        = flag.String("hwid", "", "set: the new hardware ID")
	flags       = flag.String("flags", "", "set: the new numeric flags value")
	rootKey     = flag.String("rootkey", "", "File to export the root key to (get) or import it from (set)")
	bmpFV       = flag.String("bmpfv", "", "File to export the bitmap FV to (get) or import it from (set)")
	recoveryKey = flag.String("recoverykey", "", "File to export the recovery key to (get) or import it from (set)")
	showFlags   = flag.Bool("show_flags", false, "get: report the header flags")
	showDigest  = flag.Bool("show_digest", false, "get: report the HWID digest")
	sizes       = flag.String("sizes", "", "create: hwid_size,rootkey_size,bmpfv_size,recoverykey_size")
)

func main() {
	flag.Parse()

	if err := impl.Main(context.Background(), impl.GBBOpts{
		Mode:        *mode,
		Image:       *image,
		Output:      *output,
		HWID:        *hwid,
		Flags:       *flags,
		RootKey:     *rootKey,
		BitmapFV:    *bmpFV,
		RecoveryKey: *recoveryKey,
		ShowFlags:   *showFlags,
		ShowDigest:  *showDigest,
		Sizes:       *sizes,
		Out:         os.Stdout,
	}); err != nil {
		glog.Exit(err.Error())
	}
}
