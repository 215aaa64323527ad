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

// load_firmware runs firmware slot selection over one or more flash images
// and reports the slot each would boot.
//
// Usage:
//   go run ./verified_boot/cmd/load_firmware --images=bios.bin,other.bin --firmware_floor=0x10001
package main

import (
	"context"
	"flag"
	"os"
	"strings"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/cmd/load_firmware/impl"
	"github.com/golang/glog"
)

var (
	images           = flag.String("images", "", "Comma separated list of flash images to verify")
	firmwareFloor    = flag.Uint("firmware_floor", 0, "Combined firmware version floor")
	tryB             = flag.Bool("try_b", false, "Try slot B first, as after an update")
	supportsRONormal = flag.Bool("supports_ro_normal", false, "Whether slots asking for the RO normal path may use it")
)

func main() {
	flag.Parse()

	var paths []string
	if *images != "" {
		paths = strings.Split(*images, ",")
	}
	if err := impl.Main(context.Background(), impl.LoadFirmwareOpts{
		Images:           paths,
		FirmwareFloor:    uint32(*firmwareFloor),
		TryB:             *tryB,
		SupportsRONormal: *supportsRONormal,
		Out:              os.Stdout,
	}); err != nil {
		glog.Exit(err.Error())
	}
}
