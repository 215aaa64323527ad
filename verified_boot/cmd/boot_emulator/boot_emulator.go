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

// boot_emulator powers on a dummy device and runs the verified boot chain
// over its flash image, disks and EC, rebooting while the attempt asks for
// it.
//
// The device is described by a directory holding a device.json manifest,
// which --init installs. Anti-rollback floors and the NV backup live in the
// secure storage database, and every signed boot record is appended to a
// Merkle log kept there too.
//
// Usage:
//   go run ./verified_boot/cmd/boot_emulator --logtostderr --device_dir=/tmp/vboot_device --init=device.json
package main

import (
	"context"
	"flag"
	"os"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/cmd/boot_emulator/impl"
	"github.com/golang/glog"
)

var (
	deviceDir  = flag.String("device_dir", "/tmp/vboot_device", "Directory path of the dummy device's state storage")
	initConfig = flag.String("init", "", "JSON device description to install before booting")
	dbDriver   = flag.String("secdata_db_driver", "sqlite3", "Secure storage database driver: sqlite3, mysql or memory")
	dbDSN      = flag.String("secdata_db_dsn", "", "Secure storage database data source name")
	privateKey = flag.String("private_key", "", "Note signer key for boot records; defaults to $VERIFIED_BOOT_PRIVATE_KEY")
	origin     = flag.String("boot_log_origin", "verified-boot/boot-log", "Origin line of boot log checkpoints")
	maxBoots   = flag.Int("max_boots", 4, "Most power-ons to run while the device asks for a reboot")
)

func main() {
	flag.Parse()

	key := *privateKey
	if key == "" {
		key = os.Getenv("VERIFIED_BOOT_PRIVATE_KEY")
	}
	if err := impl.Main(context.Background(), impl.BootEmulatorOpts{
		DeviceDir:  *deviceDir,
		Init:       *initConfig,
		DBDriver:   *dbDriver,
		DBDSN:      *dbDSN,
		PrivateKey: key,
		Origin:     *origin,
		MaxBoots:   *maxBoots,
		Out:        os.Stdout,
	}); err != nil {
		glog.Exit(err.Error())
	}
}
