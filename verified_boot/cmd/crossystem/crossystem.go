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

// crossystem reports the persisted boot state of a dummy device: its NV
// record, its anti-rollback floors and its boot measurements.
//
// Usage:
//   go run ./verified_boot/cmd/crossystem --device_dir=/tmp/vboot_device
//   go run ./verified_boot/cmd/crossystem --device_dir=/tmp/vboot_device --field=recovery_request --value=2
//   go run ./verified_boot/cmd/crossystem --device_dir=/tmp/vboot_device --listen=:8080
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/cmd/crossystem/impl"
	"github.com/golang/glog"
)

var (
	deviceDir = flag.String("device_dir", "/tmp/vboot_device", "Directory path of the dummy device's state storage")
	dbDriver  = flag.String("secdata_db_driver", "sqlite3", "Secure storage database driver: sqlite3, mysql or memory")
	dbDSN     = flag.String("secdata_db_dsn", "", "Secure storage database data source name")
	origin    = flag.String("boot_log_origin", "verified-boot/boot-log", "Origin line of boot log checkpoints")
	listen    = flag.String("listen", "", "Address to serve the state on; empty prints it and exits")
	field     = flag.String("field", "", "NV field to print, or to set with --value")
	value     = flag.String("value", "", "New value for --field")
)

func main() {
	flag.Parse()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := impl.Main(ctx, impl.CrossystemOpts{
		DeviceDir: *deviceDir,
		DBDriver:  *dbDriver,
		DBDSN:     *dbDSN,
		Origin:    *origin,
		Listen:    *listen,
		Field:     *field,
		Value:     *value,
		Out:       os.Stdout,
	}); err != nil {
		glog.Exit(err.Error())
	}
}
