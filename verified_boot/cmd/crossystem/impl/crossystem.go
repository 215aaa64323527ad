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

// Package impl is the implementation of crossystem.
package impl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"net/http"
	"strconv"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/cmd/internal/secdb"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/devices/dummy"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/bootlog"
	vbhttp "github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/http"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/secdata"
	"github.com/golang/glog"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

// CrossystemOpts encapsulates crossystem parameters.
type CrossystemOpts struct {
	DeviceDir string
	DBDriver  string
	DBDSN     string
	Origin    string
	// Listen, if set, serves the state over HTTP until the context is
	// cancelled.
	Listen string
	// Field names an NV field to print, or to set when Value is given.
	Field string
	Value string
	Out   io.Writer
}

// Main runs crossystem.
func Main(ctx context.Context, opts CrossystemOpts) error {
	if opts.DeviceDir == "" {
		return errors.New("--device_dir is required")
	}
	if opts.Out == nil {
		opts.Out = ioutil.Discard
	}
	dev, err := dummy.New(opts.DeviceDir)
	if err != nil {
		return fmt.Errorf("failed to open device: %w", err)
	}
	defer dev.Close()
	p, closeDB, err := secdb.Open(opts.DBDriver, opts.DBDSN)
	if err != nil {
		return err
	}
	defer closeDB()
	sys := NewSystem(dev, secdata.NewStore(p), bootlog.New(p, opts.Origin, nil))

	switch {
	case opts.Listen != "":
		l, err := net.Listen("tcp", opts.Listen)
		if err != nil {
			return fmt.Errorf("failed to listen on %q: %w", opts.Listen, err)
		}
		return Serve(ctx, l, sys)
	case opts.Field != "" && opts.Value != "":
		v, err := strconv.ParseUint(opts.Value, 0, 32)
		if err != nil {
			return fmt.Errorf("failed to parse value %q: %w", opts.Value, err)
		}
		return sys.SetNV(ctx, opts.Field, uint32(v))
	case opts.Value != "":
		return errors.New("--value needs --field")
	}

	st, err := sys.Status(ctx)
	if err != nil {
		return err
	}
	if opts.Field != "" {
		v, ok := st.NV[opts.Field]
		if !ok {
			return fmt.Errorf("unknown NV field %q", opts.Field)
		}
		_, err := fmt.Fprintf(opts.Out, "%d\n", v)
		return err
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(opts.Out, "%s\n", b)
	return err
}

// Serve runs the HTTP server on l until ctx is done.
func Serve(ctx context.Context, l net.Listener, sys vbhttp.System) error {
	// If either goroutine fails, the other is stopped via ctx.
	g, ctx := errgroup.WithContext(ctx)

	r := mux.NewRouter()
	s := vbhttp.NewServer(sys)
	s.RegisterHandlers(r)
	srv := http.Server{
		Handler: r,
	}
	g.Go(func() error {
		glog.Info("HTTP server goroutine started")
		defer glog.Info("HTTP server goroutine done")
		if err := srv.Serve(l); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		glog.Info("HTTP server-shutdown goroutine started")
		defer glog.Info("HTTP server-shutdown goroutine done")
		<-ctx.Done()
		return srv.Shutdown(context.Background())
	})
	return g.Wait()
}
