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

// Package http serves the boot state of a device: its NV record, its
// anti-rollback floors, and the measurements of its boots.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/api"
	"github.com/golang/glog"
	"github.com/gorilla/mux"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// System reads and updates the persisted boot state.
type System interface {
	// Status returns the NV record, the floors and the last boot record.
	Status(ctx context.Context) (api.Status, error)
	// SetNV stores value in the named NV field. Unknown fields are
	// codes.NotFound.
	SetNV(ctx context.Context, name string, value uint32) error
	// LastBoot returns the signed measurement of the latest boot, or
	// codes.NotFound if there has not been one.
	LastBoot(ctx context.Context) ([]byte, error)
	// BootLogCheckpoint returns the latest signed checkpoint of the boot log.
	BootLogCheckpoint(ctx context.Context) ([]byte, error)
	// BootLogEntry returns an entry with its inclusion proof in the tree of
	// the given size, or in the whole log if size is zero.
	BootLogEntry(ctx context.Context, index, size uint64) (api.BootLogEntry, error)
}

// Server is the HTTP handler implementation of crossystem.
type Server struct {
	s System
}

// NewServer creates a new server.
func NewServer(s System) *Server {
	return &Server{
		s: s,
	}
}

// getStatus returns the whole system state as JSON.
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.s.Status(r.Context())
	if err != nil {
		glog.Warningf("failed to get status: %v", err)
		http.Error(w, "failed to get status", httpForCode(status.Code(err)))
		return
	}
	b, err := json.Marshal(st)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to convert status to JSON: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/json")
	if _, err := w.Write(b); err != nil {
		glog.Errorf("w.Write(): %v", err)
	}
}

// getNV returns the value of one NV field.
func (s *Server) getNV(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	st, err := s.s.Status(r.Context())
	if err != nil {
		glog.Warningf("failed to get status: %v", err)
		http.Error(w, "failed to get status", httpForCode(status.Code(err)))
		return
	}
	v, ok := st.NV[name]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown NV field %q", name), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	if _, err := fmt.Fprintf(w, "%d", v); err != nil {
		glog.Errorf("w.Write(): %v", err)
	}
}

// setNV handles requests to update an NV field.
func (s *Server) setNV(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("cannot read request body: %v", err.Error()), http.StatusBadRequest)
		return
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(body)), 0, 32)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to parse value: %v", err), http.StatusBadRequest)
		return
	}
	if err := s.s.SetNV(r.Context(), name, uint32(v)); err != nil {
		glog.Warningf("failed to set NV field %q: %v", name, err)
		http.Error(w, "failed to set NV field", httpForCode(status.Code(err)))
		return
	}
}

// getLastBoot returns the signed measurement of the latest boot.
func (s *Server) getLastBoot(w http.ResponseWriter, r *http.Request) {
	rec, err := s.s.LastBoot(r.Context())
	if err != nil {
		glog.Warningf("failed to get last boot: %v", err)
		http.Error(w, "failed to get last boot", httpForCode(status.Code(err)))
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	if _, err := w.Write(rec); err != nil {
		glog.Errorf("w.Write(): %v", err)
	}
}

// getBootLogCheckpoint returns the latest signed boot log checkpoint.
func (s *Server) getBootLogCheckpoint(w http.ResponseWriter, r *http.Request) {
	cp, err := s.s.BootLogCheckpoint(r.Context())
	if err != nil {
		glog.Warningf("failed to get boot log checkpoint: %v", err)
		http.Error(w, "failed to get boot log checkpoint", httpForCode(status.Code(err)))
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	if _, err := w.Write(cp); err != nil {
		glog.Errorf("w.Write(): %v", err)
	}
}

// getBootLogEntry returns one boot log entry and its inclusion proof.
func (s *Server) getBootLogEntry(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(mux.Vars(r)["index"], 10, 64)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to parse index: %v", err), http.StatusBadRequest)
		return
	}
	var size uint64
	if q := r.URL.Query().Get("size"); q != "" {
		if size, err = strconv.ParseUint(q, 10, 64); err != nil {
			http.Error(w, fmt.Sprintf("failed to parse size: %v", err), http.StatusBadRequest)
			return
		}
	}
	e, err := s.s.BootLogEntry(r.Context(), index, size)
	if err != nil {
		glog.Warningf("failed to get boot log entry %d: %v", index, err)
		http.Error(w, "failed to get boot log entry", httpForCode(status.Code(err)))
		return
	}
	b, err := json.Marshal(e)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to convert entry to JSON: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/json")
	if _, err := w.Write(b); err != nil {
		glog.Errorf("w.Write(): %v", err)
	}
}

// RegisterHandlers registers HTTP handlers for crossystem endpoints.
func (s *Server) RegisterHandlers(r *mux.Router) {
	nvStr := "{name:[a-z0-9_]+}"
	r.HandleFunc(api.HTTPStatus, s.getStatus).Methods("GET")
	r.HandleFunc(fmt.Sprintf(api.HTTPNVField, nvStr), s.getNV).Methods("GET")
	r.HandleFunc(fmt.Sprintf(api.HTTPNVField, nvStr), s.setNV).Methods("PUT")
	r.HandleFunc(api.HTTPLastBoot, s.getLastBoot).Methods("GET")
	r.HandleFunc(api.HTTPBootLogCheckpoint, s.getBootLogCheckpoint).Methods("GET")
	r.HandleFunc(fmt.Sprintf(api.HTTPBootLogEntry, "{index:[0-9]+}"), s.getBootLogEntry).Methods("GET")
}

func httpForCode(c codes.Code) int {
	switch c {
	case codes.NotFound:
		return http.StatusNotFound
	case codes.FailedPrecondition, codes.InvalidArgument, codes.OutOfRange:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
