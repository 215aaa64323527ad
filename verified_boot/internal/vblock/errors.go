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

package vblock

import "errors"

// Error kinds for rejecting a single candidate. Callers test with errors.Is
// and carry on with the next candidate; none of them ends a boot attempt.
var (
	// ErrStructural means the bytes do not describe a well-formed structure.
	ErrStructural = errors.New("structural error")
	// ErrSignature means a signature or checksum did not verify.
	ErrSignature = errors.New("signature error")
	// ErrPolicyMismatch means the structure is not usable in the current mode.
	ErrPolicyMismatch = errors.New("policy mismatch")
	// ErrRollback means a version is below the anti-rollback floor.
	ErrRollback = errors.New("rollback violation")
	// ErrResource means a read failed or a buffer was too small.
	ErrResource = errors.New("resource error")
)
