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

package nvstorage

import (
	"fmt"

	"github.com/golang/glog"
)

// RecoveryReason is the value of the RecoveryRequest field.
type RecoveryReason uint8

// Recovery reasons. RecoveryROInvalidRWCheckMin plus a firmware check code
// reports how far the better firmware slot got before it was rejected.
const (
	RecoveryNotRequested        RecoveryReason = 0x00
	RecoveryLegacy              RecoveryReason = 0x01
	RecoveryROManual            RecoveryReason = 0x02
	RecoveryROInvalidRW         RecoveryReason = 0x03
	RecoveryROS3Resume          RecoveryReason = 0x04
	RecoveryROTPMError          RecoveryReason = 0x05
	RecoveryROSharedData        RecoveryReason = 0x06
	RecoveryROTestS3            RecoveryReason = 0x07
	RecoveryROTestLFS           RecoveryReason = 0x08
	RecoveryROTestLF            RecoveryReason = 0x09
	RecoveryROInvalidRWCheckMin RecoveryReason = 0x10
	RecoveryROInvalidRWCheckMax RecoveryReason = 0x1f
	RecoveryROFirmware          RecoveryReason = 0x20
	RecoveryROTPMReboot         RecoveryReason = 0x21
	RecoveryECSoftwareSync      RecoveryReason = 0x22
	RecoveryECUnknownImage      RecoveryReason = 0x23
	RecoveryECHash              RecoveryReason = 0x24
	RecoveryECExpectedImage     RecoveryReason = 0x25
	RecoveryECUpdate            RecoveryReason = 0x26
	RecoveryECJumpRW            RecoveryReason = 0x27
	RecoveryECProtect           RecoveryReason = 0x28
	RecoveryECExpectedHash      RecoveryReason = 0x29
	RecoveryECHashMismatch      RecoveryReason = 0x2a
	RecoverySecdataInit         RecoveryReason = 0x2b
	RecoveryGBBHeader           RecoveryReason = 0x2c
	RecoveryTPMClearOwner       RecoveryReason = 0x2d
	RecoveryDevSwitch           RecoveryReason = 0x2e
	RecoveryFWSlot              RecoveryReason = 0x2f
	RecoveryROUnspecified       RecoveryReason = 0x3f
	RecoveryRWDevScreen         RecoveryReason = 0x41
	RecoveryRWNoOS              RecoveryReason = 0x42
	RecoveryRWInvalidOS         RecoveryReason = 0x43
	RecoveryRWTPMError          RecoveryReason = 0x44
	RecoveryRWDevMismatch       RecoveryReason = 0x45
	RecoveryRWSharedData        RecoveryReason = 0x46
	RecoveryRWTestLK            RecoveryReason = 0x47
	RecoveryRWNoDisk            RecoveryReason = 0x48
	RecoveryTPMEFail            RecoveryReason = 0x49
	RecoveryROTPMSError         RecoveryReason = 0x50
	RecoveryROTPMWError         RecoveryReason = 0x51
	RecoveryROTPMLError         RecoveryReason = 0x52
	RecoveryROTPMUError         RecoveryReason = 0x53
	RecoveryRWTPMReadError      RecoveryReason = 0x54
	RecoveryRWTPMWriteError     RecoveryReason = 0x55
	RecoveryRWTPMLockError      RecoveryReason = 0x56
	RecoveryECHashFailed        RecoveryReason = 0x57
	RecoveryECHashSize          RecoveryReason = 0x58
	RecoveryLKUnspecified       RecoveryReason = 0x59
	RecoveryRWNoKernel          RecoveryReason = 0x5a
	RecoveryRWBCBError          RecoveryReason = 0x5b
	RecoverySecdataKernelInit   RecoveryReason = 0x5c
	RecoveryFastbootMode        RecoveryReason = 0x5d
	RecoveryRWUnspecified       RecoveryReason = 0x7f
	RecoveryKEDMVerity          RecoveryReason = 0x81
	RecoveryKEUnspecified       RecoveryReason = 0xbf
	RecoveryUSTest              RecoveryReason = 0xc1
	RecoveryBCBUserMode         RecoveryReason = 0xc2
	RecoveryUSFastboot          RecoveryReason = 0xc3
	RecoveryTrainAndReboot      RecoveryReason = 0xc4
	RecoveryUSUnspecified       RecoveryReason = 0xff
)

var reasonNames = map[RecoveryReason]string{
	RecoveryNotRequested:      "not_requested",
	RecoveryLegacy:            "legacy",
	RecoveryROManual:          "ro_manual",
	RecoveryROInvalidRW:       "ro_invalid_rw",
	RecoveryROS3Resume:        "ro_s3_resume",
	RecoveryROTPMError:        "ro_tpm_error",
	RecoveryROSharedData:      "ro_shared_data",
	RecoveryROTestS3:          "ro_test_s3",
	RecoveryROTestLFS:         "ro_test_lfs",
	RecoveryROTestLF:          "ro_test_lf",
	RecoveryROFirmware:        "ro_firmware",
	RecoveryROTPMReboot:       "ro_tpm_reboot",
	RecoveryECSoftwareSync:    "ec_software_sync",
	RecoveryECUnknownImage:    "ec_unknown_image",
	RecoveryECHash:            "ec_hash",
	RecoveryECExpectedImage:   "ec_expected_image",
	RecoveryECUpdate:          "ec_update",
	RecoveryECJumpRW:          "ec_jump_rw",
	RecoveryECProtect:         "ec_protect",
	RecoveryECExpectedHash:    "ec_expected_hash",
	RecoveryECHashMismatch:    "ec_hash_mismatch",
	RecoverySecdataInit:       "secdata_init",
	RecoveryGBBHeader:         "gbb_header",
	RecoveryTPMClearOwner:     "tpm_clear_owner",
	RecoveryDevSwitch:         "dev_switch",
	RecoveryFWSlot:            "fw_slot",
	RecoveryROUnspecified:     "ro_unspecified",
	RecoveryRWDevScreen:       "rw_dev_screen",
	RecoveryRWNoOS:            "rw_no_os",
	RecoveryRWInvalidOS:       "rw_invalid_os",
	RecoveryRWTPMError:        "rw_tpm_error",
	RecoveryRWDevMismatch:     "rw_dev_mismatch",
	RecoveryRWSharedData:      "rw_shared_data",
	RecoveryRWTestLK:          "rw_test_lk",
	RecoveryRWNoDisk:          "rw_no_disk",
	RecoveryTPMEFail:          "tpm_e_fail",
	RecoveryROTPMSError:       "ro_tpm_s_error",
	RecoveryROTPMWError:       "ro_tpm_w_error",
	RecoveryROTPMLError:       "ro_tpm_l_error",
	RecoveryROTPMUError:       "ro_tpm_u_error",
	RecoveryRWTPMReadError:    "rw_tpm_r_error",
	RecoveryRWTPMWriteError:   "rw_tpm_w_error",
	RecoveryRWTPMLockError:    "rw_tpm_l_error",
	RecoveryECHashFailed:      "ec_hash_failed",
	RecoveryECHashSize:        "ec_hash_size",
	RecoveryLKUnspecified:     "lk_unspecified",
	RecoveryRWNoKernel:        "rw_no_kernel",
	RecoveryRWBCBError:        "rw_bcb_error",
	RecoverySecdataKernelInit: "secdatak_init",
	RecoveryFastbootMode:      "fastboot_mode",
	RecoveryRWUnspecified:     "rw_unspecified",
	RecoveryKEDMVerity:        "ke_dm_verity",
	RecoveryKEUnspecified:     "ke_unspecified",
	RecoveryUSTest:            "us_test",
	RecoveryBCBUserMode:       "bcb_user_mode",
	RecoveryUSFastboot:        "us_fastboot",
	RecoveryTrainAndReboot:    "train_and_reboot",
	RecoveryUSUnspecified:     "us_unspecified",
}

func (r RecoveryReason) String() string {
	if n, ok := reasonNames[r]; ok {
		return n
	}
	if r >= RecoveryROInvalidRWCheckMin && r <= RecoveryROInvalidRWCheckMax {
		return fmt.Sprintf("ro_invalid_rw_check_%d", r-RecoveryROInvalidRWCheckMin)
	}
	return fmt.Sprintf("RecoveryReason(%#02x)", uint8(r))
}

// Recovery returns the pending recovery request.
func (c *Context) Recovery() RecoveryReason { return RecoveryReason(c.Get(RecoveryRequest)) }

// RequestRecovery records a recovery request for the next boot.
func (c *Context) RequestRecovery(r RecoveryReason) {
	glog.V(1).Infof("Requesting recovery: %v", r)
	c.Set(RecoveryRequest, uint32(r))
}

// ClearRecovery drops any pending recovery request.
func (c *Context) ClearRecovery() { c.Set(RecoveryRequest, uint32(RecoveryNotRequested)) }
