/*
Copyright 2024 The atc-router Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateUTF8Valid(t *testing.T) {
	t.Parallel()
	require.NoError(t, ValidateUTF8("hello é中文"))
}

func TestValidateUTF8Invalid(t *testing.T) {
	t.Parallel()
	err := ValidateUTF8("abc\xffdef")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid utf-8 sequence of 1 bytes from index 3")
}

func TestNewIPAddrRejectsGarbage(t *testing.T) {
	t.Parallel()
	_, err := NewIPAddr("not-an-ip")
	require.Error(t, err)
}

func TestNewIPCIDRMasksHostBits(t *testing.T) {
	t.Parallel()
	v, err := NewIPCIDR("10.1.2.3/8")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.0/8", v.IPCIDR().String())
}

func TestNewRegexRejectsInvalidPattern(t *testing.T) {
	t.Parallel()
	_, err := NewRegex("(")
	require.Error(t, err)
}

func TestValueStringRendersByType(t *testing.T) {
	t.Parallel()
	require.Equal(t, "80", NewInt(80).String())
	require.Equal(t, "abc", NewString("abc").String())
}
