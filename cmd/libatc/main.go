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

// Command libatc builds the C-ABI boundary of spec.md §6: a synchronous,
// handle-based surface meant to be called from a host runtime over cgo.
// Every exported function returns a bool/int status and, on failure, writes
// a human-readable message into a caller-provided buffer.
package main

/*
#include <stdint.h>
#include <stdbool.h>

typedef struct {
	int tag; // 0=String 1=IpCidr 2=IpAddr 3=Int
	const char *str_ptr;
	long long str_len;
	int64_t i;
} CValue;
*/
import "C"

import (
	"runtime/cgo"
	"sort"
	"unsafe"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Kong/atc-router/internal/obs"
	"github.com/Kong/atc-router/internal/rcontext"
	"github.com/Kong/atc-router/internal/router"
	"github.com/Kong/atc-router/internal/types"
)

func main() {} // required by -buildmode=c-shared, unused

var log = obs.NewLogger("libatc")

func init() {
	obs.Init(logrus.InfoLevel)
}

// writeBuf copies s into the caller's buffer, truncating to fit, and sets
// *n to the number of bytes written. Shared by error messages and by the
// result/field marshalling below: every ABI string out-param follows the
// same caller-owns-the-buffer convention.
func writeBuf(buf *C.char, n *C.long, s string) {
	if buf == nil || n == nil {
		return
	}
	cap := int(*n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(buf)), cap)
	*n = C.long(copy(b, s))
}

// writeErr copies msg into the caller's buffer, truncating to fit, and sets
// *errLen to the number of bytes written.
func writeErr(errbuf *C.char, errLen *C.long, msg string) {
	writeBuf(errbuf, errLen, msg)
}

//export schema_new
func schema_new() C.uintptr_t {
	return C.uintptr_t(cgo.NewHandle(types.NewSchema()))
}

//export schema_free
func schema_free(h C.uintptr_t) {
	cgo.Handle(h).Delete()
}

//export schema_add_field
func schema_add_field(h C.uintptr_t, field *C.char, typeEnum C.int) {
	s := cgo.Handle(h).Value().(*types.Schema)
	s.AddField(C.GoString(field), types.Type(typeEnum))
}

//export router_new
func router_new(schemaHandle C.uintptr_t) C.uintptr_t {
	s := cgo.Handle(schemaHandle).Value().(*types.Schema)
	return C.uintptr_t(cgo.NewHandle(router.New(s)))
}

//export router_free
func router_free(h C.uintptr_t) {
	cgo.Handle(h).Delete()
}

//export router_add_matcher
func router_add_matcher(h C.uintptr_t, priority C.uint64_t, uuidStr, atcStr *C.char, errbuf *C.char, errLen *C.long) C.bool {
	r := cgo.Handle(h).Value().(*router.Router)
	id, err := uuid.Parse(C.GoString(uuidStr))
	if err != nil {
		writeErr(errbuf, errLen, err.Error())
		return false
	}
	if err := r.AddMatcher(uint64(priority), id, C.GoString(atcStr)); err != nil {
		log.WithFields(map[string]interface{}{"uuid": id}).Debug("add_matcher rejected: " + err.Error())
		writeErr(errbuf, errLen, err.Error())
		return false
	}
	return true
}

//export router_remove_matcher
func router_remove_matcher(h C.uintptr_t, priority C.uint64_t, uuidStr *C.char) C.bool {
	r := cgo.Handle(h).Value().(*router.Router)
	id, err := uuid.Parse(C.GoString(uuidStr))
	if err != nil {
		return false
	}
	return C.bool(r.RemoveMatcher(uint64(priority), id))
}

//export router_execute
func router_execute(h, ctxHandle C.uintptr_t) C.bool {
	r := cgo.Handle(h).Value().(*router.Router)
	ctx := cgo.Handle(ctxHandle).Value().(*rcontext.Context)
	return C.bool(r.Execute(ctx))
}

// router_get_fields reports the router's referenced fields. Passing a nil
// outPtrs (or outLens) is a query for the required count, per spec.md §6's
// "null output pointers query for required sizes" convention; otherwise up
// to cap entries are copied into the caller's outPtrs[i]/outLens[i] buffers,
// and outIndexes[i] (if non-nil) is set to the field's stable compact index.
// The return value is always the total field count.
//
//export router_get_fields
func router_get_fields(h C.uintptr_t, outPtrs **C.char, outLens *C.long, outIndexes *C.int, cap C.int) C.int {
	r := cgo.Handle(h).Value().(*router.Router)
	fields := r.GetFields()
	if outPtrs == nil || outLens == nil || cap <= 0 {
		return C.int(len(fields))
	}

	n := int(cap)
	if n > len(fields) {
		n = len(fields)
	}
	withIndex := r.GetFieldsWithIndex()
	ptrs := unsafe.Slice(outPtrs, n)
	lens := unsafe.Slice(outLens, n)
	var idxs []C.int
	if outIndexes != nil {
		idxs = unsafe.Slice(outIndexes, n)
	}
	for i := 0; i < n; i++ {
		writeBuf(ptrs[i], &lens[i], fields[i])
		if idxs != nil {
			idxs[i] = C.int(withIndex[fields[i]])
		}
	}
	return C.int(len(fields))
}

//export context_new
func context_new(schemaHandle C.uintptr_t) C.uintptr_t {
	s := cgo.Handle(schemaHandle).Value().(*types.Schema)
	return C.uintptr_t(cgo.NewHandle(rcontext.New(s, nil)))
}

//export context_free
func context_free(h C.uintptr_t) {
	cgo.Handle(h).Delete()
}

//export context_reset
func context_reset(h C.uintptr_t) {
	cgo.Handle(h).Value().(*rcontext.Context).Reset()
}

//export context_add_value
func context_add_value(h C.uintptr_t, field *C.char, v *C.CValue, errbuf *C.char, errLen *C.long) C.bool {
	ctx := cgo.Handle(h).Value().(*rcontext.Context)

	var val types.Value
	var err error
	switch v.tag {
	case 0:
		val = types.NewString(C.GoStringN(v.str_ptr, C.int(v.str_len)))
	case 1:
		val, err = types.NewIPCIDR(C.GoStringN(v.str_ptr, C.int(v.str_len)))
	case 2:
		val, err = types.NewIPAddr(C.GoStringN(v.str_ptr, C.int(v.str_len)))
	case 3:
		val = types.NewInt(int64(v.i))
	default:
		writeErr(errbuf, errLen, "unknown CValue tag")
		return false
	}
	if err != nil {
		writeErr(errbuf, errLen, err.Error())
		return false
	}
	if err := ctx.AddValue(C.GoString(field), val); err != nil {
		writeErr(errbuf, errLen, err.Error())
		return false
	}
	return true
}

// context_get_result resolves the last match recorded against ctx. uuidOut,
// if non-nil, is written the full 36-byte UUID string. matchedValueOut is
// written matchedField's matched value rendered as a diagnostic string (per
// types.Value.String), if one of the recorded predicates decided the match
// on that field. captureNamesOut/captureValuesOut, if both non-nil, receive
// up to capturesCap of the matched predicate's regex captures, in a stable
// sorted-by-name order; capturesCap == 0 or nil out-params skip marshalling
// them. The return value is always the total capture count, or -1 if ctx has
// no recorded match.
//
//export context_get_result
func context_get_result(
	h C.uintptr_t, matchedField *C.char, uuidOut *C.char,
	matchedValueOut *C.char, matchedValueLen *C.long,
	captureNamesOut **C.char, captureNameLens *C.long,
	captureValuesOut **C.char, captureValueLens *C.long,
	capturesCap C.int,
) C.int {
	ctx := cgo.Handle(h).Value().(*rcontext.Context)
	res, matchedValue, captures, ok := ctx.GetResult(C.GoString(matchedField))
	if !ok {
		return -1
	}

	if uuidOut != nil {
		s := res.UUID.String()
		dst := unsafe.Slice((*byte)(unsafe.Pointer(uuidOut)), len(s))
		copy(dst, s)
	}
	if matchedValue != nil {
		writeBuf(matchedValueOut, matchedValueLen, matchedValue.String())
	}

	if captureNamesOut != nil && captureValuesOut != nil && captureNameLens != nil && captureValueLens != nil && capturesCap > 0 {
		names := make([]string, 0, len(captures))
		for name := range captures {
			names = append(names, name)
		}
		sort.Strings(names)

		n := int(capturesCap)
		if n > len(names) {
			n = len(names)
		}
		namePtrs := unsafe.Slice(captureNamesOut, n)
		nameLens := unsafe.Slice(captureNameLens, n)
		valuePtrs := unsafe.Slice(captureValuesOut, n)
		valueLens := unsafe.Slice(captureValueLens, n)
		for i := 0; i < n; i++ {
			writeBuf(namePtrs[i], &nameLens[i], names[i])
			writeBuf(valuePtrs[i], &valueLens[i], captures[names[i]])
		}
	}

	return C.int(len(captures))
}
