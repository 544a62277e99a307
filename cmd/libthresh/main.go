// Command libthresh builds the engine as a C shared library:
//
//	go build -buildmode=c-shared -o libthresh.so ./cmd/libthresh
//
// Every function returns a boundary code (0 on success). Output buffers are
// allocated with malloc and must be released with thresh_buffer_free, which
// zeroes them first. Tables are created with thresh_table_new and own the
// instances created through them; thresh_table_free destroys them all.
//
// thresh_advance and thresh_step report the run status as 0 (continue),
// 1 (done) or 2 (failed). A failed run also returns the code of its error
// kind.
package main

/*
#include <stdint.h>
#include <stdlib.h>
#include <string.h>

typedef struct {
	uint8_t *data;
	size_t len;
} thresh_buffer;
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"go.uber.org/zap/zapcore"

	"github.com/f3rmion/thresh/boundary"
	"github.com/f3rmion/thresh/logging"
)

func main() {}

var (
	tablesMu  sync.Mutex
	tables    = make(map[uint64]*boundary.Table)
	nextTable uint64
)

func table(id C.uint64_t) (*boundary.Table, error) {
	tablesMu.Lock()
	defer tablesMu.Unlock()
	t, ok := tables[uint64(id)]
	if !ok {
		return nil, &boundary.Error{Code: boundary.CodeInvalidHandle, Err: fmt.Errorf("table %d", uint64(id))}
	}
	return t, nil
}

// recoverCode turns a panic in the adapter itself into CodeInternal.
func recoverCode(code *C.int32_t) {
	if r := recover(); r != nil {
		*code = C.int32_t(boundary.CodeInternal)
	}
}

func result(err error) C.int32_t {
	return C.int32_t(boundary.CodeOf(err))
}

// input copies a caller buffer into Go memory.
func input(p *C.uint8_t, n C.size_t) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if p == nil || uint64(n) > boundary.MaxBuffer {
		return nil, &boundary.Error{Code: boundary.CodeInvalidBuffer, Err: fmt.Errorf("buffer of %d bytes", uint64(n))}
	}
	return C.GoBytes(unsafe.Pointer(p), C.int(n)), nil
}

// output hands b to the caller in malloc'd memory.
func output(dst *C.thresh_buffer, b []byte) error {
	if dst == nil {
		return &boundary.Error{Code: boundary.CodeInvalidBuffer, Err: fmt.Errorf("nil output buffer")}
	}
	dst.data, dst.len = nil, 0
	if len(b) == 0 {
		return nil
	}
	dst.data = (*C.uint8_t)(C.CBytes(b))
	dst.len = C.size_t(len(b))
	return nil
}

//export thresh_buffer_free
func thresh_buffer_free(buf *C.thresh_buffer) {
	if buf == nil || buf.data == nil {
		return
	}
	C.memset(unsafe.Pointer(buf.data), 0, buf.len)
	C.free(unsafe.Pointer(buf.data))
	buf.data, buf.len = nil, 0
}

//export thresh_table_new
func thresh_table_new(paillierBits C.uint32_t, verbose C.int, out *C.uint64_t) (code C.int32_t) {
	defer recoverCode(&code)
	if out == nil {
		return C.int32_t(boundary.CodeInvalidBuffer)
	}
	log := logging.Nop()
	if verbose != 0 {
		l, err := logging.NewDevelopment(zapcore.DebugLevel)
		if err != nil {
			return result(err)
		}
		log = l
	}
	t, err := boundary.NewTable(boundary.Config{Logger: log, PaillierBits: int(paillierBits)})
	if err != nil {
		return result(err)
	}
	tablesMu.Lock()
	nextTable++
	tables[nextTable] = t
	*out = C.uint64_t(nextTable)
	tablesMu.Unlock()
	return 0
}

//export thresh_table_free
func thresh_table_free(id C.uint64_t) (code C.int32_t) {
	defer recoverCode(&code)
	tablesMu.Lock()
	t, ok := tables[uint64(id)]
	delete(tables, uint64(id))
	tablesMu.Unlock()
	if !ok {
		return C.int32_t(boundary.CodeInvalidHandle)
	}
	t.Close()
	return 0
}

//export thresh_create
func thresh_create(tid C.uint64_t, req *C.uint8_t, reqLen C.size_t, handle *C.uint64_t, out *C.thresh_buffer) (code C.int32_t) {
	defer recoverCode(&code)
	t, err := table(tid)
	if err != nil {
		return result(err)
	}
	if handle == nil {
		return C.int32_t(boundary.CodeInvalidBuffer)
	}
	b, err := input(req, reqLen)
	if err != nil {
		return result(err)
	}
	h, msgs, err := t.Create(b)
	if err != nil {
		return result(err)
	}
	if err := output(out, msgs); err != nil {
		_ = t.Destroy(h)
		return result(err)
	}
	*handle = C.uint64_t(h)
	return 0
}

//export thresh_advance
func thresh_advance(tid C.uint64_t, handle C.uint64_t, in *C.uint8_t, inLen C.size_t, out *C.thresh_buffer, status *C.uint8_t) (code C.int32_t) {
	defer recoverCode(&code)
	t, err := table(tid)
	if err != nil {
		return result(err)
	}
	b, err := input(in, inLen)
	if err != nil {
		return result(err)
	}
	msgs, st, runErr := t.Advance(boundary.Handle(handle), b)
	if status != nil {
		*status = C.uint8_t(st)
	}
	if err := output(out, msgs); err != nil {
		return result(err)
	}
	return result(runErr)
}

//export thresh_serialize
func thresh_serialize(tid C.uint64_t, handle C.uint64_t, out *C.thresh_buffer) (code C.int32_t) {
	defer recoverCode(&code)
	t, err := table(tid)
	if err != nil {
		return result(err)
	}
	state, err := t.Serialize(boundary.Handle(handle))
	if err != nil {
		return result(err)
	}
	return result(output(out, state))
}

//export thresh_deserialize
func thresh_deserialize(tid C.uint64_t, state *C.uint8_t, stateLen C.size_t, handle *C.uint64_t) (code C.int32_t) {
	defer recoverCode(&code)
	t, err := table(tid)
	if err != nil {
		return result(err)
	}
	if handle == nil {
		return C.int32_t(boundary.CodeInvalidBuffer)
	}
	b, err := input(state, stateLen)
	if err != nil {
		return result(err)
	}
	h, err := t.Deserialize(b)
	if err != nil {
		return result(err)
	}
	*handle = C.uint64_t(h)
	return 0
}

//export thresh_step
func thresh_step(tid C.uint64_t, state *C.uint8_t, stateLen C.size_t, in *C.uint8_t, inLen C.size_t,
	next *C.thresh_buffer, out *C.thresh_buffer, status *C.uint8_t) (code C.int32_t) {
	defer recoverCode(&code)
	t, err := table(tid)
	if err != nil {
		return result(err)
	}
	s, err := input(state, stateLen)
	if err != nil {
		return result(err)
	}
	b, err := input(in, inLen)
	if err != nil {
		return result(err)
	}
	ns, msgs, st, runErr := t.Step(s, b)
	if status != nil {
		*status = C.uint8_t(st)
	}
	if ns == nil && runErr != nil {
		return result(runErr)
	}
	if err := output(next, ns); err != nil {
		return result(err)
	}
	if err := output(out, msgs); err != nil {
		thresh_buffer_free(next)
		return result(err)
	}
	return result(runErr)
}

//export thresh_artifact
func thresh_artifact(tid C.uint64_t, handle C.uint64_t, out *C.thresh_buffer) (code C.int32_t) {
	defer recoverCode(&code)
	t, err := table(tid)
	if err != nil {
		return result(err)
	}
	a, err := t.Artifact(boundary.Handle(handle))
	if err != nil {
		return result(err)
	}
	return result(output(out, a))
}

//export thresh_destroy
func thresh_destroy(tid C.uint64_t, handle C.uint64_t) (code C.int32_t) {
	defer recoverCode(&code)
	t, err := table(tid)
	if err != nil {
		return result(err)
	}
	return result(t.Destroy(boundary.Handle(handle)))
}

//export thresh_encrypt
func thresh_encrypt(tid C.uint64_t, curve *C.char, key *C.uint8_t, keyLen C.size_t, pt *C.uint8_t, ptLen C.size_t, out *C.thresh_buffer) (code C.int32_t) {
	defer recoverCode(&code)
	t, err := table(tid)
	if err != nil {
		return result(err)
	}
	if curve == nil {
		return C.int32_t(boundary.CodeInvalidBuffer)
	}
	k, err := input(key, keyLen)
	if err != nil {
		return result(err)
	}
	p, err := input(pt, ptLen)
	if err != nil {
		return result(err)
	}
	ct, err := t.Encrypt(C.GoString(curve), k, p)
	if err != nil {
		return result(err)
	}
	return result(output(out, ct))
}

//export thresh_seal
func thresh_seal(tid C.uint64_t, key *C.uint8_t, pt *C.uint8_t, ptLen C.size_t, aad *C.uint8_t, aadLen C.size_t, out *C.thresh_buffer) (code C.int32_t) {
	defer recoverCode(&code)
	return channelOp(tid, key, pt, ptLen, aad, aadLen, out, (*boundary.Table).Seal)
}

//export thresh_open
func thresh_open(tid C.uint64_t, key *C.uint8_t, blob *C.uint8_t, blobLen C.size_t, aad *C.uint8_t, aadLen C.size_t, out *C.thresh_buffer) (code C.int32_t) {
	defer recoverCode(&code)
	return channelOp(tid, key, blob, blobLen, aad, aadLen, out, (*boundary.Table).Open)
}

// channelOp reads a 32-byte key and two buffers, then runs op.
func channelOp(tid C.uint64_t, key, data *C.uint8_t, dataLen C.size_t, aad *C.uint8_t, aadLen C.size_t,
	out *C.thresh_buffer, op func(*boundary.Table, []byte, []byte, []byte) ([]byte, error)) C.int32_t {
	t, err := table(tid)
	if err != nil {
		return result(err)
	}
	k, err := input(key, 32)
	if err != nil {
		return result(err)
	}
	d, err := input(data, dataLen)
	if err != nil {
		return result(err)
	}
	a, err := input(aad, aadLen)
	if err != nil {
		return result(err)
	}
	res, err := op(t, k, d, a)
	if err != nil {
		return result(err)
	}
	return result(output(out, res))
}
