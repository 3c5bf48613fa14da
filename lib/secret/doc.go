// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds session tokens and passwords in memory outside
// the Go heap.
//
// [Protect] copies the secret into an anonymous mmap region, zeros the
// caller's slice, asks the kernel to keep the pages out of swap (mlock)
// and out of core dumps (MADV_DONTDUMP), and zeros the region again on
// [Buffer.Close]. The garbage collector never sees the region, so it
// never leaves stray copies behind.
//
// mlock is best effort: processes with a tiny RLIMIT_MEMLOCK (common on
// phones and in containers) still get a heap-external, zero-on-close
// buffer, and [Buffer.Locked] reports whether the pages are pinned.
package secret
